package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"
)

// Router builds the gin.Engine serving every route the Gateway exposes,
// grouped the way the teacher's handler constructors are grouped: public
// probes un-guarded, everything tenant-scoped behind resolveTenant, and
// everything principal-scoped additionally behind authenticate.
//
// Route layout follows §6's HTTP surface and the Aleutian orchestrator's
// routes.SetupRoutes grouping (a flat health/metrics top level, a versioned
// group underneath), since the teacher itself registers no router at all.
func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	corsCfg.AllowCredentials = false
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", g.Healthz)
	r.GET("/readyz", g.Readyz)
	r.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	api := r.Group("/api")
	api.Use(g.resolveTenant(), g.rateLimitByIP())
	{
		api.GET("/tenant/config", g.TenantConfig)
		api.POST("/auth/callback", g.AuthCallback)

		authed := api.Group("")
		authed.Use(g.authenticate())
		{
			authed.GET("/chat/ws", g.ChatWebSocket)

			admin := authed.Group("/admin")
			{
				admin.GET("/users", g.ListUsers)
				admin.PUT("/users/:id", g.UpdateUser)
				admin.POST("/users/:id/departments/:dept", g.GrantDepartment)
				admin.DELETE("/users/:id/departments/:dept", g.RevokeDepartment)
				admin.DELETE("/users/:id", g.DeactivateUser)
				admin.POST("/users/:id/reactivate", g.ReactivateUser)
				admin.GET("/audit", g.AuditLog)
				admin.GET("/analytics/*metric", g.Analytics)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "msg": "no such route"})
	})

	return r
}

// Serve starts the HTTP server and blocks until ctx is canceled, then drains
// in-flight HTTP requests within shutdownTimeout before returning. Open chat
// websockets are hijacked connections that http.Server.Shutdown neither
// tracks nor closes; each such session ends on its own read-error path.
// Call this from cmd/gateway/main.go with a ctx that is canceled on
// SIGINT/SIGTERM.
func (g *Gateway) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: g.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
