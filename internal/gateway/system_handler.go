package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// pinger is the optional narrow surface a Storage Backend may satisfy to
// give the readiness probe a real round-trip instead of a no-op (§4.3's
// fail-secure empty-Scope guard would otherwise make any Backend call here
// vacuously succeed without touching the connection pool).
type pinger interface {
	Ping(ctx context.Context) error
}

// Healthz handles GET /healthz: a liveness probe that never touches a
// downstream dependency, matching the teacher's handler/system.go instinct
// of a cheap always-200 info endpoint.
func (g *Gateway) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "alive"})
}

// Readyz handles GET /readyz: readiness requires the storage pool and the
// embedder to both answer, per SUPPLEMENTED FEATURES item 2.
func (g *Gateway) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	if p, ok := g.backend.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			respondErr(c, err)
			return
		}
	}
	if g.embedder != nil {
		if _, err := g.embedder.Embed(ctx, "readiness probe"); err != nil {
			respondErr(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "ready"})
}
