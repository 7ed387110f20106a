package gateway

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterRegistersExpectedRoutes(t *testing.T) {
	g := New(Deps{})
	r := g.Router()

	want := []struct{ method, path string }{
		{"GET", "/healthz"},
		{"GET", "/readyz"},
		{"GET", "/api/tenant/config"},
		{"POST", "/api/auth/callback"},
		{"GET", "/api/chat/ws"},
		{"GET", "/api/admin/users"},
		{"PUT", "/api/admin/users/:id"},
		{"POST", "/api/admin/users/:id/departments/:dept"},
		{"DELETE", "/api/admin/users/:id/departments/:dept"},
		{"DELETE", "/api/admin/users/:id"},
		{"POST", "/api/admin/users/:id/reactivate"},
		{"GET", "/api/admin/audit"},
		{"GET", "/api/admin/analytics/*metric"},
	}

	routes := r.Routes()
	for _, w := range want {
		found := false
		for _, got := range routes {
			if got.Method == w.method && got.Path == w.path {
				found = true
				break
			}
		}
		assert.True(t, found, "expected route %s %s to be registered", w.method, w.path)
	}
}
