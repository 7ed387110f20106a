package gateway

import "github.com/gin-gonic/gin"

// TenantConfig handles GET /api/tenant/config, resolving the requesting
// host to a tenant and returning its sanitized, client-safe profile (§4.10,
// §4.1's SanitizedProfile — no internal id, owned tables, or secrets).
func (g *Gateway) TenantConfig(c *gin.Context) {
	t := tenantFrom(c)
	c.JSON(200, gin.H{"code": "OK", "msg": "success", "data": t.Sanitize()})
}
