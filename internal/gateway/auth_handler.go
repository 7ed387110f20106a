package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type authCallbackRequest struct {
	State string `json:"state"`
	Code  string `json:"code" binding:"required"`
}

// AuthCallback handles POST /api/auth/callback, delegating token/claims
// validation entirely to C2 (Identity & Session): the IdP exchange itself
// is the external collaborator named out of scope in §1, so this handler's
// job is only to pick the tenant's configured IdentityProvider, hand it the
// authorization code, and translate the resulting Principal (or failure)
// into the wire contract of §6 (200 + session / 401 on invalid state/code).
func (g *Gateway) AuthCallback(c *gin.Context) {
	var req authCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "msg": "missing or malformed callback payload"})
		return
	}

	t := tenantFrom(c)
	idp := g.idpConsumer
	if t.IsEnterprise {
		idp = g.idpEnterprise
	}

	principal, err := g.session.Authenticate(c.Request.Context(), idp, t, req.Code, g.cfg.Auth.AutoProvision)
	if err != nil {
		respondErr(c, err)
		return
	}

	// The session itself (cookie/JWT issuance) is a thin wrapper around the
	// already-validated code: client requests after this point present it
	// again as the Authorization bearer token, so no separate session store
	// is required here.
	c.JSON(http.StatusOK, gin.H{
		"code": "OK", "msg": "success",
		"data": gin.H{"user_id": principal.UserID, "tenant_id": principal.TenantID, "email": principal.Email},
	})
}
