// Package gateway is the Gateway component (C10): the one HTTP surface
// exposed to clients, fronting the streaming chat endpoint, tenant config
// lookup, auth callbacks, and admin read/write endpoints. Grounded on the
// teacher's internal/handler package (NewXHandler constructors, the
// code/msg/data JSON envelope of handler/system.go) and generalized from a
// single-tenant document service to the multi-tenant control flow of
// spec §4.10: Gateway -> Identity -> Tenant Loader -> Cognitive Pipeline.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/analytics"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/config"
	"github.com/tencentyun-labs/cognigate/internal/identity"
	"github.com/tencentyun-labs/cognigate/internal/pipeline"
	"github.com/tencentyun-labs/cognigate/internal/ratelimit"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/tenant"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// UserAdmin is the narrow persistence surface the admin handlers need beyond
// identity.UserStore: reading a single user by id and persisting mutations.
// Satisfied structurally by *sqlstore.Backend.
type UserAdmin interface {
	GetUser(ctx context.Context, tenantID, userID uuid.UUID) (*types.User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID, department, search string) ([]types.User, error)
	UpdateUser(ctx context.Context, u *types.User) error
}

// Gateway holds every collaborator the HTTP surface dispatches to. Built
// once by the composition root (internal/runtime) and never mutated after
// construction.
type Gateway struct {
	cfg *config.Config

	tenants *tenant.Loader

	session       *identity.Session
	idpEnterprise identity.IdentityProvider
	idpConsumer   identity.IdentityProvider
	userCache     *identity.UserCache

	users   UserAdmin
	audit   AuditReader
	backend storage.Backend
	agg     *analytics.Aggregator

	cognitive   *pipeline.Cognitive
	embedder    retrieval.Embedder // used only by the readiness probe
	attachments *AttachmentResolver

	userLimiter *ratelimit.Limiter
	ipLimiter   *ratelimit.Limiter
}

// Deps bundles Gateway's constructor arguments so composition at the
// runtime layer reads as one struct literal rather than a long positional
// argument list.
type Deps struct {
	Config        *config.Config
	Tenants       *tenant.Loader
	Session       *identity.Session
	IdPEnterprise identity.IdentityProvider
	IdPConsumer   identity.IdentityProvider
	UserCache     *identity.UserCache
	Users         UserAdmin
	Audit         AuditReader
	Backend       storage.Backend
	Analytics     *analytics.Aggregator
	Cognitive     *pipeline.Cognitive
	Embedder      retrieval.Embedder
	Attachments   *AttachmentResolver
	UserLimiter   *ratelimit.Limiter
	IPLimiter     *ratelimit.Limiter
}

func New(d Deps) *Gateway {
	return &Gateway{
		cfg: d.Config, tenants: d.Tenants, session: d.Session,
		idpEnterprise: d.IdPEnterprise, idpConsumer: d.IdPConsumer, userCache: d.UserCache,
		users: d.Users, audit: d.Audit, backend: d.Backend, agg: d.Analytics, cognitive: d.Cognitive,
		embedder: d.Embedder, attachments: d.Attachments, userLimiter: d.UserLimiter, ipLimiter: d.IPLimiter,
	}
}

// statusForKind maps the §7 error taxonomy to the HTTP status codes §6's
// surface documents (401/403/404/409 plus the taxonomy's own kinds).
func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.TenantUnknown, apperr.TenantInvalid:
		return http.StatusNotFound
	case apperr.BackendConflict:
		return http.StatusConflict
	case apperr.RetrievalFailed, apperr.EmbedderUnavail, apperr.ProviderUnavail, apperr.BackendUnavailable:
		return http.StatusServiceUnavailable
	case apperr.QueryCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes the envelope convention the teacher's handlers use
// (handler/system.go: {"code":...,"msg":...}), translating the taxonomy
// into a status code without ever forwarding the underlying cause text.
func respondErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := publicMessage(kind)
	c.JSON(statusForKind(kind), gin.H{"code": string(kind), "msg": msg, "success": false})
}

// publicMessage returns the fixed, cause-free message per kind; §7 forbids
// forwarding raw backend/IdP error text to a client.
func publicMessage(k apperr.Kind) string {
	switch k {
	case apperr.Unauthenticated:
		return "authentication required"
	case apperr.Forbidden:
		return "not authorized for this action"
	case apperr.TenantUnknown:
		return "unknown tenant"
	case apperr.TenantInvalid:
		return "tenant is misconfigured"
	case apperr.BackendConflict:
		return "conflicting request"
	case apperr.QueryCanceled:
		return "request canceled"
	case apperr.RetrievalFailed, apperr.EmbedderUnavail, apperr.ProviderUnavail, apperr.BackendUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
