package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/identity"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// AuditReader is the narrow read surface the audit-log endpoint needs,
// satisfied structurally by *sqlstore.Backend (audit entries are never
// read from the file-backed storage implementation).
type AuditReader interface {
	ListAuditEntries(ctx context.Context, tenantID, targetID uuid.UUID, limit int) ([]types.AuditEntry, error)
}

// ListUsers handles GET /api/admin/users?department=...&search=....
// Department heads may only list within a department they can read;
// listing the whole tenant roster requires a super user (§4.2, §4.10).
func (g *Gateway) ListUsers(c *gin.Context) {
	actor := principalFrom(c)
	department := c.Query("department")
	search := c.Query("search")

	if department != "" {
		if !identity.CanReadDepartment(actor, department) {
			requireForbidden(c, "list_users")
			return
		}
	} else if !actor.IsSuperUser {
		requireForbidden(c, "list_users")
		return
	}

	users, err := g.users.ListUsers(c.Request.Context(), actor.TenantID, department, search)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": users})
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name"`
	IsSuperUser *bool   `json:"is_super_user"`
}

// UpdateUser handles PUT /api/admin/users/{id}.
func (g *Gateway) UpdateUser(c *gin.Context) {
	actor := principalFrom(c)
	target, ok := g.loadManageableTarget(c, actor, "update_user")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "msg": "malformed request body"})
		return
	}
	if req.IsSuperUser != nil && !actor.IsSuperUser {
		requireForbidden(c, "update_user.is_super_user")
		return
	}

	before := *target
	if req.DisplayName != nil {
		target.DisplayName = *req.DisplayName
	}
	if req.IsSuperUser != nil {
		target.IsSuperUser = *req.IsSuperUser
	}
	target.UpdatedAt = time.Now().UTC()

	if err := g.users.UpdateUser(c.Request.Context(), target); err != nil {
		respondErr(c, err)
		return
	}
	g.userCache.Invalidate(*target)
	g.recordAudit(c, actor, target.ID, types.AuditUpdateUser, "", before, *target)
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": target})
}

// GrantDepartment handles the department-access grant admin action named in
// §4.10 ("grant/revoke department access"). Only a super user or the
// department's own head may grant it (§4.2 can_write_department).
func (g *Gateway) GrantDepartment(c *gin.Context) {
	g.mutateDepartmentAccess(c, types.AuditGrantDepartment, func(target *types.User, dept string) {
		if !target.HasDepartmentAccess(dept) {
			target.DepartmentAccess = append(target.DepartmentAccess, dept)
		}
	})
}

// RevokeDepartment handles the department-access revoke admin action.
func (g *Gateway) RevokeDepartment(c *gin.Context) {
	g.mutateDepartmentAccess(c, types.AuditRevokeDepartment, func(target *types.User, dept string) {
		kept := target.DepartmentAccess[:0]
		for _, d := range target.DepartmentAccess {
			if d != dept {
				kept = append(kept, d)
			}
		}
		target.DepartmentAccess = kept
	})
}

func (g *Gateway) mutateDepartmentAccess(c *gin.Context, action types.AuditAction, mutate func(*types.User, string)) {
	actor := principalFrom(c)
	dept := c.Param("dept")
	if !identity.CanWriteDepartment(actor, dept) {
		requireForbidden(c, string(action))
		return
	}

	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "msg": "invalid user id"})
		return
	}
	target, err := g.users.GetUser(c.Request.Context(), actor.TenantID, targetID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "msg": "user not found"})
		return
	}

	before := *target
	mutate(target, dept)
	target.UpdatedAt = time.Now().UTC()

	if err := g.users.UpdateUser(c.Request.Context(), target); err != nil {
		respondErr(c, err)
		return
	}
	g.userCache.Invalidate(*target)
	g.recordAudit(c, actor, target.ID, action, dept, before, *target)
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": target})
}

// DeactivateUser handles DELETE /api/admin/users/{id}: soft-delete via
// IsActive=false. A principal may never deactivate itself, independent of
// super-user status (§4.2's IsSelf note) — surfaced as 409 per §6.
func (g *Gateway) DeactivateUser(c *gin.Context) {
	actor := principalFrom(c)
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "msg": "invalid user id"})
		return
	}
	if identity.IsSelf(actor, targetID) {
		c.JSON(http.StatusConflict, gin.H{"code": "SELF_DEACTIVATE", "msg": "a principal may not deactivate itself"})
		return
	}

	target, ok := g.loadManageableTarget(c, actor, "deactivate_user")
	if !ok {
		return
	}
	before := *target
	target.IsActive = false
	target.UpdatedAt = time.Now().UTC()

	if err := g.users.UpdateUser(c.Request.Context(), target); err != nil {
		respondErr(c, err)
		return
	}
	g.userCache.Invalidate(*target)
	g.recordAudit(c, actor, target.ID, types.AuditDeactivateUser, "", before, *target)
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": target})
}

// ReactivateUser handles POST /api/admin/users/{id}/reactivate.
func (g *Gateway) ReactivateUser(c *gin.Context) {
	actor := principalFrom(c)
	target, ok := g.loadManageableTarget(c, actor, "reactivate_user")
	if !ok {
		return
	}
	before := *target
	target.IsActive = true
	target.UpdatedAt = time.Now().UTC()

	if err := g.users.UpdateUser(c.Request.Context(), target); err != nil {
		respondErr(c, err)
		return
	}
	g.userCache.Invalidate(*target)
	g.recordAudit(c, actor, target.ID, types.AuditReactivateUser, "", before, *target)
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": target})
}

// loadManageableTarget resolves :id within the actor's tenant and checks
// can_manage_user against every department the target belongs to, writing
// the 400/404/403 response itself and returning ok=false when it did.
func (g *Gateway) loadManageableTarget(c *gin.Context, actor types.Principal, action string) (*types.User, bool) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "msg": "invalid user id"})
		return nil, false
	}
	target, err := g.users.GetUser(c.Request.Context(), actor.TenantID, targetID)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "msg": "user not found"})
		return nil, false
	}
	if !canManageAny(actor, *target) {
		requireForbidden(c, action)
		return nil, false
	}
	return target, true
}

// canManageAny reports whether actor can manage target under §4.2's
// can_manage_user predicate for at least one of target's departments. A
// target with no department access can only be managed by a super user.
func canManageAny(actor types.Principal, target types.User) bool {
	if actor.IsSuperUser {
		return true
	}
	for _, d := range target.DepartmentAccess {
		if identity.CanManageUser(actor, target, d) {
			return true
		}
	}
	return false
}

// AuditLog handles GET /api/admin/audit, restricted to super users since
// entries span every department (§SUPPLEMENTED FEATURES item 3).
func (g *Gateway) AuditLog(c *gin.Context) {
	actor := principalFrom(c)
	if !actor.IsSuperUser {
		requireForbidden(c, "read_audit_log")
		return
	}
	var targetID uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "msg": "invalid user_id"})
			return
		}
		targetID = parsed
	}
	if g.audit == nil {
		c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": []types.AuditEntry{}})
		return
	}
	entries, err := g.audit.ListAuditEntries(c.Request.Context(), actor.TenantID, targetID, 200)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": entries})
}

// Analytics handles GET /api/admin/analytics/*metric, restricted to super
// users since the aggregates are tenant-wide rather than department-scoped.
func (g *Gateway) Analytics(c *gin.Context) {
	actor := principalFrom(c)
	if !actor.IsSuperUser {
		requireForbidden(c, "read_analytics")
		return
	}
	if g.agg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "BACKEND_UNAVAILABLE", "msg": "analytics aggregator not configured"})
		return
	}

	ctx := c.Request.Context()
	tenantID := actor.TenantID.String()
	hours := queryIntDefault(c, "hours", 24)
	metric := strings.TrimPrefix(c.Param("metric"), "/")

	var data interface{}
	var err error
	switch metric {
	case "overview":
		data, err = g.agg.OverviewStats(ctx, tenantID, hours)
	case "queries-by-hour":
		data, err = g.agg.QueriesByHour(ctx, tenantID, hours)
	case "category":
		data, err = g.agg.CategoryBreakdown(ctx, tenantID, hours)
	case "intent":
		data, err = g.agg.IntentBreakdown(ctx, tenantID, hours)
	case "urgency":
		data, err = g.agg.UrgencyBreakdown(ctx, tenantID, hours)
	case "department":
		data, err = g.agg.InferredDepartmentBreakdown(ctx, tenantID, hours)
	case "complexity":
		data, err = g.agg.ComplexityDistribution(ctx, tenantID, hours)
	case "errors":
		data, err = g.agg.RecentErrors(ctx, tenantID, queryIntDefault(c, "n", 50))
	default:
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "msg": "unknown analytics metric"})
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "OK", "msg": "success", "data": data})
}

func queryIntDefault(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// recordAudit appends an AuditEntry for a privileged admin mutation. A
// failure here is logged, never surfaced to the caller — the mutation
// itself already committed (§5's audit write is best-effort, not
// transactional with the mutation, mirroring RecordEvent's droppability).
func (g *Gateway) recordAudit(
	c *gin.Context, actor types.Principal, targetID uuid.UUID, action types.AuditAction, department string, before, after interface{},
) {
	entry := types.AuditEntry{
		ID: uuid.New(), TenantID: actor.TenantID, ActorID: actor.UserID, TargetID: targetID,
		Action: action, Department: department, Before: toAuditMap(before), After: toAuditMap(after),
		CreatedAt: time.Now().UTC(),
	}
	if err := g.backend.RecordAudit(c.Request.Context(), entry); err != nil {
		logger.Warn(c.Request.Context(), "gateway: audit record failed", map[string]interface{}{"error": err.Error()})
	}
}

func toAuditMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
