package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
	"gorm.io/gorm"
)

// FindUserBySubject implements identity.UserStore.
func (b *Backend) FindUserBySubject(ctx context.Context, tenantID uuid.UUID, subject string) (*types.User, error) {
	if subject == "" {
		return nil, nil
	}
	var row userRow
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND external_subject_id = ?", tenantID, subject).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	u := rowToUser(row)
	return &u, nil
}

// FindUserByEmail implements identity.UserStore.
func (b *Backend) FindUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*types.User, error) {
	if email == "" {
		return nil, nil
	}
	var row userRow
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	u := rowToUser(row)
	return &u, nil
}

// CreateUser implements identity.UserStore, auto-provisioning a new row.
func (b *Backend) CreateUser(ctx context.Context, u *types.User) error {
	row := userToRow(*u)
	if err := b.db.WithContext(ctx).Clauses(onConflictDoNothingID()).Create(&row).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

// TouchLastLogin implements identity.UserStore.
func (b *Backend) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	err := b.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
	if err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

// GetUser resolves a single user by tenant and id, used by the Gateway's
// admin handlers before every mutation so they always authorize against the
// current row, never a caller-supplied shadow copy.
func (b *Backend) GetUser(ctx context.Context, tenantID, userID uuid.UUID) (*types.User, error) {
	var row userRow
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	u := rowToUser(row)
	return &u, nil
}

// ListUsers backs GET /api/admin/users?department=...&search=.... department
// filters on membership in department_access; search matches email or
// display_name by substring (case-insensitive).
func (b *Backend) ListUsers(ctx context.Context, tenantID uuid.UUID, department, search string) ([]types.User, error) {
	q := b.db.WithContext(ctx).Model(&userRow{}).Where("tenant_id = ?", tenantID)
	if department != "" {
		q = q.Where("department_access @> ?", JSONArray{department})
	}
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("lower(email) LIKE ? OR lower(display_name) LIKE ?", like, like)
	}
	var rows []userRow
	if err := q.Order("email").Find(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]types.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToUser(r))
	}
	return out, nil
}

// UpdateUser persists the full row, used after grant/revoke/update/
// deactivate/reactivate has mutated u in memory. Callers set UpdatedAt.
func (b *Backend) UpdateUser(ctx context.Context, u *types.User) error {
	row := userToRow(*u)
	if err := b.db.WithContext(ctx).Save(&row).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

// Ping satisfies the Gateway's readiness probe, round-tripping the
// connection pool without touching any tenant-scoped table.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

// ListAuditEntries backs the admin audit-log read endpoint, most recent
// first, scoped to tenantID and optionally narrowed to one target user.
func (b *Backend) ListAuditEntries(ctx context.Context, tenantID, targetID uuid.UUID, limit int) ([]types.AuditEntry, error) {
	q := b.db.WithContext(ctx).Model(&auditEntryRow{}).Where("tenant_id = ?", tenantID)
	if targetID != uuid.Nil {
		q = q.Where("target_id = ?", targetID)
	}
	var rows []auditEntryRow
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]types.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.AuditEntry{
			ID: r.ID, TenantID: r.TenantID, ActorID: r.ActorID, TargetID: r.TargetID, Action: types.AuditAction(r.Action),
			Department: r.Department, Before: map[string]interface{}(r.Before), After: map[string]interface{}(r.After),
			Reason: r.Reason, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
