package types

import (
	"time"

	"github.com/google/uuid"
)

// User belongs to exactly one tenant. Soft-deleted via IsActive=false rather
// than removed.
type User struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	ExternalSubjectID string    `json:"external_subject_id,omitempty"`
	DepartmentAccess  []string  `json:"department_access"`
	DeptHeadFor       []string  `json:"dept_head_for"`
	IsSuperUser       bool      `json:"is_super_user"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LastLoginAt       time.Time `json:"last_login_at"`
}

// HasDepartmentAccess reports whether dept is in DepartmentAccess.
func (u *User) HasDepartmentAccess(dept string) bool {
	for _, d := range u.DepartmentAccess {
		if d == dept {
			return true
		}
	}
	return false
}

// IsDeptHead reports whether u heads dept.
func (u *User) IsDeptHead(dept string) bool {
	for _, d := range u.DeptHeadFor {
		if d == dept {
			return true
		}
	}
	return false
}
