package types

import "github.com/google/uuid"

// Principal is the authenticated (user, tenant, grants) triple carried with
// every request downstream of Identity & Session (C2).
type Principal struct {
	UserID       uuid.UUID `json:"user_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	Departments  []string  `json:"departments"`
	DeptHeadFor  []string  `json:"dept_head_for"`
	IsSuperUser  bool      `json:"is_super_user"`
	IsEnterprise bool      `json:"is_enterprise"`
}

// HasDepartment reports whether dept is among the principal's readable
// departments (ignoring the super-user override).
func (p Principal) HasDepartment(dept string) bool {
	for _, d := range p.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// HeadOf reports whether the principal heads dept (ignoring the super-user
// override).
func (p Principal) HeadOf(dept string) bool {
	for _, d := range p.DeptHeadFor {
		if d == dept {
			return true
		}
	}
	return false
}
