package types

import "github.com/google/uuid"

// Scope is the (user_id | tenant_id, optional department set) under which a
// storage query executes. An empty Scope must yield empty results and must
// not execute any user-visible query — see Scope.Empty and the fail-secure
// invariant of §4.3/§8.
type Scope struct {
	UserID        uuid.UUID
	TenantID      uuid.UUID
	DepartmentIDs []string
}

// Empty reports whether neither UserID nor TenantID is set, which per the
// fail-secure rule must short-circuit every Storage Backend operation.
func (s Scope) Empty() bool {
	return s.UserID == uuid.Nil && s.TenantID == uuid.Nil
}

// UserScope builds a {user_id} scope for the Memory lane in consumer mode.
func UserScope(userID uuid.UUID) Scope {
	return Scope{UserID: userID}
}

// TenantScope builds a {tenant_id} scope for the Memory lane in enterprise
// mode, or for tenant-wide reads with no department restriction.
func TenantScope(tenantID uuid.UUID) Scope {
	return Scope{TenantID: tenantID}
}

// TenantDeptScope builds a {tenant_id, department_ids} scope for the Process
// lane, restricted to the principal's readable departments.
func TenantDeptScope(tenantID uuid.UUID, deptIDs []string) Scope {
	return Scope{TenantID: tenantID, DepartmentIDs: deptIDs}
}
