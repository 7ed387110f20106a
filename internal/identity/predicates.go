// Package identity implements the Identity & Session component (C2):
// bearer-token validation against the tenant's configured IdP, user
// lookup/auto-provision, and the pure authorization predicates consumed by
// every downstream component. The predicates here are never used by the IdP
// itself — they gate application-level reads/writes only.
package identity

import (
	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// CanReadDepartment implements can_read_department(p, dept) of §4.2.
func CanReadDepartment(p types.Principal, dept string) bool {
	return p.IsSuperUser || p.HasDepartment(dept)
}

// CanWriteDepartment implements can_write_department(p, dept) of §4.2.
func CanWriteDepartment(p types.Principal, dept string) bool {
	return p.IsSuperUser || p.HeadOf(dept)
}

// CanManageUser implements can_manage_user(actor, target, dept) of §4.2. A
// principal may never manage itself through this predicate — self-mutation
// (e.g. deactivation) must be rejected independently of department headship.
func CanManageUser(actor types.Principal, target types.User, dept string) bool {
	if actor.IsSuperUser {
		return true
	}
	return actor.HeadOf(dept) && target.ID != actor.UserID
}

// IsSelf reports whether targetID is the acting principal's own user id. A
// caller performing a deactivation MUST reject the request when this is
// true, regardless of super-user status (§4.2: "a principal may never
// deactivate itself").
func IsSelf(actor types.Principal, targetID uuid.UUID) bool {
	return actor.UserID == targetID
}
