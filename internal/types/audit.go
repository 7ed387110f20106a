package types

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates the privileged actions recorded in the append-only
// audit log.
type AuditAction string

const (
	AuditGrantDepartment  AuditAction = "GRANT_DEPARTMENT"
	AuditRevokeDepartment AuditAction = "REVOKE_DEPARTMENT"
	AuditUpdateUser       AuditAction = "UPDATE_USER"
	AuditDeactivateUser   AuditAction = "DEACTIVATE_USER"
	AuditReactivateUser   AuditAction = "REACTIVATE_USER"
)

// AuditEntry is an append-only record of a privileged action.
type AuditEntry struct {
	ID           uuid.UUID   `json:"id"`
	TenantID     uuid.UUID   `json:"tenant_id"`
	ActorID      uuid.UUID   `json:"actor_id"`
	TargetID     uuid.UUID   `json:"target_id"`
	Action       AuditAction `json:"action"`
	Department   string      `json:"department,omitempty"`
	Before       interface{} `json:"before,omitempty"`
	After        interface{} `json:"after,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
