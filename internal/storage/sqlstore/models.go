// Package sqlstore is the SQL+vector Storage Backend implementation:
// postgres via gorm as the system of record, pgvector for in-database ANN
// search, and an elasticsearch keyword lane with a postgres full-text
// fallback. Grounded on
// the teacher's internal/application/repository/retriever/qdrant package
// (one retrieval contract fronting more than one search engine) and
// internal/agent/tools/database_query.go's tenant-scoped query construction.
package sqlstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// nodeRow is the gorm model for memory_nodes, one table in the single
// schema holding both tenant-scoped and user-scoped nodes (exactly one of
// user_id/tenant_id set).
type nodeRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;index"`
	TenantID         uuid.UUID `gorm:"type:uuid;index"`
	ConversationID   string
	SequenceIndex    int
	HumanContent     string
	AssistantContent string
	Source           string
	Embedding        pgvector.Vector `gorm:"type:vector"`
	HeuristicTags    JSONMap         `gorm:"type:jsonb"`
	CreatedAt        time.Time
}

func (nodeRow) TableName() string { return "memory_nodes" }

// chunkRow is the gorm model for document_chunks.
type chunkRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;index"`
	DepartmentID     string    `gorm:"index"`
	SourceFile       string
	FileHash         string `gorm:"index"`
	SectionTitle     string
	Content          string
	ChunkIndex       int
	ParentDocumentID uuid.UUID
	TokenCount       int
	Keywords         JSONArray
	Category         string
	Subcategory      string
	Embedding        pgvector.Vector `gorm:"type:vector"`
	Enrichment       JSONMap         `gorm:"type:jsonb"`
	Importance       float64
	CreatedAt        time.Time
}

func (chunkRow) TableName() string { return "document_chunks" }

// queryRecordRow is the gorm model for query_records, the only one of the
// three analytics tables that must never be dropped under write pressure.
type queryRecordRow struct {
	ID                       uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserEmail                string
	TenantID                 uuid.UUID `gorm:"index"`
	DepartmentID             string
	SessionID                string `gorm:"index"`
	QueryText                string
	Status                   string
	ResponseTimeMs           int64
	ResponseLength           int
	InputTokens              int
	OutputTokens             int
	ModelID                  string
	Category                 string
	Keywords                 JSONArray
	FrustrationSignals       int
	IsRepeat                 bool
	RepeatOf                 uuid.UUID
	QueryPositionInSession   int
	TimeSinceLastQueryMs     int64
	Complexity               float64
	Intent                   string
	Specificity              float64
	Urgency                  string
	MultiPart                bool
	InferredDepartment       string
	InferredDeptDistribution JSONMap
	SessionPattern           string
	CreatedAt                time.Time `gorm:"index"`
}

func (queryRecordRow) TableName() string { return "query_records" }

// userRow is the gorm model for users, keyed by tenant_id in the single
// schema. Shared by Identity & Session's user
// lookup and the Gateway's admin endpoints.
type userRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID `gorm:"type:uuid;index"`
	Email             string    `gorm:"index"`
	DisplayName       string
	ExternalSubjectID string `gorm:"index"`
	DepartmentAccess  JSONArray
	DeptHeadFor       JSONArray
	IsSuperUser       bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       time.Time
}

func (userRow) TableName() string { return "users" }

type auditEntryRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;index"`
	ActorID    uuid.UUID `gorm:"type:uuid;index"`
	TargetID   uuid.UUID `gorm:"type:uuid;index"`
	Action     string
	Department string
	Before     JSONMap
	After      JSONMap
	Reason     string
	CreatedAt  time.Time `gorm:"index"`
}

func (auditEntryRow) TableName() string { return "audit_entries" }
