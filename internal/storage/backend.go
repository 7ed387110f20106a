// Package storage defines the Storage Backend contract (C3): one interface
// satisfied by two implementations (file-backed and SQL+vector), selected at
// startup per §9's "do not switch at runtime" redesign note.
package storage

import (
	"context"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Scored pairs a stored item with its similarity/relevance score.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Backend is the single storage contract both implementations satisfy.
// Every method's FIRST argument after ctx is the Scope it must enforce:
// an empty Scope MUST return a zero-value/empty result and MUST NOT execute
// any user-visible query (§4.3, §8). Parameter binding is mandatory; no
// implementation may build a query by string interpolation.
type Backend interface {
	GetNodes(ctx context.Context, scope types.Scope, limit, offset int) ([]types.MemoryNode, error)
	VectorSearchNodes(ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64) ([]Scored[types.MemoryNode], error)
	KeywordSearchChunks(ctx context.Context, scope types.Scope, queryText string, k int) ([]Scored[types.DocumentChunk], error)
	VectorSearchChunks(ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64) ([]Scored[types.DocumentChunk], error)

	InsertNode(ctx context.Context, node types.MemoryNode) error
	InsertChunks(ctx context.Context, batch []types.DocumentChunk) error

	RecordQuery(ctx context.Context, record types.QueryRecord) error
	RecordEvent(ctx context.Context, event types.MetricEvent) error
	RecordAudit(ctx context.Context, entry types.AuditEntry) error

	// ChunksByPrerequisite resolves the prerequisite graph edges of
	// prerequisite-expansion (§4.5 step 6) for the given chunk ids.
	ChunksByPrerequisite(ctx context.Context, scope types.Scope, chunkIDs []string) ([]types.DocumentChunk, error)

	// RecentQueryRecords returns the last n QueryRecords for a session, most
	// recent first, feeding the Pattern Detector (§4.6.3) and session
	// context assembly. Not scope-gated: callers already hold an
	// authenticated session's own (user_email, session_id) pair.
	RecentQueryRecords(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error)
}

// EmptyScopeGuard centralizes the fail-secure empty-scope check so every
// Backend implementation enforces it identically instead of re-deriving it
// per method.
func EmptyScopeGuard(scope types.Scope) bool {
	return scope.Empty()
}
