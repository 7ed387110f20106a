// Package filestore is the file-backed Storage Backend implementation,
// suited to small corpora, local development, and tests. It keeps an
// in-memory index backed by newline-delimited JSON files per collection,
// grounded on the teacher's §9 note to keep the file-based backend behind
// the same Backend interface as the SQL one, selected once at startup.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Backend implements storage.Backend over a directory of append-only
// newline-delimited JSON files, one per collection.
type Backend struct {
	root string

	mu     sync.RWMutex
	nodes  map[uuid.UUID]types.MemoryNode
	chunks map[uuid.UUID]types.DocumentChunk
	chunksByKey map[string]uuid.UUID // idempotency by UniqueKey()

	queryWriter *jsonlWriter
	eventWriter *jsonlWriter
	auditWriter *jsonlWriter
}

func New(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	b := &Backend{
		root:        root,
		nodes:       make(map[uuid.UUID]types.MemoryNode),
		chunks:      make(map[uuid.UUID]types.DocumentChunk),
		chunksByKey: make(map[string]uuid.UUID),
	}
	var err error
	if b.queryWriter, err = newJSONLWriter(filepath.Join(root, "query_records.jsonl")); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	if b.eventWriter, err = newJSONLWriter(filepath.Join(root, "metric_events.jsonl")); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	if b.auditWriter, err = newJSONLWriter(filepath.Join(root, "audit_entries.jsonl")); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	if err := b.loadNodes(); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	if err := b.loadChunks(); err != nil {
		return nil, apperr.New(apperr.BackendMisconfig, err)
	}
	return b, nil
}

func (b *Backend) nodesPath() string  { return filepath.Join(b.root, "memory_nodes.jsonl") }
func (b *Backend) chunksPath() string { return filepath.Join(b.root, "document_chunks.jsonl") }

// nodeRecord and chunkRecord are the on-disk envelopes for MemoryNode and
// DocumentChunk: both types hide Embedding behind a `json:"-"` tag (the SQL
// backend stores vectors in a separate pgvector column), so the file backend
// carries it alongside the struct's own JSON encoding instead.
type nodeRecord struct {
	types.MemoryNode
	Embedding types.Vector `json:"embedding,omitempty"`
}

type chunkRecord struct {
	types.DocumentChunk
	Embedding types.Vector `json:"embedding,omitempty"`
}

func (b *Backend) loadNodes() error {
	return forEachLine(b.nodesPath(), func(line []byte) error {
		var r nodeRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		r.MemoryNode.Embedding = r.Embedding
		b.nodes[r.MemoryNode.ID] = r.MemoryNode
		return nil
	})
}

func (b *Backend) loadChunks() error {
	return forEachLine(b.chunksPath(), func(line []byte) error {
		var r chunkRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		r.DocumentChunk.Embedding = r.Embedding
		b.chunks[r.DocumentChunk.ID] = r.DocumentChunk
		b.chunksByKey[r.DocumentChunk.UniqueKey()] = r.DocumentChunk.ID
		return nil
	})
}

func forEachLine(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// matchesMemoryScope reports whether a node's owning ids satisfy scope.
func matchesMemoryScope(scope types.Scope, userID, tenantID uuid.UUID) bool {
	if scope.UserID != uuid.Nil {
		return userID == scope.UserID
	}
	if scope.TenantID != uuid.Nil {
		return tenantID == scope.TenantID
	}
	return false
}

func matchesChunkScope(scope types.Scope, tenantID uuid.UUID, deptID string) bool {
	if scope.TenantID == uuid.Nil || tenantID != scope.TenantID {
		return false
	}
	if len(scope.DepartmentIDs) == 0 {
		return true
	}
	for _, d := range scope.DepartmentIDs {
		if d == deptID {
			return true
		}
	}
	return false
}

func (b *Backend) GetNodes(ctx context.Context, scope types.Scope, limit, offset int) ([]types.MemoryNode, error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]types.MemoryNode, 0)
	for _, n := range b.nodes {
		if matchesMemoryScope(scope, n.UserID, n.TenantID) {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func cosine(a, b types.Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (b *Backend) VectorSearchNodes(
	ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64,
) ([]storage.Scored[types.MemoryNode], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.Scored[types.MemoryNode], 0)
	for _, n := range b.nodes {
		if !matchesMemoryScope(scope, n.UserID, n.TenantID) {
			continue
		}
		score := cosine(queryVec, n.Embedding)
		if score < minScore {
			continue
		}
		out = append(out, storage.Scored[types.MemoryNode]{Item: n, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (b *Backend) KeywordSearchChunks(
	ctx context.Context, scope types.Scope, queryText string, k int,
) ([]storage.Scored[types.DocumentChunk], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(queryText))
	if len(terms) == 0 {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.Scored[types.DocumentChunk], 0)
	for _, c := range b.chunks {
		if !matchesChunkScope(scope, c.TenantID, c.DepartmentID) {
			continue
		}
		content := strings.ToLower(c.Content)
		hits := 0
		for _, t := range terms {
			if strings.Contains(content, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(terms))
		out = append(out, storage.Scored[types.DocumentChunk]{Item: c, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (b *Backend) VectorSearchChunks(
	ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64,
) ([]storage.Scored[types.DocumentChunk], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.Scored[types.DocumentChunk], 0)
	for _, c := range b.chunks {
		if !matchesChunkScope(scope, c.TenantID, c.DepartmentID) {
			continue
		}
		score := cosine(queryVec, c.Embedding)
		if score < minScore {
			continue
		}
		out = append(out, storage.Scored[types.DocumentChunk]{Item: c, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (b *Backend) InsertNode(ctx context.Context, node types.MemoryNode) error {
	if !node.ScopeKeyValid() {
		return apperr.New(apperr.BackendConflict, fmt.Errorf("filestore: node must set exactly one of user_id/tenant_id"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.nodes[node.ID]; exists {
		return nil // idempotent by id
	}
	b.nodes[node.ID] = node
	return appendJSONL(b.nodesPath(), nodeRecord{MemoryNode: node, Embedding: node.Embedding})
}

func (b *Backend) InsertChunks(ctx context.Context, batch []types.DocumentChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range batch {
		key := c.UniqueKey()
		if _, exists := b.chunksByKey[key]; exists {
			continue // idempotent by (tenant, dept, file_hash, chunk_index)
		}
		b.chunks[c.ID] = c
		b.chunksByKey[key] = c.ID
		if err := appendJSONL(b.chunksPath(), chunkRecord{DocumentChunk: c, Embedding: c.Embedding}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) RecordQuery(ctx context.Context, record types.QueryRecord) error {
	return b.queryWriter.Append(record)
}

func (b *Backend) RecordEvent(ctx context.Context, event types.MetricEvent) error {
	return b.eventWriter.Append(event)
}

func (b *Backend) RecordAudit(ctx context.Context, entry types.AuditEntry) error {
	return b.auditWriter.Append(entry)
}

// Ping satisfies the Gateway's readiness probe: for a file-backed store,
// readiness means the root directory is still there and listable.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := os.Stat(b.root); err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

func (b *Backend) ChunksByPrerequisite(ctx context.Context, scope types.Scope, chunkIDs []string) ([]types.DocumentChunk, error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	want := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.DocumentChunk, 0)
	for _, c := range b.chunks {
		if want[c.ID.String()] && matchesChunkScope(scope, c.TenantID, c.DepartmentID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *Backend) RecentQueryRecords(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error) {
	var matched []types.QueryRecord
	err := forEachLine(filepath.Join(b.root, "query_records.jsonl"), func(line []byte) error {
		var r types.QueryRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		if r.UserEmail == userEmail && r.SessionID == sessionID {
			matched = append(matched, r)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if n > 0 && len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

var _ storage.Backend = (*Backend)(nil)
