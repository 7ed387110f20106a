package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
	"gorm.io/gorm"
)

// Backend is the SQL+vector Storage Backend: postgres/gorm for the system
// of record and pgvector ANN search, elasticsearch for the keyword lane.
// Selected at startup per §9's "do not switch at runtime" redesign note.
type Backend struct {
	db *gorm.DB
	es *elasticsearch.Client

	chunkIndex string // elasticsearch index name for document_chunks
}

type Option func(*Backend)

func WithElasticsearch(c *elasticsearch.Client, chunkIndex string) Option {
	return func(b *Backend) { b.es = c; b.chunkIndex = chunkIndex }
}

func New(db *gorm.DB, opts ...Option) *Backend {
	b := &Backend{db: db, chunkIndex: "document_chunks"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) GetNodes(ctx context.Context, scope types.Scope, limit, offset int) ([]types.MemoryNode, error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	q := b.db.WithContext(ctx).Model(&nodeRow{})
	q = scopeNodes(q, scope)
	var rows []nodeRow
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]types.MemoryNode, len(rows))
	for i, r := range rows {
		out[i] = rowToNode(r)
	}
	return out, nil
}

func scopeNodes(q *gorm.DB, scope types.Scope) *gorm.DB {
	if scope.UserID != uuid.Nil {
		return q.Where("user_id = ?", scope.UserID)
	}
	return q.Where("tenant_id = ?", scope.TenantID)
}

func scopeChunks(q *gorm.DB, scope types.Scope) *gorm.DB {
	q = q.Where("tenant_id = ?", scope.TenantID)
	if len(scope.DepartmentIDs) > 0 {
		q = q.Where("department_id IN ?", scope.DepartmentIDs)
	}
	return q
}

func (b *Backend) VectorSearchNodes(
	ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64,
) ([]storage.Scored[types.MemoryNode], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	v := pgvector.NewVector(queryVec)
	q := b.db.WithContext(ctx).Model(&nodeRow{}).
		Select("*, 1 - (embedding <=> ?) AS score", v)
	q = scopeNodes(q, scope)
	q = q.Where("1 - (embedding <=> ?) >= ?", v, minScore).
		Order("embedding <=> ?").Limit(k)

	var rows []struct {
		nodeRow
		Score float64
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]storage.Scored[types.MemoryNode], len(rows))
	for i, r := range rows {
		out[i] = storage.Scored[types.MemoryNode]{Item: rowToNode(r.nodeRow), Score: r.Score}
	}
	return out, nil
}

func (b *Backend) VectorSearchChunks(
	ctx context.Context, scope types.Scope, queryVec types.Vector, k int, minScore float64,
) ([]storage.Scored[types.DocumentChunk], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	v := pgvector.NewVector(queryVec)
	q := b.db.WithContext(ctx).Model(&chunkRow{}).
		Select("*, 1 - (embedding <=> ?) AS score", v)
	q = scopeChunks(q, scope)
	q = q.Where("1 - (embedding <=> ?) >= ?", v, minScore).
		Order("embedding <=> ?").Limit(k)

	var rows []struct {
		chunkRow
		Score float64
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]storage.Scored[types.DocumentChunk], len(rows))
	for i, r := range rows {
		out[i] = storage.Scored[types.DocumentChunk]{Item: rowToChunk(r.chunkRow), Score: r.Score}
	}
	return out, nil
}

// KeywordSearchChunks queries elasticsearch with a tenant/department filter
// clause, never a hand-built query string — the query DSL binds scope values
// as structured filter terms, matching the bound-parameter discipline the
// Backend contract requires for every scoped method.
func (b *Backend) KeywordSearchChunks(
	ctx context.Context, scope types.Scope, queryText string, k int,
) ([]storage.Scored[types.DocumentChunk], error) {
	if storage.EmptyScopeGuard(scope) {
		return nil, nil
	}
	if b.es == nil {
		return b.keywordSearchChunksSQL(ctx, scope, queryText, k)
	}

	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"tenant_id": scope.TenantID.String()}},
	}
	if len(scope.DepartmentIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"department_id": scope.DepartmentIDs},
		})
	}
	query := map[string]interface{}{
		"size": k,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   map[string]interface{}{"match": map[string]interface{}{"content": queryText}},
				"filter": filters,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{b.chunkIndex},
		Body:  &buf,
	}.Do(ctx, b.es)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperr.New(apperr.BackendUnavailable, fmt.Errorf("sqlstore: elasticsearch search: %s", res.String()))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}

	out := make([]storage.Scored[types.DocumentChunk], 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var r chunkRow
		if err := json.Unmarshal(hit.Source, &r); err != nil {
			continue
		}
		out = append(out, storage.Scored[types.DocumentChunk]{Item: rowToChunk(r), Score: hit.Score})
	}
	return out, nil
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// keywordSearchChunksSQL is the postgres full-text fallback used when no
// elasticsearch client is configured (single-node deployments).
func (b *Backend) keywordSearchChunksSQL(
	ctx context.Context, scope types.Scope, queryText string, k int,
) ([]storage.Scored[types.DocumentChunk], error) {
	q := b.db.WithContext(ctx).Model(&chunkRow{}).
		Select("*, ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', ?)) AS score", queryText)
	q = scopeChunks(q, scope)
	q = q.Where("to_tsvector('simple', content) @@ plainto_tsquery('simple', ?)", queryText).
		Order("score DESC").Limit(k)

	var rows []struct {
		chunkRow
		Score float64
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]storage.Scored[types.DocumentChunk], len(rows))
	for i, r := range rows {
		out[i] = storage.Scored[types.DocumentChunk]{Item: rowToChunk(r.chunkRow), Score: r.Score}
	}
	return out, nil
}

func (b *Backend) InsertNode(ctx context.Context, node types.MemoryNode) error {
	if !node.ScopeKeyValid() {
		return apperr.New(apperr.BackendConflict, fmt.Errorf("sqlstore: node must set exactly one of user_id/tenant_id"))
	}
	row := nodeToRow(node)
	if err := b.db.WithContext(ctx).Clauses(onConflictDoNothingID()).Create(&row).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

func (b *Backend) InsertChunks(ctx context.Context, batch []types.DocumentChunk) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(batch))
	for i, c := range batch {
		rows[i] = chunkToRow(c)
	}
	if err := b.db.WithContext(ctx).
		Clauses(onConflictDoNothingUniqueKey()).
		CreateInBatches(rows, 500).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

func (b *Backend) RecordQuery(ctx context.Context, record types.QueryRecord) error {
	row := queryRecordRow{
		ID: record.ID, UserEmail: record.UserEmail, TenantID: record.TenantID,
		DepartmentID: record.DepartmentID, SessionID: record.SessionID, QueryText: record.QueryText,
		Status: string(record.Status), ResponseTimeMs: record.ResponseTimeMs,
		ResponseLength: record.ResponseLength, InputTokens: record.InputTokens, OutputTokens: record.OutputTokens,
		ModelID: record.ModelID, Category: record.Category, Keywords: JSONArray(record.Keywords),
		FrustrationSignals: record.FrustrationSignals, IsRepeat: record.IsRepeat, RepeatOf: record.RepeatOf,
		QueryPositionInSession: record.QueryPositionInSession, TimeSinceLastQueryMs: record.TimeSinceLastQueryMs,
		Complexity: record.Complexity, Intent: string(record.Intent), Specificity: record.Specificity,
		Urgency: string(record.Urgency), MultiPart: record.MultiPart, InferredDepartment: record.InferredDepartment,
		InferredDeptDistribution: toFloatMap(record.InferredDeptDistribution),
		SessionPattern:           string(record.SessionPattern), CreatedAt: record.CreatedAt,
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

func (b *Backend) RecordEvent(ctx context.Context, event types.MetricEvent) error {
	// Metric events are droppable (§4.7, §5); a failed write here is logged
	// by the Analytics Recorder, never retried or escalated.
	return b.db.WithContext(ctx).Exec(
		"INSERT INTO metric_events (type, query_id, tenant_id, timestamp, data) VALUES (?, ?, ?, ?, ?)",
		string(event.Type), event.QueryID, event.TenantID, event.Timestamp, JSONMap(event.Data),
	).Error
}

func (b *Backend) RecordAudit(ctx context.Context, entry types.AuditEntry) error {
	row := auditEntryRow{
		ID: entry.ID, TenantID: entry.TenantID, ActorID: entry.ActorID, TargetID: entry.TargetID,
		Action: string(entry.Action), Department: entry.Department, Reason: entry.Reason, CreatedAt: entry.CreatedAt,
	}
	if m, ok := entry.Before.(map[string]interface{}); ok {
		row.Before = JSONMap(m)
	}
	if m, ok := entry.After.(map[string]interface{}); ok {
		row.After = JSONMap(m)
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

func (b *Backend) ChunksByPrerequisite(ctx context.Context, scope types.Scope, chunkIDs []string) ([]types.DocumentChunk, error) {
	if storage.EmptyScopeGuard(scope) || len(chunkIDs) == 0 {
		return nil, nil
	}
	q := b.db.WithContext(ctx).Model(&chunkRow{}).Where("id IN ?", chunkIDs)
	q = scopeChunks(q, scope)
	var rows []chunkRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]types.DocumentChunk, len(rows))
	for i, r := range rows {
		out[i] = rowToChunk(r)
	}
	return out, nil
}

func toFloatMap(m map[string]float64) JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (b *Backend) RecentQueryRecords(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error) {
	var rows []queryRecordRow
	q := b.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ?", userEmail, sessionID).
		Order("created_at DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	out := make([]types.QueryRecord, len(rows))
	for i, r := range rows {
		out[i] = rowToQueryRecord(r)
	}
	return out, nil
}

// QueryReadOnly executes an already-validated, already tenant-scoped SELECT
// statement (see internal/pipeline/tools.go's SQUIRREL tool) and returns rows
// as loosely-typed maps. Callers are responsible for validating the
// statement is read-only and for binding scope into it before calling this;
// Backend does not re-validate, matching the single-responsibility split the
// teacher's DatabaseQueryTool/SQLSecurityValidator pair already uses.
func (b *Backend) QueryReadOnly(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := b.db.WithContext(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.New(apperr.Internal, err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.New(apperr.Internal, err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, nil
}

var _ storage.Backend = (*Backend)(nil)
