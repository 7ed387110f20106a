package types

import (
	"time"

	"github.com/google/uuid"
)

// QueryStatus is the terminal state of a query, set by the Cognitive
// Pipeline's FINALIZE step and read by the Analytics Recorder's aggregates.
type QueryStatus string

const (
	QueryStatusOK              QueryStatus = "OK"
	QueryStatusCanceled        QueryStatus = "CANCELED"
	QueryStatusFailed          QueryStatus = "FAILED"
	QueryStatusFailedMidstream QueryStatus = "FAILED_MIDSTREAM"
)

// QueryRecord is one per user query, persisted append-only by the Analytics
// Recorder (C7). Field set matches §3.1.
type QueryRecord struct {
	ID                      uuid.UUID          `json:"id"`
	UserEmail               string             `json:"user_email"`
	TenantID                uuid.UUID          `json:"tenant_id"`
	DepartmentID            string             `json:"department_id,omitempty"`
	SessionID               string             `json:"session_id"`
	QueryText               string             `json:"query_text"` // truncated for analytics
	Status                  QueryStatus        `json:"status"`
	ResponseTimeMs          int64              `json:"response_time_ms"`
	ResponseLength          int                `json:"response_length"`
	InputTokens             int                `json:"input_tokens"`
	OutputTokens            int                `json:"output_tokens"`
	ModelID                 string             `json:"model_id"`
	Category                string             `json:"category"`
	Keywords                []string           `json:"keywords,omitempty"`
	FrustrationSignals      int                `json:"frustration_signals"`
	IsRepeat                bool               `json:"is_repeat"`
	RepeatOf                uuid.UUID          `json:"repeat_of,omitempty"`
	QueryPositionInSession  int                `json:"query_position_in_session"`
	TimeSinceLastQueryMs    int64              `json:"time_since_last_query_ms"`
	Complexity              float64            `json:"complexity"`
	Intent                  Intent             `json:"intent"`
	Specificity             float64            `json:"specificity"`
	Urgency                 Urgency            `json:"urgency"`
	MultiPart                bool              `json:"multi_part"`
	InferredDepartment       string            `json:"inferred_department"`
	InferredDeptDistribution map[string]float64 `json:"inferred_department_distribution,omitempty"`
	SessionPattern           SessionPattern     `json:"session_pattern,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
}

const MaxQueryTextLen = 2000

// Truncate caps QueryText to MaxQueryTextLen for analytics storage — the
// full, untruncated query is still what reaches retrieval and the LLM (§8
// boundary behavior).
func (r *QueryRecord) Truncate() {
	if len(r.QueryText) > MaxQueryTextLen {
		r.QueryText = r.QueryText[:MaxQueryTextLen]
	}
}

// MetricEventType enumerates the streamed metric events of §4.7.
type MetricEventType string

const (
	MetricQueryStart       MetricEventType = "QueryStart"
	MetricQueryFinish      MetricEventType = "QueryFinish"
	MetricRetrievalLatency MetricEventType = "RetrievalLatency"
	MetricLLMLatency       MetricEventType = "LLMLatency"
	MetricTokenCounts      MetricEventType = "TokenCounts"
	MetricErrors           MetricEventType = "Errors"
)

// MetricEvent is a non-blocking, droppable observation emitted alongside a
// QueryRecord. Unlike QueryRecords, these may be dropped under queue
// pressure (§4.7, §5).
type MetricEvent struct {
	Type      MetricEventType        `json:"type"`
	QueryID   uuid.UUID              `json:"query_id"`
	TenantID  uuid.UUID              `json:"tenant_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
