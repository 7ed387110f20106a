package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/llm"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// State is the mutable context threaded through every stage of one query's
// state machine, mirroring the teacher's chatManage struct shared across
// chat_pipline plugins.
type State struct {
	QueryID       uuid.UUID
	Principal     types.Principal
	QueryText     string
	SessionID     string
	DeptOverride  string
	MaxToolCalls  int

	StartedAt time.Time

	// Resolved during RESOLVE.
	Department  string
	ChunkScope  types.Scope
	MemoryScope types.Scope
	Complexity  types.ComplexityResult
	DeptGuess   types.DepartmentInference

	// Populated during RETRIEVE.
	Retrieval      retrieval.Result
	SessionHistory []types.QueryRecord
	Pattern        types.PatternResult

	// Populated during PROMPT.
	Messages []llm.Message

	// Populated during STREAM.
	ToolCallCount int
	Response      strings.Builder
	PromptTokens  int
	CompletionTokens int

	// Output sink: STREAM writes token/trace/citation frames here as they
	// are produced so the caller sees them without buffering.
	Out chan<- types.OutboundFrame

	Status   types.QueryStatus
	FailKind string // apperr kind of the failure, non-empty once a stage has failed

	Degraded bool
}

// NewState seeds a State for one incoming query.
func NewState(queryID uuid.UUID, principal types.Principal, queryText, sessionID, deptOverride string, out chan<- types.OutboundFrame) *State {
	return &State{
		QueryID:      queryID,
		Principal:    principal,
		QueryText:    queryText,
		SessionID:    sessionID,
		DeptOverride: deptOverride,
		MaxToolCalls: DefaultMaxToolCalls,
		StartedAt:    time.Now(),
		Out:          out,
		Status:       types.QueryStatusOK,
	}
}

const DefaultMaxToolCalls = 4

// toQueryRecord flattens RESOLVE/STREAM/FINALIZE's accumulated state onto
// the QueryRecord shape of §3.1.
func (s *State) toQueryRecord() types.QueryRecord {
	elapsed := time.Since(s.StartedAt)
	rec := types.QueryRecord{
		ID:                       s.QueryID,
		UserEmail:                s.Principal.Email,
		TenantID:                 s.Principal.TenantID,
		DepartmentID:             s.Department,
		SessionID:                s.SessionID,
		QueryText:                s.QueryText,
		Status:                   s.Status,
		ResponseTimeMs:           elapsed.Milliseconds(),
		ResponseLength:           s.Response.Len(),
		ModelID:                  "",
		Complexity:               s.Complexity.ComplexityScore,
		Intent:                   s.Complexity.Intent,
		Specificity:              s.Complexity.Specificity,
		Urgency:                  s.Complexity.Urgency,
		MultiPart:                s.Complexity.MultiPart,
		InferredDepartment:       s.DeptGuess.Primary,
		InferredDeptDistribution: s.DeptGuess.Distribution,
		SessionPattern:           s.Pattern.Pattern,
		CreatedAt:                time.Now(),
	}
	rec.InputTokens = s.PromptTokens
	if rec.InputTokens == 0 {
		rec.InputTokens = len(s.QueryText) / 4
	}
	rec.OutputTokens = s.CompletionTokens
	if rec.OutputTokens == 0 {
		rec.OutputTokens = s.Response.Len() / 4
	}
	if len(s.SessionHistory) > 0 {
		rec.QueryPositionInSession = len(s.SessionHistory) + 1
		rec.TimeSinceLastQueryMs = time.Since(s.SessionHistory[0].CreatedAt).Milliseconds()
	}
	rec.Truncate()
	return rec
}
