package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/analytics"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/heuristics"
	"github.com/tencentyun-labs/cognigate/internal/identity"
	"github.com/tencentyun-labs/cognigate/internal/llm"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/memorypipeline"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

const (
	DefaultRetrieveTimeout   = 2 * time.Second
	DefaultFirstTokenTimeout = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	coalesceWindow           = 25 * time.Millisecond

	// prerequisiteExpandTopN is how many of the highest-scored passages
	// RETRIEVE inspects for declared prerequisites (§4.5 step 6) — expanding
	// every passage would make one noisy low-score hit drag in an unrelated
	// prerequisite chain.
	prerequisiteExpandTopN = 3
)

// Cognitive is the Cognitive Pipeline (C9): wires Retrieval (C5), Heuristics
// (C6), Analytics (C7), the Memory Pipeline (C8), and an LLM Provider into
// the RESOLVE/RETRIEVE/PROMPT/STREAM/FINALIZE state machine of §4.9.
// Grounded on the teacher's chat_pipline event-plugin wiring, generalized
// from its named fixed pipelines to this fixed five-stage machine.
type Cognitive struct {
	mgr *EventManager

	retriever      *retrieval.Retriever
	patternDetect  *heuristics.PatternDetector
	deptSignals    map[string][]string
	tokenizer      *heuristics.Tokenizer
	memoryPipeline *memorypipeline.Pipeline
	analytics      *analytics.Recorder
	dispatcher     *Dispatcher
	llmProvider    llm.Provider
	persona        string

	retrieveTimeout   time.Duration
	firstTokenTimeout time.Duration
	idleTimeout       time.Duration
}

type Option func(*Cognitive)

func WithPersona(persona string) Option { return func(c *Cognitive) { c.persona = persona } }
func WithTimeouts(retrieve, firstToken, idle time.Duration) Option {
	return func(c *Cognitive) { c.retrieveTimeout, c.firstTokenTimeout, c.idleTimeout = retrieve, firstToken, idle }
}

func New(
	retriever *retrieval.Retriever,
	patternDetect *heuristics.PatternDetector,
	deptSignals map[string][]string,
	tokenizer *heuristics.Tokenizer,
	memPipeline *memorypipeline.Pipeline,
	recorder *analytics.Recorder,
	dispatcher *Dispatcher,
	llmProvider llm.Provider,
	opts ...Option,
) *Cognitive {
	c := &Cognitive{
		retriever: retriever, patternDetect: patternDetect, deptSignals: deptSignals,
		tokenizer: tokenizer, memoryPipeline: memPipeline, analytics: recorder,
		dispatcher: dispatcher, llmProvider: llmProvider,
		persona:           "You are a helpful assistant for this organization.",
		retrieveTimeout:   DefaultRetrieveTimeout,
		firstTokenTimeout: DefaultFirstTokenTimeout,
		idleTimeout:       DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mgr = NewEventManager()
	c.mgr.Register(&resolveStage{c: c})
	c.mgr.Register(&retrieveStage{c: c})
	c.mgr.Register(&promptStage{c: c})
	c.mgr.Register(&streamStage{c: c})
	c.mgr.Register(&finalizeStage{c: c})
	return c
}

// HandleQuery runs one query through the state machine and returns a channel
// of OutboundFrames. The channel is closed once FINALIZE has enqueued
// analytics/memory and emitted the DONE frame.
func (c *Cognitive) HandleQuery(
	ctx context.Context, principal types.Principal, queryText, sessionID, deptOverride string,
) (<-chan types.OutboundFrame, error) {
	out := make(chan types.OutboundFrame, 16)
	queryID := uuid.New()
	state := NewState(queryID, principal, queryText, sessionID, deptOverride, out)

	go func() {
		defer close(out)
		ctx = logger.WithFields(ctx, logger.Fields{TenantID: principal.TenantID.String(), UserID: principal.UserID.String(), QueryID: queryID.String(), SessionID: sessionID})
		c.emitMetric(ctx, state, types.MetricQueryStart, map[string]interface{}{"department_override": deptOverride})

		for _, stage := range Stages {
			if err := c.mgr.Run(ctx, stage, state); err != nil {
				c.handleStageFailure(ctx, stage, state, err)
				break
			}
			if ctx.Err() != nil {
				state.Status = types.QueryStatusCanceled
				break
			}
		}
		c.finalize(ctx, state)
	}()

	return out, nil
}

// handleStageFailure applies §4.9's per-stage failure semantics.
func (c *Cognitive) handleStageFailure(ctx context.Context, stage EventType, state *State, err error) {
	if ctx.Err() != nil {
		// The caller's stream disconnected (§4.9 Cancellation): no error
		// frame, just a CANCELED record with whatever partial response/
		// timings had accumulated.
		state.Status = types.QueryStatusCanceled
		return
	}
	state.FailKind = string(apperr.KindOf(err))
	switch stage {
	case EventRetrieve:
		// RETRIEVE failures degrade, never abort; reaching here means the
		// retrieve plugin itself returned an error rather than degrading,
		// which only happens when scope resolution failed outright.
		state.Status = types.QueryStatusFailed
		state.Out <- types.ErrorFrame(string(apperr.KindOf(err)), "retrieval unavailable")
	case EventPrompt:
		state.Status = types.QueryStatusFailed
		state.Out <- types.ErrorFrame(string(apperr.Internal), "could not assemble prompt")
	case EventStream:
		if state.Response.Len() == 0 {
			state.Status = types.QueryStatusFailed
			state.Out <- types.ErrorFrame(string(apperr.ProviderUnavail), "the assistant is unavailable")
		} else {
			state.Status = types.QueryStatusFailedMidstream
			state.Out <- types.ErrorFrame(string(apperr.Internal), "the response was interrupted")
		}
	default:
		state.Status = types.QueryStatusFailed
	}
	c.emitMetric(ctx, state, types.MetricErrors, map[string]interface{}{
		"stage": string(stage), "kind": string(apperr.KindOf(err)),
	})
}

// emitMetric is a no-op when no Analytics Recorder is wired (e.g. in tests
// that build a Cognitive directly); RecordEvent itself never blocks (§4.7).
func (c *Cognitive) emitMetric(ctx context.Context, state *State, typ types.MetricEventType, data map[string]interface{}) {
	if c.analytics == nil {
		return
	}
	c.analytics.RecordEvent(ctx, types.MetricEvent{
		Type: typ, QueryID: state.QueryID, TenantID: state.Principal.TenantID,
		Timestamp: time.Now(), Data: data,
	})
}

func (c *Cognitive) finalize(ctx context.Context, state *State) {
	rec := state.toQueryRecord()

	// Best-effort: neither enqueue may delay DONE (§4.9 FINALIZE).
	done := make(chan struct{})
	go func() {
		defer close(done)
		recordCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.analytics.RecordQuery(recordCtx, rec); err != nil {
			logger.Warn(recordCtx, "pipeline: analytics enqueue failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	if state.Status == types.QueryStatusOK && c.memoryPipeline != nil {
		scope := memoryScope(state.Principal)
		_ = c.memoryPipeline.Enqueue(context.Background(), memorypipeline.Exchange{
			ConversationID:   state.SessionID,
			SequenceIndex:    len(state.SessionHistory),
			HumanContent:     state.QueryText,
			AssistantContent: state.Response.String(),
			UserID:           scope.UserID,
			TenantID:         scope.TenantID,
		})
	}
	<-done

	elapsed := time.Since(state.StartedAt)
	c.emitMetric(ctx, state, types.MetricQueryFinish, map[string]interface{}{
		"status": string(state.Status), "elapsed_ms": elapsed.Milliseconds(),
	})
	state.Out <- types.DoneFrame(state.QueryID, elapsed.Milliseconds())
}

// --- RESOLVE -----------------------------------------------------------

type resolveStage struct{ c *Cognitive }

func (s *resolveStage) ActivationEvents() []EventType { return []EventType{EventResolve} }

func (s *resolveStage) OnEvent(ctx context.Context, _ EventType, state *State, next Next) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		state.Complexity = heuristics.Analyze(state.QueryText)
	}()
	go func() {
		defer wg.Done()
		var keywords []string
		if s.c.tokenizer != nil {
			keywords = s.c.tokenizer.Keywords(state.QueryText, 10)
		}
		state.DeptGuess = heuristics.Infer(state.QueryText, keywords, s.c.deptSignals)
	}()
	wg.Wait()

	state.Department = resolveDepartment(state.Principal, state.DeptOverride, state.DeptGuess.Primary)
	state.ChunkScope = chunkScope(state.Principal, state.Department)
	state.MemoryScope = memoryScope(state.Principal)
	return next()
}

// resolveDepartment picks the department to scope this query's process-lane
// retrieval to: an explicit, authorized override wins; otherwise the
// heuristics engine's inferred department if the principal may read it;
// otherwise the empty string, meaning "whatever the principal can read"
// (chunkScope then carries the full readable-department set).
func resolveDepartment(p types.Principal, override, inferred string) string {
	if override != "" && identity.CanReadDepartment(p, override) {
		return override
	}
	if inferred != "" && inferred != types.GeneralDepartment && identity.CanReadDepartment(p, inferred) {
		return inferred
	}
	return ""
}

func chunkScope(p types.Principal, department string) types.Scope {
	if department != "" {
		return types.TenantDeptScope(p.TenantID, []string{department})
	}
	if p.IsSuperUser {
		return types.TenantScope(p.TenantID)
	}
	if len(p.Departments) == 0 {
		return types.Scope{} // fail-secure: no readable departments, no process-lane access
	}
	return types.TenantDeptScope(p.TenantID, p.Departments)
}

func memoryScope(p types.Principal) types.Scope {
	if p.IsEnterprise {
		return types.TenantScope(p.TenantID)
	}
	return types.UserScope(p.UserID)
}

// --- RETRIEVE ------------------------------------------------------------

type retrieveStage struct{ c *Cognitive }

func (s *retrieveStage) ActivationEvents() []EventType { return []EventType{EventRetrieve} }

func (s *retrieveStage) OnEvent(ctx context.Context, _ EventType, state *State, next Next) error {
	rctx, cancel := context.WithTimeout(ctx, s.c.retrieveTimeout)
	defer cancel()
	retrieveStart := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result, err := s.c.retriever.Retrieve(rctx, state.QueryText, state.ChunkScope, state.MemoryScope)
		if err != nil {
			// RETRIEVE failures degrade, they do not abort (§4.9).
			state.Degraded = true
			logger.Warn(ctx, "pipeline: retrieval degraded", map[string]interface{}{"error": err.Error()})
			return
		}
		// §4.5 step 6: pull in declared prerequisites of the top passages
		// before handing the result to PROMPT. A failure here degrades, it
		// never discards the retrieval that already succeeded.
		if expanded, err := s.c.retriever.ExpandPrerequisites(rctx, state.ChunkScope, result, prerequisiteExpandTopN); err == nil {
			result = expanded
		} else {
			state.Degraded = true
			logger.Warn(ctx, "pipeline: prerequisite expansion degraded", map[string]interface{}{"error": err.Error()})
		}
		state.Retrieval = result
		state.Degraded = state.Degraded || result.Degraded
		s.c.emitMetric(ctx, state, types.MetricRetrievalLatency, map[string]interface{}{
			"elapsed_ms": time.Since(retrieveStart).Milliseconds(), "passages": len(result.Passages), "degraded": state.Degraded,
		})
	}()
	go func() {
		defer wg.Done()
		if s.c.analytics == nil {
			return
		}
		history, err := s.c.analytics.RecentQueries(rctx, state.Principal.Email, state.SessionID, 20)
		if err != nil {
			logger.Warn(ctx, "pipeline: session history lookup failed", map[string]interface{}{"error": err.Error()})
			return
		}
		state.SessionHistory = history
	}()
	if s.c.patternDetect != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pattern, err := s.c.patternDetect.Detect(rctx, state.Principal.Email, state.SessionID); err == nil {
				state.Pattern = pattern
			}
		}()
	}

	waitWithTimeout(&wg, s.c.retrieveTimeout)
	return next()
}

func waitWithTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d + 200*time.Millisecond):
		// proceed with whatever arrived; a degraded retrieval is not fatal
	}
}

// --- PROMPT ----------------------------------------------------------------

type promptStage struct{ c *Cognitive }

func (s *promptStage) ActivationEvents() []EventType { return []EventType{EventPrompt} }

func (s *promptStage) OnEvent(ctx context.Context, _ EventType, state *State, next Next) error {
	if s.c.persona == "" {
		return apperr.New(apperr.Internal, nil)
	}
	history := historyMessages(state.SessionHistory)
	state.Messages = buildPrompt(s.c.persona, state.Retrieval.Passages, history, state.QueryText)
	return next()
}

func historyMessages(records []types.QueryRecord) []llm.Message {
	// Session history here is used as context, not verbatim transcript —
	// the spec does not model a stored assistant-response log alongside
	// QueryRecord, so only the prior query_texts are surfaced.
	var out []llm.Message
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, llm.Message{Role: "user", Content: records[i].QueryText})
	}
	return out
}

// --- STREAM ----------------------------------------------------------------

type streamStage struct{ c *Cognitive }

func (s *streamStage) ActivationEvents() []EventType { return []EventType{EventStream} }

func (s *streamStage) OnEvent(ctx context.Context, _ EventType, state *State, next Next) error {
	citations := passagesToCitations(state.Retrieval.Passages)
	if len(citations) > 0 {
		state.Out <- types.CitationFrame(citations)
	}

	streamStart := time.Now()
	var pending strings.Builder
	for {
		events, err := s.c.llmProvider.ChatStream(ctx, state.Messages)
		if err != nil {
			return apperr.New(apperr.ProviderUnavail, err)
		}

		streamErr := s.consumeStream(ctx, state, events, &pending)
		if streamErr == nil {
			s.c.emitMetric(ctx, state, types.MetricLLMLatency, map[string]interface{}{
				"elapsed_ms": time.Since(streamStart).Milliseconds(),
			})
			s.c.emitMetric(ctx, state, types.MetricTokenCounts, map[string]interface{}{
				"prompt_tokens": state.PromptTokens, "completion_tokens": state.CompletionTokens,
			})
			return next()
		}
		if _, retryable := streamErr.(*toolReentry); !retryable {
			return streamErr
		}
	}
}

// toolReentry signals the STREAM loop to restart the completion with an
// augmented message list after a mid-stream tool call.
type toolReentry struct{}

func (*toolReentry) Error() string { return "tool re-entry" }

func (s *streamStage) consumeStream(
	ctx context.Context, state *State, events <-chan llm.StreamEvent, pending *strings.Builder,
) error {
	timeout := s.c.firstTokenTimeout
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			timeout = s.c.idleTimeout
			switch evt.Type {
			case llm.EventToken:
				pending.WriteString(evt.Content)
				if err := s.drain(ctx, state, pending); err != nil {
					return err
				}
			case llm.EventDone:
				s.flushRemainder(state, pending)
				state.PromptTokens, state.CompletionTokens = evt.PromptTokens, evt.CompletionTokens
				return nil
			case llm.EventError:
				return evt.Err
			}
		case <-time.After(timeout):
			return apperr.New(apperr.ProviderUnavail, nil)
		}
	}
}

// drain forwards complete, non-tool text as token frames and dispatches any
// complete bracketed tool tag it finds, returning a *toolReentry to signal
// the caller to restart the completion with the tool result appended.
func (s *streamStage) drain(ctx context.Context, state *State, pending *strings.Builder) error {
	buf := pending.String()
	call, start, end, found := ExtractTag(buf)
	if !found {
		if !HasUnterminatedTag(buf) {
			state.Response.WriteString(buf)
			state.Out <- types.TokenFrame(buf)
			pending.Reset()
		}
		return nil
	}

	before := buf[:start]
	if before != "" {
		state.Response.WriteString(before)
		state.Out <- types.TokenFrame(before)
	}
	pending.Reset()
	pending.WriteString(buf[end:])

	if state.ToolCallCount >= state.MaxToolCalls {
		return nil // tag ignored, already stripped from the stream
	}
	state.ToolCallCount++
	state.Out <- types.TraceFrame("tool_call", map[string]interface{}{"tool": string(call.Name)})

	result := s.c.dispatcher.Dispatch(ctx, call, state.ChunkScope, state.MemoryScope)
	state.Messages = append(state.Messages,
		llm.Message{Role: "assistant", Content: state.Response.String()},
		llm.Message{Role: "system", Content: "tool result for " + string(call.Name) + ": " + result},
	)
	return &toolReentry{}
}

func (s *streamStage) flushRemainder(state *State, pending *strings.Builder) {
	if pending.Len() == 0 {
		return
	}
	text := pending.String()
	state.Response.WriteString(text)
	state.Out <- types.TokenFrame(text)
	pending.Reset()
}

func passagesToCitations(passages []retrieval.Passage) []types.Passage {
	out := make([]types.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Chunk != nil {
			out = append(out, types.Passage{
				ChunkID: p.Chunk.ID, Title: p.Chunk.SectionTitle,
				Snippet: truncate(p.Chunk.Content, 200), Score: p.Score, DepartmentID: p.Chunk.DepartmentID,
			})
		} else if p.Node != nil {
			out = append(out, types.Passage{
				MemoryNodeID: p.Node.ID, Snippet: truncate(p.Node.AssistantContent, 200), Score: p.Score,
			})
		}
	}
	return out
}

// --- FINALIZE --------------------------------------------------------------

type finalizeStage struct{ c *Cognitive }

func (s *finalizeStage) ActivationEvents() []EventType { return []EventType{EventFinalize} }

func (s *finalizeStage) OnEvent(ctx context.Context, _ EventType, state *State, next Next) error {
	// All of FINALIZE's actual work (enqueue + DONE frame) happens in
	// Cognitive.finalize after the state machine loop exits, so every exit
	// path (success, FAIL, cancellation) goes through the same bookkeeping.
	return next()
}
