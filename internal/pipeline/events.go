// Package pipeline is the Cognitive Pipeline (C9): the RESOLVE -> RETRIEVE
// -> PROMPT -> STREAM -> FINALIZE state machine of §4.9. Grounded on the
// teacher's event-driven RAG pipeline in
// internal/application/service/chat_pipline and internal/types/chat_manage.go
// (an EventType per stage, a named ordered pipeline of stages), generalized
// from the teacher's fixed named pipelines ("rag_stream", etc.) to the
// spec's fixed five-stage state machine with a plugin hook per stage.
package pipeline

import (
	"context"

	"github.com/tencentyun-labs/cognigate/internal/apperr"
)

// EventType is one stage of the Cognitive Pipeline's state machine.
type EventType string

const (
	EventResolve  EventType = "RESOLVE"
	EventRetrieve EventType = "RETRIEVE"
	EventPrompt   EventType = "PROMPT"
	EventStream   EventType = "STREAM"
	EventFinalize EventType = "FINALIZE"
)

// Stages is the fixed, documented order of §4.9's state machine.
var Stages = []EventType{EventResolve, EventRetrieve, EventPrompt, EventStream, EventFinalize}

// Next is called by a Plugin to continue the chain; a plugin that does not
// call Next short-circuits the remaining plugins registered for that stage.
type Next func() error

// Plugin is one unit of stage behavior, matching the teacher's
// ActivationEvents/OnEvent shape: a plugin declares which stages it
// activates for, and is invoked once per activated stage with the shared
// pipeline State and a Next continuation.
type Plugin interface {
	ActivationEvents() []EventType
	OnEvent(ctx context.Context, event EventType, state *State, next Next) error
}

// EventManager runs the ordered chain of plugins registered for each stage,
// grounded on the teacher's PluginLoadHistory registration pattern: plugins
// register once at startup, keyed by the events they activate on.
type EventManager struct {
	byEvent map[EventType][]Plugin
}

func NewEventManager() *EventManager {
	return &EventManager{byEvent: make(map[EventType][]Plugin)}
}

func (m *EventManager) Register(p Plugin) {
	for _, evt := range p.ActivationEvents() {
		m.byEvent[evt] = append(m.byEvent[evt], p)
	}
}

// Run executes every plugin registered for event in registration order,
// chaining each through Next so a plugin may inspect/mutate State both
// before and after the rest of the chain runs.
func (m *EventManager) Run(ctx context.Context, event EventType, state *State) error {
	plugins := m.byEvent[event]
	return runChain(ctx, event, state, plugins)
}

func runChain(ctx context.Context, event EventType, state *State, plugins []Plugin) error {
	if len(plugins) == 0 {
		return nil
	}
	head := plugins[0]
	rest := plugins[1:]
	return head.OnEvent(ctx, event, state, func() error {
		return runChain(ctx, event, state, rest)
	})
}

// StageError wraps a plugin failure with the stage it occurred in, so
// FINALIZE can apply §4.9's per-stage failure semantics.
func StageError(event EventType, cause error) error {
	return apperr.WithAction(apperr.KindOf(cause), string(event), cause)
}
