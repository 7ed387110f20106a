package pipeline

import (
	"context"
	"testing"
)

type recordingPlugin struct {
	events []EventType
	order  *[]string
	name   string
	fail   bool
}

func (p *recordingPlugin) ActivationEvents() []EventType { return p.events }

func (p *recordingPlugin) OnEvent(ctx context.Context, event EventType, state *State, next Next) error {
	*p.order = append(*p.order, p.name+":before")
	if p.fail {
		return errTestStage
	}
	err := next()
	*p.order = append(*p.order, p.name+":after")
	return err
}

var errTestStage = &toolReentry{} // any error value; identity unused in assertions below

func TestEventManagerRunsInRegistrationOrderAndChains(t *testing.T) {
	var order []string
	mgr := NewEventManager()
	mgr.Register(&recordingPlugin{events: []EventType{EventResolve}, order: &order, name: "a"})
	mgr.Register(&recordingPlugin{events: []EventType{EventResolve}, order: &order, name: "b"})

	state := &State{}
	if err := mgr.Run(context.Background(), EventResolve, state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a:before", "b:before", "b:after", "a:after"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestEventManagerStopsChainOnFailure(t *testing.T) {
	var order []string
	mgr := NewEventManager()
	mgr.Register(&recordingPlugin{events: []EventType{EventRetrieve}, order: &order, name: "a", fail: true})
	mgr.Register(&recordingPlugin{events: []EventType{EventRetrieve}, order: &order, name: "b"})

	state := &State{}
	if err := mgr.Run(context.Background(), EventRetrieve, state); err == nil {
		t.Fatal("expected the chain to surface the first plugin's error")
	}
	if len(order) != 1 || order[0] != "a:before" {
		t.Fatalf("expected the second plugin to never run, got %v", order)
	}
}

func TestEventManagerNoPluginsIsNoop(t *testing.T) {
	mgr := NewEventManager()
	if err := mgr.Run(context.Background(), EventPrompt, &State{}); err != nil {
		t.Fatalf("unexpected error for an unregistered event: %v", err)
	}
}
