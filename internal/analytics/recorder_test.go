package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

type fakeEventBackend struct {
	storage.Backend
	mu     sync.Mutex
	events []types.MetricEvent
}

func (f *fakeEventBackend) RecordEvent(ctx context.Context, event types.MetricEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func TestRecordEventDropsOldestUnderPressure(t *testing.T) {
	backend := &fakeEventBackend{}
	r := &Recorder{backend: backend, eventCh: make(chan types.MetricEvent, 2)}

	// fill the buffer without a drain loop running
	r.eventCh <- types.MetricEvent{Type: types.MetricQueryStart}
	r.eventCh <- types.MetricEvent{Type: types.MetricQueryFinish}

	r.RecordEvent(context.Background(), types.MetricEvent{Type: types.MetricErrors})

	assert.Equal(t, 2, len(r.eventCh))
	first := <-r.eventCh
	assert.Equal(t, types.MetricQueryFinish, first.Type)
}

func TestDrainEventsWritesToBackend(t *testing.T) {
	backend := &fakeEventBackend{}
	r := &Recorder{backend: backend, eventCh: make(chan types.MetricEvent, 4)}
	go r.drainEvents()

	r.eventCh <- types.MetricEvent{Type: types.MetricTokenCounts}
	time.Sleep(20 * time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.events, 1)
}
