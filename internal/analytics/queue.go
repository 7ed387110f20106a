// Package analytics is the Analytics Recorder (C7): durable QueryRecord
// writes via an asynq-backed task queue (never dropped), a bounded
// in-process channel for droppable MetricEvents, and duckdb-backed
// aggregate read APIs. Grounded on the teacher's background-worker style in
// internal/application/service/chat_pipline, generalized from "don't block
// the chat response" to "don't block on analytics writes" (§4.7).
package analytics

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

const TaskTypeRecordQuery = "analytics:record_query"

// Recorder is the C7 write path: QueryRecords go through asynq (redis-backed,
// retried, never silently dropped); MetricEvents go through a bounded
// channel that drops the oldest entry under pressure rather than blocking.
type Recorder struct {
	client     *asynq.Client
	backend    storage.Backend
	eventCh    chan types.MetricEvent
	eventDrops atomic.Int64
}

const metricEventBufferSize = 4096

func NewRecorder(redisOpt asynq.RedisClientOpt, backend storage.Backend) *Recorder {
	r := &Recorder{
		client:  asynq.NewClient(redisOpt),
		backend: backend,
		eventCh: make(chan types.MetricEvent, metricEventBufferSize),
	}
	go r.drainEvents()
	return r
}

func (r *Recorder) Close() error { return r.client.Close() }

// RecordQuery enqueues a QueryRecord as a durable asynq task. The enqueue
// call itself is synchronous but fast (one redis round trip); the actual
// storage write happens in the Worker, off the request path.
func (r *Recorder) RecordQuery(ctx context.Context, record types.QueryRecord) error {
	record.Truncate()
	payload, err := json.Marshal(record)
	if err != nil {
		return apperr.New(apperr.Internal, err)
	}
	task := asynq.NewTask(TaskTypeRecordQuery, payload)
	if _, err := r.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Queue("critical")); err != nil {
		return apperr.New(apperr.BackendUnavailable, err)
	}
	return nil
}

// RecordEvent attempts a non-blocking send; on a full buffer it drops the
// oldest queued event and retries once, per §4.7's "apply back-pressure
// against the metrics stream only" rule.
func (r *Recorder) RecordEvent(ctx context.Context, event types.MetricEvent) {
	select {
	case r.eventCh <- event:
		return
	default:
	}
	select {
	case <-r.eventCh:
		r.eventDrops.Add(1)
	default:
	}
	select {
	case r.eventCh <- event:
	default:
	}
}

// EventDrops returns the number of metric events dropped so far under
// buffer pressure (§4.7, §5).
func (r *Recorder) EventDrops() int64 { return r.eventDrops.Load() }

func (r *Recorder) drainEvents() {
	ctx := context.Background()
	for event := range r.eventCh {
		if err := r.backend.RecordEvent(ctx, event); err != nil {
			logger.Warn(ctx, "analytics: metric event write failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Worker is the asynq consumer side, run as its own process or goroutine
// group, translating queued tasks into Storage Backend writes.
type Worker struct {
	backend storage.Backend
}

func NewWorker(backend storage.Backend) *Worker { return &Worker{backend: backend} }

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRecordQuery, w.handleRecordQuery)
	return mux
}

func (w *Worker) handleRecordQuery(ctx context.Context, task *asynq.Task) error {
	var record types.QueryRecord
	if err := json.Unmarshal(task.Payload(), &record); err != nil {
		return apperr.New(apperr.Internal, err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := w.backend.RecordQuery(ctx, record); err != nil {
		return err // asynq retries per task's MaxRetry option
	}
	return nil
}
