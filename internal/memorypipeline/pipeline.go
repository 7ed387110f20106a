// Package memorypipeline is the Memory Pipeline (C8): after each completed
// exchange, forms a MemoryNode, embeds it via C4, and inserts it via C3 in
// batches. Grounded on the teacher's batching style in
// internal/application/service/chat_pipline (accumulate, flush on interval
// or size, force-flush on shutdown).
package memorypipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Embedder is the narrow surface the pipeline needs from C4.
type Embedder interface {
	Embed(ctx context.Context, text string) (types.Vector, error)
}

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxBatchSize  = 10
)

// Exchange is one completed user/assistant turn to be remembered.
type Exchange struct {
	ConversationID   string
	SequenceIndex    int
	HumanContent     string
	AssistantContent string
	UserID           uuid.UUID // set in consumer mode
	TenantID         uuid.UUID // set in enterprise mode
}

// Pipeline batches MemoryNode inserts, flushing on a timer or when the
// batch reaches its max size, with a forced flush on Close.
type Pipeline struct {
	backend       storage.Backend
	embedder      Embedder
	flushInterval time.Duration
	maxBatchSize  int

	mu      sync.Mutex
	pending []types.MemoryNode

	flushSignal chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
}

type Option func(*Pipeline)

func WithFlushInterval(d time.Duration) Option { return func(p *Pipeline) { p.flushInterval = d } }
func WithMaxBatchSize(n int) Option            { return func(p *Pipeline) { p.maxBatchSize = n } }

func New(backend storage.Backend, embedder Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend: backend, embedder: embedder,
		flushInterval: DefaultFlushInterval, maxBatchSize: DefaultMaxBatchSize,
		flushSignal: make(chan struct{}, 1), done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Enqueue embeds the exchange's combined text and adds the resulting node
// to the pending batch, signaling an immediate flush if the batch is full.
func (p *Pipeline) Enqueue(ctx context.Context, ex Exchange) error {
	vec, err := p.embedder.Embed(ctx, ex.HumanContent+"\n"+ex.AssistantContent)
	if err != nil {
		logger.Warn(ctx, "memorypipeline: embed failed, enqueueing without vector",
			map[string]interface{}{"error": err.Error()})
	}
	node := types.MemoryNode{
		ID: uuid.New(), UserID: ex.UserID, TenantID: ex.TenantID,
		ConversationID: ex.ConversationID, SequenceIndex: ex.SequenceIndex,
		HumanContent: ex.HumanContent, AssistantContent: ex.AssistantContent,
		Source: types.MemorySourceChat, Embedding: vec, CreatedAt: time.Now().UTC(),
	}
	if !node.ScopeKeyValid() {
		return nil // malformed caller input; never insert a dual/no-scope node
	}

	p.mu.Lock()
	p.pending = append(p.pending, node)
	full := len(p.pending) >= p.maxBatchSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushSignal <- struct{}{}:
		default:
		}
	}
	return nil
}

func (p *Pipeline) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.flushSignal:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *Pipeline) flush() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	ctx := context.Background()
	for _, node := range batch {
		if err := p.backend.InsertNode(ctx, node); err != nil {
			logger.Warn(ctx, "memorypipeline: insert node failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close forces a final flush and stops the background loop. Safe to call
// once during clean shutdown.
func (p *Pipeline) Close() {
	close(p.done)
	p.wg.Wait()
}
