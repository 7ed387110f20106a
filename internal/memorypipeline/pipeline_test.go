package memorypipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

type fakeBackend struct {
	storage.Backend
	mu    sync.Mutex
	nodes []types.MemoryNode
}

func (f *fakeBackend) InsertNode(ctx context.Context, node types.MemoryNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, node)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) (types.Vector, error) {
	return types.Vector{1}, nil
}

func TestFlushOnMaxBatchSize(t *testing.T) {
	backend := &fakeBackend{}
	p := New(backend, fakeEmbedder{}, WithFlushInterval(time.Hour), WithMaxBatchSize(2))
	defer p.Close()

	userID := uuid.New()
	for i := 0; i < 2; i++ {
		err := p.Enqueue(context.Background(), Exchange{
			ConversationID: "c1", SequenceIndex: i, HumanContent: "hi", AssistantContent: "hello", UserID: userID,
		})
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.nodes) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCloseForcesFlush(t *testing.T) {
	backend := &fakeBackend{}
	p := New(backend, fakeEmbedder{}, WithFlushInterval(time.Hour), WithMaxBatchSize(100))

	err := p.Enqueue(context.Background(), Exchange{
		ConversationID: "c1", HumanContent: "hi", AssistantContent: "hello", TenantID: uuid.New(),
	})
	assert.NoError(t, err)
	p.Close()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.nodes, 1)
}
