package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

type fakeBackend struct {
	storage.Backend
	chunkVec []storage.Scored[types.DocumentChunk]
	chunkKw  []storage.Scored[types.DocumentChunk]
	nodes    []storage.Scored[types.MemoryNode]
}

func (f *fakeBackend) VectorSearchChunks(ctx context.Context, scope types.Scope, q types.Vector, k int, min float64) ([]storage.Scored[types.DocumentChunk], error) {
	return f.chunkVec, nil
}
func (f *fakeBackend) KeywordSearchChunks(ctx context.Context, scope types.Scope, q string, k int) ([]storage.Scored[types.DocumentChunk], error) {
	return f.chunkKw, nil
}
func (f *fakeBackend) VectorSearchNodes(ctx context.Context, scope types.Scope, q types.Vector, k int, min float64) ([]storage.Scored[types.MemoryNode], error) {
	return f.nodes, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) (types.Vector, error) {
	return types.Vector{1, 0}, nil
}

func TestRetrieveFusesAndFilters(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	backend := &fakeBackend{
		chunkVec: []storage.Scored[types.DocumentChunk]{
			{Item: types.DocumentChunk{ID: id1, Importance: 0.5, CreatedAt: time.Now()}, Score: 0.9},
			{Item: types.DocumentChunk{ID: id2, Importance: 0.1, CreatedAt: time.Now()}, Score: 0.1},
		},
	}
	r := New(backend, fakeEmbedder{}, WithMinScore(0.3))

	chunkScope := types.TenantDeptScope(uuid.New(), []string{"sales"})
	result, err := r.Retrieve(context.Background(), "hello", chunkScope, types.Scope{})
	require.NoError(t, err)

	assert.Len(t, result.Passages, 1)
	assert.Equal(t, id1, result.Passages[0].Chunk.ID)
	assert.False(t, result.Degraded)
}

func TestRetrieveEmptyScopesShortCircuit(t *testing.T) {
	backend := &fakeBackend{}
	r := New(backend, fakeEmbedder{})
	result, err := r.Retrieve(context.Background(), "hello", types.Scope{}, types.Scope{})
	require.NoError(t, err)
	assert.Empty(t, result.Passages)
}
