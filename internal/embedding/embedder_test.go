package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

type fakeProvider struct {
	calls int32
	dim   int
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error) {
	atomic.AddInt32(&f.calls, 1)
	out := make([]types.Vector, len(texts))
	for i, t := range texts {
		v := make(types.Vector, f.dim)
		for j := range v {
			v[j] = float32(len(t))
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeProvider) Dimensions() int { return f.dim }
func (f *fakeProvider) ModelID() string { return "fake-model" }

func TestBatchEmbedNoCache(t *testing.T) {
	p := &fakeProvider{dim: 4}
	c, err := New(p, 4)
	require.NoError(t, err)
	defer c.Close()

	vecs, err := c.BatchEmbed(context.Background(), []string{"hello", "world!!"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, float32(5), vecs[0][0])
	assert.Equal(t, float32(7), vecs[1][0])
}

func TestEmbedSingle(t *testing.T) {
	p := &fakeProvider{dim: 2}
	c, err := New(p, 2)
	require.NoError(t, err)
	defer c.Close()

	v, err := c.Embed(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, float32(2), v[0])
}
