// Package embedding is the Embedder Client (C4): one interface, a bounded
// worker pool for batch requests, and a content-addressed cache in front of
// the remote embedding provider. Grounded on the teacher's
// internal/models/embedding.Embedder interface shape and its
// EmbedderPooler/BatchEmbedWithPool split between "what an embedder is" and
// "how batches are scheduled".
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Provider is the remote embedding call a concrete model client implements —
// the teacher's per-vendor embedder (Aliyun/Jina/Volcengine/OpenAI-compatible)
// collapses to this one method once routing has already happened upstream.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error)
	Dimensions() int
	ModelID() string
}

// Client is the Embedder Client: fronts a Provider with a bounded worker
// pool (so a burst of ingestion or retrieval calls cannot fan out unbounded
// concurrent requests to the provider) and a content-addressed cache keyed
// on sha256(model_id || text).
type Client struct {
	provider Provider
	pool     *ants.Pool
	cache    *redis.Client
	cacheTTL int64 // seconds, 0 disables expiry
}

type Option func(*Client)

func WithCache(rdb *redis.Client) Option {
	return func(c *Client) { c.cache = rdb }
}

// New builds a Client with a worker pool capped at poolSize concurrent
// provider calls.
func New(provider Provider, poolSize int, opts ...Option) (*Client, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, apperr.New(apperr.EmbedderUnavail, err)
	}
	c := &Client{provider: provider, pool: pool}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() { c.pool.Release() }

func (c *Client) Dimensions() int { return c.provider.Dimensions() }
func (c *Client) ModelID() string { return c.provider.ModelID() }

func (c *Client) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.provider.ModelID() + "|" + text))
	return "embed:" + hex.EncodeToString(sum[:])
}

// Embed vectorizes a single text, consulting the cache first.
func (c *Client) Embed(ctx context.Context, text string) (types.Vector, error) {
	vecs, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed vectorizes texts, splitting cache hits from misses and
// dispatching misses through the bounded worker pool in chunks so no single
// call floods the provider with one oversized request.
func (c *Client) BatchEmbed(ctx context.Context, texts []string) ([]types.Vector, error) {
	out := make([]types.Vector, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	if c.cache != nil {
		for i, t := range texts {
			if v, ok := c.getCached(ctx, t); ok {
				out[i] = v
				continue
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	} else {
		for i, t := range texts {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	const chunkSize = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(missTexts); start += chunkSize {
		end := start + chunkSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		chunkStart, chunkTexts := start, missTexts[start:end]

		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			vecs, err := c.provider.EmbedBatch(ctx, chunkTexts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for i, v := range vecs {
				idx := missIdx[chunkStart+i]
				out[idx] = v
				c.setCached(ctx, missTexts[chunkStart+i], v)
			}
		})
		if err != nil {
			wg.Done()
			return nil, apperr.New(apperr.EmbedderUnavail, err)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, apperr.New(apperr.EmbedderUnavail, firstErr)
	}
	return out, nil
}

func (c *Client) getCached(ctx context.Context, text string) (types.Vector, bool) {
	raw, err := c.cache.Get(ctx, c.cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var v types.Vector
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *Client) setCached(ctx context.Context, text string, v types.Vector) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(text), raw, 0).Err(); err != nil {
		logger.Warn(ctx, "embedding: cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// ErrDimensionMismatch is returned by callers validating a vector's length
// against the configured embedder.dim before it reaches storage.
func ErrDimensionMismatch(got, want int) error {
	return apperr.Newf(apperr.EmbedderUnavail, "embedding: dimension mismatch got=%d want=%d", got, want)
}
