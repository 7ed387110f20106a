// Package retrieval is the Dual Retriever (C5): fans vector and keyword
// search out across the process lane (DocumentChunks) and memory lane
// (MemoryNodes) in parallel, fuses the scores, and optionally expands the
// top results with their prerequisite chunks. Grounded on the teacher's
// retriever abstraction in internal/application/repository/retriever/qdrant
// (one contract fronting more than one search engine) generalized to fan
// out across lanes instead of across engines.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
	"golang.org/x/sync/errgroup"
)

// Weights are the score-fusion coefficients of §4.5 step 3. Content
// multiplies a chunk's vector-lane similarity (a fixed 0.80 is used instead
// when the chunk carries no synthetic-question embedding); Questions
// multiplies the chunk's keyword-lane score. No similarity against the
// synthetic-question embedding itself is computed. TypeBonus and EntityBonus
// are flat additive terms applied to every process-lane passage;
// memory-lane passages keep their raw vector score.
type Weights struct {
	Content   float64
	Questions float64
	TypeBonus float64
	Entity    float64
}

// DefaultWeights matches spec §4.5's documented defaults.
var DefaultWeights = Weights{Content: 0.30, Questions: 0.50, TypeBonus: 0.10, Entity: 0.10}

const (
	DefaultMinScore = 0.6
	DefaultTopK     = 20
)

// Embedder is the narrow surface the retriever needs from C4.
type Embedder interface {
	Embed(ctx context.Context, text string) (types.Vector, error)
}

// Passage is one scored retrieval result, from either lane.
type Passage struct {
	Chunk      *types.DocumentChunk
	Node       *types.MemoryNode
	Score      float64
	FromMemory bool
}

// Result is the Dual Retriever's output for one query.
type Result struct {
	Passages []Passage
	Degraded bool // true if the embedder or one lane failed and results fell back
}

type Retriever struct {
	backend  storage.Backend
	embedder Embedder
	weights  Weights
	minScore float64
	topK     int
	graph    *PrerequisiteGraph
}

type Option func(*Retriever)

func WithWeights(w Weights) Option  { return func(r *Retriever) { r.weights = w } }
func WithMinScore(s float64) Option { return func(r *Retriever) { r.minScore = s } }
func WithTopK(k int) Option         { return func(r *Retriever) { r.topK = k } }

// WithPrerequisiteGraph enables transitive (multi-hop) prerequisite
// expansion via neo4j on top of the single-hop ids stored on each chunk;
// every resolved id is still loaded through Backend.ChunksByPrerequisite.
func WithPrerequisiteGraph(g *PrerequisiteGraph) Option {
	return func(r *Retriever) { r.graph = g }
}

func New(backend storage.Backend, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		backend: backend, embedder: embedder,
		weights: DefaultWeights, minScore: DefaultMinScore, topK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs §4.5's algorithm through the cap: embed, fan out
// vector+keyword search across both lanes in parallel, fuse, filter, sort,
// cap. It does not expand prerequisites; callers run ExpandPrerequisites on
// the result.
func (r *Retriever) Retrieve(
	ctx context.Context, queryText string, chunkScope, memoryScope types.Scope,
) (Result, error) {
	if chunkScope.Empty() && memoryScope.Empty() {
		return Result{}, nil
	}

	queryVec, embedErr := r.embedder.Embed(ctx, queryText)
	degraded := embedErr != nil

	var chunkHits []storage.Scored[types.DocumentChunk]
	var keywordHits []storage.Scored[types.DocumentChunk]
	var nodeHits []storage.Scored[types.MemoryNode]
	var chunkErr, keywordErr, nodeErr error

	g, gctx := errgroup.WithContext(ctx)
	if !degraded && !chunkScope.Empty() {
		g.Go(func() error {
			chunkHits, chunkErr = r.backend.VectorSearchChunks(gctx, chunkScope, queryVec, r.topK*2, 0)
			return nil // lane failures degrade, they never abort the group
		})
	}
	if !chunkScope.Empty() {
		g.Go(func() error {
			keywordHits, keywordErr = r.backend.KeywordSearchChunks(gctx, chunkScope, queryText, r.topK*2)
			return nil
		})
	}
	if !degraded && !memoryScope.Empty() {
		g.Go(func() error {
			nodeHits, nodeErr = r.backend.VectorSearchNodes(gctx, memoryScope, queryVec, r.topK*2, 0)
			return nil
		})
	}
	_ = g.Wait()

	if chunkErr != nil || nodeErr != nil {
		degraded = true
	}
	if (chunkErr != nil && keywordErr != nil) || (chunkScope.Empty() && memoryScope.Empty()) {
		return Result{}, apperr.New(apperr.RetrievalFailed, chunkErr)
	}

	fused := r.fuse(chunkHits, keywordHits, nodeHits)
	filtered := make([]Passage, 0, len(fused))
	for _, p := range fused {
		if p.Score >= r.minScore {
			filtered = append(filtered, p)
		}
	}
	sortPassages(filtered)
	if len(filtered) > r.topK {
		filtered = filtered[:r.topK]
	}

	return Result{Passages: filtered, Degraded: degraded}, nil
}

// fuse merges vector and keyword hits on the process lane (deduplicating by
// chunk id, combining the content-similarity term) with the memory lane's
// vector hits, applying the documented weights.
func (r *Retriever) fuse(
	vectorChunks, keywordChunks []storage.Scored[types.DocumentChunk], nodes []storage.Scored[types.MemoryNode],
) []Passage {
	byChunk := make(map[string]*Passage)

	contentWeight := r.weights.Content
	questionsWeight := r.weights.Questions

	for _, hit := range vectorChunks {
		c := hit.Item
		hasQuestions := c.Enrichment != nil && len(c.Enrichment.QuestionsEmbedding) > 0
		contentScore := hit.Score * contentWeight
		if !hasQuestions {
			contentScore = hit.Score * 0.80
		}
		byChunk[c.ID.String()] = &Passage{Chunk: &c, Score: contentScore}
	}
	for _, hit := range keywordChunks {
		c := hit.Item
		key := c.ID.String()
		if existing, ok := byChunk[key]; ok {
			existing.Score += hit.Score * questionsWeight
		} else {
			byChunk[key] = &Passage{Chunk: &c, Score: hit.Score * questionsWeight}
		}
	}

	out := make([]Passage, 0, len(byChunk)+len(nodes))
	for _, p := range byChunk {
		p.Score += r.weights.TypeBonus + r.weights.Entity
		out = append(out, *p)
	}
	for _, hit := range nodes {
		n := hit.Item
		out = append(out, Passage{Node: &n, Score: hit.Score, FromMemory: true})
	}
	return out
}

func sortPassages(p []Passage) {
	sort.SliceStable(p, func(i, j int) bool {
		if p[i].Score != p[j].Score {
			return p[i].Score > p[j].Score
		}
		ii, ij := importance(p[i]), importance(p[j])
		if ii != ij {
			return ii > ij
		}
		return createdAt(p[i]).After(createdAt(p[j]))
	})
}

func importance(p Passage) float64 {
	if p.Chunk != nil {
		return p.Chunk.Importance
	}
	return 0
}

func createdAt(p Passage) time.Time {
	if p.Chunk != nil {
		return p.Chunk.CreatedAt
	}
	if p.Node != nil {
		return p.Node.CreatedAt
	}
	return time.Time{}
}

// ExpandPrerequisites resolves the declared prerequisite chunk ids of the
// first n passages (§4.5 step 6) and appends any not already present.
func (r *Retriever) ExpandPrerequisites(ctx context.Context, scope types.Scope, result Result, n int) (Result, error) {
	if n > len(result.Passages) {
		n = len(result.Passages)
	}
	seen := make(map[string]bool, len(result.Passages))
	var prereqIDs []string
	for i := 0; i < len(result.Passages); i++ {
		if p := result.Passages[i].Chunk; p != nil {
			seen[p.ID.String()] = true
		}
	}
	var directSeeds []string
	for i := 0; i < n; i++ {
		c := result.Passages[i].Chunk
		if c == nil || c.Enrichment == nil {
			continue
		}
		directSeeds = append(directSeeds, c.ID.String())
		for _, id := range c.Enrichment.PrerequisiteChunkIDs {
			if !seen[id] {
				prereqIDs = append(prereqIDs, id)
				seen[id] = true
			}
		}
	}

	// When a prerequisite graph is configured, follow chains beyond the
	// single hop stored directly on each chunk's enrichment (§4.5 step 6).
	if r.graph != nil && len(directSeeds) > 0 {
		transitive, err := r.graph.TransitiveIDs(ctx, directSeeds, 3)
		if err != nil {
			result.Degraded = true
		} else {
			for _, id := range transitive {
				if !seen[id] {
					prereqIDs = append(prereqIDs, id)
					seen[id] = true
				}
			}
		}
	}

	if len(prereqIDs) == 0 {
		return result, nil
	}
	extra, err := r.backend.ChunksByPrerequisite(ctx, scope, prereqIDs)
	if err != nil {
		return result, apperr.New(apperr.RetrievalFailed, err)
	}
	for _, c := range extra {
		cc := c
		result.Passages = append(result.Passages, Passage{Chunk: &cc, Score: 0})
	}
	return result, nil
}
