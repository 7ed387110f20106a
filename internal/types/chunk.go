package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Vector is a fixed-dim embedding. The dimension is configured once at
// startup (embedder.dim) and must match across all producers.
type Vector []float32

// ChunkEnrichment carries the optional AI-generated enrichment of a
// DocumentChunk: synthetic questions (embedded separately for the
// "questions" similarity term of §4.5), a complexity estimate, intent tags,
// and process-chain links used for prerequisite expansion.
type ChunkEnrichment struct {
	SyntheticQuestions       []string  `json:"synthetic_questions,omitempty"`
	QuestionsEmbedding       Vector    `json:"-"`
	ComplexityScore          float64   `json:"complexity_score,omitempty"`
	IntentTags               []string  `json:"intent_tags,omitempty"`
	PrerequisiteChunkIDs     []string  `json:"prerequisite_chunk_ids,omitempty"`
}

// DocumentChunk is an immutable piece of tenant knowledge produced by
// out-of-scope ingestion tooling and treated as read-only by the core.
type DocumentChunk struct {
	ID                 uuid.UUID        `json:"id"`
	TenantID           uuid.UUID        `json:"tenant_id"`
	DepartmentID       string           `json:"department_id"`
	SourceFile         string           `json:"source_file"`
	FileHash           string           `json:"file_hash"` // sha-256
	SectionTitle       string           `json:"section_title"`
	Content            string           `json:"content"`
	ChunkIndex         int              `json:"chunk_index"`
	ParentDocumentID   uuid.UUID        `json:"parent_document_id"`
	TokenCount         int              `json:"token_count"`
	Keywords           []string         `json:"keywords,omitempty"`
	Category           string           `json:"category,omitempty"`
	Subcategory        string           `json:"subcategory,omitempty"`
	Embedding          Vector           `json:"-"`
	EmbeddingDim       int              `json:"-"`
	Enrichment         *ChunkEnrichment `json:"enrichment,omitempty"`
	Importance         float64          `json:"importance"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Validate enforces the chunk invariants of §3.1: chunk_index >= 0,
// token_count > 0, and (if present) a matching embedding dimension.
func (c *DocumentChunk) Validate(expectedDim int) error {
	if c.ChunkIndex < 0 {
		return errInvalidChunk("chunk_index must be >= 0")
	}
	if c.TokenCount <= 0 {
		return errInvalidChunk("token_count must be > 0")
	}
	if c.Embedding != nil && expectedDim > 0 && len(c.Embedding) != expectedDim {
		return errInvalidChunk("embedding dimension mismatch")
	}
	return nil
}

type chunkError string

func (e chunkError) Error() string { return string(e) }

func errInvalidChunk(msg string) error { return chunkError(msg) }

// UniqueKey is the idempotency key for insert_chunks:
// (tenant_id, department_id, file_hash, chunk_index).
func (c *DocumentChunk) UniqueKey() string {
	return c.TenantID.String() + "|" + c.DepartmentID + "|" + c.FileHash + "|" + strconv.Itoa(c.ChunkIndex)
}
