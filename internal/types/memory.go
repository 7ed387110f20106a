package types

import (
	"time"

	"github.com/google/uuid"
)

// MemorySource enumerates where a MemoryNode originated.
type MemorySource string

const (
	MemorySourceChat     MemorySource = "chat"
	MemorySourceImported MemorySource = "imported"
	MemorySourceSystem   MemorySource = "system"
)

// MemoryNode is a conversational exchange atom belonging to exactly one
// scope key: UserID XOR TenantID. Nodes with neither set are never returned
// by any Storage Backend — the fail-secure invariant of §3.1.
type MemoryNode struct {
	ID               uuid.UUID    `json:"id"`
	UserID           uuid.UUID    `json:"user_id,omitempty"`
	TenantID         uuid.UUID    `json:"tenant_id,omitempty"`
	ConversationID   string       `json:"conversation_id"`
	SequenceIndex    int          `json:"sequence_index"`
	HumanContent     string       `json:"human_content"`
	AssistantContent string       `json:"assistant_content"`
	Source           MemorySource `json:"source"`
	Embedding        Vector       `json:"-"`
	HeuristicTags    map[string]string `json:"heuristic_tags,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// ScopeKeyValid enforces "exactly one of (user_id, tenant_id) non-null".
func (m *MemoryNode) ScopeKeyValid() bool {
	hasUser := m.UserID != uuid.Nil
	hasTenant := m.TenantID != uuid.Nil
	return hasUser != hasTenant // XOR
}

// EpisodicMemory is a coarser aggregation of MemoryNodes representing one
// conversation arc.
type EpisodicMemory struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id,omitempty"`
	TenantID       uuid.UUID `json:"tenant_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
	Summary        string    `json:"summary"`
	Tags           []string  `json:"tags,omitempty"`
	Embedding      Vector    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// History is one user/assistant round used to assemble the prompt, matching
// the teacher's types.History shape in chat_pipline/load_history.go.
type History struct {
	Query               string    `json:"query"`
	Answer              string    `json:"answer"`
	CreateAt            time.Time `json:"create_at"`
	KnowledgeReferences []string  `json:"knowledge_references,omitempty"`
}
