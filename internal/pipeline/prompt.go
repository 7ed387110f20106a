package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tencentyun-labs/cognigate/internal/llm"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
)

// DefaultPassageTokenBudget bounds how many of the retrieved passages'
// estimated tokens may enter the system prompt (§4.9 PROMPT: "enforced by
// total token count; oldest/lowest-ranked passages are dropped first").
const DefaultPassageTokenBudget = 3000

// estimateTokens approximates token count the same way FINALIZE does
// (len/4), since no tokenizer is wired for prompt assembly itself.
func estimateTokens(s string) int {
	return len(s) / 4
}

// buildPrompt assembles the system + history + user messages for the
// STREAM step. trimToBudget re-ranks the passages highest-score and newest
// first and keeps them in that order until the token budget is reached, so
// the lowest-ranked and oldest passages are the ones dropped.
func buildPrompt(persona string, passages []retrieval.Passage, history []llm.Message, query string) []llm.Message {
	trimmed := trimToBudget(passages, DefaultPassageTokenBudget)

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nRelevant context:\n")
	for _, p := range trimmed {
		if p.Chunk != nil {
			fmt.Fprintf(&sb, "- [%s] %s\n", p.Chunk.SectionTitle, p.Chunk.Content)
		} else if p.Node != nil {
			fmt.Fprintf(&sb, "- prior exchange: %s -> %s\n", p.Node.HumanContent, p.Node.AssistantContent)
		}
	}
	sb.WriteString("\n\nYou may invoke a tool mid-response with a bracketed tag: " +
		"[GREP term=\"...\"], [VECTOR q=\"...\"], [SQUIRREL sql=\"...\"], [EPISODIC q=\"...\"]. " +
		"Use at most a few per response; the tool result is re-injected as a system message.")

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages
}

// trimToBudget keeps the highest-scoring, most-recent passages first and
// drops from the oldest/lowest-ranked end once the estimated token total
// would exceed budget.
func trimToBudget(passages []retrieval.Passage, budget int) []retrieval.Passage {
	ranked := make([]retrieval.Passage, len(passages))
	copy(ranked, passages)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return passageCreatedAt(ranked[i]).After(passageCreatedAt(ranked[j]))
	})

	var kept []retrieval.Passage
	total := 0
	for _, p := range ranked {
		cost := estimateTokens(passageText(p))
		if total+cost > budget {
			break
		}
		kept = append(kept, p)
		total += cost
	}
	return kept
}

func passageText(p retrieval.Passage) string {
	if p.Chunk != nil {
		return p.Chunk.Content
	}
	if p.Node != nil {
		return p.Node.HumanContent + p.Node.AssistantContent
	}
	return ""
}

func passageCreatedAt(p retrieval.Passage) time.Time {
	if p.Chunk != nil {
		return p.Chunk.CreatedAt
	}
	if p.Node != nil {
		return p.Node.CreatedAt
	}
	return time.Time{}
}
