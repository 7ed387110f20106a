package pipeline

import (
	"strings"
	"testing"

	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

func TestTrimToBudgetKeepsHighestScoreFirst(t *testing.T) {
	passages := []retrieval.Passage{
		{Chunk: &types.DocumentChunk{Content: strings.Repeat("a", 4000)}, Score: 0.5},
		{Chunk: &types.DocumentChunk{Content: strings.Repeat("b", 40)}, Score: 0.9},
	}
	kept := trimToBudget(passages, 100)
	if len(kept) != 1 || kept[0].Score != 0.9 {
		t.Fatalf("expected only the high-scoring small passage to survive the budget, got %+v", kept)
	}
}

func TestBuildPromptIncludesPersonaAndQuery(t *testing.T) {
	messages := buildPrompt("You are Acme's assistant.", nil, nil, "how do I reset my password?")
	if len(messages) != 2 {
		t.Fatalf("expected a system message and a user message, got %d", len(messages))
	}
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "Acme's assistant") {
		t.Fatalf("unexpected system message: %+v", messages[0])
	}
	if messages[1].Role != "user" || messages[1].Content != "how do I reset my password?" {
		t.Fatalf("unexpected user message: %+v", messages[1])
	}
}
