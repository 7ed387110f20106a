// Package llm is the external LLM Provider Client used by the Cognitive
// Pipeline's STREAM step, grounded on the teacher's chat provider shape in
// internal/models/chat/ollama.go (a streaming channel of typed response
// events) generalized from Ollama's local API to an OpenAI-compatible
// remote provider.
package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
)

// Message is one chat turn, role-tagged, mirroring the teacher's
// models/chat.Message shape.
type Message struct {
	Role    string
	Content string
}

// StreamEventType distinguishes token content from terminal signals on the
// streaming channel.
type StreamEventType string

const (
	EventToken StreamEventType = "TOKEN"
	EventDone  StreamEventType = "DONE"
	EventError StreamEventType = "ERROR"
)

type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
	// Usage is populated only on the terminal EventDone if the provider
	// reports exact token counts; callers fall back to a len/4 estimate
	// per §4.9 FINALIZE for whichever of PromptTokens/CompletionTokens is zero.
	PromptTokens     int
	CompletionTokens int
}

// Provider is the narrow surface the Cognitive Pipeline depends on.
type Provider interface {
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
}

// Client is an OpenAI-compatible Provider, grounded on the teacher's
// provider-routing instinct (internal/models/provider) of resolving one
// client shape regardless of vendor, as long as the vendor speaks the
// OpenAI chat completion wire format.
type Client struct {
	api   *openai.Client
	model string
}

func New(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *Client) ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, apperr.New(apperr.ProviderUnavail, err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()
		var promptTokens, completionTokens int
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					out <- StreamEvent{Type: EventDone, PromptTokens: promptTokens, CompletionTokens: completionTokens}
					return
				}
				out <- StreamEvent{Type: EventError, Err: apperr.New(apperr.ProviderUnavail, err)}
				return
			}
			if resp.Usage != nil {
				promptTokens = resp.Usage.PromptTokens
				completionTokens = resp.Usage.CompletionTokens
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					out <- StreamEvent{Type: EventToken, Content: choice.Delta.Content}
				}
			}
		}
	}()
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
