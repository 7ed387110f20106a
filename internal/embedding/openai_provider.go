package embedding

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// OpenAIProvider is the one concrete Provider the gateway ships, mirroring
// the same vendor-collapsing decision internal/llm made for chat: whichever
// vendor is configured must speak the OpenAI-compatible embeddings wire
// format. Grounded on internal/models/embedding/aliyun.go's provider shape
// (http client + model name + fixed dimensions), generalized from a
// bespoke per-vendor request/response pair to go-openai's typed client.
type OpenAIProvider struct {
	api   *openai.Client
	model string
	dim   int
}

func NewOpenAIProvider(apiKey, baseURL, model string, dim int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{api: openai.NewClientWithConfig(cfg), model: model, dim: dim}
}

func (p *OpenAIProvider) Dimensions() int { return p.dim }
func (p *OpenAIProvider) ModelID() string { return p.model }

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error) {
	resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, apperr.New(apperr.EmbedderUnavail, err)
	}
	out := make([]types.Vector, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = types.Vector(d.Embedding)
	}
	return out, nil
}
