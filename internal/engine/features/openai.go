package features

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/hejijunhao/canopy/internal/model"
)

// OpenAI extracts dense features from an OpenAI-compatible embeddings API.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAI creates an embeddings client. baseURL may be empty for the
// public API; embeddingModel defaults to text-embedding-3-small.
func NewOpenAI(apiKey, baseURL, embeddingModel string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	m := openai.SmallEmbedding3
	if embeddingModel != "" {
		m = openai.EmbeddingModel(embeddingModel)
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: m}
}

func (o *OpenAI) Extract(ctx context.Context, text string) (model.FeatureVector, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return model.FeatureVector{}, fmt.Errorf("openai: embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return model.FeatureVector{}, fmt.Errorf("openai: no embedding data returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return model.DenseVector(vec), nil
}
