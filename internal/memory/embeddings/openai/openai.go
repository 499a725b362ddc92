// Package openai provides an embeddings.Provider backed by OpenAI's
// embedding models, the default vector-memory backend for deployments that
// already hold an OpenAI key.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/trioctl/trio/internal/memory/embeddings"
)

// Provider implements embeddings.Provider using the OpenAI embeddings API.
type Provider struct {
	client *openaisdk.Client
	model  string
}

var _ embeddings.Provider = (*Provider)(nil)

// Config configures the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string // text-embedding-3-small or text-embedding-3-large
}

// New constructs an OpenAI-backed embeddings provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	clientConfig := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openaisdk.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Dimension() int {
	switch p.model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// MaxBatchSize mirrors OpenAI's per-request input cap.
func (p *Provider) MaxBatchSize() int { return 2048 }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return vectors[0], nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openaisdk.EmbeddingRequest{
		Input: texts,
		Model: openaisdk.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}

	results := make([][]float32, len(resp.Data))
	for _, datum := range resp.Data {
		results[datum.Index] = datum.Embedding
	}
	return results, nil
}
