// Package ollama provides an embeddings.Provider backed by a local Ollama
// server, for deployments that keep vector memory entirely off third-party
// APIs.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trioctl/trio/internal/memory/embeddings"
)

// Provider implements embeddings.Provider against Ollama's /api/embeddings
// endpoint.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ embeddings.Provider = (*Provider)(nil)

// Config configures the Ollama provider.
type Config struct {
	BaseURL string // default http://localhost:11434
	Model   string // e.g. nomic-embed-text, mxbai-embed-large
	Timeout time.Duration
}

// New constructs an Ollama-backed embeddings provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Dimension() int {
	switch p.model {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 768
	}
}

// MaxBatchSize is 1 in spirit: Ollama's embeddings endpoint takes a single
// prompt per request, so EmbedBatch issues MaxBatchSize sequential calls at
// most before the caller should re-chunk.
func (p *Provider) MaxBatchSize() int { return 64 }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(data))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	return result.Embedding, nil
}

// EmbedBatch has no native batch endpoint in Ollama, so it embeds texts one
// at a time, bailing out on the first failure.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama: embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}
