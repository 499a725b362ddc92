package memory

import (
	"fmt"
	"strings"

	"github.com/trioctl/trio/internal/memory/embeddings"
	"github.com/trioctl/trio/internal/memory/embeddings/ollama"
	"github.com/trioctl/trio/internal/memory/embeddings/openai"
)

// NewEmbeddingProvider builds the concrete embeddings.Provider named by
// cfg.Provider. It lives beside Manager rather than inside the embeddings
// package itself because the concrete providers import embeddings for the
// Provider interface; a factory there would be a import cycle.
func NewEmbeddingProvider(cfg embeddings.Config) (embeddings.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("memory: unsupported embeddings provider %q", cfg.Provider)
	}
}
