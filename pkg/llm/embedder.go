package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/dossier/internal/types"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder produces vectors for the summary archive through Ollama.
type Embedder struct {
	Config EmbedderConfig
	embed  *ollama.LLM
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, eris.Wrap(err, "llm: failed to initialize embedder")
	}

	return &Embedder{
		Config: config,
		embed:  emb,
	}, nil
}

// CreateEmbedding returns one vector per text.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embed.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: embedding %d texts with %s", len(texts), e.Config.Model)
	}
	if len(vectors) != len(texts) {
		return nil, eris.Errorf("llm: got %d embeddings for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
