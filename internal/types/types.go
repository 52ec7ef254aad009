package types

import (
	"context"
)

// Core interfaces

// GenerateOptions tunes a single generation call. Zero values fall back to
// the provider defaults.
type GenerateOptions struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	SystemInstruction string
}

// Generator is the text-generation service shared by every stage.
// Implementations return "" with a nil error when the provider fails or
// produces nothing; only programmer errors surface as error values.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, opts GenerateOptions) (string, error)
}

// Embedder turns text into vectors for the summary archive.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelNames selects the model used by each stage.
type ModelNames struct {
	Clean     string
	Relevance string
	Summary   string
	Fusion    string
}
