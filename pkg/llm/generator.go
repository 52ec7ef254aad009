package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/logging"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// GeneratorConfig represents the configuration for a generation client.
type GeneratorConfig struct {
	Provider     string
	APIKey       string
	BaseURL      string // Ollama server URL
	DefaultModel string
	// CallDelay is the minimum spacing between calls; zero disables it.
	CallDelay time.Duration
	Logger    *zap.Logger
}

// Generator sends prompts to an LLM and never fails on provider errors:
// those are logged and turned into an empty answer.
type Generator struct {
	llm     llms.Model
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ types.Generator = (*Generator)(nil)

// NewWithConfig creates a Generator for the configured provider.
func NewWithConfig(ctx context.Context, config GeneratorConfig) (*Generator, error) {
	var (
		model llms.Model
		err   error
	)

	switch config.Provider {
	case ProviderGoogleAI, "":
		if config.APIKey == "" {
			return nil, eris.New("llm: googleai requires an API key")
		}
		opts := []googleai.Option{googleai.WithAPIKey(config.APIKey)}
		if config.DefaultModel != "" {
			opts = append(opts, googleai.WithDefaultModel(config.DefaultModel))
		}
		model, err = googleai.New(ctx, opts...)
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		if config.DefaultModel == "" {
			config.DefaultModel = "mistral"
		}
		model, err = ollama.New(ollama.WithModel(config.DefaultModel),
			ollama.WithServerURL(config.BaseURL))
	default:
		return nil, eris.Errorf("llm: unknown provider %q", config.Provider)
	}
	if err != nil {
		return nil, eris.Wrap(err, "llm: failed to initialize model")
	}

	return NewFromModel(model, config.CallDelay, config.Logger), nil
}

// NewFromModel wraps an already constructed langchaingo model.
func NewFromModel(model llms.Model, callDelay time.Duration, logger *zap.Logger) *Generator {
	limit := rate.Inf
	if callDelay > 0 {
		limit = rate.Every(callDelay)
	}
	return &Generator{
		llm:     model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrNop(logger),
	}
}

// Generate runs one prompt against model. An empty string with a nil error
// means the provider failed, blocked the answer or returned nothing.
func (g *Generator) Generate(ctx context.Context, prompt, model string, opts types.GenerateOptions) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: waiting for rate limiter")
	}

	content := make([]llms.MessageContent, 0, 2)
	if opts.SystemInstruction != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, opts.SystemInstruction))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := g.llm.GenerateContent(ctx, content, callOptions(model, opts)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "llm: generation cancelled")
		}
		g.logger.Error("llm: generation failed", zap.String("model", model), zap.Error(err))
		return "", nil
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		g.logger.Warn("llm: empty or blocked response", zap.String("model", model))
		return "", nil
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		g.logger.Warn("llm: empty or blocked response",
			zap.String("model", model),
			zap.String("stop_reason", resp.Choices[0].StopReason))
	}
	return text, nil
}

func callOptions(model string, opts types.GenerateOptions) []llms.CallOption {
	var out []llms.CallOption
	if model != "" {
		out = append(out, llms.WithModel(model))
	}
	if opts.MaxTokens > 0 {
		out = append(out, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		out = append(out, llms.WithTemperature(opts.Temperature))
	}
	if opts.TopP > 0 {
		out = append(out, llms.WithTopP(opts.TopP))
	}
	if opts.TopK > 0 {
		out = append(out, llms.WithTopK(opts.TopK))
	}
	return out
}
