package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/llm"
)

type stubModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
	calls    int
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	m.opts = llms.CallOptions{}
	for _, o := range options {
		o(&m.opts)
	}
	return m.resp, m.err
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func TestNewWithConfig(t *testing.T) {
	ctx := context.Background()

	_, err := llm.NewWithConfig(ctx, llm.GeneratorConfig{Provider: "googleai"})
	assert.Error(t, err, "api key is required")

	_, err = llm.NewWithConfig(ctx, llm.GeneratorConfig{Provider: "openai"})
	assert.Error(t, err)

	gen, err := llm.NewWithConfig(ctx, llm.GeneratorConfig{
		Provider:     "ollama",
		BaseURL:      "http://localhost:1234",
		DefaultModel: "testmodel",
	})
	assert.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestGenerate(t *testing.T) {
	model := &stubModel{resp: answer("  очищенный текст \n")}
	gen := llm.NewFromModel(model, 0, nil)

	text, err := gen.Generate(context.Background(), "prompt", "gemini-2.5-pro", types.GenerateOptions{
		MaxTokens:         60,
		Temperature:       0.4,
		TopP:              0.9,
		TopK:              20,
		SystemInstruction: "be brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "очищенный текст", text)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, "gemini-2.5-pro", model.opts.Model)
	assert.Equal(t, 60, model.opts.MaxTokens)
	assert.Equal(t, 0.4, model.opts.Temperature)
	assert.Equal(t, 0.9, model.opts.TopP)
	assert.Equal(t, 20, model.opts.TopK)
}

func TestGenerateSwallowsProviderFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *stubModel
	}{
		{name: "error", model: &stubModel{err: errors.New("503")}},
		{name: "nil response", model: &stubModel{}},
		{name: "no choices", model: &stubModel{resp: &llms.ContentResponse{}}},
		{name: "blocked", model: &stubModel{resp: answer("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := llm.NewFromModel(tt.model, 0, nil)
			text, err := gen.Generate(context.Background(), "p", "m", types.GenerateOptions{})
			assert.NoError(t, err)
			assert.Empty(t, text)
			assert.Equal(t, 1, tt.model.calls)
		})
	}
}

func TestGenerateHonoursContext(t *testing.T) {
	model := &stubModel{resp: answer("ok")}
	gen := llm.NewFromModel(model, time.Hour, nil)

	_, err := gen.Generate(context.Background(), "p", "m", types.GenerateOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, "p", "m", types.GenerateOptions{})
	assert.Error(t, err)
	assert.Equal(t, 1, model.calls)
}
