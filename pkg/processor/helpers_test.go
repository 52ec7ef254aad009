package processor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/artifact"
)

type generateCall struct {
	Prompt string
	Model  string
}

// stubGenerator answers through respond and records every call.
type stubGenerator struct {
	mu      sync.Mutex
	calls   []generateCall
	respond func(prompt, model string) (string, error)
}

var _ types.Generator = (*stubGenerator)(nil)

func (g *stubGenerator) Generate(_ context.Context, prompt, model string, _ types.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{Prompt: prompt, Model: model})
	g.mu.Unlock()
	return g.respond(prompt, model)
}

func (g *stubGenerator) callsTo(model string) []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []generateCall
	for _, c := range g.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

func isMapPrompt(prompt string) bool {
	return strings.Contains(prompt, "[SRC:")
}

func text(s string) *string { return &s }

func writeRecords(t *testing.T, dir, name string, records []models.EvidenceRecord) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, artifact.WriteAll(path, records))
	return path
}

func readRecords(t *testing.T, path string) []models.EvidenceRecord {
	t.Helper()
	records, err := artifact.ReadAll[models.EvidenceRecord](path)
	require.NoError(t, err)
	return records
}

func cleanedRecord(url, source string, weight float64, cleaned string) models.EvidenceRecord {
	r := models.EvidenceRecord{URL: url, Source: source, Weight: models.KnownWeight(weight), Date: "2024-01-01"}
	return r.WithCleanedText(cleaned)
}
