package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
)

var testModels = types.ModelNames{Clean: "flash", Relevance: "judge", Summary: "pro"}

func rawRecord(url, source string, weight float64, body string) models.EvidenceRecord {
	return models.EvidenceRecord{
		URL:      url,
		Source:   source,
		Weight:   models.KnownWeight(weight),
		Date:     "2024-03-01",
		Title:    "Заголовок",
		FullText: text(body),
	}
}

func pipelineGenerator(relevant string) *stubGenerator {
	return &stubGenerator{respond: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "редактор-экстрактор"):
			return "очищено: " + prompt[strings.LastIndex(prompt, "---\n")+4:], nil
		case model == "judge":
			if strings.Contains(prompt, relevant) {
				return "да", nil
			}
			return "нет", nil
		case isMapPrompt(prompt):
			return "- X купил Y [evidence: tass.ru(w=0.10)]", nil
		default:
			return "- X купил Y [evidence: tass.ru(w=0.10)]", nil
		}
	}}
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	raw := writeRecords(t, dir, "20240301_120000_parsed.json", []models.EvidenceRecord{
		rawRecord("https://tass.ru/1", "tass.ru", 1, "X acquires Y"),
		rawRecord("https://rbc.ru/2", "rbc.ru", 0.95, "weather"),
	})
	outDir := filepath.Join(dir, "out")

	var stages []string
	gen := pipelineGenerator("acquires")
	p, err := NewPipeline(PipelineConfig{
		Generator:  gen,
		Models:     testModels,
		OnArtifact: func(stage, _ string) { stages = append(stages, stage) },
	})
	require.NoError(t, err)

	path, err := p.Run(context.Background(), raw, "X", outDir)
	require.NoError(t, err)

	want := PathsFor(raw, outDir)
	assert.Equal(t, want.Summary, path)
	assert.Equal(t, []string{StageCleaned, StageFiltered, StageSummary}, stages)

	filtered := readRecords(t, want.Filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "https://tass.ru/1", filtered[0].URL)

	mapCalls := 0
	for _, c := range gen.callsTo("flash") {
		if isMapPrompt(c.Prompt) {
			mapCalls++
			assert.Contains(t, c.Prompt, "[SRC:tass.ru | W:1.00 | URL:https://tass.ru/1 | DATE:2024-03-01]")
		}
	}
	assert.Equal(t, 1, mapCalls)
	assert.Len(t, gen.callsTo("pro"), 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tass.ru")
	assert.Contains(t, string(data), "[support: 1.00]")
}

func TestPipelineNoRelevantRecords(t *testing.T) {
	dir := t.TempDir()
	raw := writeRecords(t, dir, "20240301_120000_parsed.json", []models.EvidenceRecord{
		rawRecord("https://rbc.ru/2", "rbc.ru", 0.95, "weather"),
	})
	outDir := filepath.Join(dir, "out")

	gen := pipelineGenerator("nothing matches this")
	p, err := NewPipeline(PipelineConfig{Generator: gen, Models: testModels})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), raw, "X", outDir)
	assert.ErrorIs(t, err, ErrNoArtifact)

	for _, c := range gen.callsTo("flash") {
		assert.False(t, isMapPrompt(c.Prompt), "summarizer must not run")
	}
	assert.Empty(t, gen.callsTo("pro"))
	assert.FileExists(t, PathsFor(raw, outDir).Filtered)
	assert.NoFileExists(t, PathsFor(raw, outDir).Summary)
}

func TestPipelineMissingRaw(t *testing.T) {
	p, err := NewPipeline(PipelineConfig{Generator: pipelineGenerator(""), Models: testModels})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), filepath.Join(t.TempDir(), "nope.json"), "X", t.TempDir())
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestPipelineSummaryFailure(t *testing.T) {
	dir := t.TempDir()
	raw := writeRecords(t, dir, "raw.json", []models.EvidenceRecord{
		rawRecord("https://tass.ru/1", "tass.ru", 1, "X acquires Y"),
	})

	gen := &stubGenerator{respond: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "редактор-экстрактор"):
			return "очищено", nil
		case model == "judge":
			return "да", nil
		default:
			return "", nil
		}
	}}
	p, err := NewPipeline(PipelineConfig{Generator: gen, Models: testModels})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), raw, "X", dir)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.ErrorIs(t, err, ErrNoSummaries)
}

func TestPipelineCancelled(t *testing.T) {
	dir := t.TempDir()
	raw := writeRecords(t, dir, "raw.json", []models.EvidenceRecord{
		rawRecord("https://tass.ru/1", "tass.ru", 1, "X acquires Y"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGenerator{respond: func(string, string) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	p, err := NewPipeline(PipelineConfig{Generator: gen, Models: testModels})
	require.NoError(t, err)

	_, err = p.Run(ctx, raw, "X", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrNoArtifact))
}

func TestPathsFor(t *testing.T) {
	p := PathsFor("/data/20240301_120000_parsed.json", "/out")
	assert.Equal(t, "/out/20240301_120000_parsed_level_1_cleaned.json", p.Cleaned)
	assert.Equal(t, "/out/20240301_120000_parsed_level_2_filtered.json", p.Filtered)
	assert.Equal(t, "/out/20240301_120000_parsed_level_3_summary.txt", p.Summary)
}
