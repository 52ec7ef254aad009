package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/logging"
)

// ErrNoArtifact is returned when a stage did not leave its expected output.
// Callers skip whatever depends on it.
var ErrNoArtifact = errors.New("expected artifact was not produced")

// Stage names reported to OnArtifact.
const (
	StageCleaned  = "level_1_cleaned"
	StageFiltered = "level_2_filtered"
	StageSummary  = "level_3_summary"
)

// Paths are the artifact locations derived from a raw input file.
type Paths struct {
	Cleaned  string
	Filtered string
	Summary  string
}

// PathsFor derives stage outputs from the raw file's base name.
func PathsFor(rawPath, outDir string) Paths {
	base := artifact.BaseName(rawPath)
	return Paths{
		Cleaned:  filepath.Join(outDir, base+artifact.SuffixCleaned),
		Filtered: filepath.Join(outDir, base+artifact.SuffixFiltered),
		Summary:  filepath.Join(outDir, base+artifact.SuffixSummary),
	}
}

type PipelineConfig struct {
	Generator types.Generator
	Models    types.ModelNames
	// Judge overrides the LLM relevance judge.
	Judge      Judge
	ChunkSize  int
	CallDelay  time.Duration
	ChunkDelay time.Duration
	// OnArtifact is called after each stage commits its output.
	OnArtifact func(stage, path string)
	Logger     *zap.Logger
}

// Pipeline chains cleaning, relevance filtering and summarisation.
type Pipeline struct {
	cleaner    *Cleaner
	filter     *Filter
	summarizer *Summarizer
	onArtifact func(stage, path string)
	logger     *zap.Logger
}

func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	logger := logging.OrNop(config.Logger)

	cleaner, err := NewCleaner(CleanerConfig{
		Generator: config.Generator,
		Model:     config.Models.Clean,
		CallDelay: config.CallDelay,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	judge := config.Judge
	if judge == nil {
		judge = NewLLMJudge(config.Generator, config.Models.Relevance, logger)
	}
	filter, err := NewFilter(FilterConfig{Judge: judge, CallDelay: config.CallDelay, Logger: logger})
	if err != nil {
		return nil, err
	}

	summarizer, err := NewSummarizer(SummarizerConfig{
		Generator:   config.Generator,
		ChunkModel:  config.Models.Clean,
		ReduceModel: config.Models.Summary,
		ChunkSize:   config.ChunkSize,
		ChunkDelay:  config.ChunkDelay,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	onArtifact := config.OnArtifact
	if onArtifact == nil {
		onArtifact = func(string, string) {}
	}

	return &Pipeline{
		cleaner:    cleaner,
		filter:     filter,
		summarizer: summarizer,
		onArtifact: onArtifact,
		logger:     logger,
	}, nil
}

// Run processes rawPath for query and returns the level 3 summary path.
// Any missing stage output yields an error wrapping ErrNoArtifact.
func (p *Pipeline) Run(ctx context.Context, rawPath, query, outDir string) (string, error) {
	log := p.logger.With(zap.String("query", query))
	log.Info("pipeline: start", zap.String("raw", rawPath))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create %s", outDir)
	}
	if !artifact.Exists(rawPath) {
		log.Error("pipeline: raw input not found", zap.String("raw", rawPath))
		return "", fmt.Errorf("pipeline: raw input %s: %w", rawPath, ErrNoArtifact)
	}

	paths := PathsFor(rawPath, outDir)

	if _, err := p.cleaner.Run(ctx, rawPath, paths.Cleaned); err != nil {
		return "", p.stageFailed(ctx, StageCleaned, err)
	}
	if !artifact.Exists(paths.Cleaned) {
		return "", fmt.Errorf("pipeline: %s: %w", StageCleaned, ErrNoArtifact)
	}
	p.onArtifact(StageCleaned, paths.Cleaned)

	stats, err := p.filter.Run(ctx, paths.Cleaned, paths.Filtered, query)
	if err != nil {
		return "", p.stageFailed(ctx, StageFiltered, err)
	}
	if !artifact.Exists(paths.Filtered) {
		return "", fmt.Errorf("pipeline: %s: %w", StageFiltered, ErrNoArtifact)
	}
	p.onArtifact(StageFiltered, paths.Filtered)

	if stats.Written == 0 {
		log.Warn("pipeline: no relevant records, summarisation skipped")
		return "", fmt.Errorf("pipeline: no relevant records: %w", ErrNoArtifact)
	}

	if err := p.summarizer.Run(ctx, paths.Filtered, paths.Summary, query); err != nil {
		return "", p.stageFailed(ctx, StageSummary, err)
	}
	if !artifact.Exists(paths.Summary) {
		return "", fmt.Errorf("pipeline: %s: %w", StageSummary, ErrNoArtifact)
	}
	p.onArtifact(StageSummary, paths.Summary)

	log.Info("pipeline: done", zap.String("summary", paths.Summary))
	return paths.Summary, nil
}

func (p *Pipeline) stageFailed(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return eris.Wrapf(ctx.Err(), "pipeline: %s cancelled", stage)
	}
	p.logger.Error("pipeline: stage produced no artifact", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("pipeline: %s: %w: %w", stage, ErrNoArtifact, err)
}
