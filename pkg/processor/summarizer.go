package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/logging"
)

const DefaultChunkSize = 10

var (
	// ErrNoSummaries means every MAP call failed; REDUCE was not attempted.
	ErrNoSummaries = errors.New("no intermediate summaries produced")
	// ErrEmptyGeneration means the final generation returned no text.
	ErrEmptyGeneration = errors.New("generation returned empty text")
)

const (
	blockSeparator   = "\n\n---\n\n"
	summarySeparator = "\n\n===\n\n"
)

type SummarizerConfig struct {
	Generator types.Generator
	// ChunkModel runs MAP, ReduceModel runs REDUCE.
	ChunkModel  string
	ReduceModel string
	ChunkSize   int
	ChunkDelay  time.Duration
	Logger      *zap.Logger
}

// Summarizer is level 3: MAP over chunks of records, then one REDUCE call.
type Summarizer struct {
	gen         types.Generator
	chunkModel  string
	reduceModel string
	chunkSize   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func NewSummarizer(config SummarizerConfig) (*Summarizer, error) {
	if config.Generator == nil {
		return nil, eris.New("summarizer: generator is required")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ReduceModel == "" {
		config.ReduceModel = config.ChunkModel
	}
	return &Summarizer{
		gen:         config.Generator,
		chunkModel:  config.ChunkModel,
		reduceModel: config.ReduceModel,
		chunkSize:   config.ChunkSize,
		limiter:     newLimiter(config.ChunkDelay),
		logger:      logging.OrNop(config.Logger),
	}, nil
}

// Run summarises the records of inPath into the text artifact outPath.
func (s *Summarizer) Run(ctx context.Context, inPath, outPath, query string) error {
	log := s.logger.With(zap.String("query", query))
	log.Info("summarizer: map phase", zap.Int("chunk_size", s.chunkSize))

	r, err := artifact.Open[models.EvidenceRecord](inPath)
	if err != nil {
		return eris.Wrap(err, "summarizer")
	}
	defer r.Close()

	// weights of every record seen, for support recomputation in REDUCE
	allWeights := make(map[string]models.Weight)
	var intermediate []string
	chunk := make([]models.EvidenceRecord, 0, s.chunkSize)
	chunks := 0

	mapChunk := func() error {
		chunks++
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		summary, err := s.summarizeChunk(ctx, query, chunk)
		if err != nil {
			return err
		}
		if summary == "" {
			log.Warn("summarizer: chunk produced no summary", zap.Int("chunk", chunks), zap.Int("records", len(chunk)))
		} else {
			intermediate = append(intermediate, summary)
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		rec, ok := r.Next()
		if !ok {
			break
		}
		if err := rec.Validate(); err != nil {
			log.Warn("summarizer: invalid record skipped", zap.Error(err))
			continue
		}
		allWeights[strings.ToLower(rec.Source)] = rec.Weight
		chunk = append(chunk, rec)
		if len(chunk) >= s.chunkSize {
			if err := mapChunk(); err != nil {
				return eris.Wrap(err, "summarizer: map")
			}
		}
	}
	if err := r.Err(); err != nil {
		return eris.Wrap(err, "summarizer: map")
	}
	if len(chunk) > 0 {
		if err := mapChunk(); err != nil {
			return eris.Wrap(err, "summarizer: map")
		}
	}

	if len(intermediate) == 0 {
		log.Warn("summarizer: no intermediate summaries, skipping reduce", zap.Int("chunks", chunks))
		return ErrNoSummaries
	}
	log.Info("summarizer: reduce phase", zap.Int("chunks", chunks), zap.Int("summaries", len(intermediate)))

	prompt, err := finalSummaryPrompt.Format(map[string]any{
		"context_query":      query,
		"combined_summaries": strings.Join(intermediate, summarySeparator),
	})
	if err != nil {
		return eris.Wrap(err, "summarizer: render final prompt")
	}
	final, err := s.gen.Generate(ctx, prompt, s.reduceModel, types.GenerateOptions{})
	if err != nil {
		return eris.Wrap(err, "summarizer: reduce")
	}
	if final == "" {
		log.Error("summarizer: final summary is empty")
		return ErrEmptyGeneration
	}
	final = RecomputeSupport(final, allWeights)

	if err := artifact.WriteText(outPath, final); err != nil {
		return eris.Wrap(err, "summarizer")
	}
	log.Info("summarizer: final summary saved",
		zap.String("output", outPath),
		zap.Int("claims", len(Claims(final, allWeights))))
	return nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, query string, chunk []models.EvidenceRecord) (string, error) {
	weights := make(map[string]models.Weight, len(chunk))
	for _, rec := range chunk {
		weights[strings.ToLower(rec.Source)] = rec.Weight
	}

	prompt, err := chunkSummaryPrompt.Format(map[string]any{
		"context_query": query,
		"chunk_texts":   RenderChunk(chunk),
	})
	if err != nil {
		return "", eris.Wrap(err, "render chunk prompt")
	}

	s.logger.Debug("summarizer: summarising chunk", zap.Int("records", len(chunk)))
	summary, err := s.gen.Generate(ctx, prompt, s.chunkModel, types.GenerateOptions{})
	if err != nil || summary == "" {
		return "", err
	}
	return RecomputeSupport(summary, weights), nil
}

// RenderChunk tags every record with its provenance and joins the blocks.
func RenderChunk(chunk []models.EvidenceRecord) string {
	blocks := make([]string, len(chunk))
	for i, rec := range chunk {
		blocks[i] = fmt.Sprintf("[SRC:%s | W:%s | URL:%s | DATE:%s]\n%s",
			rec.Source, rec.Weight, rec.URL, rec.DateOrUnknown(), rec.Cleaned())
	}
	return strings.Join(blocks, blockSeparator)
}
