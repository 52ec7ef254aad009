package processor

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/logging"
)

// Judge decides whether a cleaned record is about the query. Only context
// errors are expected to be returned; a failed judgment is "not relevant".
type Judge interface {
	Relevant(ctx context.Context, query string, rec models.EvidenceRecord) (bool, error)
}

// LLMJudge asks the generator for a one-word yes/no verdict.
type LLMJudge struct {
	gen    types.Generator
	model  string
	logger *zap.Logger
}

var _ Judge = (*LLMJudge)(nil)

func NewLLMJudge(gen types.Generator, model string, logger *zap.Logger) *LLMJudge {
	return &LLMJudge{gen: gen, model: model, logger: logging.OrNop(logger)}
}

func (j *LLMJudge) Relevant(ctx context.Context, query string, rec models.EvidenceRecord) (bool, error) {
	prompt, err := relevancePrompt.Format(map[string]any{
		"context_query": query,
		"source_domain": rec.Source,
		"source_weight": rec.Weight.String(),
		"url":           rec.URL,
		"date":          rec.DateOrUnknown(),
		"text_content":  rec.Cleaned(),
	})
	if err != nil {
		return false, eris.Wrap(err, "render relevance prompt")
	}

	answer, err := j.gen.Generate(ctx, prompt, j.model, types.GenerateOptions{})
	if err != nil {
		return false, err
	}
	relevant := IsYes(answer)
	if !relevant {
		j.logger.Debug("filter: judged irrelevant", zap.String("url", rec.URL), zap.String("answer", answer))
	}
	return relevant, nil
}

// IsYes reports whether a verdict contains a standalone "да" or "yes".
func IsYes(answer string) bool {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if w == "да" || w == "yes" {
			return true
		}
	}
	return false
}

type FilterConfig struct {
	Judge     Judge
	CallDelay time.Duration
	Logger    *zap.Logger
}

// Filter is level 2: it drops empty and duplicate cleaned texts and keeps
// records the judge accepts, in input order.
type Filter struct {
	judge   Judge
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewFilter(config FilterConfig) (*Filter, error) {
	if config.Judge == nil {
		return nil, eris.New("filter: judge is required")
	}
	return &Filter{
		judge:   config.Judge,
		limiter: newLimiter(config.CallDelay),
		logger:  logging.OrNop(config.Logger),
	}, nil
}

func (f *Filter) Run(ctx context.Context, inPath, outPath, query string) (Stats, error) {
	var stats Stats
	log := f.logger.With(zap.String("query", query))
	log.Info("filter: start", zap.String("input", inPath), zap.String("output", outPath))

	// owned by this run only
	seen := make(map[string]struct{})

	err := transform(inPath, outPath, func(w *artifact.Writer[models.EvidenceRecord], rec models.EvidenceRecord) error {
		stats.Read++
		if err := rec.Validate(); err != nil {
			log.Warn("filter: invalid record skipped", zap.Error(err))
			stats.Skipped++
			return nil
		}

		text := rec.Cleaned()
		if text == "" {
			stats.Skipped++
			return nil
		}
		if _, dup := seen[text]; dup {
			log.Info("filter: duplicate skipped", zap.String("url", rec.URL))
			stats.Skipped++
			return nil
		}
		seen[text] = struct{}{}

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		relevant, err := f.judge.Relevant(ctx, query, rec)
		if err != nil {
			return err
		}
		if !relevant {
			log.Info("filter: not relevant", zap.String("url", rec.URL))
			stats.Skipped++
			return nil
		}

		log.Info("filter: relevant", zap.String("url", rec.URL))
		if err := w.Write(rec); err != nil {
			return err
		}
		stats.Written++
		return nil
	})
	if err != nil {
		log.Error("filter: stage failed", zap.Error(err))
		return stats, eris.Wrap(err, "filter")
	}

	log.Info("filter: done", zap.Int("read", stats.Read), zap.Int("relevant", stats.Written), zap.String("output", outPath))
	return stats, nil
}
