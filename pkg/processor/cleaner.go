package processor

import (
	"context"
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

// Stats summarises one stage run.
type Stats struct {
	Read    int
	Written int
	Skipped int
}

type CleanerConfig struct {
	Generator types.Generator
	Model     string
	// CallDelay spaces consecutive generation calls.
	CallDelay time.Duration
	Logger    *zap.Logger
}

// Cleaner is level 1: it distils each raw record into cleaned_text.
type Cleaner struct {
	gen     types.Generator
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewCleaner(config CleanerConfig) (*Cleaner, error) {
	if config.Generator == nil {
		return nil, eris.New("cleaner: generator is required")
	}
	return &Cleaner{
		gen:     config.Generator,
		model:   config.Model,
		limiter: newLimiter(config.CallDelay),
		logger:  logging.OrNop(config.Logger),
	}, nil
}

// Run streams inPath into outPath. Records without any text are dropped;
// records whose generation fails are kept with an empty cleaned_text. On
// error outPath is removed.
func (c *Cleaner) Run(ctx context.Context, inPath, outPath string) (Stats, error) {
	var stats Stats
	c.logger.Info("cleaner: start", zap.String("input", inPath), zap.String("output", outPath))

	err := transform(inPath, outPath, func(w *artifact.Writer[models.EvidenceRecord], rec models.EvidenceRecord) error {
		stats.Read++
		if err := rec.Validate(); err != nil {
			c.logger.Warn("cleaner: invalid record skipped", zap.Error(err))
			stats.Skipped++
			return nil
		}

		content := rec.Content()
		if strings.TrimSpace(content) == "" {
			c.logger.Warn("cleaner: record without text skipped", zap.String("url", rec.URL))
			stats.Skipped++
			return nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		prompt, err := cleanPrompt.Format(map[string]any{
			"source_domain": rec.Source,
			"source_weight": rec.Weight.String(),
			"url":           rec.URL,
			"content":       content,
		})
		if err != nil {
			return eris.Wrap(err, "render clean prompt")
		}

		c.logger.Debug("cleaner: cleaning record", zap.String("url", rec.URL))
		cleaned, err := c.gen.Generate(ctx, prompt, c.model, types.GenerateOptions{})
		if err != nil {
			return err
		}
		if cleaned == "" {
			c.logger.Warn("cleaner: empty distillation", zap.String("url", rec.URL))
		}

		if err := w.Write(rec.WithCleanedText(cleaned)); err != nil {
			return err
		}
		stats.Written++
		return nil
	})
	if err != nil {
		c.logger.Error("cleaner: stage failed", zap.Error(err))
		return stats, eris.Wrap(err, "cleaner")
	}

	c.logger.Info("cleaner: done",
		zap.Int("read", stats.Read),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
		zap.String("output", outPath))
	return stats, nil
}

// transform is the streaming skeleton shared by the record stages: read
// inPath item by item, let fn write zero or one item, commit at the end and
// remove the output on any failure.
func transform(inPath, outPath string, fn func(w *artifact.Writer[models.EvidenceRecord], rec models.EvidenceRecord) error) error {
	r, err := artifact.Open[models.EvidenceRecord](inPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := artifact.Create[models.EvidenceRecord](outPath)
	if err != nil {
		return err
	}

	for {
		rec, ok := r.Next()
		if !ok {
			break
		}
		if err := fn(w, rec); err != nil {
			w.Abort()
			return err
		}
	}
	if err := r.Err(); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
