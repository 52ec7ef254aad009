package fusion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/logging"
)

// DefaultMaxTokens bounds the fused report length.
const DefaultMaxTokens = 3000

// emptySide stands in for a missing summary inside the prompt.
const emptySide = "—"

var (
	// ErrBothEmpty means neither source had any text; nothing was written.
	ErrBothEmpty = errors.New("both fusion sources are empty")
	// ErrEmptyGeneration means the model returned no text; nothing was written.
	ErrEmptyGeneration = errors.New("fusion generation returned empty text")
)

// Source is one side of a fusion: a file path or text already in memory.
// Text wins when both are set.
type Source struct {
	Path string
	Text string
}

// FromPath reads a summary artifact. A missing or empty path is an empty side.
func FromPath(path string) Source { return Source{Path: path} }

// FromText wraps text produced in memory.
func FromText(text string) Source { return Source{Text: text} }

func (s Source) read() (string, error) {
	if s.Text != "" {
		return strings.TrimSpace(s.Text), nil
	}
	if s.Path == "" || !artifact.Exists(s.Path) {
		return "", nil
	}
	text, err := artifact.ReadText(s.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// FinancialSource renders a snapshot as indented JSON so it can be folded
// into a report by a second fusion call.
func FinancialSource(snapshot *models.FinancialSnapshot) (Source, error) {
	if snapshot == nil {
		return Source{}, nil
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Source{}, eris.Wrap(err, "render financial snapshot")
	}
	return FromText(string(data)), nil
}

// Subject identifies what the report is about.
type Subject struct {
	INN       string
	Company   string
	Executive string
	City      string
}

type Config struct {
	Generator types.Generator
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// Fuser merges two summaries into one report.
type Fuser struct {
	gen       types.Generator
	model     string
	maxTokens int
	logger    *zap.Logger
}

func New(config Config) (*Fuser, error) {
	if config.Generator == nil {
		return nil, eris.New("fusion: generator is required")
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	return &Fuser{
		gen:       config.Generator,
		model:     config.Model,
		maxTokens: config.MaxTokens,
		logger:    logging.OrNop(config.Logger),
	}, nil
}

// Fuse writes the merged report to outPath and returns it. At most one side
// may be empty. The output can be passed back in with FromPath.
func (f *Fuser) Fuse(ctx context.Context, first, second Source, subject Subject, outPath string) (string, error) {
	a, err := first.read()
	if err != nil {
		return "", eris.Wrap(err, "fusion: read first source")
	}
	b, err := second.read()
	if err != nil {
		return "", eris.Wrap(err, "fusion: read second source")
	}
	if a == "" && b == "" {
		f.logger.Error("fusion: both sources empty", zap.String("output", outPath))
		return "", ErrBothEmpty
	}

	prompt, err := fusePrompt.Format(map[string]any{
		"inn":       subject.INN,
		"company":   subject.Company,
		"executive": subject.Executive,
		"city":      subject.City,
		"first":     orDash(a),
		"second":    orDash(b),
	})
	if err != nil {
		return "", eris.Wrap(err, "fusion: render prompt")
	}

	f.logger.Info("fusion: generating", zap.String("inn", subject.INN), zap.Bool("first_empty", a == ""), zap.Bool("second_empty", b == ""))
	text, err := f.gen.Generate(ctx, prompt, f.model, types.GenerateOptions{MaxTokens: f.maxTokens})
	if err != nil {
		return "", eris.Wrap(err, "fusion")
	}
	if strings.TrimSpace(text) == "" {
		f.logger.Error("fusion: model returned empty text")
		return "", ErrEmptyGeneration
	}

	if err := artifact.WriteText(outPath, text); err != nil {
		return "", eris.Wrap(err, "fusion")
	}
	f.logger.Info("fusion: report saved", zap.String("output", outPath))
	return outPath, nil
}

func orDash(s string) string {
	if s == "" {
		return emptySide
	}
	return s
}
