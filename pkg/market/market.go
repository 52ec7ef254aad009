package market

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/logging"
)

var queryPrompt = prompts.NewPromptTemplate(`Ты старший аналитик. Ниже итоговая сводка по компании.
Составь КОРОТКИЙ поисковый запрос из 6-12 слов, чтобы найти свежие новости о рынке этой компании, её конкурентах, трендах и изменениях регулирования.

Требования:
- Верни ровно одну строку без кавычек и пояснений.
- Укажи год 2024 или 2025.
- Если в сводке есть город, упомяни его.
- Опирайся только на сводку, ничего не выдумывай.
---

Сводка компании:
{{.summary}}`, []string{"summary"})

// Query generation limits.
const (
	queryMaxTokens   = 60
	queryTemperature = 0.4
	queryTopP        = 0.9
	maxQueryWords    = 14
	truncatedWords   = 12
)

// Searcher produces a raw evidence file for a query.
type Searcher interface {
	SearchAndFetch(ctx context.Context, query string, domains []string, pages int, outDir string) (string, error)
}

// Distiller turns a raw evidence file into a summary file.
type Distiller interface {
	Run(ctx context.Context, rawPath, query, outDir string) (string, error)
}

type Config struct {
	Generator types.Generator
	Model     string
	Searcher  Searcher
	Distiller Distiller
	Domains   []string
	Pages     int
	Logger    *zap.Logger
}

// Digest searches market news around a company and summarises them.
type Digest struct {
	gen       types.Generator
	model     string
	searcher  Searcher
	distiller Distiller
	domains   []string
	pages     int
	logger    *zap.Logger
}

func New(config Config) (*Digest, error) {
	if config.Generator == nil || config.Searcher == nil || config.Distiller == nil {
		return nil, eris.New("market: generator, searcher and distiller are required")
	}
	if config.Pages <= 0 {
		config.Pages = 1
	}
	return &Digest{
		gen:       config.Generator,
		model:     config.Model,
		searcher:  config.Searcher,
		distiller: config.Distiller,
		domains:   config.Domains,
		pages:     config.Pages,
		logger:    logging.OrNop(config.Logger),
	}, nil
}

// QueryFromSummary asks the model for a one-line search query. It returns ""
// when the summary is blank or the model answers nothing.
func (d *Digest) QueryFromSummary(ctx context.Context, summary string) (string, error) {
	if strings.TrimSpace(summary) == "" {
		return "", nil
	}
	prompt, err := queryPrompt.Format(map[string]any{"summary": summary})
	if err != nil {
		return "", eris.Wrap(err, "market: render query prompt")
	}
	raw, err := d.gen.Generate(ctx, prompt, d.model, types.GenerateOptions{
		MaxTokens:   queryMaxTokens,
		Temperature: queryTemperature,
		TopP:        queryTopP,
	})
	if err != nil {
		return "", eris.Wrap(err, "market: generate query")
	}
	return NormalizeQuery(raw), nil
}

// NormalizeQuery flattens the answer to one line without quotes. Answers
// longer than 14 words are cut to the first 12; short ones are kept as is.
func NormalizeQuery(raw string) string {
	q := strings.NewReplacer("\r", " ", "\n", " ").Replace(raw)
	q = strings.Trim(strings.TrimSpace(q), "\"'“”‘’«»")
	words := strings.Fields(q)
	if len(words) > maxQueryWords {
		words = words[:truncatedWords]
	}
	return strings.Join(words, " ")
}

// Run derives a query from summary, collects news into outDir and returns
// the market summary path.
func (d *Digest) Run(ctx context.Context, summary, outDir string) (string, error) {
	query, err := d.QueryFromSummary(ctx, summary)
	if err != nil {
		return "", err
	}
	if query == "" {
		d.logger.Error("market: could not generate a search query")
		return "", eris.New("market: empty search query")
	}
	d.logger.Info("market: search query generated", zap.String("query", query))

	raw, err := d.searcher.SearchAndFetch(ctx, query, d.domains, d.pages, outDir)
	if err != nil {
		d.logger.Warn("market: no news collected", zap.Error(err))
		return "", eris.Wrap(err, "market: search")
	}

	path, err := d.distiller.Run(ctx, raw, query, outDir)
	if err != nil {
		return "", eris.Wrap(err, "market: pipeline")
	}
	d.logger.Info("market: digest saved", zap.String("output", path))
	return path, nil
}
