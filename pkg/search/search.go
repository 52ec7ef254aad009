// Package search discovers news articles about a subject and turns them into
// raw evidence records with full text attached.
package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/pkg/policy"
	"github.com/xhad/dossier/pkg/scraper"
)

// ErrNoResults is returned when no page produced a single hit.
var ErrNoResults = errors.New("search returned no results")

// Hit is one search result before full-text extraction.
type Hit struct {
	URL     string
	Domain  string
	Title   string
	Passage string
	Date    string
}

// Provider runs a single page of a search restricted to domains.
type Provider interface {
	Search(ctx context.Context, query string, domains []string, page int) ([]Hit, error)
}

// Fetcher extracts article text; texts[i] belongs to targets[i].
type Fetcher interface {
	FetchAll(ctx context.Context, targets []scraper.Target) ([]string, error)
}

type SourceConfig struct {
	Provider Provider
	Fetcher  Fetcher
	Policy   *policy.Policy
	// PageDelay spaces consecutive result pages.
	PageDelay time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Source is the record source feeding the distillation pipeline.
type Source struct {
	provider  Provider
	fetcher   Fetcher
	policy    *policy.Policy
	pageDelay time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewSource(config SourceConfig) (*Source, error) {
	if config.Provider == nil {
		return nil, eris.New("search: provider is required")
	}
	if config.Fetcher == nil {
		config.Fetcher = scraper.New()
	}
	if config.Policy == nil {
		config.Policy = policy.New(nil)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Source{
		provider:  config.Provider,
		fetcher:   config.Fetcher,
		policy:    config.Policy,
		pageDelay: config.PageDelay,
		logger:    logging.OrNop(config.Logger),
		now:       config.Now,
	}, nil
}

// SiteQuery builds `"query" (site:a | site:b)`.
func SiteQuery(query string, domains []string, sep string) string {
	quoted := `"` + query + `"`
	if len(domains) == 0 {
		return quoted
	}
	filters := make([]string, len(domains))
	for i, d := range domains {
		filters[i] = "site:" + d
	}
	return fmt.Sprintf("%s (%s)", quoted, strings.Join(filters, sep))
}

// SearchAndFetch searches up to pages result pages, deduplicates hits by
// URL, extracts full texts and writes `<timestamp>_parsed.json` into outDir.
func (s *Source) SearchAndFetch(ctx context.Context, query string, domains []string, pages int, outDir string) (string, error) {
	log := s.logger.With(zap.String("query", query))

	var hits []Hit
	for page := 0; page < pages; page++ {
		if page > 0 && s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return "", eris.Wrap(ctx.Err(), "search: cancelled")
			case <-time.After(s.pageDelay):
			}
		}

		pageHits, err := s.provider.Search(ctx, query, domains, page)
		if err != nil {
			if ctx.Err() != nil {
				return "", eris.Wrap(ctx.Err(), "search: cancelled")
			}
			log.Error("search: page failed", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(pageHits) == 0 {
			log.Info("search: no more results", zap.Int("page", page))
			break
		}
		hits = append(hits, pageHits...)
	}

	if len(hits) == 0 {
		log.Info("search: nothing found")
		return "", ErrNoResults
	}

	unique := dedupByURL(hits)
	log.Info("search: collected hits", zap.Int("total", len(hits)), zap.Int("unique", len(unique)))

	records := make([]models.EvidenceRecord, len(unique))
	targets := make([]scraper.Target, len(unique))
	for i, h := range unique {
		domain, weight := h.Domain, s.policy.Weight(h.Domain)
		if domain == "" {
			domain, weight = policy.Domain(h.URL), s.policy.WeightForURL(h.URL)
		}
		date := h.Date
		if date == "" {
			date = models.UnknownDate
		}
		records[i] = models.EvidenceRecord{
			SchemaVersion: models.RecordSchemaVersion,
			URL:           h.URL,
			Source:        domain,
			Weight:        weight,
			Date:          date,
			Title:         h.Title,
			Summary:       h.Passage,
		}
		targets[i] = scraper.Target{URL: h.URL, Domain: domain}
	}

	texts, err := s.fetcher.FetchAll(ctx, targets)
	if err != nil {
		return "", eris.Wrap(err, "search: full text extraction")
	}
	extracted, highTrust := 0, 0
	for i := range records {
		if records[i].Weight.AtLeast(policy.HighTrust) {
			highTrust++
		}
		if i < len(texts) && texts[i] != "" {
			text := texts[i]
			records[i].FullText = &text
			extracted++
		} else {
			log.Warn("search: no full text", zap.String("url", records[i].URL))
		}
	}
	log.Info("search: full texts extracted", zap.Int("extracted", extracted), zap.Int("high_trust", highTrust), zap.Int("records", len(records)))

	path := filepath.Join(outDir, s.now().Format("20060102_150405")+"_parsed.json")
	if err := artifact.WriteAll(path, records); err != nil {
		return "", eris.Wrap(err, "search: write records")
	}
	log.Info("search: records saved", zap.String("path", path))
	return path, nil
}

// dedupByURL keeps the position of the first occurrence and the content of
// the last one.
func dedupByURL(hits []Hit) []Hit {
	index := make(map[string]int, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if i, ok := index[h.URL]; ok {
			out[i] = h
			continue
		}
		index[h.URL] = len(out)
		out = append(out, h)
	}
	return out
}
