package scraper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xhad/dossier/pkg/logging"
)

// SiteSelectors lists article body selectors for a domain, tried in order.
type SiteSelectors struct {
	Domain    string
	Selectors []string
}

// DefaultSelectors covers the weighted news sites. The first entry whose
// Domain is contained in the article domain wins.
var DefaultSelectors = []SiteSelectors{
	{Domain: "rbc.ru", Selectors: []string{"div.article__text", "div.article__body"}},
	{Domain: "kommersant.ru", Selectors: []string{"div.article_text", "div.js-article-text"}},
	{Domain: "vedomosti.ru", Selectors: []string{"div.article-body"}},
	{Domain: "tass.ru", Selectors: []string{"div.text-block"}},
	{Domain: "ria.ru", Selectors: []string{"div.article__body"}},
	{Domain: "interfax.ru", Selectors: []string{`article[itemprop="articleBody"]`}},
	{Domain: "forbes.ru", Selectors: []string{"div.article-body"}},
}

var fallbackSelectors = []string{"article", "main", "body"}

const noiseSelector = ".adv, .subscription-block, .banner"

type ScraperConfig struct {
	MaxConcurrent int
	RateLimit     float64 // requests per second
	Timeout       time.Duration
	UserAgent     string
	Selectors     []SiteSelectors
	OnProgress    func(url string)
	Client        *http.Client
	Logger        *zap.Logger
}

// Target is one article to fetch.
type Target struct {
	URL    string
	Domain string
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	if config.Selectors == nil {
		config.Selectors = DefaultSelectors
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.MaxConcurrent),
		logger:  logging.OrNop(config.Logger),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// FetchAll downloads every target with at most MaxConcurrent requests in
// flight. texts[i] belongs to targets[i]; failed pages yield "".
func (s *Scraper) FetchAll(ctx context.Context, targets []Target) ([]string, error) {
	texts := make([]string, len(targets))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for i, target := range targets {
		g.Go(func() error {
			text, err := s.FetchArticle(gCtx, target.URL, target.Domain)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				s.logger.Warn("scraper: failed to extract full text",
					zap.String("url", target.URL), zap.Error(err))
				return nil
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return texts, eris.Wrap(err, "scraper: fetch cancelled")
	}
	return texts, nil
}

// FetchArticle returns the paragraph text of one article page, or "" when
// the page has no paragraphs.
func (s *Scraper) FetchArticle(ctx context.Context, url, domain string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if s.config.OnProgress != nil {
		s.config.OnProgress(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrapf(err, "build request for %s", url)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", eris.Wrapf(err, "parse %s", url)
	}

	return s.extractMainContent(doc, domain), nil
}

func (s *Scraper) selectorsFor(domain string) []string {
	for _, site := range s.config.Selectors {
		if strings.Contains(domain, site.Domain) {
			return site.Selectors
		}
	}
	return nil
}

func (s *Scraper) extractMainContent(doc *goquery.Document, domain string) string {
	site := s.selectorsFor(domain)
	selectors := make([]string, 0, len(site)+len(fallbackSelectors))
	selectors = append(append(selectors, site...), fallbackSelectors...)

	var body *goquery.Selection
	for _, selector := range selectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			body = selected
			break
		}
	}
	if body == nil {
		return ""
	}

	body.Find(noiseSelector).Remove()

	var paragraphs []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := cleanContent(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	return strings.Join(paragraphs, "\n")
}

func cleanContent(content string) string {
	// Remove extra whitespace
	return strings.TrimSpace(strings.Join(strings.Fields(content), " "))
}
