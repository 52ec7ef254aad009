package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/pkg/policy"
)

const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// resultsPerPage is the offset step of the HTML endpoint.
const resultsPerPage = 30

type DuckDuckGoConfig struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
	Logger    *zap.Logger
}

// DuckDuckGo scrapes the keyless HTML search page. It has no dates, so every
// hit is dated unknown.
type DuckDuckGo struct {
	config DuckDuckGoConfig
	client *http.Client
	logger *zap.Logger
}

var _ Provider = (*DuckDuckGo)(nil)

func NewDuckDuckGo(config DuckDuckGoConfig) *DuckDuckGo {
	if config.Endpoint == "" {
		config.Endpoint = DefaultDuckDuckGoEndpoint
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; dossier/1.0)"
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &DuckDuckGo{config: config, client: client, logger: logging.OrNop(config.Logger)}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, domains []string, page int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", SiteQuery(query, domains, " OR "))
	if page > 0 {
		params.Set("s", strconv.Itoa(page*resultsPerPage))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: build duckduckgo request")
	}
	req.Header.Set("User-Agent", d.config.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "search: duckduckgo request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("search: duckduckgo status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "search: parse duckduckgo page")
	}

	var hits []Hit
	doc.Find(".result").Each(func(_ int, result *goquery.Selection) {
		link := result.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		target := unwrapRedirect(href)
		domain := policy.Domain(target)
		if target == "" || !allowed(domain, domains) {
			return
		}
		hits = append(hits, Hit{
			URL:     target,
			Domain:  domain,
			Title:   strings.TrimSpace(link.Text()),
			Passage: strings.TrimSpace(result.Find(".result__snippet").Text()),
		})
	})

	d.logger.Debug("search: duckduckgo page parsed", zap.Int("page", page), zap.Int("hits", len(hits)))
	return hits, nil
}

// unwrapRedirect resolves `//duckduckgo.com/l/?uddg=<target>` links.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" || strings.HasSuffix(u.Host, "duckduckgo.com") {
		return ""
	}
	return u.String()
}

func allowed(domain string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
