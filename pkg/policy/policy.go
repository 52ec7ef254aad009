package policy

import (
	"net/url"
	"sort"
	"strings"

	"github.com/xhad/dossier/internal/models"
)

// DefaultWeights is the credibility table used when config does not override it.
var DefaultWeights = map[string]float64{
	"interfax.ru":      1.00,
	"tass.ru":          1.00,
	"rbc.ru":           0.95,
	"companies.rbc.ru": 0.95,
	"marketing.rbc.ru": 0.95,
	"www.rbc.ru":       0.95,
	"kommersant.ru":    0.95,
	"vedomosti.ru":     0.90,
	"ria.ru":           0.90,
	"rg.ru":            0.80,
	"forbes.ru":        0.80,
}

// HighTrust is the weight from which a source counts as high-trust.
const HighTrust = 0.90

// Policy maps a news domain to its weight. Lookups never fail.
type Policy struct {
	weights map[string]float64
}

// New copies weights into a policy; a nil map selects DefaultWeights.
func New(weights map[string]float64) *Policy {
	if weights == nil {
		weights = DefaultWeights
	}
	p := &Policy{weights: make(map[string]float64, len(weights))}
	for d, w := range weights {
		p.weights[normalize(d)] = w
	}
	return p
}

// Weight resolves the domain, or the unknown sentinel when unmapped.
func (p *Policy) Weight(domain string) models.Weight {
	if w, ok := p.weights[normalize(domain)]; ok {
		return models.KnownWeight(w)
	}
	return models.UnknownWeight()
}

// WeightForURL resolves the host of rawURL.
func (p *Policy) WeightForURL(rawURL string) models.Weight {
	return p.Weight(Domain(rawURL))
}

// Domains returns every mapped domain in sorted order, for building site:
// filters.
func (p *Policy) Domains() []string {
	out := make([]string, 0, len(p.weights))
	for d := range p.weights {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Domain extracts the lowercase host of a URL; non-URLs are returned normalised.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return normalize(rawURL)
	}
	return normalize(u.Hostname())
}

func normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
