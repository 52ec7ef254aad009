package processor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xhad/dossier/internal/models"
)

var (
	evidenceRe = regexp.MustCompile(`\[evidence:\s*([^\]]*)\]([ \t]*\[support:\s*[^\]]*\])?`)
	sourceRe   = regexp.MustCompile(`^\s*([^\s(;,]+)\s*(?:\(\s*w\s*=\s*([^)]*)\))?`)
)

// ParseEvidence reads `domain1(w=0.95); domain2(w=1.00)`. Weights from known
// override the ones written in the text.
func ParseEvidence(inner string, known map[string]models.Weight) []models.SourceRef {
	var refs []models.SourceRef
	for _, part := range strings.FieldsFunc(inner, func(r rune) bool { return r == ';' || r == ',' }) {
		m := sourceRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		domain := strings.ToLower(m[1])
		w, ok := known[domain]
		if !ok {
			w = parseWeight(m[2])
		}
		refs = append(refs, models.SourceRef{Domain: domain, Weight: w})
	}
	return refs
}

func parseWeight(s string) models.Weight {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || v > 1 {
		return models.UnknownWeight()
	}
	return models.KnownWeight(v)
}

// RecomputeSupport rewrites the [support: x] tag that follows every
// [evidence: ...] block, appending it when missing.
func RecomputeSupport(text string, known map[string]models.Weight) string {
	return evidenceRe.ReplaceAllStringFunc(text, func(match string) string {
		m := evidenceRe.FindStringSubmatch(match)
		score := models.SupportScore(ParseEvidence(m[1], known))
		return "[evidence: " + strings.TrimSpace(m[1]) + "] [support: " + strconv.FormatFloat(score, 'f', 2, 64) + "]"
	})
}

// Claims extracts one claim per line carrying an evidence block.
func Claims(text string, known map[string]models.Weight) []models.Claim {
	var claims []models.Claim
	for _, line := range strings.Split(text, "\n") {
		loc := evidenceRe.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		refs := ParseEvidence(line[loc[2]:loc[3]], known)
		claim := strings.TrimSpace(strings.TrimLeft(line[:loc[0]], " \t-*•0123456789."))
		claims = append(claims, models.Claim{
			Text:     claim,
			Evidence: refs,
			Support:  models.SupportScore(refs),
		})
	}
	return claims
}
