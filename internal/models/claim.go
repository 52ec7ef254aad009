package models

import (
	"math"
	"strings"
)

// SourceRef is one supporting domain cited by a claim.
type SourceRef struct {
	Domain string
	Weight Weight
}

// Claim is a single bullet of an intermediate or final summary together
// with the sources backing it.
type Claim struct {
	Text     string
	Evidence []SourceRef
	Support  float64
}

// SupportScore returns min(1.00, sum of weights of unique domains), rounded
// to two decimals. Unknown weights contribute nothing.
func SupportScore(refs []SourceRef) float64 {
	seen := make(map[string]bool, len(refs))
	var sum float64
	for _, ref := range refs {
		key := strings.ToLower(strings.TrimSpace(ref.Domain))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if ref.Weight.Known {
			sum += ref.Weight.Value
		}
	}
	if sum > 1 {
		sum = 1
	}
	return math.Round(sum*100) / 100
}
