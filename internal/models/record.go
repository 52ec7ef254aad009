package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// RecordSchemaVersion is the current version of the EvidenceRecord layout.
// Records written by search providers without a version are read as v1.
const RecordSchemaVersion = 1

// UnknownDate marks records whose publication date could not be parsed.
const UnknownDate = "unknown"

const unknownWeightLabel = "unknown"

// Weight is a domain credibility score in [0,1], or unknown when the domain
// is not covered by the weight policy.
type Weight struct {
	Value float64
	Known bool
}

// KnownWeight returns a weight backed by a policy entry.
func KnownWeight(v float64) Weight {
	return Weight{Value: v, Known: true}
}

// UnknownWeight returns the unweighted sentinel.
func UnknownWeight() Weight {
	return Weight{}
}

// String renders the weight with two decimals, or "unknown".
func (w Weight) String() string {
	if !w.Known {
		return unknownWeightLabel
	}
	return strconv.FormatFloat(w.Value, 'f', 2, 64)
}

// AtLeast reports whether the weight is known and not below threshold.
func (w Weight) AtLeast(threshold float64) bool {
	return w.Known && w.Value >= threshold-1e-9
}

func (w Weight) MarshalJSON() ([]byte, error) {
	if !w.Known {
		return json.Marshal(unknownWeightLabel)
	}
	return json.Marshal(w.Value)
}

func (w *Weight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = UnknownWeight()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		// legacy provider output used a dash for unmapped domains
		if s == "" || s == unknownWeightLabel || s == "—" || s == "-" {
			*w = UnknownWeight()
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", s)
		}
		*w = KnownWeight(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w = KnownWeight(v)
	return nil
}

// EvidenceRecord is one discovered article flowing through the distillation
// stages. Identity is URL.
type EvidenceRecord struct {
	SchemaVersion int     `json:"schema_version"`
	URL           string  `json:"url"`
	Source        string  `json:"source"`
	Weight        Weight  `json:"weight"`
	Date          string  `json:"date"`
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	FullText      *string `json:"full_text"`
	CleanedText   *string `json:"cleaned_text,omitempty"`
}

// Content joins the non-blank text fields the way the cleaning prompt expects them.
func (r EvidenceRecord) Content() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Title, r.Summary, r.FullTextValue()} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// FullTextValue returns the extracted article body or "".
func (r EvidenceRecord) FullTextValue() string {
	if r.FullText == nil {
		return ""
	}
	return *r.FullText
}

// Cleaned returns the distilled text or "".
func (r EvidenceRecord) Cleaned() string {
	if r.CleanedText == nil {
		return ""
	}
	return *r.CleanedText
}

// WithCleanedText returns a copy carrying the distilled text.
func (r EvidenceRecord) WithCleanedText(text string) EvidenceRecord {
	r.CleanedText = &text
	return r
}

// DateOrUnknown normalises an empty date to UnknownDate.
func (r EvidenceRecord) DateOrUnknown() string {
	if strings.TrimSpace(r.Date) == "" || r.Date == "N/A" {
		return UnknownDate
	}
	return r.Date
}

// Validate checks the record at a stage boundary.
func (r *EvidenceRecord) Validate() error {
	if r.SchemaVersion == 0 {
		r.SchemaVersion = RecordSchemaVersion
	}
	if r.SchemaVersion > RecordSchemaVersion {
		return eris.Errorf("record %s: unsupported schema version %d", r.URL, r.SchemaVersion)
	}
	if strings.TrimSpace(r.URL) == "" {
		return eris.New("record has empty url")
	}
	if r.Weight.Known && (r.Weight.Value < 0 || r.Weight.Value > 1 || math.IsNaN(r.Weight.Value)) {
		return eris.Errorf("record %s: weight %v out of range", r.URL, r.Weight.Value)
	}
	return nil
}
