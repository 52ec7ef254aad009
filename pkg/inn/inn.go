package inn

import (
	"fmt"
	"strings"
)

// Error codes returned in Error.Code.
const (
	ErrCodeLength   = "length"
	ErrCodeNonDigit = "non_digit"
	ErrCodeChecksum = "checksum"
	ErrCodePersonal = "personal"
)

var (
	legalWeights     = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	personalWeights1 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	personalWeights2 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// Error describes why an identifier was rejected.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid INN (%s): %s", e.Code, e.Message)
}

// Normalize strips spaces and dashes.
func Normalize(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(s))
}

// Validate accepts only 10-digit legal-entity INNs with a correct check
// digit. Valid 12-digit personal INNs are reported with ErrCodePersonal.
func Validate(s string) error {
	s = Normalize(s)
	if len(s) != 10 && len(s) != 12 {
		return &Error{Code: ErrCodeLength, Message: fmt.Sprintf("expected 10 digits, got %d characters", len(s))}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return &Error{Code: ErrCodeNonDigit, Message: fmt.Sprintf("unexpected character %q", r)}
		}
	}

	if len(s) == 12 {
		if !checkDigit(s, personalWeights1, 10) || !checkDigit(s, personalWeights2, 11) {
			return &Error{Code: ErrCodeChecksum, Message: "check digits do not match"}
		}
		return &Error{Code: ErrCodePersonal, Message: "personal INN given, a company INN is required"}
	}

	if !checkDigit(s, legalWeights, 9) {
		return &Error{Code: ErrCodeChecksum, Message: "check digit does not match"}
	}
	return nil
}

func checkDigit(s string, weights []int, pos int) bool {
	sum := 0
	for i, w := range weights {
		sum += int(s[i]-'0') * w
	}
	d := sum % 11
	if d == 10 {
		d = 0
	}
	return d == int(s[pos]-'0')
}
