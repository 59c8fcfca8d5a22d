// Package validation provides user-code validation and normalization for the
// device authorization grant (RFC 8628 section 6.1).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// GroupSize is the number of characters in each half of a user code.
	GroupSize = 4

	// maxRepeats bounds how often a single character may appear in a code.
	maxRepeats = 2
)

// ValidCharset contains the allowed user-code characters. Vowels and
// similar-looking characters are excluded per RFC 8628 section 6.1.
const ValidCharset = "BCDFGHJKLMNPQRSTVWXZ"

var codeRegex = regexp.MustCompile(fmt.Sprintf("^[%s]{%d}-[%s]{%d}$",
	ValidCharset, GroupSize, ValidCharset, GroupSize))

// ValidationError describes why a user code was rejected.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid user code %q: %s", e.Code, e.Message)
}

// ValidateUserCode checks that a user code is well formed.
func ValidateUserCode(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	if !codeRegex.MatchString(code) {
		return &ValidationError{
			Code:    code,
			Message: "code must be in format XXXX-XXXX using only allowed characters",
		}
	}

	counts := make(map[rune]int)
	for _, char := range strings.ReplaceAll(code, "-", "") {
		counts[char]++
		if counts[char] > maxRepeats {
			return &ValidationError{
				Code:    code,
				Message: "too many repeated characters",
			}
		}
	}

	return nil
}

// NormalizeCode converts a user code to canonical lookup form: uppercase with
// separators stripped.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// FormatCode converts a normalized code back to display format.
func FormatCode(code string) string {
	if len(code) != GroupSize*2 {
		return code
	}
	return code[:GroupSize] + "-" + code[GroupSize:]
}
