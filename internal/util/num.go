package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reDotGroups   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reCommaGroups = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	reCurrency    = regexp.MustCompile(`[$€£\s]`)
)

// ParseNumber parses a numeric token as it appears in commercial documents:
// currency symbols, thousand separators ("1,000" / "1.000" / "1 000") and
// decimal commas are all tolerated. Returns nil when the token does not
// parse.
func ParseNumber(token string) *float64 {
	compact := reCurrency.ReplaceAllString(strings.ReplaceAll(token, "\u00a0", " "), "")
	if compact == "" {
		return nil
	}

	switch {
	case reDotGroups.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case reCommaGroups.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ",") && !strings.Contains(compact, "."):
		compact = strings.ReplaceAll(compact, ",", ".")
	default:
		compact = strings.ReplaceAll(compact, ",", "")
	}

	parsed, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
