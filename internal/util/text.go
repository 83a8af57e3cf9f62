package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9X\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reUnitWords  = regexp.MustCompile(`(?i)\b(pcs|pc|pieces|each|ea|units?|boxe?s?|pack|pk|kg|lbs?|ft|m)\b\.?`)
)

// Normalize case-folds free text and strips punctuation and unit words so
// that "Widget A, 10 pcs." and "WIDGET A 10" compare equal.
func Normalize(input string) string {
	s := strings.ToUpper(input)
	s = strings.NewReplacer("×", "X", "*", "X").Replace(s)
	s = reUnitWords.ReplaceAllString(s, " ")
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeSKU upper-cases a product code and keeps only the characters
// that occur in real SKUs.
func NormalizeSKU(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, " ", "")
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func Tokenize(input string) []string {
	norm := Normalize(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// ContainsFold reports whether either string contains the other after
// case-folding. Used by the description matching stage.
func ContainsFold(a, b string) bool {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
