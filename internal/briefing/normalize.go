package briefing

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	reUspec      = regexp.MustCompile(`uspec_`)
	reWorldBank  = regexp.MustCompile(`wb_\d+_`)
	reTax        = regexp.MustCompile(`tax_fncact_`)
	reCrisisLex  = regexp.MustCompile(`crisislex_[^, ]+`)
	reLosAngeles = regexp.MustCompile(`(?i)\bLos Angeles\b,?\s*`)
)

// NormalizeThemes turns comma-joined taxonomy labels into readable phrases.
// It is best effort and may leave residual tokens.
func NormalizeThemes(joined string) string {
	s := strings.ToLower(joined)
	s = reUspec.ReplaceAllString(s, "")
	s = reWorldBank.ReplaceAllString(s, "")
	s = reTax.ReplaceAllString(s, "tax ")
	s = reCrisisLex.ReplaceAllString(s, "crisis response")
	s = strings.ReplaceAll(s, "_", " ")
	return initCap(strings.TrimSpace(s))
}

// NormalizePeople strips the recurring "Los Angeles" artifact from
// comma-joined person names and title-cases them.
func NormalizePeople(joined string) string {
	s := reLosAngeles.ReplaceAllString(joined, "")
	return initCap(strings.TrimSpace(s))
}

// initCap upper-cases the first letter of every word and lower-cases the rest.
func initCap(s string) string {
	return cases.Title(language.Und).String(s)
}
