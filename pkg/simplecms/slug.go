package simplecms

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)
)

// Slugify transliterates s to lower-case ASCII words joined by dashes.
// "Crème Brûlée!" becomes "creme-brulee".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = nonSlugChars.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-")
}

// IsSlug reports whether s is already in slug form.
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// IsIdentifier reports whether s parses as an entry identifier. Such values
// are never used as permalinks.
func IsIdentifier(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// permalinkCandidates yields base, base-1, base-2, ... skipping candidates
// that would parse as identifiers.
func permalinkCandidates(base string) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		if !IsIdentifier(base) {
			if !yield(base) {
				return
			}
		}
		for i := 1; ; i++ {
			if !yield(base + "-" + strconv.Itoa(i)) {
				return
			}
		}
	}
}
