// Package fuzzy compares free-text animal names. Registered names are full
// of show titles ("GCH CH Windsor's Duke Of Earl CD") while everyday records
// carry call names ("Duke"), so comparison runs on a normalized form with
// titles removed and tolerates small typos via edit distance.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// titleTokens are conformation, obedience, and agility title abbreviations
// removed as whole words during normalization.
var titleTokens = map[string]bool{
	"ch":       true,
	"gch":      true,
	"gchb":     true,
	"gchs":     true,
	"gchg":     true,
	"gr":       true,
	"grand":    true,
	"champion": true,
	"cd":       true,
	"cdx":      true,
	"ud":       true,
	"udx":      true,
	"otch":     true,
	"mach":     true,
	"pach":     true,
	"bn":       true,
	"rn":       true,
	"cgc":      true,
}

var quoteStripper = strings.NewReplacer(
	"'", "",
	"‘", "", // left single quote
	"’", "", // right single quote
	"\"", "",
	"“", "", // left double quote
	"”", "", // right double quote
)

// maxEditDistanceLen bounds the edit-distance comparison: beyond this the
// ratio test produces too many false positives on long registered names.
const maxEditDistanceLen = 20

// editDistanceRatio is the maximum edit distance divided by the longer
// normalized length for two names to count as a match.
const editDistanceRatio = 0.2

// NormalizeName lowercases a name, strips quote characters, removes title
// tokens as whole words, and collapses runs of whitespace.
func NormalizeName(name string) string {
	name = quoteStripper.Replace(strings.ToLower(name))

	fields := strings.Fields(name)
	kept := fields[:0]
	for _, field := range fields {
		if !titleTokens[field] {
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, " ")
}

// Match reports whether two names refer plausibly to the same animal.
// Normalized forms that are equal or where one contains the other
// (registered name vs. call name) match outright. Short names also match
// when the edit distance relative to the longer length is under the ratio
// threshold.
func Match(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	// ComputeDistance counts runes, so length checks must too.
	lenA, lenB := utf8.RuneCountInString(na), utf8.RuneCountInString(nb)
	if lenA >= maxEditDistanceLen || lenB >= maxEditDistanceLen {
		return false
	}

	longer := lenA
	if lenB > longer {
		longer = lenB
	}
	distance := levenshtein.ComputeDistance(na, nb)
	return float64(distance)/float64(longer) < editDistanceRatio
}
