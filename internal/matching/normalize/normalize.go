// Package normalize canonicalizes raw identifier strings so that the same
// physical tag or registration number always produces the same lookup key,
// however a tenant's staff typed it in.
package normalize

import (
	"regexp"
	"strings"

	"github.com/breederhq/identity/internal/identity/models"
)

// leadingNoise matches registration-style prefixes staff habitually type
// before the actual number: "REG", "NO", "NUM" (only when followed by a
// separator, so "NOVA123" survives), and bare "#" or ":".
var leadingNoise = regexp.MustCompile(`^(?:(?:REG|NO|NUM)(?:[\s#:.]+)|[#:]\s*)`)

var compactForm = strings.NewReplacer(" ", "", "-", "")

// Identifier canonicalizes a raw identifier value for its type. Empty or
// whitespace-only input normalizes to "" and must be treated by callers as
// absent. The function is idempotent: noise prefixes are stripped to a fixed
// point, so re-normalizing a normalized value returns it unchanged.
func Identifier(identifierType models.IdentifierType, raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))

	for {
		stripped := strings.TrimSpace(leadingNoise.ReplaceAllString(value, ""))
		if stripped == value {
			break
		}
		value = stripped
	}

	if identifierType.IsCompactForm() {
		value = compactForm.Replace(value)
	}

	return value
}
