// Package score combines identifier evidence and fuzzy-field bonuses into a
// bounded match confidence.
package score

import "github.com/breederhq/identity/internal/identity/models"

// Ceiling is the maximum confidence any computed match can reach. Exactly
// 1.0 is reserved for links to identities created in the same call, where
// the match is self-evident.
const Ceiling = 0.99

// Fuzzy-field bonuses, added linearly on top of accumulated identifier
// evidence and clamped to the ceiling after each addition.
const (
	BonusName       = 0.15
	BonusBirthDate  = 0.20
	BonusBreed      = 0.10
	BonusParentName = 0.25
)

// FallbackDiscount scales fuzzy-only evidence found without any hard
// identifier backing it.
const FallbackDiscount = 0.7

// Weights maps identifier types to base confidence weights. It is an
// explicit value passed into the engine rather than a package global so
// deployments can tune it and tests can pin it.
type Weights map[models.IdentifierType]float64

// DefaultWeights returns the production weight table. DNA evidence is
// near-certain, physical tags degrade with how easily they are misread or
// reused, and unclassified identifiers count for little.
func DefaultWeights() Weights {
	return Weights{
		models.IdentifierTypeDNAProfile:  0.99,
		models.IdentifierTypeMicrochip:   0.95,
		models.IdentifierTypeAKC:         0.95,
		models.IdentifierTypeUKC:         0.95,
		models.IdentifierTypeCKC:         0.95,
		models.IdentifierTypeKC:          0.95,
		models.IdentifierTypeFCI:         0.95,
		models.IdentifierTypeEmbark:      0.90,
		models.IdentifierTypeWisdomPanel: 0.90,
		models.IdentifierTypeScrapieTag:  0.90,
		models.IdentifierTypeTattoo:      0.85,
		models.IdentifierTypeEarTag:      0.80,
		models.IdentifierTypeOther:       0.50,
	}
}

// Weight returns the base weight for a type, falling back to the "other"
// weight for types missing from the table.
func (w Weights) Weight(identifierType models.IdentifierType) float64 {
	if weight, ok := w[identifierType]; ok {
		return weight
	}
	return w[models.IdentifierTypeOther]
}

// Accumulate folds one more independent identifier match into a running
// confidence: each new piece of evidence consumes a share of the residual
// uncertainty, so corroborating identifiers push toward the ceiling without
// ever passing it.
func Accumulate(current, weight float64) float64 {
	combined := current + (1-current)*weight
	if combined > Ceiling {
		return Ceiling
	}
	return combined
}

// AddBonus adds a fuzzy-field bonus linearly, clamped to the ceiling.
func AddBonus(current, bonus float64) float64 {
	combined := current + bonus
	if combined > Ceiling {
		return Ceiling
	}
	return combined
}
