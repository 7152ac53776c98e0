// Package models defines the matching module's request and result shapes.
package models

import (
	"time"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	id "github.com/breederhq/identity/pkg/domain"
)

// AnimalForMatching is the tenant subsystem's view of an animal handed to
// the decision engine when the animal is written or updated.
type AnimalForMatching struct {
	ID        id.AnimalID     `json:"id"`
	TenantID  id.TenantID     `json:"tenant_id"`
	Name      string          `json:"name"`
	Species   string          `json:"species"`
	Sex       idmodels.Sex    `json:"sex"`
	BirthDate *time.Time      `json:"birth_date,omitempty"`
	Breed     string          `json:"breed,omitempty"`
	DamID     *id.AnimalID    `json:"dam_id,omitempty"`
	SireID    *id.AnimalID    `json:"sire_id,omitempty"`
	Microchip string          `json:"microchip,omitempty"`
}

// Registration is one registry number carried by the query animal.
type Registration struct {
	Type  idmodels.IdentifierType `json:"type"`
	Value string                  `json:"value"`
}

// AnimalIdentifiers carries the already-extracted identifier strings for a
// query animal. Registry integrations are out of scope; callers deliver the
// strings.
type AnimalIdentifiers struct {
	Microchip     string         `json:"microchip,omitempty"`
	Registrations []Registration `json:"registrations,omitempty"`
	DNAProfileID  string         `json:"dna_profile_id,omitempty"`
	Tattoo        string         `json:"tattoo,omitempty"`
	EarTag        string         `json:"ear_tag,omitempty"`
}

// MatchCandidate is one ranked candidate identity for manual review or
// auto-linking.
type MatchCandidate struct {
	IdentityID         id.IdentityID             `json:"global_identity_id"`
	Confidence         float64                   `json:"confidence"`
	MatchedIdentifiers []idmodels.IdentifierType `json:"matched_identifiers"`
	MatchedFields      []string                  `json:"matched_fields"`
}

// MatchResult is the outcome of one decision-engine call. Outcomes are data,
// not errors: an animal with no plausible candidates yields a fresh identity,
// and ambiguous evidence yields candidates without a link.
type MatchResult struct {
	Matched    bool             `json:"matched"`
	IdentityID id.IdentityID    `json:"global_identity_id,omitempty"`
	Confidence float64          `json:"confidence"`
	AutoLinked bool             `json:"auto_linked"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}
