package handler

import (
	"strings"
	"time"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	"github.com/breederhq/identity/internal/matching/models"
	id "github.com/breederhq/identity/pkg/domain"
	dErrors "github.com/breederhq/identity/pkg/domain-errors"
)

// MatchRequest is the HTTP request body for POST /identity/match.
type MatchRequest struct {
	Animal      AnimalPayload      `json:"animal"`
	Identifiers IdentifiersPayload `json:"identifiers"`
}

// AnimalPayload is the tenant subsystem's view of the animal being matched.
type AnimalPayload struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Species   string     `json:"species"`
	Sex       string     `json:"sex"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Breed     string     `json:"breed,omitempty"`
	DamID     *int64     `json:"dam_id,omitempty"`
	SireID    *int64     `json:"sire_id,omitempty"`
	Microchip string     `json:"microchip,omitempty"`
}

// IdentifiersPayload carries the already-extracted identifier strings.
type IdentifiersPayload struct {
	Microchip     string                `json:"microchip,omitempty"`
	Registrations []RegistrationPayload `json:"registrations,omitempty"`
	DNAProfileID  string                `json:"dna_profile_id,omitempty"`
	Tattoo        string                `json:"tattoo,omitempty"`
	EarTag        string                `json:"ear_tag,omitempty"`
}

// RegistrationPayload is one registry number.
type RegistrationPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Validate checks the request shape. Identifier values are not validated
// here; the normalizer treats unusable values as absent.
func (r *MatchRequest) Validate() error {
	if r.Animal.ID <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "animal.id is required")
	}
	r.Animal.Species = strings.TrimSpace(r.Animal.Species)
	if r.Animal.Species == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "animal.species is required")
	}
	switch idmodels.Sex(r.Animal.Sex) {
	case idmodels.SexUnknown, idmodels.SexMale, idmodels.SexFemale:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "animal.sex must be male, female, or empty")
	}
	return nil
}

// ToAnimal converts the payload to the domain shape for the given tenant.
func (r *MatchRequest) ToAnimal(tenantID id.TenantID) *models.AnimalForMatching {
	animal := &models.AnimalForMatching{
		ID:        id.AnimalID(r.Animal.ID),
		TenantID:  tenantID,
		Name:      r.Animal.Name,
		Species:   r.Animal.Species,
		Sex:       idmodels.Sex(r.Animal.Sex),
		BirthDate: r.Animal.BirthDate,
		Breed:     r.Animal.Breed,
		Microchip: r.Animal.Microchip,
	}
	if r.Animal.DamID != nil {
		damID := id.AnimalID(*r.Animal.DamID)
		animal.DamID = &damID
	}
	if r.Animal.SireID != nil {
		sireID := id.AnimalID(*r.Animal.SireID)
		animal.SireID = &sireID
	}
	return animal
}

// ToIdentifiers converts the identifier payload to the domain shape.
func (r *MatchRequest) ToIdentifiers() models.AnimalIdentifiers {
	identifiers := models.AnimalIdentifiers{
		Microchip:    r.Identifiers.Microchip,
		DNAProfileID: r.Identifiers.DNAProfileID,
		Tattoo:       r.Identifiers.Tattoo,
		EarTag:       r.Identifiers.EarTag,
	}
	for _, reg := range r.Identifiers.Registrations {
		identifiers.Registrations = append(identifiers.Registrations, models.Registration{
			Type:  idmodels.IdentifierType(strings.ToLower(strings.TrimSpace(reg.Type))),
			Value: reg.Value,
		})
	}
	return identifiers
}

// LinkRequest is the HTTP request body for POST /identity/links, used by
// the manual-review workflow to confirm a suggested candidate.
type LinkRequest struct {
	AnimalID    int64    `json:"animal_id"`
	IdentityID  int64    `json:"global_identity_id"`
	Confidence  float64  `json:"confidence"`
	MatchedOn   []string `json:"matched_on,omitempty"`
	ConfirmedBy string   `json:"confirmed_by,omitempty"`
}

// Validate checks the request shape.
func (r *LinkRequest) Validate() error {
	if r.AnimalID <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "animal_id is required")
	}
	if r.IdentityID <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "global_identity_id is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "confidence must be within [0, 1]")
	}
	return nil
}
