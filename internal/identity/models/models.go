// Package models defines the persisted entities of the global identity graph.
package models

import (
	"time"

	id "github.com/breederhq/identity/pkg/domain"
)

// Sex is the recorded sex of an animal. Unknown is a legitimate value; many
// registries omit it, and the matcher only disqualifies on a known conflict.
type Sex string

const (
	SexUnknown Sex = ""
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
)

// Conflicts reports whether two sexes are both known and differ. Unknown
// never conflicts with anything.
func (s Sex) Conflicts(other Sex) bool {
	return s != SexUnknown && other != SexUnknown && s != other
}

// IdentifierType classifies an external identifier used as matching evidence.
type IdentifierType string

const (
	IdentifierTypeMicrochip  IdentifierType = "microchip"
	IdentifierTypeDNAProfile IdentifierType = "dna_profile"
	IdentifierTypeTattoo     IdentifierType = "tattoo"
	IdentifierTypeEarTag     IdentifierType = "ear_tag"
	IdentifierTypeScrapieTag IdentifierType = "scrapie_tag"

	// Kennel and breed registries.
	IdentifierTypeAKC IdentifierType = "akc"
	IdentifierTypeUKC IdentifierType = "ukc"
	IdentifierTypeCKC IdentifierType = "ckc"
	IdentifierTypeKC  IdentifierType = "kc"
	IdentifierTypeFCI IdentifierType = "fci"

	// DNA test providers.
	IdentifierTypeEmbark      IdentifierType = "embark"
	IdentifierTypeWisdomPanel IdentifierType = "wisdom_panel"

	IdentifierTypeOther IdentifierType = "other"
)

// kennelRegistries are registry numbers formatted with optional spaces and
// dashes; their normalized form has both stripped, like microchips.
var kennelRegistries = map[IdentifierType]bool{
	IdentifierTypeAKC: true,
	IdentifierTypeUKC: true,
	IdentifierTypeCKC: true,
	IdentifierTypeKC:  true,
	IdentifierTypeFCI: true,
}

// IsCompactForm reports whether normalization strips internal spaces and
// dashes for this type.
func (t IdentifierType) IsCompactForm() bool {
	return t == IdentifierTypeMicrochip || kennelRegistries[t]
}

// GlobalAnimalIdentity is one deduplicated physical animal across tenants.
//
// Invariants:
//   - Species is set at creation and never rewritten
//   - Sex may be unknown but never changes once known
//   - DamID/SireID reference other identities; the ancestry forms a DAG
type GlobalAnimalIdentity struct {
	ID        id.IdentityID  `json:"id"`
	Species   string         `json:"species"`
	Sex       Sex            `json:"sex"`
	BirthDate *time.Time     `json:"birth_date,omitempty"`
	Name      string         `json:"name,omitempty"`
	DamID     *id.IdentityID `json:"dam_id,omitempty"`
	SireID    *id.IdentityID `json:"sire_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GlobalAnimalIdentifier is one piece of hard evidence tying an external
// identifier to an identity. Several identifiers of the same or different
// types may reference one identity. Uniqueness of (identity, type, value) is
// enforced with skip-if-duplicate creation semantics.
type GlobalAnimalIdentifier struct {
	IdentityID     id.IdentityID  `json:"identity_id"`
	Type           IdentifierType `json:"type"`
	Value          string         `json:"value"` // normalized
	RawValue       string         `json:"raw_value"`
	SourceTenantID id.TenantID    `json:"source_tenant_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AnimalIdentityLink associates one tenant-local animal with an identity.
// Exactly one link exists per animal (upsert keyed on AnimalID).
//
// Invariants:
//   - Confidence in [0, 0.99], or exactly 1.0 for newly created identities
//   - AutoMatched links have ConfirmedAt unset until a reviewer confirms
type AnimalIdentityLink struct {
	AnimalID        id.AnimalID   `json:"animal_id"`
	IdentityID      id.IdentityID `json:"identity_id"`
	Confidence      float64       `json:"confidence"`
	MatchedOn       []string      `json:"matched_on"`
	AutoMatched     bool          `json:"auto_matched"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	ConfirmedByUser string        `json:"confirmed_by_user,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PrivacySettings controls what non-owning tenants may see about a local
// animal when it appears in someone else's pedigree.
type PrivacySettings struct {
	ShowName    bool `json:"show_name"`
	ShowFullDOB bool `json:"show_full_dob"`
}

// LocalAnimalRecord is the read-model view of a tenant-owned animal. The
// tenant subsystem owns the write path; this core only reads it for pedigree
// rendering and best-record selection.
type LocalAnimalRecord struct {
	ID        id.AnimalID     `json:"id"`
	TenantID  id.TenantID     `json:"tenant_id"`
	Name      string          `json:"name"`
	Species   string          `json:"species"`
	Sex       Sex             `json:"sex"`
	BirthDate *time.Time      `json:"birth_date,omitempty"`
	Breed     string          `json:"breed,omitempty"`
	DamID     *id.AnimalID    `json:"dam_id,omitempty"`
	SireID    *id.AnimalID    `json:"sire_id,omitempty"`
	Microchip string          `json:"microchip,omitempty"`
	Privacy   PrivacySettings `json:"privacy"`
}

// Completeness counts the populated optional fields of a local record. The
// pedigree builder uses it as the deterministic tie-break when the viewing
// tenant has no record of its own for a node.
func (r *LocalAnimalRecord) Completeness() int {
	n := 0
	if r.Name != "" {
		n++
	}
	if r.BirthDate != nil {
		n++
	}
	if r.Breed != "" {
		n++
	}
	if r.Microchip != "" {
		n++
	}
	return n
}
