// Package models defines the pedigree module's output shapes.
package models

import (
	"time"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	id "github.com/breederhq/identity/pkg/domain"
)

// PedigreeNode is one animal in a rendered ancestry tree, filtered for the
// viewing tenant. Name and BirthDate are redacted according to the owning
// tenant's privacy settings: a suppressed name is empty with IsHidden set,
// and a redacted birth date is truncated to January 1 of the birth year.
type PedigreeNode struct {
	IdentityID id.IdentityID `json:"global_identity_id"`
	Species    string        `json:"species"`
	Sex        idmodels.Sex  `json:"sex,omitempty"`
	Name       string        `json:"name,omitempty"`
	BirthDate  *time.Time    `json:"birth_date,omitempty"`
	IsOwn      bool          `json:"is_own"`
	IsHidden   bool          `json:"is_hidden"`
	Dam        *PedigreeNode `json:"dam,omitempty"`
	Sire       *PedigreeNode `json:"sire,omitempty"`
}
