// Package store persists the global identity graph. It ships an in-memory
// implementation for unit tests and development and a PostgreSQL
// implementation for production; both satisfy the consumer-side interfaces
// declared by the matching and pedigree services.
package store

import (
	"time"

	"github.com/breederhq/identity/internal/identity/models"
	"github.com/breederhq/identity/pkg/platform/sentinel"
)

// ErrNotFound is returned by lookups for absent records. Aliased from the
// sentinel package so callers can errors.Is against either.
var ErrNotFound = sentinel.ErrNotFound

// IdentitySearch narrows a fuzzy-fallback identity scan. Species is required;
// Sex excludes only identities whose known sex conflicts. The birth window is
// inclusive on both ends.
type IdentitySearch struct {
	Species    string
	Sex        models.Sex
	BornAfter  time.Time
	BornBefore time.Time
	Limit      int
}
