package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/breederhq/identity/internal/identity/models"
	id "github.com/breederhq/identity/pkg/domain"
	"github.com/breederhq/identity/pkg/requestcontext"
)

// Memory is an in-memory identity graph store. It mirrors every operation of
// the PostgreSQL store so services can be unit-tested without a database, and
// doubles as the dev-mode backend.
type Memory struct {
	mu          sync.RWMutex
	nextID      id.IdentityID
	identities  map[id.IdentityID]*models.GlobalAnimalIdentity
	identifiers []*models.GlobalAnimalIdentifier
	links       map[id.AnimalID]*models.AnimalIdentityLink
	animals     map[id.AnimalID]*models.LocalAnimalRecord

	guardMu sync.Mutex
	guards  map[string]*sync.Mutex
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		identities: make(map[id.IdentityID]*models.GlobalAnimalIdentity),
		links:      make(map[id.AnimalID]*models.AnimalIdentityLink),
		animals:    make(map[id.AnimalID]*models.LocalAnimalRecord),
		guards:     make(map[string]*sync.Mutex),
	}
}

// CreateIdentity persists a new identity and assigns its ID.
func (m *Memory) CreateIdentity(ctx context.Context, identity *models.GlobalAnimalIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	identity.ID = m.nextID
	identity.CreatedAt = requestcontext.Now(ctx)

	clone := *identity
	m.identities[identity.ID] = &clone
	return nil
}

// FindIdentity returns the identity with the given ID or ErrNotFound.
func (m *Memory) FindIdentity(ctx context.Context, identityID id.IdentityID) (*models.GlobalAnimalIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

// SearchIdentities scans for identities matching the fuzzy-fallback query.
// Results are ordered by ID for determinism and capped at query.Limit.
func (m *Memory) SearchIdentities(ctx context.Context, query IdentitySearch) ([]*models.GlobalAnimalIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.GlobalAnimalIdentity
	for _, identity := range m.identities {
		if !strings.EqualFold(identity.Species, query.Species) {
			continue
		}
		if identity.Sex.Conflicts(query.Sex) {
			continue
		}
		if identity.BirthDate == nil {
			continue
		}
		if identity.BirthDate.Before(query.BornAfter) || identity.BirthDate.After(query.BornBefore) {
			continue
		}
		clone := *identity
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// CreateIdentifier persists an identifier row with skip-if-duplicate
// semantics on (identity, type, value).
func (m *Memory) CreateIdentifier(ctx context.Context, identifier *models.GlobalAnimalIdentifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.identifiers {
		if existing.IdentityID == identifier.IdentityID &&
			existing.Type == identifier.Type &&
			existing.Value == identifier.Value {
			return nil
		}
	}

	clone := *identifier
	clone.CreatedAt = requestcontext.Now(ctx)
	m.identifiers = append(m.identifiers, &clone)
	return nil
}

// FindIdentifiers returns every identifier row with the exact (type, value).
func (m *Memory) FindIdentifiers(ctx context.Context, identifierType models.IdentifierType, value string) ([]*models.GlobalAnimalIdentifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.GlobalAnimalIdentifier
	for _, identifier := range m.identifiers {
		if identifier.Type == identifierType && identifier.Value == value {
			clone := *identifier
			out = append(out, &clone)
		}
	}
	return out, nil
}

// UpsertLink creates or replaces the link for a local animal.
func (m *Memory) UpsertLink(ctx context.Context, link *models.AnimalIdentityLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := requestcontext.Now(ctx)
	clone := *link
	clone.MatchedOn = append([]string(nil), link.MatchedOn...)
	clone.UpdatedAt = now
	if existing, ok := m.links[link.AnimalID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else {
		clone.CreatedAt = now
	}
	m.links[link.AnimalID] = &clone

	link.CreatedAt = clone.CreatedAt
	link.UpdatedAt = clone.UpdatedAt
	return nil
}

// FindLinkByAnimal returns the link for a local animal or ErrNotFound.
func (m *Memory) FindLinkByAnimal(ctx context.Context, animalID id.AnimalID) (*models.AnimalIdentityLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[animalID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *link
	clone.MatchedOn = append([]string(nil), link.MatchedOn...)
	return &clone, nil
}

// ListLinkedAnimals returns every local animal record linked to an identity,
// across all tenants, ordered by animal ID.
func (m *Memory) ListLinkedAnimals(ctx context.Context, identityID id.IdentityID) ([]*models.LocalAnimalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.LocalAnimalRecord
	for animalID, link := range m.links {
		if link.IdentityID != identityID {
			continue
		}
		if animal, ok := m.animals[animalID]; ok {
			clone := *animal
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveAnimal seeds a tenant-local animal record into the read model. The
// tenant subsystem owns this data in production; tests and dev mode seed it
// here.
func (m *Memory) SaveAnimal(ctx context.Context, animal *models.LocalAnimalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *animal
	m.animals[animal.ID] = &clone
	return nil
}

// WithCreateGuard serializes fn against other callers holding the same key.
// Backed by a keyed mutex; the PostgreSQL store uses an advisory lock.
func (m *Memory) WithCreateGuard(ctx context.Context, key string, fn func(context.Context) error) error {
	m.guardMu.Lock()
	guard, ok := m.guards[key]
	if !ok {
		guard = &sync.Mutex{}
		m.guards[key] = guard
	}
	m.guardMu.Unlock()

	guard.Lock()
	defer guard.Unlock()
	return fn(ctx)
}
