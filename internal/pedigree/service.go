// Package pedigree builds privacy-filtered ancestry trees over the global
// identity graph. Trees span tenant boundaries: an ancestor owned by another
// tenant is rendered with its owner's privacy settings applied.
package pedigree

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	"github.com/breederhq/identity/internal/pedigree/metrics"
	"github.com/breederhq/identity/internal/pedigree/models"
	id "github.com/breederhq/identity/pkg/domain"
	domainerrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/sentinel"
)

const (
	// DefaultGenerations is used when the caller does not say how deep.
	DefaultGenerations = 3

	// MaxGenerations bounds traversal cost; each generation doubles the
	// worst-case store round trips.
	MaxGenerations = 8
)

// Store is the identity-graph read access the builder needs.
type Store interface {
	FindIdentity(ctx context.Context, identityID id.IdentityID) (*idmodels.GlobalAnimalIdentity, error)
	FindLinkByAnimal(ctx context.Context, animalID id.AnimalID) (*idmodels.AnimalIdentityLink, error)
	ListLinkedAnimals(ctx context.Context, identityID id.IdentityID) ([]*idmodels.LocalAnimalRecord, error)
}

// Cache holds rendered trees keyed by (viewer, animal, generations).
// Implementations return found=false on miss; errors are for transport
// failures only.
type Cache interface {
	Get(ctx context.Context, key string) (*models.PedigreeNode, bool, error)
	Set(ctx context.Context, key string, node *models.PedigreeNode) error
}

// Service builds cross-tenant pedigree trees.
type Service struct {
	store   Store
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache attaches a rendered-tree cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// New constructs the pedigree builder.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "store is required")
	}

	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("pedigree"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetCrossTenantPedigree renders the ancestry tree for a tenant-local
// animal. A nil tree with nil error means the animal has no identity link;
// callers fall back to their tenant-local pedigree.
func (s *Service) GetCrossTenantPedigree(ctx context.Context, animalID id.AnimalID, viewer id.TenantID, generations int) (*models.PedigreeNode, error) {
	if animalID.IsZero() {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "animal id is required")
	}
	if generations <= 0 {
		generations = DefaultGenerations
	}
	if generations > MaxGenerations {
		generations = MaxGenerations
	}

	ctx, span := s.tracer.Start(ctx, "pedigree.GetCrossTenantPedigree",
		trace.WithAttributes(
			attribute.Int64("animal.id", animalID.Int64()),
			attribute.Int("generations", generations)))
	defer span.End()

	key := cacheKey(viewer, animalID, generations)
	if s.cache != nil {
		node, found, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("pedigree cache read failed", "error", err)
		} else if found {
			s.metrics.IncrementCache("hit")
			return node, nil
		}
		s.metrics.IncrementCache("miss")
	}

	link, err := s.store.FindLinkByAnimal(ctx, animalID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "look up identity link")
	}

	start := time.Now()
	visited := make(map[id.IdentityID]bool)
	tree, err := s.buildTree(ctx, link.IdentityID, generations, viewer, visited)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveBuild(time.Since(start))

	if s.cache != nil && tree != nil {
		if err := s.cache.Set(ctx, key, tree); err != nil {
			s.logger.Warn("pedigree cache write failed", "error", err)
		}
	}
	return tree, nil
}

// buildTree recursively renders one identity and its ancestors. The visited
// set tracks only the current dam/sire chain and entries are removed on
// backtrack: shared ancestors reached through different paths are rendered
// again, while a corrupted chain that loops back on itself is cut.
func (s *Service) buildTree(ctx context.Context, identityID id.IdentityID, depth int, viewer id.TenantID, visited map[id.IdentityID]bool) (*models.PedigreeNode, error) {
	if depth <= 0 {
		return nil, nil
	}
	if visited[identityID] {
		s.logger.Warn("ancestry cycle detected, cutting branch",
			"identity_id", identityID.String())
		return nil, nil
	}

	identity, err := s.store.FindIdentity(ctx, identityID)
	if err != nil {
		if isNotFound(err) {
			// Broken ancestry reference; render the rest of the tree.
			return nil, nil
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load identity")
	}

	linked, err := s.store.ListLinkedAnimals(ctx, identityID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list linked animals")
	}

	node := s.renderNode(identity, bestRecord(linked, viewer), viewer)

	visited[identityID] = true
	defer delete(visited, identityID)

	if identity.DamID != nil {
		node.Dam, err = s.buildTree(ctx, *identity.DamID, depth-1, viewer, visited)
		if err != nil {
			return nil, err
		}
	}
	if identity.SireID != nil {
		node.Sire, err = s.buildTree(ctx, *identity.SireID, depth-1, viewer, visited)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// renderNode applies the representing record's privacy settings for the
// viewer. With no local record at all the node falls back to the identity's
// own fields under default-deny privacy.
func (s *Service) renderNode(identity *idmodels.GlobalAnimalIdentity, best *idmodels.LocalAnimalRecord, viewer id.TenantID) *models.PedigreeNode {
	node := &models.PedigreeNode{
		IdentityID: identity.ID,
		Species:    identity.Species,
		Sex:        identity.Sex,
	}

	isOwn := best != nil && best.TenantID == viewer
	showName := isOwn || (best != nil && best.Privacy.ShowName)
	showFullDOB := isOwn || (best != nil && best.Privacy.ShowFullDOB)
	node.IsOwn = isOwn

	name := identity.Name
	if best != nil && best.Name != "" {
		name = best.Name
	}
	if showName {
		node.Name = name
	} else {
		node.IsHidden = name != ""
	}

	birthDate := identity.BirthDate
	if birthDate == nil && best != nil {
		birthDate = best.BirthDate
	}
	if birthDate != nil {
		if showFullDOB {
			d := *birthDate
			node.BirthDate = &d
		} else {
			yearOnly := time.Date(birthDate.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
			node.BirthDate = &yearOnly
		}
	}
	return node
}

// bestRecord picks the local record that represents an identity for the
// viewer: the viewer's own record when one exists, otherwise the most
// complete record with the lowest animal ID as the deterministic tie-break.
func bestRecord(linked []*idmodels.LocalAnimalRecord, viewer id.TenantID) *idmodels.LocalAnimalRecord {
	var best *idmodels.LocalAnimalRecord
	for _, record := range linked {
		if record.TenantID == viewer {
			return record
		}
		if best == nil {
			best = record
			continue
		}
		if record.Completeness() > best.Completeness() ||
			(record.Completeness() == best.Completeness() && record.ID < best.ID) {
			best = record
		}
	}
	return best
}

func cacheKey(viewer id.TenantID, animalID id.AnimalID, generations int) string {
	return "pedigree:" + viewer.String() + ":" + animalID.String() + ":" + strconv.Itoa(generations)
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) ||
		domainerrors.HasCode(err, domainerrors.CodeNotFound)
}
