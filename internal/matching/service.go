// Package matching implements the identity decision engine: candidate
// search over the shared identifier index, confidence scoring, and the
// auto-link / suggest / create decision for every tenant animal write.
package matching

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	identitystore "github.com/breederhq/identity/internal/identity/store"
	"github.com/breederhq/identity/internal/matching/metrics"
	"github.com/breederhq/identity/internal/matching/models"
	"github.com/breederhq/identity/internal/matching/score"
	id "github.com/breederhq/identity/pkg/domain"
	domainerrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/audit"
	pstrings "github.com/breederhq/identity/pkg/platform/strings"
	"github.com/breederhq/identity/pkg/requestcontext"
)

const (
	// autoLinkThreshold is the confidence at or above which the engine
	// links without human review.
	autoLinkThreshold = 0.90

	// suggestionThreshold is the floor below which candidates are not
	// worth surfacing at all.
	suggestionThreshold = 0.60

	// fallbackScanLimit caps the fuzzy-fallback identity scan.
	fallbackScanLimit = 50

	// newIdentityConfidence marks a link created together with a fresh
	// identity. Matched links never reach 1.0.
	newIdentityConfidence = 1.0
)

// Store is the identity-graph persistence the engine needs.
type Store interface {
	CreateIdentity(ctx context.Context, identity *idmodels.GlobalAnimalIdentity) error
	FindIdentity(ctx context.Context, identityID id.IdentityID) (*idmodels.GlobalAnimalIdentity, error)
	SearchIdentities(ctx context.Context, query identitystore.IdentitySearch) ([]*idmodels.GlobalAnimalIdentity, error)
	CreateIdentifier(ctx context.Context, identifier *idmodels.GlobalAnimalIdentifier) error
	FindIdentifiers(ctx context.Context, identifierType idmodels.IdentifierType, value string) ([]*idmodels.GlobalAnimalIdentifier, error)
	UpsertLink(ctx context.Context, link *idmodels.AnimalIdentityLink) error
	FindLinkByAnimal(ctx context.Context, animalID id.AnimalID) (*idmodels.AnimalIdentityLink, error)
	ListLinkedAnimals(ctx context.Context, identityID id.IdentityID) ([]*idmodels.LocalAnimalRecord, error)
	WithCreateGuard(ctx context.Context, key string, fn func(context.Context) error) error
}

// AuditPublisher records identity-graph decisions.
type AuditPublisher interface {
	Publish(ctx context.Context, event audit.Event)
}

// Service is the matching decision engine.
type Service struct {
	store   Store
	weights score.Weights
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
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

// WithAuditPublisher attaches the audit event publisher.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithWeights overrides the identifier weight table.
func WithWeights(w score.Weights) Option {
	return func(s *Service) {
		s.weights = w
	}
}

// New constructs the decision engine.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "store is required")
	}

	s := &Service{
		store:   store,
		weights: score.DefaultWeights(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("matching"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessAnimalForMatching runs the full decision for one tenant animal:
// search candidates, auto-link above the threshold, surface suggestions in
// the review band, or mint a fresh identity when nothing plausible exists.
// Reprocessing an already-linked animal returns the existing link untouched.
func (s *Service) ProcessAnimalForMatching(ctx context.Context, animal *models.AnimalForMatching, identifiers models.AnimalIdentifiers) (*models.MatchResult, error) {
	if animal == nil {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "animal is required")
	}
	if animal.ID.IsZero() {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "animal id is required")
	}
	if animal.Species == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "species is required")
	}

	ctx, span := s.tracer.Start(ctx, "matching.ProcessAnimalForMatching",
		trace.WithAttributes(attribute.Int64("animal.id", animal.ID.Int64())))
	defer span.End()

	existing, err := s.store.FindLinkByAnimal(ctx, animal.ID)
	if err != nil && !isNotFound(err) {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "look up existing link")
	}
	if existing != nil {
		s.metrics.IncrementOutcome("already_linked")
		return &models.MatchResult{
			Matched:    true,
			IdentityID: existing.IdentityID,
			Confidence: existing.Confidence,
			AutoLinked: existing.AutoMatched,
		}, nil
	}

	queries := collectIdentifiers(animal, identifiers)
	return s.match(ctx, animal, queries, false)
}

// match runs one search-and-decide pass. When no candidate clears the
// suggestion floor and guarded is false, it retries once under the per-key
// creation guard so two tenants importing the same new animal concurrently
// end up on a single identity.
func (s *Service) match(ctx context.Context, animal *models.AnimalForMatching, queries []queryIdentifier, guarded bool) (*models.MatchResult, error) {
	candidates, err := s.searchCandidates(ctx, animal, queries)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if !guarded {
			var result *models.MatchResult
			guardErr := s.store.WithCreateGuard(ctx, s.guardKey(animal, queries), func(ctx context.Context) error {
				var innerErr error
				result, innerErr = s.match(ctx, animal, queries, true)
				return innerErr
			})
			if guardErr != nil {
				return nil, guardErr
			}
			return result, nil
		}
		return s.createIdentity(ctx, animal, queries)
	}

	top := candidates[0]
	if top.Confidence >= autoLinkThreshold {
		link := &idmodels.AnimalIdentityLink{
			AnimalID:    animal.ID,
			IdentityID:  top.IdentityID,
			Confidence:  top.Confidence,
			MatchedOn:   pstrings.DedupeAndTrim(top.MatchedFields),
			AutoMatched: true,
		}
		if err := s.store.UpsertLink(ctx, link); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist auto link")
		}

		s.logger.Info("auto-linked animal to identity",
			"animal_id", animal.ID.String(),
			"identity_id", top.IdentityID.String(),
			"confidence", top.Confidence,
			"matched_on", top.MatchedFields)
		s.metrics.IncrementOutcome("auto_linked")
		s.publish(ctx, audit.Event{
			Action:     audit.ActionLinkAutoMatched,
			TenantID:   animal.TenantID,
			AnimalID:   animal.ID,
			IdentityID: top.IdentityID,
			Confidence: top.Confidence,
			MatchedOn:  top.MatchedFields,
		})

		return &models.MatchResult{
			Matched:    true,
			IdentityID: top.IdentityID,
			Confidence: top.Confidence,
			AutoLinked: true,
			Candidates: candidates,
		}, nil
	}

	s.logger.Info("match suggestions below auto-link threshold",
		"animal_id", animal.ID.String(),
		"candidates", len(candidates),
		"top_confidence", top.Confidence)
	s.metrics.IncrementOutcome("suggested")
	s.publish(ctx, audit.Event{
		Action:     audit.ActionMatchSuggested,
		TenantID:   animal.TenantID,
		AnimalID:   animal.ID,
		IdentityID: top.IdentityID,
		Confidence: top.Confidence,
		MatchedOn:  top.MatchedFields,
	})

	return &models.MatchResult{
		Matched:    false,
		Confidence: top.Confidence,
		Candidates: candidates,
	}, nil
}

// createIdentity mints a fresh identity from the animal's own fields,
// indexes its identifiers, and links the animal at confidence 1.0.
func (s *Service) createIdentity(ctx context.Context, animal *models.AnimalForMatching, queries []queryIdentifier) (*models.MatchResult, error) {
	identity := &idmodels.GlobalAnimalIdentity{
		Species:   animal.Species,
		Sex:       animal.Sex,
		BirthDate: animal.BirthDate,
		Name:      animal.Name,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create identity")
	}

	for _, q := range queries {
		identifier := &idmodels.GlobalAnimalIdentifier{
			IdentityID:     identity.ID,
			Type:           q.Type,
			Value:          q.Normalized,
			RawValue:       q.Raw,
			SourceTenantID: animal.TenantID,
		}
		if err := s.store.CreateIdentifier(ctx, identifier); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "index identifier")
		}
	}

	link := &idmodels.AnimalIdentityLink{
		AnimalID:    animal.ID,
		IdentityID:  identity.ID,
		Confidence:  newIdentityConfidence,
		MatchedOn:   []string{"new_identity"},
		AutoMatched: true,
	}
	if err := s.store.UpsertLink(ctx, link); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "link new identity")
	}

	s.logger.Info("created identity for unmatched animal",
		"animal_id", animal.ID.String(),
		"identity_id", identity.ID.String(),
		"species", identity.Species)
	s.metrics.IncrementOutcome("new_identity")
	s.publish(ctx, audit.Event{
		Action:     audit.ActionIdentityCreated,
		TenantID:   animal.TenantID,
		AnimalID:   animal.ID,
		IdentityID: identity.ID,
		Confidence: newIdentityConfidence,
	})

	return &models.MatchResult{
		Matched:    true,
		IdentityID: identity.ID,
		Confidence: newIdentityConfidence,
		AutoLinked: true,
	}, nil
}

// LinkAnimalToIdentity records a human decision: confirming a suggestion or
// re-pointing an animal at a different identity. The identity must exist.
func (s *Service) LinkAnimalToIdentity(ctx context.Context, animalID id.AnimalID, identityID id.IdentityID, confidence float64, matchedOn []string, confirmedBy string) (*idmodels.AnimalIdentityLink, error) {
	if animalID.IsZero() {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "animal id is required")
	}
	if identityID.IsZero() {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "identity id is required")
	}
	if confidence < 0 || confidence > 1 {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "confidence must be within [0, 1]")
	}

	if _, err := s.store.FindIdentity(ctx, identityID); err != nil {
		if isNotFound(err) {
			return nil, domainerrors.Wrap(err, domainerrors.CodeNotFound, "identity not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "look up identity")
	}

	link := &idmodels.AnimalIdentityLink{
		AnimalID:        animalID,
		IdentityID:      identityID,
		Confidence:      confidence,
		MatchedOn:       pstrings.DedupeAndTrim(matchedOn),
		AutoMatched:     false,
		ConfirmedByUser: confirmedBy,
	}
	if confirmedBy != "" {
		now := requestcontext.Now(ctx)
		link.ConfirmedAt = &now
	}
	if err := s.store.UpsertLink(ctx, link); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist link")
	}

	s.logger.Info("manually linked animal to identity",
		"animal_id", animalID.String(),
		"identity_id", identityID.String(),
		"confirmed_by", confirmedBy)
	s.publish(ctx, audit.Event{
		Action:     audit.ActionLinkConfirmed,
		AnimalID:   animalID,
		IdentityID: identityID,
		Confidence: confidence,
		MatchedOn:  matchedOn,
	})

	return link, nil
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Publish(ctx, event)
	}
}

// guardKey derives the creation-guard key from the strongest identifier the
// animal carries, so concurrent imports of the same animal contend on the
// same lock even when their remaining fields differ.
func (s *Service) guardKey(animal *models.AnimalForMatching, queries []queryIdentifier) string {
	var best *queryIdentifier
	var bestWeight float64
	for i := range queries {
		if w := s.weights.Weight(queries[i].Type); best == nil || w > bestWeight {
			best = &queries[i]
			bestWeight = w
		}
	}
	if best != nil {
		return string(best.Type) + ":" + best.Normalized
	}

	birthDate := ""
	if animal.BirthDate != nil {
		birthDate = animal.BirthDate.Format("2006-01-02")
	}
	return strings.ToLower(animal.Species) + "|" + strings.ToLower(animal.Name) + "|" + birthDate
}
