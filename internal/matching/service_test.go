package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	identitystore "github.com/breederhq/identity/internal/identity/store"
	"github.com/breederhq/identity/internal/matching/models"
	"github.com/breederhq/identity/internal/matching/normalize"
	"github.com/breederhq/identity/internal/matching/score"
	id "github.com/breederhq/identity/pkg/domain"
	domainerrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/audit"
)

// captureAudit records published events synchronously for assertions.
type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) Publish(ctx context.Context, event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureAudit) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Action)
	}
	return out
}

// scanCountingStore counts identity scans so tests can observe when the
// discounted fallback search runs.
type scanCountingStore struct {
	*identitystore.Memory
	mu    sync.Mutex
	scans int
}

func (s *scanCountingStore) SearchIdentities(ctx context.Context, query identitystore.IdentitySearch) ([]*idmodels.GlobalAnimalIdentity, error) {
	s.mu.Lock()
	s.scans++
	s.mu.Unlock()
	return s.Memory.SearchIdentities(ctx, query)
}

type MatchingServiceSuite struct {
	suite.Suite
	store  *identitystore.Memory
	audit  *captureAudit
	svc    *Service
	ctx    context.Context
	tenant id.TenantID
}

func TestMatchingServiceSuite(t *testing.T) {
	suite.Run(t, new(MatchingServiceSuite))
}

func (s *MatchingServiceSuite) SetupTest() {
	s.store = identitystore.NewMemory()
	s.audit = &captureAudit{}
	svc, err := New(s.store, WithAuditPublisher(s.audit))
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = context.Background()
	s.tenant = id.TenantID(uuid.New())
}

func (s *MatchingServiceSuite) seedIdentity(species string, sex idmodels.Sex, name string, birthDate *time.Time) *idmodels.GlobalAnimalIdentity {
	identity := &idmodels.GlobalAnimalIdentity{
		Species:   species,
		Sex:       sex,
		Name:      name,
		BirthDate: birthDate,
	}
	s.Require().NoError(s.store.CreateIdentity(s.ctx, identity))
	return identity
}

func (s *MatchingServiceSuite) seedIdentifier(identityID id.IdentityID, typ idmodels.IdentifierType, raw string) {
	s.Require().NoError(s.store.CreateIdentifier(s.ctx, &idmodels.GlobalAnimalIdentifier{
		IdentityID:     identityID,
		Type:           typ,
		Value:          normalize.Identifier(typ, raw),
		RawValue:       raw,
		SourceTenantID: id.TenantID(uuid.New()),
	}))
}

func (s *MatchingServiceSuite) animal(animalID int64, species string) *models.AnimalForMatching {
	return &models.AnimalForMatching{
		ID:       id.AnimalID(animalID),
		TenantID: s.tenant,
		Species:  species,
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func (s *MatchingServiceSuite) TestExactMicrochipMatch() {
	identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")

	animal := s.animal(1, "dog")
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		Microchip: "985 112 345 678 901",
	})
	s.Require().NoError(err)

	s.True(result.Matched)
	s.True(result.AutoLinked)
	s.Equal(identity.ID, result.IdentityID)
	s.InDelta(0.95, result.Confidence, 1e-9)
	s.Equal([]audit.Action{audit.ActionLinkAutoMatched}, s.audit.actions())
}

func (s *MatchingServiceSuite) TestTwoCorroboratingIdentifiersClampToCeiling() {
	identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeAKC, "WS12345678")

	result, err := s.svc.ProcessAnimalForMatching(s.ctx, s.animal(1, "dog"), models.AnimalIdentifiers{
		Microchip: "985112345678901",
		Registrations: []models.Registration{
			{Type: idmodels.IdentifierTypeAKC, Value: "WS-1234 5678"},
		},
	})
	s.Require().NoError(err)

	s.True(result.AutoLinked)
	s.Equal(identity.ID, result.IdentityID)
	s.InDelta(score.Ceiling, result.Confidence, 1e-9)
}

func (s *MatchingServiceSuite) TestThresholdEdges() {
	s.Run("exactly 0.90 auto-links", func() {
		identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
		s.seedIdentifier(identity.ID, idmodels.IdentifierTypeEmbark, "EM-1")

		result, err := s.svc.ProcessAnimalForMatching(s.ctx, s.animal(1, "dog"), models.AnimalIdentifiers{
			Registrations: []models.Registration{
				{Type: idmodels.IdentifierTypeEmbark, Value: "EM-1"},
			},
		})
		s.Require().NoError(err)

		s.True(result.AutoLinked)
		s.InDelta(0.90, result.Confidence, 1e-9)
	})

	s.Run("0.899 is suggested, not auto-linked", func() {
		svc, err := New(s.store, WithWeights(score.Weights{
			idmodels.IdentifierTypeTattoo: 0.899,
			idmodels.IdentifierTypeOther:  0.50,
		}))
		s.Require().NoError(err)

		identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
		s.seedIdentifier(identity.ID, idmodels.IdentifierTypeTattoo, "T-42")

		result, err := svc.ProcessAnimalForMatching(s.ctx, s.animal(2, "dog"), models.AnimalIdentifiers{
			Tattoo: "T-42",
		})
		s.Require().NoError(err)

		s.False(result.Matched)
		s.False(result.AutoLinked)
		s.Require().Len(result.Candidates, 1)
		s.Equal(identity.ID, result.Candidates[0].IdentityID)
		s.InDelta(0.899, result.Candidates[0].Confidence, 1e-9)

		_, err = s.store.FindLinkByAnimal(s.ctx, id.AnimalID(2))
		s.Require().ErrorIs(err, identitystore.ErrNotFound)
	})
}

func (s *MatchingServiceSuite) TestSexDisqualification() {
	identity := s.seedIdentity("dog", idmodels.SexMale, "", nil)
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")

	animal := s.animal(1, "dog")
	animal.Sex = idmodels.SexFemale
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		Microchip: "985112345678901",
	})
	s.Require().NoError(err)

	// The only candidate has a conflicting known sex, so a fresh identity
	// is created instead of a bad link.
	s.True(result.Matched)
	s.NotEqual(identity.ID, result.IdentityID)
	s.InDelta(1.0, result.Confidence, 1e-9)
	s.Empty(result.Candidates)
}

func (s *MatchingServiceSuite) TestSexExcludedCandidatesStillOpenFallbackScan() {
	store := &scanCountingStore{Memory: s.store}
	svc, err := New(store, WithAuditPublisher(s.audit))
	s.Require().NoError(err)

	male := s.seedIdentity("dog", idmodels.SexMale, "", nil)
	s.seedIdentifier(male.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")
	near := s.seedIdentity("dog", idmodels.SexFemale, "Bella", datePtr(2022, time.March, 9))

	animal := s.animal(1, "dog")
	animal.Sex = idmodels.SexFemale
	animal.Name = "Bella"
	animal.BirthDate = datePtr(2022, time.March, 9)
	result, err := svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		Microchip: "985112345678901",
	})
	s.Require().NoError(err)

	// The sole exact hit is dropped for its sex conflict, which opens the
	// fallback scan instead of going straight to creation.
	s.Positive(store.scans)

	// Discounted soft evidence stays below the suggestion floor, so a
	// fresh identity wins over both the conflicted hit and the near match.
	s.True(result.Matched)
	s.NotEqual(male.ID, result.IdentityID)
	s.NotEqual(near.ID, result.IdentityID)
	s.Empty(result.Candidates)
}

func (s *MatchingServiceSuite) TestSpeciesMismatchNeverScored() {
	identity := s.seedIdentity("cat", idmodels.SexUnknown, "", nil)
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")

	result, err := s.svc.ProcessAnimalForMatching(s.ctx, s.animal(1, "dog"), models.AnimalIdentifiers{
		Microchip: "985112345678901",
	})
	s.Require().NoError(err)
	s.NotEqual(identity.ID, result.IdentityID)
}

func (s *MatchingServiceSuite) TestWeakFuzzyEvidenceCreatesNewIdentity() {
	existing := s.seedIdentity("dog", idmodels.SexUnknown, "Duke", datePtr(2021, time.May, 4))

	animal := s.animal(1, "dog")
	animal.Name = "Champion Duke of Windsor"
	animal.BirthDate = datePtr(2021, time.May, 4)
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{})
	s.Require().NoError(err)

	// Fuzzy-only evidence scores (0.15 + 0.20) * 0.7 = 0.245, below the
	// suggestion floor.
	s.True(result.Matched)
	s.True(result.AutoLinked)
	s.NotEqual(existing.ID, result.IdentityID)
	s.InDelta(1.0, result.Confidence, 1e-9)
	s.Empty(result.Candidates)
	s.Equal([]audit.Action{audit.ActionIdentityCreated}, s.audit.actions())
}

func (s *MatchingServiceSuite) TestIdempotentReprocessing() {
	animal := s.animal(1, "dog")
	animal.Name = "Bella"
	identifiers := models.AnimalIdentifiers{Microchip: "985000000000001"}

	first, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, identifiers)
	s.Require().NoError(err)
	second, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, identifiers)
	s.Require().NoError(err)

	s.Equal(first.IdentityID, second.IdentityID)
	s.True(second.Matched)
}

func (s *MatchingServiceSuite) TestNewIdentityIndexedForLaterMatches() {
	animal := s.animal(1, "dog")
	identifiers := models.AnimalIdentifiers{Microchip: "985 000 000 000 002"}
	first, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, identifiers)
	s.Require().NoError(err)
	s.InDelta(1.0, first.Confidence, 1e-9)

	// A different tenant's animal with the same chip lands on the same
	// identity through the freshly indexed identifier.
	other := s.animal(2, "dog")
	other.TenantID = id.TenantID(uuid.New())
	second, err := s.svc.ProcessAnimalForMatching(s.ctx, other, models.AnimalIdentifiers{
		Microchip: "985000000000002",
	})
	s.Require().NoError(err)

	s.Equal(first.IdentityID, second.IdentityID)
	s.True(second.AutoLinked)
	s.InDelta(0.95, second.Confidence, 1e-9)
}

func (s *MatchingServiceSuite) TestNameAndBirthDateBonuses() {
	identity := s.seedIdentity("dog", idmodels.SexUnknown, "Duke", datePtr(2021, time.May, 4))
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeEarTag, "US 840")

	animal := s.animal(1, "dog")
	animal.Name = "CH Duke"
	animal.BirthDate = datePtr(2021, time.May, 4)
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		EarTag: "US 840",
	})
	s.Require().NoError(err)

	// 0.80 ear tag + 0.15 name + 0.20 birth date, clamped to 0.99.
	s.True(result.AutoLinked)
	s.InDelta(score.Ceiling, result.Confidence, 1e-9)

	link, err := s.store.FindLinkByAnimal(s.ctx, animal.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"ear_tag", "name", "birth_date"}, link.MatchedOn)
}

func (s *MatchingServiceSuite) TestBreedBonusFromLinkedRecords() {
	identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeEarTag, "US 841")

	// Another tenant's linked record carries the breed.
	otherTenant := id.TenantID(uuid.New())
	s.Require().NoError(s.store.SaveAnimal(s.ctx, &idmodels.LocalAnimalRecord{
		ID:       id.AnimalID(50),
		TenantID: otherTenant,
		Species:  "dog",
		Breed:    "Labrador Retriever",
	}))
	s.Require().NoError(s.store.UpsertLink(s.ctx, &idmodels.AnimalIdentityLink{
		AnimalID:   id.AnimalID(50),
		IdentityID: identity.ID,
		Confidence: 0.95,
	}))

	animal := s.animal(1, "dog")
	animal.Breed = "labrador retriever"
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		EarTag: "US 841",
	})
	s.Require().NoError(err)

	// 0.80 ear tag + 0.10 breed reaches the auto-link threshold exactly.
	s.True(result.AutoLinked)
	s.InDelta(0.90, result.Confidence, 1e-9)
}

func (s *MatchingServiceSuite) TestConfidenceBounds() {
	identity := s.seedIdentity("dog", idmodels.SexUnknown, "Duke", datePtr(2021, time.May, 4))
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeDNAProfile, "DNA-1")
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeMicrochip, "985112345678901")
	s.seedIdentifier(identity.ID, idmodels.IdentifierTypeAKC, "WS12345678")

	animal := s.animal(1, "dog")
	animal.Name = "Duke"
	animal.BirthDate = datePtr(2021, time.May, 4)
	result, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{
		Microchip:    "985112345678901",
		DNAProfileID: "DNA-1",
		Registrations: []models.Registration{
			{Type: idmodels.IdentifierTypeAKC, Value: "WS12345678"},
		},
	})
	s.Require().NoError(err)

	s.LessOrEqual(result.Confidence, score.Ceiling)
	for _, candidate := range result.Candidates {
		s.LessOrEqual(candidate.Confidence, score.Ceiling)
	}
}

func (s *MatchingServiceSuite) TestLinkAnimalToIdentity() {
	s.Run("unknown identity is rejected", func() {
		_, err := s.svc.LinkAnimalToIdentity(s.ctx, id.AnimalID(1), id.IdentityID(999), 0.8, nil, "reviewer@example.com")
		s.Require().Error(err)
		s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound))
	})

	s.Run("confirmation stamps the link", func() {
		identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)

		link, err := s.svc.LinkAnimalToIdentity(s.ctx, id.AnimalID(7), identity.ID, 0.85, []string{"tattoo", "tattoo", "name"}, "reviewer@example.com")
		s.Require().NoError(err)

		s.False(link.AutoMatched)
		s.NotNil(link.ConfirmedAt)
		s.Equal("reviewer@example.com", link.ConfirmedByUser)
		s.Equal([]string{"tattoo", "name"}, link.MatchedOn)

		stored, err := s.store.FindLinkByAnimal(s.ctx, id.AnimalID(7))
		s.Require().NoError(err)
		s.Equal(identity.ID, stored.IdentityID)
	})

	s.Run("confidence outside [0,1] is rejected", func() {
		identity := s.seedIdentity("dog", idmodels.SexUnknown, "", nil)
		_, err := s.svc.LinkAnimalToIdentity(s.ctx, id.AnimalID(8), identity.ID, 1.2, nil, "")
		s.Require().Error(err)
		s.True(domainerrors.HasCode(err, domainerrors.CodeInvalidInput))
	})
}

func (s *MatchingServiceSuite) TestValidation() {
	s.Run("nil animal", func() {
		_, err := s.svc.ProcessAnimalForMatching(s.ctx, nil, models.AnimalIdentifiers{})
		s.True(domainerrors.HasCode(err, domainerrors.CodeInvalidInput))
	})

	s.Run("missing species", func() {
		animal := s.animal(1, "")
		_, err := s.svc.ProcessAnimalForMatching(s.ctx, animal, models.AnimalIdentifiers{})
		s.True(domainerrors.HasCode(err, domainerrors.CodeInvalidInput))
	})
}
