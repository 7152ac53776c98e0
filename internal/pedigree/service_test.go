package pedigree

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	identitystore "github.com/breederhq/identity/internal/identity/store"
	id "github.com/breederhq/identity/pkg/domain"
)

type PedigreeServiceSuite struct {
	suite.Suite
	store  *identitystore.Memory
	svc    *Service
	ctx    context.Context
	viewer id.TenantID
	other  id.TenantID

	nextAnimalID int64
}

func TestPedigreeServiceSuite(t *testing.T) {
	suite.Run(t, new(PedigreeServiceSuite))
}

func (s *PedigreeServiceSuite) SetupTest() {
	s.store = identitystore.NewMemory()
	svc, err := New(s.store)
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = context.Background()
	s.viewer = id.TenantID(uuid.New())
	s.other = id.TenantID(uuid.New())
	s.nextAnimalID = 0
}

func (s *PedigreeServiceSuite) seedIdentity(name string, birthDate *time.Time, damID, sireID *id.IdentityID) *idmodels.GlobalAnimalIdentity {
	identity := &idmodels.GlobalAnimalIdentity{
		Species:   "dog",
		Name:      name,
		BirthDate: birthDate,
		DamID:     damID,
		SireID:    sireID,
	}
	s.Require().NoError(s.store.CreateIdentity(s.ctx, identity))
	return identity
}

// linkRecord links a local record owned by tenant to the identity and
// returns its animal ID.
func (s *PedigreeServiceSuite) linkRecord(identityID id.IdentityID, tenant id.TenantID, name string, privacy idmodels.PrivacySettings) id.AnimalID {
	s.nextAnimalID++
	animalID := id.AnimalID(s.nextAnimalID)

	s.Require().NoError(s.store.SaveAnimal(s.ctx, &idmodels.LocalAnimalRecord{
		ID:       animalID,
		TenantID: tenant,
		Species:  "dog",
		Name:     name,
		Privacy:  privacy,
	}))
	s.Require().NoError(s.store.UpsertLink(s.ctx, &idmodels.AnimalIdentityLink{
		AnimalID:   animalID,
		IdentityID: identityID,
		Confidence: 0.95,
	}))
	return animalID
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func identityPtr(identity *idmodels.GlobalAnimalIdentity) *id.IdentityID {
	return &identity.ID
}

func (s *PedigreeServiceSuite) TestNoLinkReturnsNilTree() {
	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, id.AnimalID(999), s.viewer, 3)
	s.Require().NoError(err)
	s.Nil(tree)
}

func (s *PedigreeServiceSuite) TestOwnRecordFullyVisible() {
	identity := s.seedIdentity("", datePtr(2021, time.May, 4), nil, nil)
	animalID := s.linkRecord(identity.ID, s.viewer, "Duke", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, animalID, s.viewer, 3)
	s.Require().NoError(err)
	s.Require().NotNil(tree)

	s.True(tree.IsOwn)
	s.False(tree.IsHidden)
	s.Equal("Duke", tree.Name)
	s.Require().NotNil(tree.BirthDate)
	s.True(tree.BirthDate.Equal(*datePtr(2021, time.May, 4)))
}

func (s *PedigreeServiceSuite) TestPrivacyMasking() {
	s.Run("hidden name on foreign ancestor", func() {
		dam := s.seedIdentity("Secret Dam", datePtr(2019, time.March, 10), nil, nil)
		s.linkRecord(dam.ID, s.other, "Secret Dam", idmodels.PrivacySettings{ShowName: false, ShowFullDOB: false})

		child := s.seedIdentity("", datePtr(2021, time.May, 4), identityPtr(dam), nil)
		childAnimal := s.linkRecord(child.ID, s.viewer, "Duke", idmodels.PrivacySettings{})

		tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 3)
		s.Require().NoError(err)
		s.Require().NotNil(tree.Dam)

		s.False(tree.Dam.IsOwn)
		s.True(tree.Dam.IsHidden)
		s.Empty(tree.Dam.Name)

		// Birth date is reduced to January 1 of the birth year.
		s.Require().NotNil(tree.Dam.BirthDate)
		s.True(tree.Dam.BirthDate.Equal(time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)))
	})

	s.Run("owner opt-in reveals name and full date", func() {
		sire := s.seedIdentity("Open Sire", datePtr(2018, time.July, 20), nil, nil)
		s.linkRecord(sire.ID, s.other, "Open Sire", idmodels.PrivacySettings{ShowName: true, ShowFullDOB: true})

		child := s.seedIdentity("", nil, nil, identityPtr(sire))
		childAnimal := s.linkRecord(child.ID, s.viewer, "Rex", idmodels.PrivacySettings{})

		tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 3)
		s.Require().NoError(err)
		s.Require().NotNil(tree.Sire)

		s.False(tree.Sire.IsOwn)
		s.False(tree.Sire.IsHidden)
		s.Equal("Open Sire", tree.Sire.Name)
		s.Require().NotNil(tree.Sire.BirthDate)
		s.True(tree.Sire.BirthDate.Equal(*datePtr(2018, time.July, 20)))
	})

	s.Run("identity without any local record defaults to hidden", func() {
		dam := s.seedIdentity("Imported Dam", datePtr(2017, time.February, 2), nil, nil)

		child := s.seedIdentity("", nil, identityPtr(dam), nil)
		childAnimal := s.linkRecord(child.ID, s.viewer, "Luna", idmodels.PrivacySettings{})

		tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 3)
		s.Require().NoError(err)
		s.Require().NotNil(tree.Dam)

		s.True(tree.Dam.IsHidden)
		s.Empty(tree.Dam.Name)
		s.Require().NotNil(tree.Dam.BirthDate)
		s.True(tree.Dam.BirthDate.Equal(time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)))
	})
}

func (s *PedigreeServiceSuite) TestDepthBound() {
	great := s.seedIdentity("Great", nil, nil, nil)
	grand := s.seedIdentity("Grand", nil, identityPtr(great), nil)
	dam := s.seedIdentity("Dam", nil, identityPtr(grand), nil)
	child := s.seedIdentity("Child", nil, identityPtr(dam), nil)
	childAnimal := s.linkRecord(child.ID, s.viewer, "Child", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 2)
	s.Require().NoError(err)
	s.Require().NotNil(tree)

	s.Require().NotNil(tree.Dam)
	s.Nil(tree.Dam.Dam, "generation past the bound must be cut")
}

func (s *PedigreeServiceSuite) TestBrokenAncestryBranch() {
	missing := id.IdentityID(9999)
	dam := s.seedIdentity("Dam", nil, nil, nil)
	child := s.seedIdentity("Child", nil, identityPtr(dam), &missing)
	childAnimal := s.linkRecord(child.ID, s.viewer, "Child", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 3)
	s.Require().NoError(err)
	s.Require().NotNil(tree)

	s.NotNil(tree.Dam)
	s.Nil(tree.Sire, "broken reference renders as a missing branch")
}

func (s *PedigreeServiceSuite) TestCorruptedAncestryCycleIsCut() {
	// Two identities referencing each other as dam. The memory store
	// assigns sequential IDs, so the first identity can point at the
	// second before it exists.
	bID := id.IdentityID(2)
	a := &idmodels.GlobalAnimalIdentity{Species: "dog", Name: "A", DamID: &bID}
	s.Require().NoError(s.store.CreateIdentity(s.ctx, a))
	b := &idmodels.GlobalAnimalIdentity{Species: "dog", Name: "B", DamID: &a.ID}
	s.Require().NoError(s.store.CreateIdentity(s.ctx, b))
	s.Require().Equal(bID, b.ID)

	childAnimal := s.linkRecord(a.ID, s.viewer, "A", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 8)
	s.Require().NoError(err)
	s.Require().NotNil(tree)

	// A -> B -> A is cut at the repeated identity.
	s.Require().NotNil(tree.Dam)
	s.Nil(tree.Dam.Dam)
}

func (s *PedigreeServiceSuite) TestSharedAncestorRenderedPerPath() {
	shared := s.seedIdentity("Shared", nil, nil, nil)
	dam := s.seedIdentity("Dam", nil, identityPtr(shared), nil)
	sire := s.seedIdentity("Sire", nil, identityPtr(shared), nil)
	child := s.seedIdentity("Child", nil, identityPtr(dam), identityPtr(sire))
	childAnimal := s.linkRecord(child.ID, s.viewer, "Child", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 4)
	s.Require().NoError(err)

	s.Require().NotNil(tree.Dam.Dam)
	s.Require().NotNil(tree.Sire.Dam)
	s.Equal(tree.Dam.Dam.IdentityID, tree.Sire.Dam.IdentityID)
}

func (s *PedigreeServiceSuite) TestBestRecordSelection() {
	identity := s.seedIdentity("", datePtr(2020, time.June, 1), nil, nil)

	// A sparse foreign record and a complete foreign record; the complete
	// one represents the node for a viewer with no record of their own.
	s.linkRecord(identity.ID, s.other, "", idmodels.PrivacySettings{ShowName: true})
	completeAnimal := s.linkRecord(identity.ID, id.TenantID(uuid.New()), "Complete Name", idmodels.PrivacySettings{ShowName: true})
	_ = completeAnimal

	child := s.seedIdentity("", nil, identityPtr(identity), nil)
	childAnimal := s.linkRecord(child.ID, s.viewer, "Child", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, childAnimal, s.viewer, 3)
	s.Require().NoError(err)
	s.Require().NotNil(tree.Dam)

	s.Equal("Complete Name", tree.Dam.Name)
}

func (s *PedigreeServiceSuite) TestGenerationsClamped() {
	identity := s.seedIdentity("", nil, nil, nil)
	animalID := s.linkRecord(identity.ID, s.viewer, "Solo", idmodels.PrivacySettings{})

	tree, err := s.svc.GetCrossTenantPedigree(s.ctx, animalID, s.viewer, 100)
	s.Require().NoError(err)
	s.NotNil(tree)

	tree, err = s.svc.GetCrossTenantPedigree(s.ctx, animalID, s.viewer, 0)
	s.Require().NoError(err)
	s.NotNil(tree)
}
