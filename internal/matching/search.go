package matching

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	identitystore "github.com/breederhq/identity/internal/identity/store"
	"github.com/breederhq/identity/internal/matching/fuzzy"
	"github.com/breederhq/identity/internal/matching/models"
	"github.com/breederhq/identity/internal/matching/normalize"
	"github.com/breederhq/identity/internal/matching/score"
	id "github.com/breederhq/identity/pkg/domain"
	domainerrors "github.com/breederhq/identity/pkg/domain-errors"
)

// queryIdentifier is one identifier extracted from the query animal, carried
// in both raw and normalized form.
type queryIdentifier struct {
	Type       idmodels.IdentifierType
	Raw        string
	Normalized string
}

// collectIdentifiers extracts every usable identifier from the query animal.
// Identifiers that normalize to empty are dropped; duplicates on (type,
// normalized value) collapse to one query.
func collectIdentifiers(animal *models.AnimalForMatching, identifiers models.AnimalIdentifiers) []queryIdentifier {
	type rawIdentifier struct {
		typ idmodels.IdentifierType
		raw string
	}

	microchip := identifiers.Microchip
	if microchip == "" {
		microchip = animal.Microchip
	}

	raws := []rawIdentifier{
		{idmodels.IdentifierTypeMicrochip, microchip},
		{idmodels.IdentifierTypeDNAProfile, identifiers.DNAProfileID},
		{idmodels.IdentifierTypeTattoo, identifiers.Tattoo},
		{idmodels.IdentifierTypeEarTag, identifiers.EarTag},
	}
	for _, reg := range identifiers.Registrations {
		typ := reg.Type
		if typ == "" {
			typ = idmodels.IdentifierTypeOther
		}
		raws = append(raws, rawIdentifier{typ, reg.Value})
	}

	seen := make(map[string]bool, len(raws))
	var out []queryIdentifier
	for _, r := range raws {
		normalized := normalize.Identifier(r.typ, r.raw)
		if normalized == "" {
			continue
		}
		key := string(r.typ) + ":" + normalized
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, queryIdentifier{Type: r.typ, Raw: r.raw, Normalized: normalized})
	}
	return out
}

// candidateState accumulates evidence for one candidate identity during a
// search.
type candidateState struct {
	identity           *idmodels.GlobalAnimalIdentity
	confidence         float64
	matchedIdentifiers []idmodels.IdentifierType
	matchedFields      []string
}

// searchCandidates runs the exact identifier pass, the identity-field bonus
// pass, and (when no candidate survives those) the fuzzy fallback pass. The
// fallback check runs after the bonus pass on purpose: an exact hit dropped
// for a sex conflict is not a candidate, and the animal still deserves the
// fallback scan rather than an automatic new identity. Results carry
// confidence of at least the suggestion floor and are sorted by descending
// confidence with ascending identity ID as the tie-break.
func (s *Service) searchCandidates(ctx context.Context, animal *models.AnimalForMatching, queries []queryIdentifier) ([]models.MatchCandidate, error) {
	start := time.Now()

	states, err := s.exactPass(ctx, animal, queries)
	if err != nil {
		return nil, err
	}

	if err := s.bonusPass(ctx, animal, &states); err != nil {
		return nil, err
	}

	if len(states) == 0 && animal.Name != "" && animal.BirthDate != nil {
		states, err = s.fallbackPass(ctx, animal)
		if err != nil {
			return nil, err
		}
	}

	var candidates []models.MatchCandidate
	for _, st := range states {
		if st.confidence < suggestionThreshold {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			IdentityID:         st.identity.ID,
			Confidence:         st.confidence,
			MatchedIdentifiers: st.matchedIdentifiers,
			MatchedFields:      st.matchedFields,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].IdentityID < candidates[j].IdentityID
	})

	s.metrics.ObserveSearch(time.Since(start), len(candidates))
	return candidates, nil
}

// exactPass looks up every query identifier in the shared index, in
// parallel, then merges hits in query order so confidence accumulation is
// deterministic. Candidates of another species are discarded.
func (s *Service) exactPass(ctx context.Context, animal *models.AnimalForMatching, queries []queryIdentifier) ([]*candidateState, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	hits := make([][]*idmodels.GlobalAnimalIdentifier, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			found, err := s.store.FindIdentifiers(gctx, q.Type, q.Normalized)
			if err != nil {
				return domainerrors.Wrap(err, domainerrors.CodeInternal, "search identifiers")
			}
			hits[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := make(map[id.IdentityID]*candidateState)
	excluded := make(map[id.IdentityID]bool)
	var order []*candidateState

	for i, q := range queries {
		for _, hit := range hits[i] {
			if excluded[hit.IdentityID] {
				continue
			}
			st, ok := states[hit.IdentityID]
			if !ok {
				identity, err := s.store.FindIdentity(ctx, hit.IdentityID)
				if err != nil {
					if isNotFound(err) {
						excluded[hit.IdentityID] = true
						continue
					}
					return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load candidate identity")
				}
				if !strings.EqualFold(identity.Species, animal.Species) {
					excluded[hit.IdentityID] = true
					continue
				}
				st = &candidateState{identity: identity}
				states[hit.IdentityID] = st
				order = append(order, st)
			}
			st.confidence = score.Accumulate(st.confidence, s.weights.Weight(q.Type))
			st.matchedIdentifiers = append(st.matchedIdentifiers, q.Type)
			st.matchedFields = append(st.matchedFields, string(q.Type))
		}
	}
	return order, nil
}

// bonusPass applies the sex hard filter and the identity-field bonuses to
// every exact-pass candidate.
func (s *Service) bonusPass(ctx context.Context, animal *models.AnimalForMatching, states *[]*candidateState) error {
	kept := (*states)[:0]
	for _, st := range *states {
		if st.identity.Sex.Conflicts(animal.Sex) {
			continue
		}

		if animal.Name != "" && st.identity.Name != "" && fuzzy.Match(animal.Name, st.identity.Name) {
			st.confidence = score.AddBonus(st.confidence, score.BonusName)
			st.matchedFields = append(st.matchedFields, "name")
		}
		if sameDay(animal.BirthDate, st.identity.BirthDate) {
			st.confidence = score.AddBonus(st.confidence, score.BonusBirthDate)
			st.matchedFields = append(st.matchedFields, "birth_date")
		}

		if err := s.applyBreedBonus(ctx, animal, st); err != nil {
			return err
		}
		if err := s.applyParentBonuses(ctx, animal, st); err != nil {
			return err
		}

		kept = append(kept, st)
	}
	*states = kept
	return nil
}

// applyBreedBonus compares the query animal's breed against the breeds of
// the local records already linked to the candidate. The identity record
// itself carries no breed; the linked records are the evidence.
func (s *Service) applyBreedBonus(ctx context.Context, animal *models.AnimalForMatching, st *candidateState) error {
	if animal.Breed == "" {
		return nil
	}

	linked, err := s.store.ListLinkedAnimals(ctx, st.identity.ID)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "list linked animals")
	}
	for _, record := range linked {
		if record.Breed != "" && strings.EqualFold(record.Breed, animal.Breed) {
			st.confidence = score.AddBonus(st.confidence, score.BonusBreed)
			st.matchedFields = append(st.matchedFields, "breed")
			return nil
		}
	}
	return nil
}

// applyParentBonuses checks whether the query animal's dam or sire is
// already linked to the candidate's dam or sire identity. Shared known
// parentage is strong evidence the two records describe the same animal.
func (s *Service) applyParentBonuses(ctx context.Context, animal *models.AnimalForMatching, st *candidateState) error {
	parents := []struct {
		localID    *id.AnimalID
		identityID *id.IdentityID
		field      string
	}{
		{animal.DamID, st.identity.DamID, "dam"},
		{animal.SireID, st.identity.SireID, "sire"},
	}

	for _, p := range parents {
		if p.localID == nil || p.identityID == nil {
			continue
		}
		link, err := s.store.FindLinkByAnimal(ctx, *p.localID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return domainerrors.Wrap(err, domainerrors.CodeInternal, "look up parent link")
		}
		if link.IdentityID == *p.identityID {
			st.confidence = score.AddBonus(st.confidence, score.BonusParentName)
			st.matchedFields = append(st.matchedFields, p.field)
		}
	}
	return nil
}

// fallbackPass scans for identities of the same species and compatible sex
// born within a calendar day of the query animal, scoring fuzzy name hits
// with the soft-evidence discount. It runs only when the exact pass found
// nothing.
func (s *Service) fallbackPass(ctx context.Context, animal *models.AnimalForMatching) ([]*candidateState, error) {
	day := truncateToDay(*animal.BirthDate)
	found, err := s.store.SearchIdentities(ctx, identitystore.IdentitySearch{
		Species:    animal.Species,
		Sex:        animal.Sex,
		BornAfter:  day.AddDate(0, 0, -1),
		BornBefore: day.AddDate(0, 0, 1),
		Limit:      fallbackScanLimit,
	})
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "fallback identity scan")
	}

	var states []*candidateState
	for _, identity := range found {
		if identity.Name == "" || !fuzzy.Match(animal.Name, identity.Name) {
			continue
		}

		st := &candidateState{identity: identity}
		st.confidence = score.AddBonus(st.confidence, score.BonusName)
		st.matchedFields = append(st.matchedFields, "name")
		if sameDay(animal.BirthDate, identity.BirthDate) {
			st.confidence = score.AddBonus(st.confidence, score.BonusBirthDate)
			st.matchedFields = append(st.matchedFields, "birth_date")
		}
		st.confidence *= score.FallbackDiscount
		states = append(states, st)
	}
	return states, nil
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isNotFound(err error) bool {
	return errors.Is(err, identitystore.ErrNotFound) ||
		domainerrors.HasCode(err, domainerrors.CodeNotFound)
}
