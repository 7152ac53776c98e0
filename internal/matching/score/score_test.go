package score

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/breederhq/identity/internal/identity/models"
)

type ScoreSuite struct {
	suite.Suite
}

func TestScoreSuite(t *testing.T) {
	suite.Run(t, new(ScoreSuite))
}

func (s *ScoreSuite) TestWeight() {
	weights := DefaultWeights()

	s.Run("known types use the table", func() {
		s.InDelta(0.99, weights.Weight(models.IdentifierTypeDNAProfile), 1e-9)
		s.InDelta(0.95, weights.Weight(models.IdentifierTypeMicrochip), 1e-9)
		s.InDelta(0.80, weights.Weight(models.IdentifierTypeEarTag), 1e-9)
	})

	s.Run("unknown types fall back to other", func() {
		s.InDelta(0.50, weights.Weight(models.IdentifierType("carrier_pigeon")), 1e-9)
	})
}

func (s *ScoreSuite) TestAccumulate() {
	s.Run("first match starts from zero", func() {
		s.InDelta(0.95, Accumulate(0, 0.95), 1e-9)
	})

	s.Run("two corroborating identifiers clamp at ceiling", func() {
		// 0.95 + (1 - 0.95) * 0.95 = 0.9975, over the ceiling
		s.InDelta(Ceiling, Accumulate(Accumulate(0, 0.95), 0.95), 1e-9)
	})

	s.Run("weak evidence accumulates without clamping", func() {
		// 0.50 + 0.50 * 0.50 = 0.75
		s.InDelta(0.75, Accumulate(Accumulate(0, 0.50), 0.50), 1e-9)
	})

	s.Run("never exceeds ceiling", func() {
		combined := 0.0
		for n := 0; n < 10; n++ {
			combined = Accumulate(combined, 0.99)
			s.LessOrEqual(combined, Ceiling)
		}
	})
}

func (s *ScoreSuite) TestAddBonus() {
	s.Run("adds linearly", func() {
		s.InDelta(0.35, AddBonus(AddBonus(0, BonusName), BonusBirthDate), 1e-9)
	})

	s.Run("clamps at ceiling", func() {
		s.InDelta(Ceiling, AddBonus(0.95, BonusParentName), 1e-9)
	})
}
