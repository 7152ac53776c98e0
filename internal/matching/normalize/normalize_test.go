package normalize

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/breederhq/identity/internal/identity/models"
)

type NormalizeSuite struct {
	suite.Suite
}

func TestNormalizeSuite(t *testing.T) {
	suite.Run(t, new(NormalizeSuite))
}

func (s *NormalizeSuite) TestIdentifier() {
	tests := []struct {
		name string
		typ  models.IdentifierType
		raw  string
		want string
	}{
		{"trims and uppercases", models.IdentifierTypeTattoo, "  ab12cd  ", "AB12CD"},
		{"strips reg prefix", models.IdentifierTypeTattoo, "REG 12345", "12345"},
		{"strips no prefix", models.IdentifierTypeTattoo, "No. 998877", "998877"},
		{"strips num prefix", models.IdentifierTypeTattoo, "num: 54321", "54321"},
		{"strips bare hash", models.IdentifierTypeTattoo, "#12345", "12345"},
		{"strips bare colon", models.IdentifierTypeTattoo, ": 12345", "12345"},
		{"strips stacked prefixes", models.IdentifierTypeTattoo, "REG #12345", "12345"},
		{"keeps words starting with no", models.IdentifierTypeTattoo, "NOVA123", "NOVA123"},
		{"microchip loses spaces", models.IdentifierTypeMicrochip, "985 112 345 678 901", "985112345678901"},
		{"microchip loses dashes", models.IdentifierTypeMicrochip, "985-112-345-678-901", "985112345678901"},
		{"registry number compacts", models.IdentifierTypeAKC, "reg WS-1234 5678", "WS12345678"},
		{"ear tag keeps internal spaces", models.IdentifierTypeEarTag, "US 840 123", "US 840 123"},
		{"empty input", models.IdentifierTypeMicrochip, "", ""},
		{"whitespace only", models.IdentifierTypeMicrochip, "   ", ""},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, Identifier(tt.typ, tt.raw))
		})
	}
}

// TestIdentifierIdempotence checks that normalizing an already-normalized
// value returns it unchanged, for every case in the table above.
func (s *NormalizeSuite) TestIdentifierIdempotence() {
	inputs := []struct {
		typ models.IdentifierType
		raw string
	}{
		{models.IdentifierTypeTattoo, "REG #: 12345"},
		{models.IdentifierTypeMicrochip, "985 112-345 678-901"},
		{models.IdentifierTypeAKC, "no WS-1234"},
		{models.IdentifierTypeEarTag, "# US 840"},
		{models.IdentifierTypeDNAProfile, "embark-abc-123"},
		{models.IdentifierTypeOther, ""},
	}

	for _, tt := range inputs {
		once := Identifier(tt.typ, tt.raw)
		s.Equal(once, Identifier(tt.typ, once), "type %s raw %q", tt.typ, tt.raw)
	}
}
