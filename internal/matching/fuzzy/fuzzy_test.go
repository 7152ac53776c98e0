package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type FuzzySuite struct {
	suite.Suite
}

func TestFuzzySuite(t *testing.T) {
	suite.Run(t, new(FuzzySuite))
}

func (s *FuzzySuite) TestNormalizeName() {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "DUKE", "duke"},
		{"strips straight quotes", `Windsor's "Duke"`, "windsors duke"},
		{"strips curly quotes", "Windsor’s Duke", "windsors duke"},
		{"collapses whitespace", "Duke   of   Windsor", "duke of windsor"},
		{"removes championship titles", "GCH CH Duke of Windsor", "duke of windsor"},
		{"removes obedience titles", "Duke CD CDX", "duke"},
		{"keeps titles embedded in words", "Chase", "chase"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, NormalizeName(tt.in))
		})
	}
}

func (s *FuzzySuite) TestMatch() {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "Duke", "Duke", true},
		{"identical after titles", "CH Duke", "Duke", true},
		{"call name inside registered name", "Champion Duke of Windsor", "Duke", true},
		{"small typo within ratio", "Bailey", "Baily", true},
		{"multibyte typo measured in runes", "Крёстная Фея", "Крёстная Фёя", true},
		{"different names", "Duke", "Rex", false},
		{"typo ratio too high", "Duke", "Dane", false},
		{"long names need exact or substring", "Windermere's Golden Sunrise Over The Lake", "Windermere's Golden Sunset Over The Lake", false},
		{"empty never matches", "", "Duke", false},
		{"title-only name never matches", "CH", "Duke", false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, Match(tt.a, tt.b))
		})
	}
}
