package handler

import (
	"time"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	"github.com/breederhq/identity/internal/matching/models"
)

// MatchResponse is the HTTP response for POST /identity/match.
type MatchResponse struct {
	Matched    bool                `json:"matched"`
	IdentityID *int64              `json:"global_identity_id,omitempty"`
	Confidence float64             `json:"confidence"`
	AutoLinked bool                `json:"auto_linked"`
	Candidates []CandidateResponse `json:"candidates"`
}

// CandidateResponse is one ranked candidate in a match response.
type CandidateResponse struct {
	IdentityID         int64    `json:"global_identity_id"`
	Confidence         float64  `json:"confidence"`
	MatchedIdentifiers []string `json:"matched_identifiers"`
	MatchedFields      []string `json:"matched_fields"`
}

// FromResult converts a domain MatchResult to an HTTP response.
func FromResult(result *models.MatchResult) *MatchResponse {
	resp := &MatchResponse{
		Matched:    result.Matched,
		Confidence: result.Confidence,
		AutoLinked: result.AutoLinked,
		Candidates: make([]CandidateResponse, 0, len(result.Candidates)),
	}
	if !result.IdentityID.IsZero() {
		identityID := result.IdentityID.Int64()
		resp.IdentityID = &identityID
	}
	for _, c := range result.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateResponse{
			IdentityID:         c.IdentityID.Int64(),
			Confidence:         c.Confidence,
			MatchedIdentifiers: identifierTypeStrings(c.MatchedIdentifiers),
			MatchedFields:      c.MatchedFields,
		})
	}
	return resp
}

// LinkResponse is the HTTP response for POST /identity/links.
type LinkResponse struct {
	AnimalID    int64      `json:"animal_id"`
	IdentityID  int64      `json:"global_identity_id"`
	Confidence  float64    `json:"confidence"`
	MatchedOn   []string   `json:"matched_on"`
	AutoMatched bool       `json:"auto_matched"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy string     `json:"confirmed_by,omitempty"`
}

// FromLink converts a domain link to an HTTP response.
func FromLink(link *idmodels.AnimalIdentityLink) *LinkResponse {
	return &LinkResponse{
		AnimalID:    link.AnimalID.Int64(),
		IdentityID:  link.IdentityID.Int64(),
		Confidence:  link.Confidence,
		MatchedOn:   link.MatchedOn,
		AutoMatched: link.AutoMatched,
		ConfirmedAt: link.ConfirmedAt,
		ConfirmedBy: link.ConfirmedByUser,
	}
}

func identifierTypeStrings(types []idmodels.IdentifierType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}
