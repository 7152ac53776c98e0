// Package audit records identity-graph decisions for compliance review.
// Every automatic link, manual confirmation, and identity creation produces
// an event; the publisher ships them to a pluggable sink without blocking
// the request path.
package audit

import (
	"time"

	id "github.com/breederhq/identity/pkg/domain"
)

// Action identifies what happened to the identity graph.
type Action string

const (
	ActionIdentityCreated Action = "identity_created"
	ActionLinkAutoMatched Action = "link_auto_matched"
	ActionLinkConfirmed   Action = "link_confirmed"
	ActionMatchSuggested  Action = "match_suggested"
)

// Event is one audit record. TenantID and RequestID are filled from the
// request context when the caller leaves them empty.
type Event struct {
	ID         string        `json:"id"`
	Action     Action        `json:"action"`
	TenantID   id.TenantID   `json:"tenant_id"`
	AnimalID   id.AnimalID   `json:"animal_id,omitempty"`
	IdentityID id.IdentityID `json:"identity_id,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	MatchedOn  []string      `json:"matched_on,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
