package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	idmodels "github.com/breederhq/identity/internal/identity/models"
	"github.com/breederhq/identity/internal/matching/models"
	id "github.com/breederhq/identity/pkg/domain"
	dErrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/httputil"
	"github.com/breederhq/identity/pkg/requestcontext"
)

// Service defines the interface for matching operations.
type Service interface {
	ProcessAnimalForMatching(ctx context.Context, animal *models.AnimalForMatching, identifiers models.AnimalIdentifiers) (*models.MatchResult, error)
	LinkAnimalToIdentity(ctx context.Context, animalID id.AnimalID, identityID id.IdentityID, confidence float64, matchedOn []string, confirmedBy string) (*idmodels.AnimalIdentityLink, error)
}

// Handler wires matching endpoints to the decision engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a matching handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts matching endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/match", h.HandleMatch)
	r.Post("/identity/links", h.HandleLink)
}

// HandleMatch handles POST /identity/match requests.
func (h *Handler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant identification required"))
		return
	}

	req, ok := httputil.DecodeJSON[MatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ProcessAnimalForMatching(ctx, req.ToAnimal(tenantID), req.ToIdentifiers())
	if err != nil {
		h.logger.ErrorContext(ctx, "matching failed",
			"request_id", requestID,
			"tenant_id", tenantID.String(),
			"animal_id", req.Animal.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "animal processed for matching",
		"request_id", requestID,
		"tenant_id", tenantID.String(),
		"animal_id", req.Animal.ID,
		"matched", result.Matched,
		"auto_linked", result.AutoLinked,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleLink handles POST /identity/links requests.
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant identification required"))
		return
	}

	req, ok := httputil.DecodeJSON[LinkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	link, err := h.service.LinkAnimalToIdentity(ctx,
		id.AnimalID(req.AnimalID),
		id.IdentityID(req.IdentityID),
		req.Confidence,
		req.MatchedOn,
		req.ConfirmedBy,
	)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual link failed",
			"request_id", requestID,
			"animal_id", req.AnimalID,
			"identity_id", req.IdentityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "animal linked to identity",
		"request_id", requestID,
		"animal_id", req.AnimalID,
		"identity_id", req.IdentityID,
		"confirmed_by", req.ConfirmedBy,
	)

	httputil.WriteJSON(w, http.StatusOK, FromLink(link))
}
