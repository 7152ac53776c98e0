package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/breederhq/identity/internal/pedigree/models"
	id "github.com/breederhq/identity/pkg/domain"
	dErrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/httputil"
	"github.com/breederhq/identity/pkg/requestcontext"
)

// Service defines the interface for pedigree operations.
type Service interface {
	GetCrossTenantPedigree(ctx context.Context, animalID id.AnimalID, viewer id.TenantID, generations int) (*models.PedigreeNode, error)
}

// Handler wires pedigree endpoints to the tree builder.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a pedigree handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts pedigree endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/identity/animals/{animalID}/pedigree", h.HandleGetPedigree)
}

// HandleGetPedigree handles GET /identity/animals/{animalID}/pedigree
// requests. The generations query parameter bounds recursion depth.
func (h *Handler) HandleGetPedigree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant identification required"))
		return
	}

	animalID, err := id.ParseAnimalID(chi.URLParam(r, "animalID"))
	if err != nil || animalID.Int64() <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "animal id must be a positive integer"))
		return
	}

	generations := 0
	if raw := r.URL.Query().Get("generations"); raw != "" {
		generations, err = strconv.Atoi(raw)
		if err != nil || generations <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "generations must be a positive integer"))
			return
		}
	}

	tree, err := h.service.GetCrossTenantPedigree(ctx, animalID, tenantID, generations)
	if err != nil {
		h.logger.ErrorContext(ctx, "pedigree build failed",
			"request_id", requestID,
			"tenant_id", tenantID.String(),
			"animal_id", animalID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if tree == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "animal has no identity link"))
		return
	}

	h.logger.InfoContext(ctx, "pedigree built",
		"request_id", requestID,
		"tenant_id", tenantID.String(),
		"animal_id", animalID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, tree)
}
