// Package middleware provides the request-scoped plumbing every handler
// relies on: request IDs, request time, and tenant identification.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	id "github.com/breederhq/identity/pkg/domain"
	dErrors "github.com/breederhq/identity/pkg/domain-errors"
	"github.com/breederhq/identity/pkg/platform/httputil"
	"github.com/breederhq/identity/pkg/requestcontext"
)

// TenantHeader carries the caller's tenant, set by the API gateway after
// authentication. This service trusts it; auth itself lives upstream.
const TenantHeader = "X-Tenant-ID"

// RequestIDHeader propagates the request ID to and from clients.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to the context, reusing the client's when
// present, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime pins the request's wall-clock time into the context so every
// timestamp written during one request agrees.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Tenant extracts the tenant from the gateway header into the context. A
// missing or malformed header is rejected before any handler runs.
func Tenant(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(TenantHeader)
			if raw == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant identification required"))
				return
			}
			tenantID, err := id.ParseTenantID(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "malformed tenant header",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "tenant identification required"))
				return
			}

			ctx := requestcontext.WithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
