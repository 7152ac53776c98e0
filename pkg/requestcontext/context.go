// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing any
// net/http code. Tests inject them directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithTenantID(ctx, tenantID)
package requestcontext

import (
	"context"
	"time"

	id "github.com/breederhq/identity/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	tenantIDKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyTenantID    = tenantIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// TenantID retrieves the viewing tenant's ID from the context.
// Returns the zero value (nil UUID) if not set.
func TenantID(ctx context.Context) id.TenantID {
	if tenantID, ok := ctx.Value(ContextKeyTenantID).(id.TenantID); ok {
		return tenantID
	}
	return id.TenantID{}
}

// WithTenantID injects a tenant ID into the context.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, ContextKeyTenantID, tenantID)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain, and for batch jobs
// that need a consistent time across one operation.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
