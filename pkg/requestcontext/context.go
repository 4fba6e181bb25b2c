// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the authenticated citizen and request metadata; services
// read them without importing net/http.
//
//	user := requestcontext.User(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithUser(ctx, user)
package requestcontext

import (
	"context"
	"time"

	id "agora/pkg/domain"
)

// Role is the coarse authorization role carried by the identity token.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
)

// AuthenticatedUser is the identity resolved by the external identity
// provider: who is calling and which polling station they are registered to.
type AuthenticatedUser struct {
	ID               id.UserID
	Name             string
	Role             Role
	PollingStationID id.TerritoryID
}

// IsAdmin reports whether the user may run administrative operations.
func (u AuthenticatedUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type (
	userKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyUser        = userKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// User retrieves the authenticated user. ok is false for anonymous requests.
func User(ctx context.Context) (AuthenticatedUser, bool) {
	u, ok := ctx.Value(ContextKeyUser).(AuthenticatedUser)
	return u, ok
}

// WithUser injects the authenticated user into the context.
func WithUser(ctx context.Context, user AuthenticatedUser) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// RequestID retrieves the request ID from the context.
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
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
