package testutil

import (
	"net/http"

	"github.com/google/uuid"

	id "agora/pkg/domain"
	"agora/pkg/requestcontext"
)

// Citizen builds an authenticated citizen registered at pollingStation.
func Citizen(name string, pollingStation id.TerritoryID) requestcontext.AuthenticatedUser {
	return requestcontext.AuthenticatedUser{
		ID:               id.UserID(uuid.New()),
		Name:             name,
		Role:             requestcontext.RoleCitizen,
		PollingStationID: pollingStation,
	}
}

// Admin builds an authenticated administrator.
func Admin() requestcontext.AuthenticatedUser {
	return requestcontext.AuthenticatedUser{
		ID:   id.UserID(uuid.New()),
		Name: "admin",
		Role: requestcontext.RoleAdmin,
	}
}

// WithUser adds the user to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithUser(req *http.Request, user requestcontext.AuthenticatedUser) *http.Request {
	return req.WithContext(requestcontext.WithUser(req.Context(), user))
}
