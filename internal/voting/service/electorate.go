package service

import (
	"context"
	"errors"
	"slices"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
)

// placement is where a citizen's ballot and voter record live.
type placement struct {
	box *models.BallotBox
	// next is the territory directly below box.RootTerritoryID on the
	// citizen's route, empty when the box sits at the polling station.
	next id.TerritoryID
}

// routeToScope returns the chain from the polling station up to the session
// territory. A station that does not reach the session territory through the
// session's territory type is outside the electorate.
func (s *Service) routeToScope(ctx context.Context, session *models.VotingSession, station id.TerritoryID) ([]id.TerritoryID, error) {
	if station == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "no polling station registered")
	}
	t, err := s.territories.Resolve(ctx, station)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "polling station is outside the electorate")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve polling station")
	}
	route, ok := t.Route(session.TerritoryType)
	if !ok || len(route) == 0 || route[len(route)-1] != session.TerritoryID {
		return nil, dErrors.New(dErrors.CodeForbidden, "polling station is outside the electorate")
	}
	return route, nil
}

// place finds the deepest existing box along route.
func (s *Service) place(ctx context.Context, session *models.VotingSession, route []id.TerritoryID) (*placement, error) {
	boxes, err := s.store.FindBallotBoxes(ctx, session.ID, route)
	if err != nil {
		return nil, wrapStoreErr(err, "ballot boxes")
	}
	byTerritory := make(map[id.TerritoryID]*models.BallotBox, len(boxes))
	for _, b := range boxes {
		byTerritory[b.RootTerritoryID] = b
	}
	for i, territoryID := range route {
		box, ok := byTerritory[territoryID]
		if !ok {
			continue
		}
		p := &placement{box: box}
		if i > 0 {
			p.next = route[i-1]
		}
		return p, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "no ballot box covers the polling station")
}

// nextBelow returns the territory immediately before split on the station's
// route to scopeType, or empty when the station is the split territory itself.
func (s *Service) nextBelow(ctx context.Context, station id.TerritoryID, scopeType id.TerritoryType, split id.TerritoryID) (id.TerritoryID, error) {
	t, err := s.territories.Resolve(ctx, station)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve polling station")
	}
	route, _ := t.Route(scopeType)
	idx := slices.Index(route, split)
	switch {
	case idx < 0:
		return "", dErrors.New(dErrors.CodeInvariantViolation, "route does not pass through split territory")
	case idx == 0:
		return "", nil
	}
	return route[idx-1], nil
}
