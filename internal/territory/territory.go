// Package territory is the read-only adapter over the territory hierarchy.
//
// The hierarchy itself is owned by another system; this package resolves a
// territory to its type, its ancestors and the precomputed routes from the
// territory up to each ancestor type.
package territory

import (
	id "agora/pkg/domain"
)

// Territory is a node of the geographic hierarchy.
type Territory struct {
	ID       id.TerritoryID   `json:"id"`
	Type     id.TerritoryType `json:"type"`
	Name     string           `json:"name"`
	ParentID id.TerritoryID   `json:"parent_id,omitempty"`

	// Parents lists ancestors from the direct parent up to the root.
	Parents []id.TerritoryID `json:"-"`

	// RouteTo maps an ancestor type to the ordered chain starting at this
	// territory and ending at the nearest ancestor of that type. A territory
	// also routes to its own type with a chain of length one.
	RouteTo map[id.TerritoryType][]id.TerritoryID `json:"-"`
}

// Route returns the chain to the nearest ancestor of type t.
func (t *Territory) Route(to id.TerritoryType) ([]id.TerritoryID, bool) {
	route, ok := t.RouteTo[to]
	return route, ok
}
