package models

import (
	id "agora/pkg/domain"
)

// Voter proves that a citizen voted in a session. It never carries a choice
// or the time of the vote, only the box and routing used to place the citizen.
type Voter struct {
	ID                       id.VoterID         `json:"id"`
	VotingSessionID          id.VotingSessionID `json:"voting_session_id"`
	UserID                   id.UserID          `json:"user_id"`
	Name                     string             `json:"name"`
	BallotBoxID              id.BallotBoxID     `json:"ballot_box_id"`
	PollingStationID         id.TerritoryID     `json:"polling_station_id"`
	NextTerritorySubdivision id.TerritoryID     `json:"next_territory_subdivision,omitempty"`
}

// Move describes relocating one ballot or voter into a split-off child box.
type Move struct {
	From            id.BallotBoxID
	FromSubdivision id.TerritoryID
	To              id.BallotBoxID
	NewSubdivision  id.TerritoryID
}
