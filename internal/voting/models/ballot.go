package models

import (
	"time"

	id "agora/pkg/domain"
)

// Ballot is an anonymous voting slip bound to one box.
//
// PollingStationID, NextTerritorySubdivision and SecurityToken link a ballot
// to geography and, with the voter's secret, to its owner. They are erased
// when the session closes. A ballot carries no issuance or cast time: matching
// it against Voter records by time would reveal who cast it.
type Ballot struct {
	ID                       id.BallotID        `json:"id"`
	VotingSessionID          id.VotingSessionID `json:"voting_session_id"`
	BallotBoxID              id.BallotBoxID     `json:"ballot_box_id"`
	No                       int                `json:"no"`
	SecurityToken            string             `json:"-"`
	Choices                  []id.ChoiceID      `json:"choices,omitempty"`
	Used                     bool               `json:"used"`
	ValidUntil               time.Time          `json:"valid_until"`
	PollingStationID         id.TerritoryID     `json:"-"`
	NextTerritorySubdivision id.TerritoryID     `json:"-"`
}

// IsExpiredAt reports whether an unused ballot can no longer be cast.
// A zero ValidUntil never expires.
func (b *Ballot) IsExpiredAt(now time.Time) bool {
	if b.Used || b.ValidUntil.IsZero() {
		return false
	}
	return !now.Before(b.ValidUntil)
}

// IsErased reports whether every identity-revealing field has been wiped.
func (b *Ballot) IsErased() bool {
	return b.SecurityToken == "" && b.PollingStationID == "" && b.NextTerritorySubdivision == ""
}

// BallotRequest blocks repeated ballot issuance for one citizen.
type BallotRequest struct {
	VotingSessionID         id.VotingSessionID `json:"voting_session_id"`
	UserID                  id.UserID          `json:"user_id"`
	BlockBallotRequestUntil time.Time          `json:"block_ballot_request_until"`
}

// IsActiveAt reports whether the block still applies at now.
func (r *BallotRequest) IsActiveAt(now time.Time) bool {
	return now.Before(r.BlockBallotRequestUntil)
}

// IssuedBallot is returned to the citizen after issuance.
type IssuedBallot struct {
	BallotID    id.BallotID    `json:"ballot_id"`
	No          int            `json:"no"`
	BallotBoxID id.BallotBoxID `json:"ballot_box_id"`
	ValidUntil  time.Time      `json:"valid_until"`
}
