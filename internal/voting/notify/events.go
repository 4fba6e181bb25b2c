// Package notify tells downstream systems that votes were recorded.
// Events carry identifiers only, never ballot contents or choices.
package notify

import (
	"time"

	id "agora/pkg/domain"
)

// VoteRecorded is published on every first vote and modification.
type VoteRecorded struct {
	VotingSessionID id.VotingSessionID `json:"voting_session_id"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// ParticipationRecorded feeds the citizen's own participation statistics.
type ParticipationRecorded struct {
	UserID          id.UserID          `json:"user_id"`
	VotingSessionID id.VotingSessionID `json:"voting_session_id"`
	Modified        bool               `json:"modified"`
	OccurredAt      time.Time          `json:"occurred_at"`
}
