// Package ports defines the interfaces the voting service consumes.
// Stores are pure I/O: every conditional write below is the only mutual
// exclusion the service relies on, there are no in-process locks.
package ports

import (
	"context"
	"time"

	"agora/internal/territory"
	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

// Transactor runs fn so that every store call made with the ctx it receives
// commits or rolls back together.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionStore persists voting sessions and their running totals.
type SessionStore interface {
	CreateVotingSession(ctx context.Context, session *models.VotingSession) error
	GetVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.VotingSession, error)

	// ListEndedVotingSessions returns AVAILABLE sessions whose end time is not after now.
	ListEndedVotingSessions(ctx context.Context, now time.Time) ([]*models.VotingSession, error)

	// AddChoice appends a choice while the session is AVAILABLE.
	// Returns sentinel.ErrInvalidState when closed and sentinel.ErrConflict on duplicates.
	AddChoice(ctx context.Context, sessionID id.VotingSessionID, choice id.ChoiceID, tiebreaker int) error

	// CloseVotingSession flips AVAILABLE to CLOSED; applied is false when it was already closed.
	CloseVotingSession(ctx context.Context, sessionID id.VotingSessionID) (applied bool, err error)

	// IncrementVotingSessionVotes atomically adds to the voter count and per-choice sums.
	IncrementVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID, voters int, choices map[id.ChoiceID]int) error

	// ResetVotingSessionVotes zeroes the voter count and per-choice sums.
	ResetVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID) error
}

// BallotBoxStore persists the ballot box tree of a session.
type BallotBoxStore interface {
	// CreateBallotBox returns sentinel.ErrConflict when a box already exists
	// for the same session and territory.
	CreateBallotBox(ctx context.Context, box *models.BallotBox) error
	GetBallotBox(ctx context.Context, boxID id.BallotBoxID) (*models.BallotBox, error)

	// FindBallotBoxes returns the boxes of a session rooted at any of territories.
	FindBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, territories []id.TerritoryID) ([]*models.BallotBox, error)
	ListBallotBoxes(ctx context.Context, sessionID id.VotingSessionID) ([]*models.BallotBox, error)

	// TransitionBallotBoxStatus applies from→to only if the box is currently in from.
	TransitionBallotBoxStatus(ctx context.Context, boxID id.BallotBoxID, from, to models.BallotBoxStatus) (applied bool, err error)
	AppendChildBallotBox(ctx context.Context, parentID, childID id.BallotBoxID) error

	// IncrementBallotBoxVotes atomically adjusts the box counters and returns the updated box.
	IncrementBallotBoxVotes(ctx context.Context, boxID id.BallotBoxID, votes int, subdivisions map[id.TerritoryID]int) (*models.BallotBox, error)
	SaveBallotBoxTally(ctx context.Context, boxID id.BallotBoxID, votesSum map[id.ChoiceID]int, totalVotes int) error

	// ResetBallotBoxes deletes every box of the session except keepID and
	// returns keepID to an empty NORMAL state.
	ResetBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, keepID id.BallotBoxID) error
}

// BallotStore persists anonymous ballots.
type BallotStore interface {
	CreateBallot(ctx context.Context, ballot *models.Ballot) error
	GetBallot(ctx context.Context, ballotID id.BallotID) (*models.Ballot, error)
	ListBallotNumbers(ctx context.Context, boxID id.BallotBoxID) ([]int, error)

	// MarkBallotUsed records the first choice on an unused ballot.
	// applied is false when the ballot was already used.
	MarkBallotUsed(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID, validUntil time.Time) (applied bool, err error)
	UpdateBallotChoices(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID) error

	// ListBallots returns every ballot of a box.
	ListBallots(ctx context.Context, boxID id.BallotBoxID) ([]*models.Ballot, error)
	ListBallotsBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Ballot, error)

	// MoveBallot relocates a ballot only if it still sits in move.From under move.FromSubdivision.
	MoveBallot(ctx context.Context, ballotID id.BallotID, move models.Move) (applied bool, err error)

	EraseBallotIdentities(ctx context.Context, sessionID id.VotingSessionID) (int, error)
	DeleteUnusedBallots(ctx context.Context, sessionID id.VotingSessionID) (int, error)
	// DeleteExpiredBallots removes unused ballots whose validity ended before now.
	DeleteExpiredBallots(ctx context.Context, now time.Time) (int, error)
	DeleteBallots(ctx context.Context, sessionID id.VotingSessionID) error
}

// VoterStore persists voter registrations.
type VoterStore interface {
	// CreateVoter returns sentinel.ErrConflict when the citizen already voted.
	CreateVoter(ctx context.Context, voter *models.Voter) error
	GetVoter(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) (*models.Voter, error)
	ListVoters(ctx context.Context, boxID id.BallotBoxID) ([]*models.Voter, error)
	ListVotersBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Voter, error)
	MoveVoter(ctx context.Context, voterID id.VoterID, move models.Move) (applied bool, err error)
	DeleteVoters(ctx context.Context, sessionID id.VotingSessionID) error
}

// Store is the full persistence surface of the voting module.
type Store interface {
	Transactor
	SessionStore
	BallotBoxStore
	BallotStore
	VoterStore
}

// BallotRequestStore rate-limits ballot issuance per citizen.
type BallotRequestStore interface {
	// Acquire writes req unless an unexpired block exists at now.
	Acquire(ctx context.Context, req *models.BallotRequest, now time.Time) (applied bool, err error)
	// Release removes a block, compensating an issuance that failed after Acquire.
	Release(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) error
	DeleteBySession(ctx context.Context, sessionID id.VotingSessionID) error
}

// TerritoryDirectory resolves territories. Owned by an external system.
type TerritoryDirectory interface {
	Resolve(ctx context.Context, territoryID id.TerritoryID) (*territory.Territory, error)
	GetTerritoriesBulk(ctx context.Context, ids []id.TerritoryID) (map[id.TerritoryID]*territory.Territory, error)
}

// VoteNotifier tells downstream collaborators that a vote was recorded.
type VoteNotifier interface {
	NewVote(ctx context.Context, sessionID id.VotingSessionID) error
}

// ParticipationRecorder updates a citizen's own participation statistics.
type ParticipationRecorder interface {
	RecordParticipation(ctx context.Context, userID id.UserID, sessionID id.VotingSessionID, modified bool) error
}

// AuditArchiver publishes the post-close audit export of a box.
type AuditArchiver interface {
	PublishAudit(ctx context.Context, data *models.AuditData) error
}

// TokenHasher binds a ballot to the citizen's secret.
type TokenHasher interface {
	Hash(secret string, no int, userID id.UserID) (string, error)
	// Verify reports a mismatch as false; err is reserved for malformed hashes.
	Verify(secret string, no int, userID id.UserID, encoded string) (bool, error)
}
