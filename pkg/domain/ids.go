// Package domain holds identifier primitives shared across modules.
//
// UUID-backed identifiers are distinct types so a BallotID can never be passed
// where a UserID is expected. Construct them from external input with the
// Parse* functions; New* functions mint fresh random identifiers.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "agora/pkg/domain-errors"
)

// UserID identifies an authenticated citizen. Issued by the identity provider.
type UserID uuid.UUID

// VotingSessionID identifies a voting session.
type VotingSessionID uuid.UUID

// BallotBoxID identifies a node of a session's ballot box tree.
type BallotBoxID uuid.UUID

// BallotID identifies an anonymous ballot.
type BallotID uuid.UUID

// VoterID identifies a voter registration record.
type VoterID uuid.UUID

// TerritoryID is an opaque identifier owned by the territory directory.
type TerritoryID string

// TerritoryType names a level of the territory hierarchy (e.g. "region").
type TerritoryType string

// ChoiceID is an opaque identifier of a selectable option, owned by the
// decision workflow that opened the session.
type ChoiceID string

func NewVotingSessionID() VotingSessionID { return VotingSessionID(uuid.New()) }
func NewBallotBoxID() BallotBoxID         { return BallotBoxID(uuid.New()) }
func NewBallotID() BallotID               { return BallotID(uuid.New()) }
func NewVoterID() VoterID                 { return VoterID(uuid.New()) }

func parseUUID(kind, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// ParseUserID parses a user identifier from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

// ParseVotingSessionID parses a voting session identifier from external input.
func ParseVotingSessionID(s string) (VotingSessionID, error) {
	u, err := parseUUID("voting session id", s)
	return VotingSessionID(u), err
}

// ParseBallotBoxID parses a ballot box identifier from external input.
func ParseBallotBoxID(s string) (BallotBoxID, error) {
	u, err := parseUUID("ballot box id", s)
	return BallotBoxID(u), err
}

// ParseBallotID parses a ballot identifier from external input.
func ParseBallotID(s string) (BallotID, error) {
	u, err := parseUUID("ballot id", s)
	return BallotID(u), err
}

// ParseVoterID parses a voter identifier from external input.
func ParseVoterID(s string) (VoterID, error) {
	u, err := parseUUID("voter id", s)
	return VoterID(u), err
}

// ParseTerritoryID trims and validates a territory identifier.
func ParseTerritoryID(s string) (TerritoryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "territory id cannot be empty")
	}
	return TerritoryID(s), nil
}

// ParseChoiceID trims and validates a choice identifier.
func ParseChoiceID(s string) (ChoiceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "choice id cannot be empty")
	}
	return ChoiceID(s), nil
}

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id VotingSessionID) String() string { return uuid.UUID(id).String() }
func (id BallotBoxID) String() string     { return uuid.UUID(id).String() }
func (id BallotID) String() string        { return uuid.UUID(id).String() }
func (id VoterID) String() string         { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id VotingSessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BallotBoxID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BallotID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id VoterID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id VotingSessionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id BallotBoxID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id BallotID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id VoterID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error          { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VotingSessionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BallotBoxID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BallotID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VoterID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
