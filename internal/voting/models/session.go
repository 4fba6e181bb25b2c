package models

import (
	"time"

	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// SessionType is the phase of the decision workflow a session belongs to.
type SessionType string

const (
	// SessionTypeSubjectSuggestion is kept for historical sessions only.
	SessionTypeSubjectSuggestion  SessionType = "subject_suggestion"
	SessionTypeProposalSuggestion SessionType = "proposal_suggestion"
	SessionTypeGeneralVote        SessionType = "general_vote"
)

// ParseSessionType validates a session type. The deprecated subject
// suggestion phase cannot be used for new sessions.
func ParseSessionType(s string) (SessionType, error) {
	switch t := SessionType(s); t {
	case SessionTypeProposalSuggestion, SessionTypeGeneralVote:
		return t, nil
	case SessionTypeSubjectSuggestion:
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject suggestion sessions are deprecated")
	case "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "session type cannot be empty")
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid session type")
}

// SessionStatus is the one-way lifecycle of a voting session.
type SessionStatus string

const (
	SessionStatusAvailable SessionStatus = "AVAILABLE"
	SessionStatusClosed    SessionStatus = "CLOSED"
)

// VotingSession is the election object scoped to one territory and window.
type VotingSession struct {
	ID              id.VotingSessionID  `json:"id"`
	Type            SessionType         `json:"type"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         *time.Time          `json:"end_time,omitempty"`
	TerritoryID     id.TerritoryID      `json:"territory_id"`
	TerritoryType   id.TerritoryType    `json:"territory_type"`
	Choices         []id.ChoiceID       `json:"choices"`
	ChoiceTiebreak  map[id.ChoiceID]int `json:"choice_tiebreaker"`
	MaxChoices      int                 `json:"max_choices"`
	VotesSum        map[id.ChoiceID]int `json:"votes_sum"`
	VotersCount     int                 `json:"voters_count"`
	Status          SessionStatus       `json:"status"`
	RootBallotBoxID id.BallotBoxID      `json:"root_ballot_box_id"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewVotingSession validates the window and choice limit of a new session.
func NewVotingSession(
	sessionType SessionType,
	territoryID id.TerritoryID,
	territoryType id.TerritoryType,
	start time.Time,
	end *time.Time,
	maxChoices int,
	now time.Time,
) (*VotingSession, error) {
	if maxChoices < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "max choices must be at least 1")
	}
	if territoryID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "territory is required")
	}
	if start.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "start time is required")
	}
	if end != nil {
		if !start.Before(*end) {
			return nil, dErrors.New(dErrors.CodeValidation, "start time must be before end time")
		}
		if !end.After(now) {
			return nil, dErrors.New(dErrors.CodeValidation, "end time must be in the future")
		}
	}
	return &VotingSession{
		ID:             id.NewVotingSessionID(),
		Type:           sessionType,
		StartTime:      start,
		EndTime:        end,
		TerritoryID:    territoryID,
		TerritoryType:  territoryType,
		Choices:        []id.ChoiceID{},
		ChoiceTiebreak: map[id.ChoiceID]int{},
		MaxChoices:     maxChoices,
		VotesSum:       map[id.ChoiceID]int{},
		Status:         SessionStatusAvailable,
		CreatedAt:      now,
	}, nil
}

// IsClosed reports whether the session reached its terminal state.
func (s *VotingSession) IsClosed() bool {
	return s.Status == SessionStatusClosed
}

// IsOpenAt reports whether votes may be issued or cast at now.
func (s *VotingSession) IsOpenAt(now time.Time) bool {
	if s.Status != SessionStatusAvailable {
		return false
	}
	if now.Before(s.StartTime) {
		return false
	}
	return s.EndTime == nil || now.Before(*s.EndTime)
}

// HasEndedAt reports whether an AVAILABLE session is past its end time.
func (s *VotingSession) HasEndedAt(now time.Time) bool {
	return s.EndTime != nil && !now.Before(*s.EndTime)
}

// EnsureOpen returns the temporal error matching the session's state at now.
func (s *VotingSession) EnsureOpen(now time.Time) error {
	switch {
	case s.IsClosed():
		return dErrors.New(dErrors.CodeInvalidState, "voting session is closed")
	case now.Before(s.StartTime):
		return dErrors.New(dErrors.CodeInvalidState, "voting session has not started")
	case s.HasEndedAt(now):
		return dErrors.New(dErrors.CodeInvalidState, "voting session has ended")
	}
	return nil
}

// HasChoice reports whether c is one of the session's valid choices.
func (s *VotingSession) HasChoice(c id.ChoiceID) bool {
	for _, existing := range s.Choices {
		if existing == c {
			return true
		}
	}
	return false
}

// ValidateChoices de-duplicates choices and checks them against the
// session's choice set and limit.
func (s *VotingSession) ValidateChoices(choices []id.ChoiceID) ([]id.ChoiceID, error) {
	distinct := DedupeChoices(choices)
	if len(distinct) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one choice is required")
	}
	if len(distinct) > s.MaxChoices {
		return nil, dErrors.New(dErrors.CodeValidation, "too many choices")
	}
	for _, c := range distinct {
		if !s.HasChoice(c) {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid choice: "+string(c))
		}
	}
	return distinct, nil
}
