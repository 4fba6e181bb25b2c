package service

import (
	"context"
	"errors"
	"time"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
	"agora/pkg/requestcontext"
)

// CreateSessionCommand describes a new voting session.
type CreateSessionCommand struct {
	TerritoryID id.TerritoryID
	Type        models.SessionType
	StartTime   time.Time
	EndTime     *time.Time
	MaxChoices  int
}

// CreateVotingSession creates a session and the root ballot box covering
// the whole electorate.
func (s *Service) CreateVotingSession(ctx context.Context, cmd CreateSessionCommand) (*models.VotingSession, error) {
	sessionType, err := models.ParseSessionType(string(cmd.Type))
	if err != nil {
		return nil, err
	}
	scope, err := s.territories.Resolve(ctx, cmd.TerritoryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown territory")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve territory")
	}

	now := requestcontext.Now(ctx)
	session, err := models.NewVotingSession(sessionType, scope.ID, scope.Type, cmd.StartTime, cmd.EndTime, cmd.MaxChoices, now)
	if err != nil {
		return nil, err
	}
	root := models.NewBallotBox(session.ID, scope.ID, scope.Name, nil, models.BallotBoxStatusNormal, now)
	session.RootBallotBoxID = root.ID

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateVotingSession(ctx, session); err != nil {
			return wrapStoreErr(err, "voting session")
		}
		if err := s.store.CreateBallotBox(ctx, root); err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "voting session created",
		"voting_session_id", session.ID,
		"territory_id", session.TerritoryID,
		"type", session.Type,
	)
	return session, nil
}

// AddChoice appends a choice while the session is open for changes.
func (s *Service) AddChoice(ctx context.Context, sessionID id.VotingSessionID, choice id.ChoiceID, tiebreaker int) error {
	choice, err := id.ParseChoiceID(string(choice))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid choice")
	}
	if err := s.store.AddChoice(ctx, sessionID, choice, tiebreaker); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeInvalidState, "voting session is closed")
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "choice already exists")
		}
		return wrapStoreErr(err, "voting session")
	}
	return nil
}

// GetVotingSession returns the session with its ballot box tree.
func (s *Service) GetVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.SessionView, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	boxes, err := s.store.ListBallotBoxes(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballot boxes")
	}
	return &models.SessionView{
		Session:       session,
		BallotBoxTree: models.BuildBallotBoxTree(session.RootBallotBoxID, boxes),
	}, nil
}

// GetVotingSessionResultsSummary ranks the choices. Once closed the root box
// tally is authoritative; before that the session's running totals are used.
func (s *Service) GetVotingSessionResultsSummary(ctx context.Context, sessionID id.VotingSessionID) (*models.ResultsSummary, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	votes := session.VotesSum
	if session.IsClosed() {
		root, err := s.store.GetBallotBox(ctx, session.RootBallotBoxID)
		if err != nil {
			return nil, wrapStoreErr(err, "ballot box")
		}
		if root.VotesSum != nil {
			votes = root.VotesSum
		}
	}
	return &models.ResultsSummary{
		VotingSessionID: session.ID,
		Status:          session.Status,
		VotersCount:     session.VotersCount,
		Results:         models.RankChoices(session.Choices, votes, session.ChoiceTiebreak),
	}, nil
}

func (s *Service) getSession(ctx context.Context, sessionID id.VotingSessionID) (*models.VotingSession, error) {
	session, err := s.store.GetVotingSession(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "voting session")
	}
	return session, nil
}
