package service

import (
	"context"
	"errors"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
	"agora/pkg/requestcontext"
)

// GetVotingSessionAuditableData exports the caller's own box once the
// session is closed: cast ballots by number and voters by name, as two lists
// with nothing to join them on.
func (s *Service) GetVotingSessionAuditableData(ctx context.Context, sessionID id.VotingSessionID, user requestcontext.AuthenticatedUser) (*models.AuditData, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsClosed() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "audit data is available once the voting session is closed")
	}

	box, err := s.auditBox(ctx, session, user)
	if err != nil {
		return nil, err
	}
	return s.auditData(ctx, box)
}

// auditBox is the box holding the citizen's vote, or for a citizen who did
// not vote, the box their polling station falls in.
func (s *Service) auditBox(ctx context.Context, session *models.VotingSession, user requestcontext.AuthenticatedUser) (*models.BallotBox, error) {
	voter, err := s.store.GetVoter(ctx, session.ID, user.ID)
	switch {
	case err == nil:
		box, err := s.store.GetBallotBox(ctx, voter.BallotBoxID)
		return box, wrapStoreErr(err, "ballot box")
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, wrapStoreErr(err, "voter")
	}

	route, err := s.routeToScope(ctx, session, user.PollingStationID)
	if err != nil {
		return nil, err
	}
	p, err := s.place(ctx, session, route)
	if err != nil {
		return nil, err
	}
	return p.box, nil
}

func (s *Service) auditData(ctx context.Context, box *models.BallotBox) (*models.AuditData, error) {
	ballots, err := s.store.ListBallots(ctx, box.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballots")
	}
	voters, err := s.store.ListVoters(ctx, box.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "voters")
	}
	return models.NewAuditData(box, ballots, voters), nil
}
