package service

import (
	"context"
	"errors"

	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
)

// CloseEndedSessions closes every session past its end time and returns how
// many were closed. It keeps going past individual failures.
func (s *Service) CloseEndedSessions(ctx context.Context) (int, error) {
	sessions, err := s.store.ListEndedVotingSessions(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, wrapStoreErr(err, "voting sessions")
	}
	var (
		closed int
		errs   []error
	)
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		if _, err := s.CloseVotingSession(ctx, session.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// SweepExpiredBallots deletes unused ballots whose validity has lapsed.
func (s *Service) SweepExpiredBallots(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredBallots(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep expired ballots")
	}
	s.metrics.AddSweptBallots(n)
	return n, nil
}
