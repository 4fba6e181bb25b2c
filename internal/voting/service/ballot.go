package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
	"agora/pkg/requestcontext"
)

// RequestBallot issues an anonymous ballot bound to the citizen's secret.
// The secret is only used to derive the security token and is not stored.
func (s *Service) RequestBallot(ctx context.Context, user requestcontext.AuthenticatedUser, sessionID id.VotingSessionID, secret string) (issued *models.IssuedBallot, err error) {
	ctx, span := s.tracer.Start(ctx, "voting.RequestBallot")
	span.SetAttributes(attribute.String("voting_session_id", sessionID.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	if secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	now := requestcontext.Now(ctx)

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.EnsureOpen(now); err != nil {
		return nil, err
	}
	route, err := s.routeToScope(ctx, session, user.PollingStationID)
	if err != nil {
		return nil, err
	}
	if p, err := s.place(ctx, session, route); err != nil {
		return nil, err
	} else if !p.box.IsNormal() {
		return nil, errBoxBusy()
	}

	if _, err := s.store.GetVoter(ctx, sessionID, user.ID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "already voted")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapStoreErr(err, "voter")
	}

	req := &models.BallotRequest{
		VotingSessionID:         sessionID,
		UserID:                  user.ID,
		BlockBallotRequestUntil: now.Add(s.randomDuration(s.cfg.RequestBlockMin, s.cfg.RequestBlockMax)),
	}
	acquired, err := s.requests.Acquire(ctx, req, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ballot request")
	}
	if !acquired {
		s.metrics.IncrementBallotRequestsBlocked()
		return nil, dErrors.New(dErrors.CodeRateLimited, "a ballot was already requested, retry later")
	}

	validUntil := now.Add(s.randomDuration(s.cfg.BallotValidityMin, s.cfg.BallotValidityMax))
	ballot, err := s.issueBallot(ctx, session, route, user, secret, validUntil)
	if err != nil {
		if relErr := s.requests.Release(context.WithoutCancel(ctx), sessionID, user.ID); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release ballot request",
				"voting_session_id", sessionID,
				"error", relErr,
			)
		}
		return nil, err
	}

	s.metrics.IncrementBallotsIssued()
	s.logger.InfoContext(ctx, "ballot issued",
		"voting_session_id", sessionID,
		"ballot_box_id", ballot.BallotBoxID,
	)
	return &models.IssuedBallot{
		BallotID:    ballot.ID,
		No:          ballot.No,
		BallotBoxID: ballot.BallotBoxID,
		ValidUntil:  ballot.ValidUntil,
	}, nil
}

// maxIssueAttempts bounds the optimistic issuance loop before the caller is
// told to retry later.
const maxIssueAttempts = 3

// errIssueStale marks an attempt whose placement or ballot number was taken
// by a concurrent split or issuance.
var errIssueStale = errors.New("ballot issuance raced a concurrent write")

func (s *Service) issueBallot(ctx context.Context, session *models.VotingSession, route []id.TerritoryID, user requestcontext.AuthenticatedUser, secret string, validUntil time.Time) (*models.Ballot, error) {
	for range maxIssueAttempts {
		ballot, err := s.tryIssueBallot(ctx, session, route, user, secret, validUntil)
		if !errors.Is(err, errIssueStale) {
			return ballot, err
		}
	}
	return nil, errBoxBusy()
}

// tryIssueBallot derives the security token before taking the box lock.
// Under the lock it only confirms that the box is still the deepest one on
// the route and that the chosen number is still free.
func (s *Service) tryIssueBallot(ctx context.Context, session *models.VotingSession, route []id.TerritoryID, user requestcontext.AuthenticatedUser, secret string, validUntil time.Time) (*models.Ballot, error) {
	p, err := s.place(ctx, session, route)
	if err != nil {
		return nil, err
	}
	if !p.box.IsNormal() {
		return nil, errBoxBusy()
	}
	numbers, err := s.store.ListBallotNumbers(ctx, p.box.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballot numbers")
	}
	no, err := s.allocateBallotNumber(numbers)
	if err != nil {
		return nil, err
	}
	tok, err := s.hasher.Hash(secret, no, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive security token")
	}
	ballot := &models.Ballot{
		ID:                       id.NewBallotID(),
		VotingSessionID:          session.ID,
		BallotBoxID:              p.box.ID,
		No:                       no,
		SecurityToken:            tok,
		ValidUntil:               validUntil,
		PollingStationID:         user.PollingStationID,
		NextTerritorySubdivision: p.next,
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		box, err := s.store.GetBallotBox(ctx, p.box.ID)
		if err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		if !box.IsNormal() {
			return errBoxBusy()
		}
		// a split that completed since placement leaves this box NORMAL
		// with part of the route carved out into a child
		current, err := s.place(ctx, session, route)
		if err != nil {
			return err
		}
		if current.box.ID != box.ID {
			return errIssueStale
		}
		taken, err := s.store.ListBallotNumbers(ctx, box.ID)
		if err != nil {
			return wrapStoreErr(err, "ballot numbers")
		}
		if slices.Contains(taken, no) {
			return errIssueStale
		}
		if err := s.store.CreateBallot(ctx, ballot); err != nil {
			return wrapStoreErr(err, "ballot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ballot, nil
}

// ballotNumberSpace is the smallest power of ten holding count+1 numbers,
// never below floor.
func ballotNumberSpace(count, floor int) int {
	limit := 1
	for limit < count+1 {
		limit *= 10
	}
	return max(limit, floor)
}

// allocateBallotNumber picks a free number in [1, space] by probing from a
// random offset, so numbers stay compact without being sequential.
func (s *Service) allocateBallotNumber(used []int) (int, error) {
	limit := ballotNumberSpace(len(used), s.cfg.BallotNumberFloor)
	taken := make(map[int]struct{}, len(used))
	for _, n := range used {
		taken[n] = struct{}{}
	}
	offset := s.intN(limit)
	for i := range limit {
		candidate := (offset+i)%limit + 1
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInternal, "ballot number space exhausted")
}
