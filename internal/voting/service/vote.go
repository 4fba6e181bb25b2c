package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
	"agora/pkg/requestcontext"
)

// VoteCommand casts or modifies the vote on a ballot.
type VoteCommand struct {
	BallotID id.BallotID
	Secret   string
	Choices  []id.ChoiceID
	Modify   bool
}

// Vote records a choice on a ballot after proving ownership with the secret.
func (s *Service) Vote(ctx context.Context, user requestcontext.AuthenticatedUser, cmd VoteCommand) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "voting.Vote")
	span.SetAttributes(attribute.Bool("modify", cmd.Modify))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
		s.metrics.ObserveVote(start)
	}()

	now := requestcontext.Now(ctx)
	ballot, err := s.store.GetBallot(ctx, cmd.BallotID)
	if err != nil {
		return wrapStoreErr(err, "ballot")
	}
	session, err := s.getSession(ctx, ballot.VotingSessionID)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("voting_session_id", session.ID.String()))
	if err := session.EnsureOpen(now); err != nil {
		return err
	}
	if err := s.verifyToken(ctx, user, ballot, cmd.Secret); err != nil {
		return err
	}
	choices, err := session.ValidateChoices(cmd.Choices)
	if err != nil {
		return err
	}
	box, err := s.store.GetBallotBox(ctx, ballot.BallotBoxID)
	if err != nil {
		return wrapStoreErr(err, "ballot box")
	}
	if !box.IsNormal() {
		return errBoxBusy()
	}

	if cmd.Modify {
		err = s.modifyVote(ctx, user, session, ballot, choices)
	} else {
		err = s.castVote(ctx, user, session, ballot, choices, now)
	}
	if err != nil {
		return err
	}

	s.metrics.IncrementVotesCast(cmd.Modify)
	s.afterVote(ctx, user.ID, session.ID, cmd.Modify)
	return nil
}

// verifyToken never tells the caller which input failed to match.
func (s *Service) verifyToken(ctx context.Context, user requestcontext.AuthenticatedUser, ballot *models.Ballot, secret string) error {
	if secret == "" {
		return dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	ok, err := s.hasher.Verify(secret, ballot.No, user.ID, ballot.SecurityToken)
	if err != nil || !ok {
		s.metrics.IncrementTokenMismatches()
		s.logger.WarnContext(ctx, "ballot credential rejected",
			"ballot_id", ballot.ID,
			"voting_session_id", ballot.VotingSessionID,
		)
		return dErrors.New(dErrors.CodeForbidden, "invalid ballot credentials")
	}
	return nil
}

func (s *Service) castVote(ctx context.Context, user requestcontext.AuthenticatedUser, session *models.VotingSession, ballot *models.Ballot, choices []id.ChoiceID, now time.Time) error {
	if ballot.Used {
		return dErrors.New(dErrors.CodeConflict, "ballot already used")
	}
	if ballot.IsExpiredAt(now) {
		return dErrors.New(dErrors.CodeInvalidState, "ballot has expired")
	}
	var validUntil time.Time
	if session.EndTime != nil {
		validUntil = *session.EndTime
	}

	var (
		updated *models.BallotBox
		next    id.TerritoryID
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		// claiming the ballot first pins it: a migration cannot move it
		// until this transaction ends
		applied, err := s.store.MarkBallotUsed(ctx, ballot.ID, choices, validUntil)
		if err != nil {
			return wrapStoreErr(err, "ballot")
		}
		if !applied {
			return dErrors.New(dErrors.CodeConflict, "ballot already used")
		}
		current, err := s.store.GetBallot(ctx, ballot.ID)
		if err != nil {
			return wrapStoreErr(err, "ballot")
		}
		box, err := s.store.GetBallotBox(ctx, current.BallotBoxID)
		if err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		if !box.IsNormal() {
			return errBoxBusy()
		}
		next = current.NextTerritorySubdivision

		voter := &models.Voter{
			ID:                       id.NewVoterID(),
			VotingSessionID:          session.ID,
			UserID:                   user.ID,
			Name:                     user.Name,
			BallotBoxID:              current.BallotBoxID,
			PollingStationID:         current.PollingStationID,
			NextTerritorySubdivision: next,
		}
		if err := s.store.CreateVoter(ctx, voter); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "already voted")
			}
			return wrapStoreErr(err, "voter")
		}
		if err := s.store.IncrementVotingSessionVotes(ctx, session.ID, 1, models.CountChoices(choices)); err != nil {
			return wrapStoreErr(err, "voting session")
		}
		// the increment holds the session row, so a close cannot land between
		// this read and the commit
		latest, err := s.getSession(ctx, session.ID)
		if err != nil {
			return err
		}
		if err := latest.EnsureOpen(now); err != nil {
			return err
		}
		var subdivisions map[id.TerritoryID]int
		if next != "" {
			subdivisions = map[id.TerritoryID]int{next: 1}
		}
		updated, err = s.store.IncrementBallotBoxVotes(ctx, current.BallotBoxID, 1, subdivisions)
		if err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if updated.ShouldSplit(next, s.cfg.SplitThreshold, s.cfg.SplitFactor) {
		if err := s.Split(ctx, session, updated.ID, next); err != nil {
			// the vote is recorded; the next vote into this box retries the split
			s.logger.ErrorContext(ctx, "ballot box split failed",
				"voting_session_id", session.ID,
				"ballot_box_id", updated.ID,
				"subdivision", next,
				"error", err,
			)
		}
	}
	return nil
}

// modifyVote adjusts the session totals by the difference between the old
// and new choices. Box counters track voters, not choices, and stay put.
func (s *Service) modifyVote(ctx context.Context, user requestcontext.AuthenticatedUser, session *models.VotingSession, ballot *models.Ballot, choices []id.ChoiceID) error {
	if !s.cfg.AllowVoteModification {
		return dErrors.New(dErrors.CodeForbidden, "vote modification is not allowed")
	}
	if !ballot.Used {
		return dErrors.New(dErrors.CodeInvalidState, "ballot has not been cast yet")
	}
	if _, err := s.store.GetVoter(ctx, session.ID, user.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidState, "no vote to modify")
		}
		return wrapStoreErr(err, "voter")
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetBallot(ctx, ballot.ID)
		if err != nil {
			return wrapStoreErr(err, "ballot")
		}
		delta := models.ChoiceDelta(current.Choices, choices)
		if len(delta) == 0 {
			return nil
		}
		if err := s.store.UpdateBallotChoices(ctx, ballot.ID, choices); err != nil {
			return wrapStoreErr(err, "ballot")
		}
		if err := s.store.IncrementVotingSessionVotes(ctx, session.ID, 0, delta); err != nil {
			return wrapStoreErr(err, "voting session")
		}
		return nil
	})
}

// afterVote notifies downstream collaborators. Their failures never undo a vote.
func (s *Service) afterVote(ctx context.Context, userID id.UserID, sessionID id.VotingSessionID, modified bool) {
	if s.participation != nil {
		if err := s.participation.RecordParticipation(ctx, userID, sessionID, modified); err != nil {
			s.logger.WarnContext(ctx, "failed to record participation",
				"voting_session_id", sessionID,
				"error", err,
			)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NewVote(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "failed to publish new vote",
				"voting_session_id", sessionID,
				"error", err,
			)
		}
	}
}
