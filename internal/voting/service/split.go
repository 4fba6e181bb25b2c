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

// Split carves subdivision out of the box into a child box of its own.
//
// The box status is the lock: only the caller whose NORMAL→SPLIT_IN_PROGRESS
// transition applies does the work, everyone else returns nil. Votes and
// ballot requests that hit either box while a split runs get a retryable
// unavailable error.
func (s *Service) Split(ctx context.Context, session *models.VotingSession, boxID id.BallotBoxID, subdivision id.TerritoryID) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "voting.Split")
	span.SetAttributes(
		attribute.String("voting_session_id", session.ID.String()),
		attribute.String("ballot_box_id", boxID.String()),
		attribute.String("subdivision", string(subdivision)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	if subdivision == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot split a box on its own territory")
	}
	applied, err := s.store.TransitionBallotBoxStatus(ctx, boxID, models.BallotBoxStatusNormal, models.BallotBoxStatusSplitInProgress)
	if err != nil {
		return wrapStoreErr(err, "ballot box")
	}
	if !applied {
		return nil
	}
	s.metrics.IncrementSplitsStarted()
	defer s.metrics.ObserveSplit(start)

	child, err := s.createChildBox(ctx, session, boxID, subdivision)
	if err != nil {
		s.abortSplit(ctx, boxID, nil)
		return err
	}
	if child == nil {
		// another split already owns this territory
		s.abortSplit(ctx, boxID, nil)
		return nil
	}

	moved, err := s.migrate(ctx, session, boxID, subdivision, child.ID)
	if err != nil {
		s.abortSplit(ctx, boxID, &child.ID)
		return err
	}
	if _, err := s.store.TransitionBallotBoxStatus(ctx, child.ID, models.BallotBoxStatusCreationInProgress, models.BallotBoxStatusNormal); err != nil {
		s.abortSplit(ctx, boxID, &child.ID)
		return wrapStoreErr(err, "ballot box")
	}
	if _, err := s.store.TransitionBallotBoxStatus(ctx, boxID, models.BallotBoxStatusSplitInProgress, models.BallotBoxStatusNormal); err != nil {
		s.abortSplit(ctx, boxID, &child.ID)
		return wrapStoreErr(err, "ballot box")
	}

	// Settle pass: votes that entered the parent between the status flip and
	// the end of the first pass are still tagged with subdivision. Moving them
	// now is idempotent and leaves nothing behind.
	settled, err := s.migrate(ctx, session, boxID, subdivision, child.ID)
	if err != nil {
		s.metrics.IncrementSplitsFailed()
		return err
	}

	s.metrics.IncrementSplitsCompleted()
	s.logger.InfoContext(ctx, "ballot box split",
		"voting_session_id", session.ID,
		"parent_ballot_box_id", boxID,
		"child_ballot_box_id", child.ID,
		"subdivision", subdivision,
		"moved", moved,
		"settled", settled,
	)
	return nil
}

// createChildBox creates the child box and links it to its parent. It
// returns nil without error when a box for subdivision already exists under
// another parent. A leftover child of this same parent from an interrupted
// split is reused so its migration can finish.
func (s *Service) createChildBox(ctx context.Context, session *models.VotingSession, parentID id.BallotBoxID, subdivision id.TerritoryID) (*models.BallotBox, error) {
	name := string(subdivision)
	if t, err := s.territories.Resolve(ctx, subdivision); err == nil {
		name = t.Name
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subdivision")
	}

	parent := parentID
	child := models.NewBallotBox(session.ID, subdivision, name, &parent, models.BallotBoxStatusCreationInProgress, requestcontext.Now(ctx))
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateBallotBox(ctx, child); err != nil {
			return err
		}
		return s.store.AppendChildBallotBox(ctx, parentID, child.ID)
	})
	if err == nil {
		return child, nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, wrapStoreErr(err, "ballot box")
	}

	existing, err := s.store.FindBallotBoxes(ctx, session.ID, []id.TerritoryID{subdivision})
	if err != nil {
		return nil, wrapStoreErr(err, "ballot boxes")
	}
	if len(existing) == 0 || existing[0].ParentBallotBoxID == nil || *existing[0].ParentBallotBoxID != parentID {
		return nil, nil
	}
	s.logger.InfoContext(ctx, "resuming interrupted ballot box split",
		"voting_session_id", session.ID,
		"child_ballot_box_id", existing[0].ID,
	)
	return existing[0], nil
}

// abortSplit returns both boxes to NORMAL. Migration is idempotent, so the
// next vote that meets the split condition picks the work up again.
func (s *Service) abortSplit(ctx context.Context, parentID id.BallotBoxID, childID *id.BallotBoxID) {
	s.metrics.IncrementSplitsFailed()
	ctx = context.WithoutCancel(ctx)
	if childID != nil {
		if _, err := s.store.TransitionBallotBoxStatus(ctx, *childID, models.BallotBoxStatusCreationInProgress, models.BallotBoxStatusNormal); err != nil {
			s.logger.ErrorContext(ctx, "failed to release child ballot box",
				"ballot_box_id", *childID,
				"error", err,
			)
		}
	}
	if _, err := s.store.TransitionBallotBoxStatus(ctx, parentID, models.BallotBoxStatusSplitInProgress, models.BallotBoxStatusNormal); err != nil {
		s.logger.ErrorContext(ctx, "failed to release ballot box after split",
			"ballot_box_id", parentID,
			"error", err,
		)
	}
}
