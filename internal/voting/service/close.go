package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// CloseVotingSession closes the session, irreversibly erases what links
// ballots to citizens, and tallies the box tree.
//
// Closing an already closed session does nothing, except finishing a tally
// that a previous close did not get to persist.
func (s *Service) CloseVotingSession(ctx context.Context, sessionID id.VotingSessionID) (closed *models.VotingSession, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "voting.CloseVotingSession")
	span.SetAttributes(attribute.String("voting_session_id", sessionID.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var applied bool
	var erased, deleted int
	if !session.IsClosed() {
		err = s.store.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			applied, err = s.store.CloseVotingSession(ctx, sessionID)
			if err != nil || !applied {
				return wrapStoreErr(err, "voting session")
			}
			if erased, err = s.store.EraseBallotIdentities(ctx, sessionID); err != nil {
				return wrapStoreErr(err, "ballots")
			}
			if deleted, err = s.store.DeleteUnusedBallots(ctx, sessionID); err != nil {
				return wrapStoreErr(err, "ballots")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	root, err := s.store.GetBallotBox(ctx, session.RootBallotBoxID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballot box")
	}
	if !applied && root.TotalVotesCount != nil {
		return s.getSession(ctx, sessionID)
	}

	boxes, err := s.tally(ctx, session)
	if err != nil {
		return nil, err
	}
	if applied {
		s.metrics.IncrementSessionsClosed()
		s.metrics.ObserveClose(start)
		s.archive(ctx, boxes)
	}

	s.logger.InfoContext(ctx, "voting session closed",
		"voting_session_id", sessionID,
		"ballot_boxes", len(boxes),
		"ballots_erased", erased,
		"ballots_deleted", deleted,
	)
	return s.getSession(ctx, sessionID)
}

// tally aggregates every box bottom-up: each box sums its own used ballots
// and adds the totals of its children. Sibling subtrees run concurrently.
func (s *Service) tally(ctx context.Context, session *models.VotingSession) ([]*models.BallotBox, error) {
	boxes, err := s.store.ListBallotBoxes(ctx, session.ID)
	if err != nil {
		return nil, wrapStoreErr(err, "ballot boxes")
	}
	byID := make(map[id.BallotBoxID]*models.BallotBox, len(boxes))
	for _, b := range boxes {
		byID[b.ID] = b
	}

	type result struct {
		votes map[id.ChoiceID]int
		total int
	}
	var tallyBox func(ctx context.Context, boxID id.BallotBoxID, depth int) (result, error)
	tallyBox = func(ctx context.Context, boxID id.BallotBoxID, depth int) (result, error) {
		box, ok := byID[boxID]
		if !ok || depth > len(boxes) {
			return result{}, dErrors.New(dErrors.CodeInvariantViolation, "ballot box tree is inconsistent")
		}

		children := make([]result, len(box.ChildBallotBoxIDs))
		g, gctx := errgroup.WithContext(ctx)
		for i, childID := range box.ChildBallotBoxIDs {
			g.Go(func() error {
				r, err := tallyBox(gctx, childID, depth+1)
				children[i] = r
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return result{}, err
		}

		ballots, err := s.store.ListBallots(ctx, boxID)
		if err != nil {
			return result{}, wrapStoreErr(err, "ballots")
		}
		out := result{votes: make(map[id.ChoiceID]int, len(session.Choices))}
		for _, c := range session.Choices {
			out.votes[c] = 0
		}
		for _, b := range ballots {
			if !b.Used {
				continue
			}
			out.total++
			for _, c := range b.Choices {
				out.votes[c]++
			}
		}
		for _, child := range children {
			out.total += child.total
			for c, n := range child.votes {
				out.votes[c] += n
			}
		}
		if err := s.store.SaveBallotBoxTally(ctx, boxID, out.votes, out.total); err != nil {
			return result{}, wrapStoreErr(err, "ballot box")
		}
		return out, nil
	}

	if _, err := tallyBox(ctx, session.RootBallotBoxID, 0); err != nil {
		return nil, err
	}
	return boxes, nil
}

// archive publishes each box's audit export. Failures are logged only; the
// same data stays available through GetVotingSessionAuditableData.
func (s *Service) archive(ctx context.Context, boxes []*models.BallotBox) {
	if s.archiver == nil {
		return
	}
	for _, box := range boxes {
		data, err := s.auditData(ctx, box)
		if err == nil {
			err = s.archiver.PublishAudit(ctx, data)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to archive audit data",
				"voting_session_id", box.VotingSessionID,
				"ballot_box_id", box.ID,
				"error", err,
			)
		}
	}
}
