package service

import (
	"context"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

// migrate moves every voter and ballot of parentID tagged with subdivision
// into childID and shifts the box counters to match. Each record is
// re-tagged with the territory just below subdivision on its own route, the
// key for later splits of the child. Moves are conditional on the record
// still sitting in the parent, so calling migrate twice is safe. Session
// totals are untouched.
//
// moved counts voters, which is the unit of the box counters.
func (s *Service) migrate(ctx context.Context, session *models.VotingSession, parentID id.BallotBoxID, subdivision id.TerritoryID, childID id.BallotBoxID) (moved int, err error) {
	ctx, span := s.tracer.Start(ctx, "voting.migrate")
	defer span.End()

	voters, err := s.store.ListVotersBySubdivision(ctx, parentID, subdivision)
	if err != nil {
		return 0, wrapStoreErr(err, "voters")
	}
	ballots, err := s.store.ListBallotsBySubdivision(ctx, parentID, subdivision)
	if err != nil {
		return 0, wrapStoreErr(err, "ballots")
	}
	if len(voters) == 0 && len(ballots) == 0 {
		return 0, nil
	}

	cache := make(map[id.TerritoryID]id.TerritoryID)
	next := func(station id.TerritoryID) (id.TerritoryID, error) {
		if n, ok := cache[station]; ok {
			return n, nil
		}
		n, err := s.nextBelow(ctx, station, session.TerritoryType, subdivision)
		if err != nil {
			return "", err
		}
		cache[station] = n
		return n, nil
	}
	// resolve before the transaction; the directory is a remote collaborator
	voterNext := make([]id.TerritoryID, len(voters))
	for i, v := range voters {
		if voterNext[i], err = next(v.PollingStationID); err != nil {
			return 0, err
		}
	}
	ballotNext := make([]id.TerritoryID, len(ballots))
	for i, b := range ballots {
		if ballotNext[i], err = next(b.PollingStationID); err != nil {
			return 0, err
		}
	}

	var movedBallots int
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		moved, movedBallots = 0, 0
		perSubdivision := make(map[id.TerritoryID]int)
		for i, v := range voters {
			applied, err := s.store.MoveVoter(ctx, v.ID, models.Move{
				From:            parentID,
				FromSubdivision: subdivision,
				To:              childID,
				NewSubdivision:  voterNext[i],
			})
			if err != nil {
				return wrapStoreErr(err, "voter")
			}
			if !applied {
				continue
			}
			moved++
			if voterNext[i] != "" {
				perSubdivision[voterNext[i]]++
			}
		}
		for i, b := range ballots {
			applied, err := s.store.MoveBallot(ctx, b.ID, models.Move{
				From:            parentID,
				FromSubdivision: subdivision,
				To:              childID,
				NewSubdivision:  ballotNext[i],
			})
			if err != nil {
				return wrapStoreErr(err, "ballot")
			}
			if applied {
				movedBallots++
			}
		}
		if moved == 0 {
			return nil
		}
		if _, err := s.store.IncrementBallotBoxVotes(ctx, parentID, -moved, map[id.TerritoryID]int{subdivision: -moved}); err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		if _, err := s.store.IncrementBallotBoxVotes(ctx, childID, moved, perSubdivision); err != nil {
			return wrapStoreErr(err, "ballot box")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	s.metrics.AddRecordsMigrated(moved, movedBallots)
	return moved, nil
}
