package service

import (
	"context"

	id "agora/pkg/domain"
)

// ResetVote wipes every ballot, voter and split of a session, leaving the
// root box empty. Intended for rehearsals and tests.
func (s *Service) ResetVote(ctx context.Context, sessionID id.VotingSessionID) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteBallots(ctx, sessionID); err != nil {
			return wrapStoreErr(err, "ballots")
		}
		if err := s.store.DeleteVoters(ctx, sessionID); err != nil {
			return wrapStoreErr(err, "voters")
		}
		if err := s.store.ResetBallotBoxes(ctx, sessionID, session.RootBallotBoxID); err != nil {
			return wrapStoreErr(err, "ballot boxes")
		}
		if err := s.store.ResetVotingSessionVotes(ctx, sessionID); err != nil {
			return wrapStoreErr(err, "voting session")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.requests.DeleteBySession(ctx, sessionID); err != nil {
		return wrapStoreErr(err, "ballot requests")
	}

	s.logger.WarnContext(ctx, "voting session reset", "voting_session_id", sessionID)
	return nil
}
