package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"agora/internal/voting/models"
	"agora/internal/voting/ports"
	"agora/internal/voting/store/memory"
	"agora/internal/voting/token"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
	agoratest "agora/pkg/testutil"
)

// hookedStore runs beforeTx once, outside any transaction, right before the
// next transaction starts. It stands in for a concurrent writer landing
// between a read and the transaction that acts on it.
type hookedStore struct {
	*memory.InMemoryStore
	beforeTx func()
}

func (h *hookedStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if hook := h.beforeTx; hook != nil {
		h.beforeTx = nil
		hook()
	}
	return h.InMemoryStore.RunInTx(ctx, fn)
}

// lockCheckingHasher records whether the store was held by a transaction
// while a token was being derived.
type lockCheckingHasher struct {
	ports.TokenHasher
	store          *memory.InMemoryStore
	sessionID      id.VotingSessionID
	heldDuringHash bool
}

func (h *lockCheckingHasher) Hash(secret string, no int, userID id.UserID) (string, error) {
	done := make(chan struct{})
	go func() {
		_, _ = h.store.GetVotingSession(context.Background(), h.sessionID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		h.heldDuringHash = true
	}
	return h.TokenHasher.Hash(secret, no, userID)
}

func (s *ServiceSuite) newHookedService(cfg Config, hasher ports.TokenHasher) (*Service, *hookedStore) {
	if hasher == nil {
		hasher = token.NewHasher(token.Params{Time: 1, Memory: 1024, Threads: 1})
	}
	hooked := &hookedStore{InMemoryStore: s.store}
	svc, err := New(hooked, s.requests, s.territories, hasher,
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return svc, hooked
}

func (s *ServiceSuite) TestRequestBallotAfterSplitCompletes() {
	s.service = s.newService(splitConfig())
	s.castVotes(citizens("south", "B1", 4), "B")
	s.castVotes(citizens("north", "A1", 2), "A")
	s.Require().Len(s.boxes(), 1)
	root := s.boxFor("T")

	svc, hooked := s.newHookedService(splitConfig(), nil)
	hooked.beforeTx = func() {
		s.Require().NoError(svc.Split(s.ctx, s.session, root.ID, "D1"))
	}

	late := agoratest.Citizen("late", "A2")
	issued, err := svc.RequestBallot(s.ctx, late, s.session.ID, secretFor(late))
	s.Require().NoError(err)
	s.Require().Nil(hooked.beforeTx)
	s.Require().Len(s.boxes(), 2)

	child := s.boxFor("D1")
	s.Equal(child.ID, issued.BallotBoxID)

	s.Require().NoError(svc.Vote(s.ctx, late, VoteCommand{
		BallotID: issued.BallotID,
		Secret:   secretFor(late),
		Choices:  []id.ChoiceID{"A"},
	}))
	voter, err := s.store.GetVoter(s.ctx, s.session.ID, late.ID)
	s.Require().NoError(err)
	s.Equal(child.ID, voter.BallotBoxID)
	s.Equal(id.TerritoryID("A2"), voter.NextTerritorySubdivision)

	root = s.boxFor("T")
	s.Equal(4, root.VotesCount)
	s.Zero(root.BallotBySubdivision["D1"])
	child = s.boxFor("D1")
	s.Equal(3, child.VotesCount)
	s.Equal(map[id.TerritoryID]int{"A1": 2, "A2": 1}, child.BallotBySubdivision)
}

func (s *ServiceSuite) TestTokenIsDerivedOutsideTheStoreLock() {
	hasher := &lockCheckingHasher{
		TokenHasher: token.NewHasher(token.Params{Time: 1, Memory: 1024, Threads: 1}),
		store:       s.store,
		sessionID:   s.session.ID,
	}
	svc, _ := s.newHookedService(DefaultConfig(), hasher)

	user := agoratest.Citizen("ana", "P01")
	issued, err := svc.RequestBallot(s.ctx, user, s.session.ID, secretFor(user))
	s.Require().NoError(err)
	s.False(hasher.heldDuringHash)

	ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
	s.Require().NoError(err)
	ok, err := hasher.Verify(secretFor(user), ballot.No, user.ID, ballot.SecurityToken)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestVoteRechecksStateInsideTransaction() {
	svc, hooked := s.newHookedService(DefaultConfig(), nil)

	s.Run("box started splitting", func() {
		user := agoratest.Citizen("busy", "P01")
		issued := s.issue(user)
		root := s.boxFor("T")
		hooked.beforeTx = func() {
			applied, err := s.store.TransitionBallotBoxStatus(s.ctx, root.ID, models.BallotBoxStatusNormal, models.BallotBoxStatusSplitInProgress)
			s.Require().NoError(err)
			s.Require().True(applied)
		}

		err := svc.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.False(ballot.Used)
		_, err = s.store.GetVoter(s.ctx, s.session.ID, user.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.Zero(s.boxFor("T").VotesCount)

		applied, err := s.store.TransitionBallotBoxStatus(s.ctx, root.ID, models.BallotBoxStatusSplitInProgress, models.BallotBoxStatusNormal)
		s.Require().NoError(err)
		s.Require().True(applied)
	})

	s.Run("session closed", func() {
		user := agoratest.Citizen("closing", "P02")
		issued := s.issue(user)
		hooked.beforeTx = func() {
			applied, err := s.store.CloseVotingSession(s.ctx, s.session.ID)
			s.Require().NoError(err)
			s.Require().True(applied)
		}

		err := svc.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"B"}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		s.Zero(s.reloadSession(s.session.ID).VotersCount)
		_, err = s.store.GetVoter(s.ctx, s.session.ID, user.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
