package service

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	agoratest "agora/pkg/testutil"
)

func (s *ServiceSuite) TestVote() {
	s.Run("first vote updates session and box counters", func() {
		user := agoratest.Citizen("alice", "A1")
		issued := s.castVote(user, "A")

		session := s.reloadSession(s.session.ID)
		s.Equal(1, session.VotersCount)
		s.Equal(1, session.VotesSum["A"])

		box := s.boxFor("T")
		s.Equal(1, box.VotesCount)
		s.Equal(map[id.TerritoryID]int{"D1": 1}, box.BallotBySubdivision)

		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.True(ballot.Used)
		s.Equal([]id.ChoiceID{"A"}, ballot.Choices)
		s.Equal(*s.session.EndTime, ballot.ValidUntil)

		voter, err := s.store.GetVoter(s.ctx, s.session.ID, user.ID)
		s.Require().NoError(err)
		s.Equal(box.ID, voter.BallotBoxID)
		s.Equal("alice", voter.Name)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.VotesCast.WithLabelValues("first")))
	})

	s.Run("ballot cannot be used twice", func() {
		user := agoratest.Citizen("bob", "A1")
		issued := s.castVote(user, "B")
		err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(2, s.reloadSession(s.session.ID).VotersCount)
	})

	s.Run("duplicate choices count once", func() {
		user := agoratest.Citizen("carol", "P01")
		s.castVote(user, "B", "B")
		s.Equal(2, s.reloadSession(s.session.ID).VotesSum["B"])
	})

	s.Run("choices are validated", func() {
		user := agoratest.Citizen("dave", "P02")
		issued := s.issue(user)

		err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"Z"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		err = s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A", "B"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		err = s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown ballot is not found", func() {
		err := s.service.Vote(s.ctx, agoratest.Citizen("erin", "P03"), VoteCommand{BallotID: id.NewBallotID(), Secret: "x", Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestVoteCredentialSoundness() {
	owner := agoratest.Citizen("alice", "P01")
	issued := s.issue(owner)
	vote := func(user id.UserID, secret string) error {
		u := owner
		u.ID = user
		return s.service.Vote(s.ctx, u, VoteCommand{BallotID: issued.BallotID, Secret: secret, Choices: []id.ChoiceID{"A"}})
	}

	s.Run("one character off is rejected with a generic message", func() {
		err := vote(owner.ID, "secret-alicf")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("invalid ballot credentials", dErrors.MessageOf(err))
	})

	s.Run("another citizen holding the secret is rejected", func() {
		err := vote(id.UserID(id.NewVoterID()), secretFor(owner))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("invalid ballot credentials", dErrors.MessageOf(err))
	})

	s.Run("empty secret is a validation error", func() {
		err := vote(owner.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejections leave the ballot unused", func() {
		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.False(ballot.Used)
		s.Equal(2.0, testutil.ToFloat64(s.metrics.TokenMismatches))
	})

	s.Run("exact secret succeeds", func() {
		s.NoError(vote(owner.ID, secretFor(owner)))
	})
}

func (s *ServiceSuite) TestVoteTemporalRules() {
	s.Run("expired ballot cannot be cast", func() {
		user := agoratest.Citizen("alice", "P01")
		issued := s.issue(user)
		err := s.service.Vote(s.at(s.now.Add(25*time.Hour)), user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("vote after the end time is rejected", func() {
		user := agoratest.Citizen("bob", "P02")
		issued := s.issue(user)
		err := s.service.Vote(s.at(s.now.Add(49*time.Hour)), user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("box mid-split asks for a retry", func() {
		user := agoratest.Citizen("carol", "P03")
		issued := s.issue(user)
		_, err := s.store.TransitionBallotBoxStatus(s.ctx, issued.BallotBoxID, models.BallotBoxStatusNormal, models.BallotBoxStatusSplitInProgress)
		s.Require().NoError(err)

		err = s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		_, err = s.store.TransitionBallotBoxStatus(s.ctx, issued.BallotBoxID, models.BallotBoxStatusSplitInProgress, models.BallotBoxStatusNormal)
		s.Require().NoError(err)
		s.NoError(s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}}))
	})
}

func (s *ServiceSuite) TestModifyVote() {
	s.Run("disabled by default", func() {
		user := agoratest.Citizen("alice", "P01")
		issued := s.castVote(user, "A")
		err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"B"}, Modify: true})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("replaces the choices in the session totals only", func() {
		cfg := DefaultConfig()
		cfg.AllowVoteModification = true
		s.service = s.newService(cfg)
		s.session = s.createSession(2, "A", "B", "C")

		user := agoratest.Citizen("bob", "A2")
		issued := s.castVote(user, "A", "B")
		err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"C", "B"}, Modify: true})
		s.Require().NoError(err)

		session := s.reloadSession(s.session.ID)
		s.Equal(1, session.VotersCount)
		s.Equal(0, session.VotesSum["A"])
		s.Equal(1, session.VotesSum["B"])
		s.Equal(1, session.VotesSum["C"])

		box := s.boxFor("T")
		s.Equal(1, box.VotesCount)
		s.Equal(1, box.BallotBySubdivision["D1"])

		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.ElementsMatch([]id.ChoiceID{"B", "C"}, ballot.Choices)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.VotesCast.WithLabelValues("modification")))
	})

	s.Run("requires a cast ballot", func() {
		user := agoratest.Citizen("carol", "A3")
		issued := s.issue(user)
		err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}, Modify: true})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestVoteNotifiesCollaborators() {
	notifier, participation, _ := s.mocks()
	s.service = s.newService(DefaultConfig(), WithVoteNotifier(notifier), WithParticipationRecorder(participation))
	user := agoratest.Citizen("alice", "P01")

	participation.EXPECT().RecordParticipation(gomock.Any(), user.ID, s.session.ID, false).Return(nil)
	notifier.EXPECT().NewVote(gomock.Any(), s.session.ID).Return(errors.New("broker unavailable"))

	s.castVote(user, "A")
	s.Equal(1, s.reloadSession(s.session.ID).VotersCount)
}

func (s *ServiceSuite) TestVoteRejectionDoesNotNotify() {
	notifier, participation, _ := s.mocks()
	s.service = s.newService(DefaultConfig(), WithVoteNotifier(notifier), WithParticipationRecorder(participation))
	user := agoratest.Citizen("alice", "P01")
	issued := s.issue(user)

	err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: "wrong", Choices: []id.ChoiceID{"A"}})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestConcurrentVotesOnOneBallot() {
	user := agoratest.Citizen("alice", "P01")
	issued := s.issue(user)

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.service.Vote(s.ctx, user, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(user), Choices: []id.ChoiceID{"A"}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			s.True(dErrors.HasCode(err, dErrors.CodeConflict), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	session := s.reloadSession(s.session.ID)
	s.Equal(1, session.VotersCount)
	s.Equal(1, session.VotesSum["A"])
	s.Equal(1, s.boxFor("T").VotesCount)
}
