package service

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	agoratest "agora/pkg/testutil"
)

func (s *ServiceSuite) TestCreateVotingSession() {
	s.Run("creates the root box named after the territory", func() {
		view, err := s.service.GetVotingSession(s.ctx, s.session.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionStatusAvailable, view.Session.Status)
		s.Equal(typeCity, view.Session.TerritoryType)
		s.Require().NotNil(view.BallotBoxTree)
		s.Equal(s.session.RootBallotBoxID, view.BallotBoxTree.ID)
		s.Equal("Town", view.BallotBoxTree.Name)
		s.Equal(id.TerritoryID("T"), view.BallotBoxTree.RootTerritoryID)
		s.Empty(view.BallotBoxTree.Children)
		s.Equal([]id.ChoiceID{"A", "B"}, view.Session.Choices)
	})

	s.Run("unknown territory is a validation error", func() {
		_, err := s.service.CreateVotingSession(s.ctx, CreateSessionCommand{
			TerritoryID: "nowhere",
			Type:        models.SessionTypeGeneralVote,
			StartTime:   s.now,
			MaxChoices:  1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("deprecated session type is rejected", func() {
		_, err := s.service.CreateVotingSession(s.ctx, CreateSessionCommand{
			TerritoryID: "T",
			Type:        models.SessionTypeSubjectSuggestion,
			StartTime:   s.now,
			MaxChoices:  1,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("duplicate choice conflicts", func() {
		err := s.service.AddChoice(s.ctx, s.session.ID, "A", 9)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestRequestBallot() {
	s.Run("issues an unused ballot in the root box", func() {
		user := agoratest.Citizen("alice", "P01")
		issued := s.issue(user)

		s.Equal(s.session.RootBallotBoxID, issued.BallotBoxID)
		s.GreaterOrEqual(issued.No, 1)
		s.LessOrEqual(issued.No, 1000)
		s.False(issued.ValidUntil.Before(s.now.Add(12 * time.Hour)))
		s.False(issued.ValidUntil.After(s.now.Add(24 * time.Hour)))

		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.False(ballot.Used)
		s.Equal(id.TerritoryID("P01"), ballot.NextTerritorySubdivision)
		s.NotEmpty(ballot.SecurityToken)
		s.NotContains(ballot.SecurityToken, user.ID.String())
		s.NotContains(ballot.SecurityToken, secretFor(user))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.BallotsIssued))
	})

	s.Run("second request is rate limited", func() {
		user := agoratest.Citizen("bob", "P02")
		s.issue(user)
		_, err := s.service.RequestBallot(s.ctx, user, s.session.ID, "another")
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.BallotRequestsHeld))
	})

	s.Run("citizen who voted cannot get another ballot", func() {
		user := agoratest.Citizen("carol", "P03")
		s.castVote(user, "A")
		_, err := s.service.RequestBallot(s.at(s.now.Add(13*time.Hour)), user, s.session.ID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("outside the electorate is forbidden", func() {
		_, err := s.service.RequestBallot(s.ctx, agoratest.Citizen("dave", "XP1"), s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.RequestBallot(s.ctx, agoratest.Citizen("erin", ""), s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.RequestBallot(s.ctx, agoratest.Citizen("frank", "unknown"), s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("empty secret is rejected", func() {
		_, err := s.service.RequestBallot(s.ctx, agoratest.Citizen("gina", "P04"), s.session.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("temporal window is enforced", func() {
		user := agoratest.Citizen("hank", "P05")
		_, err := s.service.RequestBallot(s.at(s.now.Add(-2*time.Hour)), user, s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		_, err = s.service.RequestBallot(s.at(s.now.Add(49*time.Hour)), user, s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown session is not found", func() {
		_, err := s.service.RequestBallot(s.ctx, agoratest.Citizen("ivy", "P06"), id.NewVotingSessionID(), "x")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRequestBallotWhileBoxIsSplitting() {
	applied, err := s.store.TransitionBallotBoxStatus(s.ctx, s.session.RootBallotBoxID, models.BallotBoxStatusNormal, models.BallotBoxStatusSplitInProgress)
	s.Require().NoError(err)
	s.Require().True(applied)

	user := agoratest.Citizen("alice", "P01")
	_, err = s.service.RequestBallot(s.ctx, user, s.session.ID, "x")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.True(dErrors.Retryable(err))

	// the block was never taken, so the citizen can retry once the split ends
	_, err = s.store.TransitionBallotBoxStatus(s.ctx, s.session.RootBallotBoxID, models.BallotBoxStatusSplitInProgress, models.BallotBoxStatusNormal)
	s.Require().NoError(err)
	s.issue(user)
}

func (s *ServiceSuite) TestConcurrentRequestBallotIssuesOne() {
	user := agoratest.Citizen("alice", "P01")

	const attempts = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
		codes  []dErrors.Code
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RequestBallot(s.ctx, user, s.session.ID, "secret")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				issued++
				return
			}
			codes = append(codes, dErrors.CodeOf(err))
		}()
	}
	wg.Wait()

	s.Equal(1, issued)
	for _, c := range codes {
		s.Contains([]dErrors.Code{dErrors.CodeRateLimited, dErrors.CodeConflict}, c)
	}
	ballots, err := s.store.ListBallots(s.ctx, s.session.RootBallotBoxID)
	s.Require().NoError(err)
	s.Len(ballots, 1)
}

func (s *ServiceSuite) TestBallotNumbers() {
	s.Run("space grows by powers of ten with a floor", func() {
		s.Equal(1000, ballotNumberSpace(0, 1000))
		s.Equal(1000, ballotNumberSpace(999, 1000))
		s.Equal(10000, ballotNumberSpace(1000, 1000))
		s.Equal(10, ballotNumberSpace(5, 1))
		s.Equal(100, ballotNumberSpace(10, 10))
	})

	s.Run("scans from the random offset to the next free number", func() {
		cfg := DefaultConfig()
		cfg.BallotNumberFloor = 10
		svc := s.newService(cfg)
		svc.intN = func(int) int { return 0 }

		no, err := svc.allocateBallotNumber([]int{1, 2, 3})
		s.Require().NoError(err)
		s.Equal(4, no)

		svc.intN = func(n int) int { return n - 1 }
		no, err = svc.allocateBallotNumber([]int{10, 1})
		s.Require().NoError(err)
		s.Equal(2, no)
	})

	s.Run("a full space moves to the next power of ten", func() {
		cfg := DefaultConfig()
		cfg.BallotNumberFloor = 10
		svc := s.newService(cfg)
		used := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		no, err := svc.allocateBallotNumber(used)
		s.Require().NoError(err)
		s.Greater(no, 10)
		s.LessOrEqual(no, 100)
	})

	s.Run("numbers are unique within a box", func() {
		seen := map[int]bool{}
		for _, u := range citizens("n", "P07", 25) {
			issued := s.issue(u)
			s.False(seen[issued.No], "duplicate ballot number %d", issued.No)
			seen[issued.No] = true
		}
	})
}

func (s *ServiceSuite) TestRequestBallotReleasesBlockOnFailure() {
	user := agoratest.Citizen("zed", "P01")

	// a cancelled context aborts the issuance transaction after the block was taken
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.service.RequestBallot(ctx, user, s.session.ID, "secret")
	s.Require().Error(err)

	_, err = s.service.RequestBallot(s.ctx, user, s.session.ID, "secret")
	s.NoError(err)
}
