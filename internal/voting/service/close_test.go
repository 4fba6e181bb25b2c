package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	agoratest "agora/pkg/testutil"
)

// splitTree builds root T (4 votes from D2), D1 (2 votes from A2) and
// A1 (5 votes) with a mix of choices, plus one unused ballot.
func (s *ServiceSuite) splitTree() (pending *models.IssuedBallot) {
	s.service = s.newService(splitConfig())
	pending = s.issue(agoratest.Citizen("pending", "P10"))
	s.castVotes(citizens("south", "B1", 4), "B")
	s.castVotes(citizens("north", "A1", 3), "A")
	s.castVotes(citizens("north2", "A2", 2), "B")
	s.castVotes(citizens("north1", "A1", 2), "A")
	s.Require().Len(s.boxes(), 3)
	return pending
}

// assertTally checks every box against the used ballots of its subtree.
func (s *ServiceSuite) assertTally() {
	boxes := s.boxes()
	byID := make(map[id.BallotBoxID]*models.BallotBox, len(boxes))
	for _, b := range boxes {
		byID[b.ID] = b
	}
	var count func(boxID id.BallotBoxID) (map[id.ChoiceID]int, int)
	count = func(boxID id.BallotBoxID) (map[id.ChoiceID]int, int) {
		ballots, err := s.store.ListBallots(s.ctx, boxID)
		s.Require().NoError(err)
		votes := map[id.ChoiceID]int{}
		total := 0
		for _, b := range ballots {
			if !b.Used {
				continue
			}
			total++
			for _, c := range b.Choices {
				votes[c]++
			}
		}
		for _, childID := range byID[boxID].ChildBallotBoxIDs {
			childVotes, childTotal := count(childID)
			total += childTotal
			for c, n := range childVotes {
				votes[c] += n
			}
		}
		return votes, total
	}
	for _, b := range boxes {
		votes, total := count(b.ID)
		s.Require().NotNil(b.TotalVotesCount, "box %s has no tally", b.Name)
		s.Equal(total, *b.TotalVotesCount, "box %s", b.Name)
		for _, c := range s.session.Choices {
			s.Equal(votes[c], b.VotesSum[c], "box %s choice %s", b.Name, c)
		}
	}
}

func (s *ServiceSuite) TestCloseVotingSession() {
	pending := s.splitTree()

	closed, err := s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.True(closed.IsClosed())

	s.Run("tally covers each subtree", func() {
		s.assertTally()
		root := s.boxFor("T")
		s.Equal(11, *root.TotalVotesCount)
		s.Equal(map[id.ChoiceID]int{"A": 5, "B": 6}, root.VotesSum)
		s.Equal(7, *s.boxFor("D1").TotalVotesCount)
		s.Equal(5, *s.boxFor("A1").TotalVotesCount)
	})

	s.Run("identities are erased and unused ballots deleted", func() {
		for _, b := range s.boxes() {
			ballots, err := s.store.ListBallots(s.ctx, b.ID)
			s.Require().NoError(err)
			for _, ballot := range ballots {
				s.True(ballot.Used)
				s.True(ballot.IsErased())
				s.Empty(ballot.SecurityToken)
				s.Empty(ballot.PollingStationID)
				s.Empty(ballot.NextTerritorySubdivision)
			}
		}
		_, err := s.store.GetBallot(s.ctx, pending.BallotID)
		s.Error(err)
	})

	s.Run("results rank by votes then tiebreaker", func() {
		summary, err := s.service.GetVotingSessionResultsSummary(s.ctx, s.session.ID)
		s.Require().NoError(err)
		s.Equal(models.SessionStatusClosed, summary.Status)
		s.Equal(11, summary.VotersCount)
		s.Require().Len(summary.Results, 2)
		s.Equal(id.ChoiceID("B"), summary.Results[0].Choice)
		s.Equal(6, summary.Results[0].Votes)
		s.Equal(id.ChoiceID("A"), summary.Results[1].Choice)
	})

	s.Run("voting is over", func() {
		user := agoratest.Citizen("latecomer", "P11")
		_, err := s.service.RequestBallot(s.ctx, user, s.session.ID, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		err = s.service.AddChoice(s.ctx, s.session.ID, "C", 2)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("closing again is a no-op", func() {
		again, err := s.service.CloseVotingSession(s.ctx, s.session.ID)
		s.Require().NoError(err)
		s.True(again.IsClosed())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.SessionsClosed))
		s.assertTally()
	})
}

// Citizens who vote a minute apart leave nothing on the closed records that
// orders ballots against voters.
func (s *ServiceSuite) TestClosedRecordsCarryNoVoteTimes() {
	voters := citizens("p", "P01", 3)
	choices := []id.ChoiceID{"A", "B", "B"}
	for i, u := range voters {
		ctx := s.at(s.now.Add(time.Duration(i) * time.Minute))
		issued, err := s.service.RequestBallot(ctx, u, s.session.ID, secretFor(u))
		s.Require().NoError(err)
		s.Require().NoError(s.service.Vote(ctx, u, VoteCommand{
			BallotID: issued.BallotID,
			Secret:   secretFor(u),
			Choices:  []id.ChoiceID{choices[i]},
		}))
	}

	_, err := s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)

	root := s.boxFor("T")
	ballots, err := s.store.ListBallots(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Require().Len(ballots, 3)
	for _, b := range ballots {
		s.True(b.IsErased())
		s.Equal(*s.session.EndTime, b.ValidUntil, "ballot %d keeps a per-ballot time", b.No)
	}
	for i := 1; i < len(ballots); i++ {
		s.Less(ballots[i-1].No, ballots[i].No)
	}

	listed, err := s.store.ListVoters(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	for i := 1; i < len(listed); i++ {
		s.LessOrEqual(listed[i-1].Name, listed[i].Name)
	}
}

func (s *ServiceSuite) TestCloseFinishesMissingTally() {
	s.castVotes(citizens("voter", "P01", 3), "A")
	applied, err := s.store.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.Require().True(applied)
	s.Nil(s.boxFor("T").TotalVotesCount)

	_, err = s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)
	root := s.boxFor("T")
	s.Require().NotNil(root.TotalVotesCount)
	s.Equal(3, *root.TotalVotesCount)
	s.Zero(testutil.ToFloat64(s.metrics.SessionsClosed))
}

func (s *ServiceSuite) TestResultsBeforeClose() {
	s.castVote(agoratest.Citizen("a", "P01"), "A")
	s.castVote(agoratest.Citizen("b", "P02"), "B")

	summary, err := s.service.GetVotingSessionResultsSummary(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.Equal(2, summary.VotersCount)
	// tied on votes, B has the higher tiebreaker
	s.Equal([]models.ChoiceResult{
		{Choice: "B", Votes: 1, Tiebreaker: 1},
		{Choice: "A", Votes: 1, Tiebreaker: 0},
	}, summary.Results)
}

func (s *ServiceSuite) TestCloseArchivesEveryBox() {
	s.splitTree()
	_, _, archiver := s.mocks()
	cfg := splitConfig()
	s.service = s.newService(cfg, WithAuditArchiver(archiver))

	published := map[string]*models.AuditData{}
	archiver.EXPECT().PublishAudit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, data *models.AuditData) error {
			published[data.BallotBoxName] = data
			return nil
		}).Times(3)

	_, err := s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)
	s.Len(published, 3)
	s.Len(published["Town"].Ballots, 4)
	s.Len(published["North"].Voters, 2)
	s.Len(published["North station"].Ballots, 5)

	// a second close publishes nothing more
	_, err = s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestAuditableData() {
	s.splitTree()
	voter := agoratest.Citizen("auditor", "A1")
	s.castVote(voter, "B")

	s.Run("unavailable before close", func() {
		_, err := s.service.GetVotingSessionAuditableData(s.ctx, s.session.ID, voter)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	_, err := s.service.CloseVotingSession(s.ctx, s.session.ID)
	s.Require().NoError(err)

	s.Run("voter sees their own box as two sorted lists", func() {
		data, err := s.service.GetVotingSessionAuditableData(s.ctx, s.session.ID, voter)
		s.Require().NoError(err)
		s.Equal(s.boxFor("A1").ID, data.BallotBoxID)
		s.Len(data.Ballots, 6)
		s.Len(data.Voters, 6)
		for i := 1; i < len(data.Ballots); i++ {
			s.LessOrEqual(data.Ballots[i-1].No, data.Ballots[i].No)
		}
		for i := 1; i < len(data.Voters); i++ {
			s.LessOrEqual(data.Voters[i-1].Name, data.Voters[i].Name)
		}
		s.Contains(data.Voters, models.AuditVoter{Name: "auditor"})
	})

	s.Run("non-voter sees the box covering their station", func() {
		data, err := s.service.GetVotingSessionAuditableData(s.ctx, s.session.ID, agoratest.Citizen("abstainer", "A3"))
		s.Require().NoError(err)
		s.Equal(s.boxFor("D1").ID, data.BallotBoxID)
		s.Len(data.Ballots, 2)
	})

	s.Run("outsider is forbidden", func() {
		_, err := s.service.GetVotingSessionAuditableData(s.ctx, s.session.ID, agoratest.Citizen("outsider", "XP1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestResetVoteAfterSplit() {
	s.splitTree()
	blocked := agoratest.Citizen("blocked", "P20")
	s.issue(blocked)

	s.Require().NoError(s.service.ResetVote(s.ctx, s.session.ID))

	boxes := s.boxes()
	s.Require().Len(boxes, 1)
	root := boxes[0]
	s.Equal(s.session.RootBallotBoxID, root.ID)
	s.True(root.IsNormal())
	s.Zero(root.VotesCount)
	s.Empty(root.ChildBallotBoxIDs)
	s.Empty(root.BallotBySubdivision)

	ballots, err := s.store.ListBallots(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Empty(ballots)
	voters, err := s.store.ListVoters(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Empty(voters)

	session := s.reloadSession(s.session.ID)
	s.Zero(session.VotersCount)
	for _, c := range session.Choices {
		s.Zero(session.VotesSum[c])
	}

	// ballot request blocks are cleared too
	s.issue(blocked)
}

func (s *ServiceSuite) TestSweeps() {
	s.castVote(agoratest.Citizen("voter", "P01"), "A")
	s.issue(agoratest.Citizen("idle", "P02"))

	s.Run("expired unused ballots are deleted", func() {
		n, err := s.service.SweepExpiredBallots(s.at(s.now.Add(25 * time.Hour)))
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.SweptBallots))
	})

	s.Run("nothing closes before the end time", func() {
		n, err := s.service.CloseEndedSessions(s.at(s.now.Add(47 * time.Hour)))
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("ended sessions are closed and tallied", func() {
		n, err := s.service.CloseEndedSessions(s.at(s.now.Add(48 * time.Hour)))
		s.Require().NoError(err)
		s.Equal(1, n)
		session := s.reloadSession(s.session.ID)
		s.True(session.IsClosed())
		s.Equal(1, *s.boxFor("T").TotalVotesCount)
	})
}
