package service

import (
	"github.com/prometheus/client_golang/prometheus/testutil"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	agoratest "agora/pkg/testutil"
)

// With the default threshold of 30, 31 votes all under T with distinct
// stations never split, and citizens registered at T itself can never be
// split off below the root.
func (s *ServiceSuite) TestNoSplitBelowTheMargin() {
	stations := []id.TerritoryID{"P01", "P02", "P03", "P04", "P05"}
	voters := citizens("p", "", 35)
	issued := make([]*models.IssuedBallot, len(voters))
	for i := range voters {
		voters[i].PollingStationID = stations[i%len(stations)]
		issued[i] = s.issue(voters[i])
	}
	for i := range 31 {
		s.Require().NoError(s.service.Vote(s.ctx, voters[i], VoteCommand{BallotID: issued[i].BallotID, Secret: secretFor(voters[i]), Choices: []id.ChoiceID{"A"}}))
	}

	s.Len(s.boxes(), 1)
	root := s.boxFor("T")
	s.Equal(31, root.VotesCount)

	s.castVotes(citizens("t", "T", 31), "B")
	s.Len(s.boxes(), 1)
	root = s.boxFor("T")
	s.Equal(62, root.VotesCount)
	s.NotContains(root.BallotBySubdivision, id.TerritoryID(""))
	s.Zero(testutil.ToFloat64(s.metrics.SplitsStarted))
}

func (s *ServiceSuite) TestSplitCarvesOutSubdivision() {
	s.service = s.newService(splitConfig())

	// 4 votes from D2 keep the box below the margin of 2*3.
	s.castVotes(citizens("south", "B1", 4), "B")
	s.Len(s.boxes(), 1)

	north := citizens("north", "A1", 3)
	s.castVotes(north[:2], "A")
	s.Len(s.boxes(), 1)
	s.Equal(6, s.totalBoxVotes())

	// the third D1 vote brings the box to 7 > 6 and D1 to 3
	s.castVote(north[2], "A")

	boxes := s.boxes()
	s.Require().Len(boxes, 2)
	s.Equal(7, s.totalBoxVotes())

	root := s.boxFor("T")
	child := s.boxFor("D1")
	s.True(root.IsNormal())
	s.True(child.IsNormal())
	s.Equal(4, root.VotesCount)
	s.Equal(map[id.TerritoryID]int{"D2": 4}, root.BallotBySubdivision)
	s.Equal([]id.BallotBoxID{child.ID}, root.ChildBallotBoxIDs)
	s.Require().NotNil(child.ParentBallotBoxID)
	s.Equal(root.ID, *child.ParentBallotBoxID)
	s.Equal("North", child.Name)
	s.Equal(3, child.VotesCount)
	s.Equal(map[id.TerritoryID]int{"A1": 3}, child.BallotBySubdivision)

	s.Run("records follow the split", func() {
		for _, u := range north {
			voter, err := s.store.GetVoter(s.ctx, s.session.ID, u.ID)
			s.Require().NoError(err)
			s.Equal(child.ID, voter.BallotBoxID)
			s.Equal(id.TerritoryID("A1"), voter.NextTerritorySubdivision)
		}
		ballots, err := s.store.ListBallots(s.ctx, child.ID)
		s.Require().NoError(err)
		s.Len(ballots, 3)
		for _, b := range ballots {
			s.Equal(id.TerritoryID("A1"), b.NextTerritorySubdivision)
		}
	})

	s.Run("session totals are untouched", func() {
		session := s.reloadSession(s.session.ID)
		s.Equal(7, session.VotersCount)
		s.Equal(3, session.VotesSum["A"])
		s.Equal(4, session.VotesSum["B"])
	})

	s.Run("new citizens under D1 land in the child box", func() {
		issued := s.issue(agoratest.Citizen("late", "A4"))
		s.Equal(child.ID, issued.BallotBoxID)
		ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
		s.Require().NoError(err)
		s.Equal(id.TerritoryID("A4"), ballot.NextTerritorySubdivision)

		issued = s.issue(agoratest.Citizen("late-south", "B2"))
		s.Equal(root.ID, issued.BallotBoxID)
	})

	s.Run("migrating again moves nothing", func() {
		moved, err := s.service.migrate(s.ctx, s.session, root.ID, "D1", child.ID)
		s.Require().NoError(err)
		s.Zero(moved)
		s.Equal(7, s.totalBoxVotes())
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.SplitsCompleted))
	s.Zero(testutil.ToFloat64(s.metrics.SplitsFailed))
}

func (s *ServiceSuite) TestUnusedBallotsMoveWithTheSplit() {
	s.service = s.newService(splitConfig())
	pending := agoratest.Citizen("pending", "A2")
	issued := s.issue(pending)
	s.Equal(s.session.RootBallotBoxID, issued.BallotBoxID)

	s.castVotes(citizens("south", "B1", 4), "B")
	s.castVotes(citizens("north", "A1", 3), "A")
	child := s.boxFor("D1")

	ballot, err := s.store.GetBallot(s.ctx, issued.BallotID)
	s.Require().NoError(err)
	s.Equal(child.ID, ballot.BallotBoxID)
	s.Equal(id.TerritoryID("A2"), ballot.NextTerritorySubdivision)

	// the moved ballot is still castable and counts in its new box
	s.Require().NoError(s.service.Vote(s.ctx, pending, VoteCommand{BallotID: issued.BallotID, Secret: secretFor(pending), Choices: []id.ChoiceID{"A"}}))
	child = s.boxFor("D1")
	s.Equal(4, child.VotesCount)
	s.Equal(1, child.BallotBySubdivision["A2"])
	s.Equal(8, s.totalBoxVotes())
}

func (s *ServiceSuite) TestNestedSplit() {
	s.service = s.newService(splitConfig())
	s.castVotes(citizens("south", "B1", 4), "B")
	s.castVotes(citizens("north", "A1", 3), "A")
	s.Require().Len(s.boxes(), 2)

	// the D1 box reaches 7 > 6 with A1 at 5
	s.castVotes(citizens("north2", "A2", 2), "B")
	s.castVotes(citizens("north1", "A1", 2), "A")

	s.Require().Len(s.boxes(), 3)
	s.Equal(11, s.totalBoxVotes())

	district := s.boxFor("D1")
	station := s.boxFor("A1")
	s.Equal(2, district.VotesCount)
	s.Equal(map[id.TerritoryID]int{"A2": 2}, district.BallotBySubdivision)
	s.Equal([]id.BallotBoxID{station.ID}, district.ChildBallotBoxIDs)
	s.Equal(5, station.VotesCount)
	s.Empty(station.BallotBySubdivision)

	// a station box has no subdivision left to split on
	s.castVotes(citizens("north1b", "A1", 10), "A")
	s.Len(s.boxes(), 3)
	s.Equal(15, s.boxFor("A1").VotesCount)
}

func (s *ServiceSuite) TestSplitOnlyOneCallerWins() {
	s.castVotes(citizens("north", "A1", 2), "A")
	root := s.boxFor("T")
	_, err := s.store.TransitionBallotBoxStatus(s.ctx, root.ID, models.BallotBoxStatusNormal, models.BallotBoxStatusSplitInProgress)
	s.Require().NoError(err)

	s.NoError(s.service.Split(s.ctx, s.session, root.ID, "D1"))
	s.Len(s.boxes(), 1)
	s.Equal(models.BallotBoxStatusSplitInProgress, s.boxFor("T").Status)
}

func (s *ServiceSuite) TestSplitRejectsOwnTerritory() {
	err := s.service.Split(s.ctx, s.session, s.session.RootBallotBoxID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.True(s.boxFor("T").IsNormal())
}

func (s *ServiceSuite) TestSplitResumesInterruptedMigration() {
	s.castVotes(citizens("north", "A1", 3), "A")
	s.castVotes(citizens("south", "B1", 2), "B")
	root := s.boxFor("T")

	// a previous split created the child and died before migrating
	parent := root.ID
	orphan := models.NewBallotBox(s.session.ID, "D1", "North", &parent, models.BallotBoxStatusCreationInProgress, s.now)
	s.Require().NoError(s.store.CreateBallotBox(s.ctx, orphan))
	s.Require().NoError(s.store.AppendChildBallotBox(s.ctx, root.ID, orphan.ID))

	s.Require().NoError(s.service.Split(s.ctx, s.session, root.ID, "D1"))

	s.Len(s.boxes(), 2)
	child := s.boxFor("D1")
	s.Equal(orphan.ID, child.ID)
	s.True(child.IsNormal())
	s.Equal(3, child.VotesCount)
	root = s.boxFor("T")
	s.True(root.IsNormal())
	s.Equal(2, root.VotesCount)
	s.Equal([]id.BallotBoxID{orphan.ID}, root.ChildBallotBoxIDs)
}

func (s *ServiceSuite) TestSplitAbortsWhenTerritoryBelongsElsewhere() {
	s.castVotes(citizens("north", "A1", 3), "A")
	root := s.boxFor("T")

	// a box for D1 already exists without being a child of the root
	stray := models.NewBallotBox(s.session.ID, "D1", "North", nil, models.BallotBoxStatusNormal, s.now)
	s.Require().NoError(s.store.CreateBallotBox(s.ctx, stray))

	s.Require().NoError(s.service.Split(s.ctx, s.session, root.ID, "D1"))

	root = s.boxFor("T")
	s.True(root.IsNormal())
	s.Empty(root.ChildBallotBoxIDs)
	s.Equal(3, root.VotesCount)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SplitsFailed))
}
