package memory

import (
	"maps"
	"slices"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

func cloneCounts[K comparable](m map[K]int) map[K]int {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

func cloneSession(s *models.VotingSession) *models.VotingSession {
	cp := *s
	if s.EndTime != nil {
		end := *s.EndTime
		cp.EndTime = &end
	}
	cp.Choices = slices.Clone(s.Choices)
	if cp.Choices == nil {
		cp.Choices = []id.ChoiceID{}
	}
	cp.ChoiceTiebreak = cloneCounts(s.ChoiceTiebreak)
	if cp.ChoiceTiebreak == nil {
		cp.ChoiceTiebreak = map[id.ChoiceID]int{}
	}
	cp.VotesSum = cloneCounts(s.VotesSum)
	if cp.VotesSum == nil {
		cp.VotesSum = map[id.ChoiceID]int{}
	}
	return &cp
}

func cloneBox(b *models.BallotBox) *models.BallotBox {
	cp := *b
	if b.ParentBallotBoxID != nil {
		parent := *b.ParentBallotBoxID
		cp.ParentBallotBoxID = &parent
	}
	cp.ChildBallotBoxIDs = slices.Clone(b.ChildBallotBoxIDs)
	if cp.ChildBallotBoxIDs == nil {
		cp.ChildBallotBoxIDs = []id.BallotBoxID{}
	}
	cp.BallotBySubdivision = cloneCounts(b.BallotBySubdivision)
	if cp.BallotBySubdivision == nil {
		cp.BallotBySubdivision = map[id.TerritoryID]int{}
	}
	cp.VotesSum = cloneCounts(b.VotesSum)
	if b.TotalVotesCount != nil {
		total := *b.TotalVotesCount
		cp.TotalVotesCount = &total
	}
	return &cp
}

func cloneBallot(b *models.Ballot) *models.Ballot {
	cp := *b
	cp.Choices = slices.Clone(b.Choices)
	return &cp
}

func cloneVoter(v *models.Voter) *models.Voter {
	cp := *v
	return &cp
}
