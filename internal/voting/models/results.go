package models

import (
	"sort"

	id "agora/pkg/domain"
)

// ChoiceResult is one line of a results summary.
type ChoiceResult struct {
	Choice     id.ChoiceID `json:"choice"`
	Votes      int         `json:"votes"`
	Tiebreaker int         `json:"tiebreaker"`
}

// ResultsSummary ranks the choices of a session.
type ResultsSummary struct {
	VotingSessionID id.VotingSessionID `json:"voting_session_id"`
	Status          SessionStatus      `json:"status"`
	VotersCount     int                `json:"voters_count"`
	Results         []ChoiceResult     `json:"results"`
}

// RankChoices orders choices by votes descending, then tiebreaker descending,
// then by their position in the session's choice list.
func RankChoices(choices []id.ChoiceID, votes, tiebreak map[id.ChoiceID]int) []ChoiceResult {
	results := make([]ChoiceResult, 0, len(choices))
	for _, c := range choices {
		results = append(results, ChoiceResult{Choice: c, Votes: votes[c], Tiebreaker: tiebreak[c]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].Tiebreaker > results[j].Tiebreaker
	})
	return results
}

// SessionView is a session with its ballot box tree.
type SessionView struct {
	Session       *VotingSession `json:"session"`
	BallotBoxTree *BallotBoxNode `json:"ballot_box_tree"`
}

// AuditBallot is a cast ballot stripped of anything but its number and choice.
type AuditBallot struct {
	No      int           `json:"no"`
	Choices []id.ChoiceID `json:"choices"`
}

// AuditVoter is a participant listed by name only.
type AuditVoter struct {
	Name string `json:"name"`
}

// AuditData is the post-close export of one box. Ballots and voters are two
// independently sorted lists with nothing to join them on.
type AuditData struct {
	VotingSessionID id.VotingSessionID `json:"voting_session_id"`
	BallotBoxID     id.BallotBoxID     `json:"ballot_box_id"`
	BallotBoxName   string             `json:"ballot_box_name"`
	Ballots         []AuditBallot      `json:"ballots"`
	Voters          []AuditVoter       `json:"voters"`
}

// NewAuditData sorts ballots by number and voters by name.
func NewAuditData(box *BallotBox, ballots []*Ballot, voters []*Voter) *AuditData {
	out := &AuditData{
		VotingSessionID: box.VotingSessionID,
		BallotBoxID:     box.ID,
		BallotBoxName:   box.Name,
		Ballots:         make([]AuditBallot, 0, len(ballots)),
		Voters:          make([]AuditVoter, 0, len(voters)),
	}
	for _, b := range ballots {
		if !b.Used {
			continue
		}
		out.Ballots = append(out.Ballots, AuditBallot{No: b.No, Choices: append([]id.ChoiceID(nil), b.Choices...)})
	}
	for _, v := range voters {
		out.Voters = append(out.Voters, AuditVoter{Name: v.Name})
	}
	sort.Slice(out.Ballots, func(i, j int) bool { return out.Ballots[i].No < out.Ballots[j].No })
	sort.SliceStable(out.Voters, func(i, j int) bool { return out.Voters[i].Name < out.Voters[j].Name })
	return out
}
