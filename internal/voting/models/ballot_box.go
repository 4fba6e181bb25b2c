package models

import (
	"time"

	id "agora/pkg/domain"
)

// BallotBoxStatus guards the split critical section of a box.
//
//	NORMAL --(split starts)--> SPLIT_IN_PROGRESS --(split ends)--> NORMAL
//	CREATION_IN_PROGRESS --(migration done)--> NORMAL
type BallotBoxStatus string

const (
	BallotBoxStatusNormal             BallotBoxStatus = "NORMAL"
	BallotBoxStatusSplitInProgress    BallotBoxStatus = "SPLIT_IN_PROGRESS"
	BallotBoxStatusCreationInProgress BallotBoxStatus = "CREATION_IN_PROGRESS"
)

// BallotBox is a node of the anonymity tree. It owns the ballots and voters of
// its root territory minus the territories split off into children.
type BallotBox struct {
	ID                  id.BallotBoxID         `json:"id"`
	VotingSessionID     id.VotingSessionID     `json:"voting_session_id"`
	RootTerritoryID     id.TerritoryID         `json:"root_territory_id"`
	Name                string                 `json:"name"`
	ParentBallotBoxID   *id.BallotBoxID        `json:"parent_ballot_box_id,omitempty"`
	ChildBallotBoxIDs   []id.BallotBoxID       `json:"child_ballot_box_ids"`
	BallotBySubdivision map[id.TerritoryID]int `json:"ballot_by_subdivision"`
	VotesCount          int                    `json:"votes_count"`
	Status              BallotBoxStatus        `json:"status"`
	// Tally fields are populated once the session closes and cover the
	// whole subtree rooted at this box.
	VotesSum        map[id.ChoiceID]int `json:"votes_sum,omitempty"`
	TotalVotesCount *int                `json:"total_votes_count,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewBallotBox creates a box for a territory of a session.
func NewBallotBox(sessionID id.VotingSessionID, territoryID id.TerritoryID, name string, parent *id.BallotBoxID, status BallotBoxStatus, now time.Time) *BallotBox {
	return &BallotBox{
		ID:                  id.NewBallotBoxID(),
		VotingSessionID:     sessionID,
		RootTerritoryID:     territoryID,
		Name:                name,
		ParentBallotBoxID:   parent,
		ChildBallotBoxIDs:   []id.BallotBoxID{},
		BallotBySubdivision: map[id.TerritoryID]int{},
		Status:              status,
		CreatedAt:           now,
	}
}

// IsNormal reports whether the box accepts new ballots and votes.
func (b *BallotBox) IsNormal() bool {
	return b.Status == BallotBoxStatusNormal
}

// IsRoot reports whether the box is the session's top-level box.
func (b *BallotBox) IsRoot() bool {
	return b.ParentBallotBoxID == nil
}

// ShouldSplit reports whether subdivision has gathered enough votes to be
// carved out of this box. The box total must exceed factor*threshold so the
// parent keeps a large enough anonymity set after the split.
func (b *BallotBox) ShouldSplit(subdivision id.TerritoryID, threshold, factor int) bool {
	if subdivision == "" || !b.IsNormal() {
		return false
	}
	return b.BallotBySubdivision[subdivision] >= threshold && b.VotesCount > factor*threshold
}

// BallotBoxNode is a box with its children resolved, for tree views.
type BallotBoxNode struct {
	*BallotBox
	Children []*BallotBoxNode `json:"children"`
}

// BuildBallotBoxTree arranges boxes into a tree rooted at rootID following
// each box's ordered child list. Unknown child ids are skipped.
func BuildBallotBoxTree(rootID id.BallotBoxID, boxes []*BallotBox) *BallotBoxNode {
	byID := make(map[id.BallotBoxID]*BallotBox, len(boxes))
	for _, b := range boxes {
		byID[b.ID] = b
	}
	var build func(boxID id.BallotBoxID, depth int) *BallotBoxNode
	build = func(boxID id.BallotBoxID, depth int) *BallotBoxNode {
		box, ok := byID[boxID]
		if !ok || depth > len(boxes) {
			return nil
		}
		node := &BallotBoxNode{BallotBox: box, Children: []*BallotBoxNode{}}
		for _, childID := range box.ChildBallotBoxIDs {
			if child := build(childID, depth+1); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node
	}
	return build(rootID, 0)
}
