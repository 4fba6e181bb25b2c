// Package memory is the in-process implementation of the voting store.
//
// A single mutex serializes every call. RunInTx holds the mutex for the whole
// callback and keeps an undo log so that a failing callback leaves no trace.
// Records are stored as private copies and replaced on write, never mutated
// in place, which keeps the undo log to one closure per touched key.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agora/internal/voting/models"
	"agora/internal/voting/ports"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

type voterKey struct {
	sessionID id.VotingSessionID
	userID    id.UserID
}

type boxKey struct {
	sessionID   id.VotingSessionID
	territoryID id.TerritoryID
}

// InMemoryStore implements ports.Store.
type InMemoryStore struct {
	mu         sync.Mutex
	sessions   map[id.VotingSessionID]*models.VotingSession
	boxes      map[id.BallotBoxID]*models.BallotBox
	boxIndex   map[boxKey]id.BallotBoxID
	ballots    map[id.BallotID]*models.Ballot
	voters     map[id.VoterID]*models.Voter
	voterIndex map[voterKey]id.VoterID
	txTimeout  time.Duration
}

// New creates an empty store.
func New() *InMemoryStore {
	return &InMemoryStore{
		sessions:   make(map[id.VotingSessionID]*models.VotingSession),
		boxes:      make(map[id.BallotBoxID]*models.BallotBox),
		boxIndex:   make(map[boxKey]id.BallotBoxID),
		ballots:    make(map[id.BallotID]*models.Ballot),
		voters:     make(map[id.VoterID]*models.Voter),
		voterIndex: make(map[voterKey]id.VoterID),
		txTimeout:  defaultTxTimeout,
	}
}

type txState struct {
	store *InMemoryStore
	undo  []func()
}

type txCtxKey struct{}

func (t *txState) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember records how to restore m[k] to its current value.
func remember[K comparable, V any](t *txState, m map[K]V, k K) {
	if t == nil {
		return
	}
	old, ok := m[k]
	t.undo = append(t.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

// RunInTx runs fn under the store lock. Nested calls join the outer transaction.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if st := s.txFrom(ctx); st != nil {
		return fn(ctx)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := &txState{store: s}
	defer func() {
		if r := recover(); r != nil {
			st.rollback()
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, txCtxKey{}, st)); err != nil {
		st.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		st.rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

func (s *InMemoryStore) txFrom(ctx context.Context) *txState {
	if st, ok := ctx.Value(txCtxKey{}).(*txState); ok && st.store == s {
		return st
	}
	return nil
}

// lock acquires the mutex unless ctx already runs inside RunInTx.
func (s *InMemoryStore) lock(ctx context.Context) (*txState, func()) {
	if st := s.txFrom(ctx); st != nil {
		return st, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

// ============================================================================
// Voting sessions
// ============================================================================

func (s *InMemoryStore) CreateVotingSession(ctx context.Context, session *models.VotingSession) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("voting session %s: %w", session.ID, sentinel.ErrConflict)
	}
	remember(st, s.sessions, session.ID)
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *InMemoryStore) GetVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.VotingSession, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	return cloneSession(session), nil
}

func (s *InMemoryStore) ListEndedVotingSessions(ctx context.Context, now time.Time) ([]*models.VotingSession, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	var out []*models.VotingSession
	for _, session := range s.sessions {
		if !session.IsClosed() && session.HasEndedAt(now) {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(*out[j].EndTime) })
	return out, nil
}

func (s *InMemoryStore) AddChoice(ctx context.Context, sessionID id.VotingSessionID, choice id.ChoiceID, tiebreaker int) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if session.IsClosed() {
		return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrInvalidState)
	}
	if session.HasChoice(choice) {
		return fmt.Errorf("choice %s: %w", choice, sentinel.ErrConflict)
	}
	updated := cloneSession(session)
	updated.Choices = append(updated.Choices, choice)
	updated.ChoiceTiebreak[choice] = tiebreaker
	remember(st, s.sessions, sessionID)
	s.sessions[sessionID] = updated
	return nil
}

func (s *InMemoryStore) CloseVotingSession(ctx context.Context, sessionID id.VotingSessionID) (bool, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if session.IsClosed() {
		return false, nil
	}
	updated := cloneSession(session)
	updated.Status = models.SessionStatusClosed
	remember(st, s.sessions, sessionID)
	s.sessions[sessionID] = updated
	return true, nil
}

func (s *InMemoryStore) IncrementVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID, voters int, choices map[id.ChoiceID]int) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	updated := cloneSession(session)
	updated.VotersCount += voters
	for c, d := range choices {
		updated.VotesSum[c] += d
	}
	remember(st, s.sessions, sessionID)
	s.sessions[sessionID] = updated
	return nil
}

func (s *InMemoryStore) ResetVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	updated := cloneSession(session)
	updated.VotersCount = 0
	updated.VotesSum = map[id.ChoiceID]int{}
	remember(st, s.sessions, sessionID)
	s.sessions[sessionID] = updated
	return nil
}

// ============================================================================
// Ballot boxes
// ============================================================================

func (s *InMemoryStore) CreateBallotBox(ctx context.Context, box *models.BallotBox) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	key := boxKey{box.VotingSessionID, box.RootTerritoryID}
	if _, ok := s.boxIndex[key]; ok {
		return fmt.Errorf("ballot box for %s: %w", box.RootTerritoryID, sentinel.ErrConflict)
	}
	if _, ok := s.boxes[box.ID]; ok {
		return fmt.Errorf("ballot box %s: %w", box.ID, sentinel.ErrConflict)
	}
	remember(st, s.boxes, box.ID)
	remember(st, s.boxIndex, key)
	s.boxes[box.ID] = cloneBox(box)
	s.boxIndex[key] = box.ID
	return nil
}

func (s *InMemoryStore) GetBallotBox(ctx context.Context, boxID id.BallotBoxID) (*models.BallotBox, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	box, ok := s.boxes[boxID]
	if !ok {
		return nil, fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
	}
	return cloneBox(box), nil
}

func (s *InMemoryStore) FindBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, territories []id.TerritoryID) ([]*models.BallotBox, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	out := make([]*models.BallotBox, 0, len(territories))
	for _, territoryID := range territories {
		if boxID, ok := s.boxIndex[boxKey{sessionID, territoryID}]; ok {
			out = append(out, cloneBox(s.boxes[boxID]))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListBallotBoxes(ctx context.Context, sessionID id.VotingSessionID) ([]*models.BallotBox, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	var out []*models.BallotBox
	for _, box := range s.boxes {
		if box.VotingSessionID == sessionID {
			out = append(out, cloneBox(box))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) TransitionBallotBoxStatus(ctx context.Context, boxID id.BallotBoxID, from, to models.BallotBoxStatus) (bool, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	box, ok := s.boxes[boxID]
	if !ok {
		return false, fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
	}
	if box.Status != from {
		return false, nil
	}
	updated := cloneBox(box)
	updated.Status = to
	remember(st, s.boxes, boxID)
	s.boxes[boxID] = updated
	return true, nil
}

func (s *InMemoryStore) AppendChildBallotBox(ctx context.Context, parentID, childID id.BallotBoxID) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	parent, ok := s.boxes[parentID]
	if !ok {
		return fmt.Errorf("ballot box %s: %w", parentID, sentinel.ErrNotFound)
	}
	updated := cloneBox(parent)
	updated.ChildBallotBoxIDs = append(updated.ChildBallotBoxIDs, childID)
	remember(st, s.boxes, parentID)
	s.boxes[parentID] = updated
	return nil
}

func (s *InMemoryStore) IncrementBallotBoxVotes(ctx context.Context, boxID id.BallotBoxID, votes int, subdivisions map[id.TerritoryID]int) (*models.BallotBox, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	box, ok := s.boxes[boxID]
	if !ok {
		return nil, fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
	}
	updated := cloneBox(box)
	updated.VotesCount += votes
	for sub, d := range subdivisions {
		updated.BallotBySubdivision[sub] += d
		if updated.BallotBySubdivision[sub] == 0 {
			delete(updated.BallotBySubdivision, sub)
		}
	}
	remember(st, s.boxes, boxID)
	s.boxes[boxID] = updated
	return cloneBox(updated), nil
}

func (s *InMemoryStore) SaveBallotBoxTally(ctx context.Context, boxID id.BallotBoxID, votesSum map[id.ChoiceID]int, totalVotes int) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	box, ok := s.boxes[boxID]
	if !ok {
		return fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
	}
	updated := cloneBox(box)
	updated.VotesSum = cloneCounts(votesSum)
	total := totalVotes
	updated.TotalVotesCount = &total
	remember(st, s.boxes, boxID)
	s.boxes[boxID] = updated
	return nil
}

func (s *InMemoryStore) ResetBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, keepID id.BallotBoxID) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	keep, ok := s.boxes[keepID]
	if !ok {
		return fmt.Errorf("ballot box %s: %w", keepID, sentinel.ErrNotFound)
	}
	for boxID, box := range s.boxes {
		if box.VotingSessionID != sessionID || boxID == keepID {
			continue
		}
		key := boxKey{sessionID, box.RootTerritoryID}
		remember(st, s.boxes, boxID)
		remember(st, s.boxIndex, key)
		delete(s.boxes, boxID)
		delete(s.boxIndex, key)
	}
	updated := cloneBox(keep)
	updated.ChildBallotBoxIDs = []id.BallotBoxID{}
	updated.BallotBySubdivision = map[id.TerritoryID]int{}
	updated.VotesCount = 0
	updated.Status = models.BallotBoxStatusNormal
	updated.VotesSum = nil
	updated.TotalVotesCount = nil
	remember(st, s.boxes, keepID)
	s.boxes[keepID] = updated
	return nil
}

// ============================================================================
// Ballots
// ============================================================================

func (s *InMemoryStore) CreateBallot(ctx context.Context, ballot *models.Ballot) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	if _, ok := s.ballots[ballot.ID]; ok {
		return fmt.Errorf("ballot %s: %w", ballot.ID, sentinel.ErrConflict)
	}
	remember(st, s.ballots, ballot.ID)
	s.ballots[ballot.ID] = cloneBallot(ballot)
	return nil
}

func (s *InMemoryStore) GetBallot(ctx context.Context, ballotID id.BallotID) (*models.Ballot, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	ballot, ok := s.ballots[ballotID]
	if !ok {
		return nil, fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrNotFound)
	}
	return cloneBallot(ballot), nil
}

func (s *InMemoryStore) ListBallotNumbers(ctx context.Context, boxID id.BallotBoxID) ([]int, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	var out []int
	for _, b := range s.ballots {
		if b.BallotBoxID == boxID {
			out = append(out, b.No)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *InMemoryStore) MarkBallotUsed(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID, validUntil time.Time) (bool, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	ballot, ok := s.ballots[ballotID]
	if !ok {
		return false, fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrNotFound)
	}
	if ballot.Used {
		return false, nil
	}
	updated := cloneBallot(ballot)
	updated.Used = true
	updated.Choices = append([]id.ChoiceID(nil), choices...)
	updated.ValidUntil = validUntil
	remember(st, s.ballots, ballotID)
	s.ballots[ballotID] = updated
	return true, nil
}

func (s *InMemoryStore) UpdateBallotChoices(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	ballot, ok := s.ballots[ballotID]
	if !ok {
		return fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrNotFound)
	}
	if !ballot.Used {
		return fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrInvalidState)
	}
	updated := cloneBallot(ballot)
	updated.Choices = append([]id.ChoiceID(nil), choices...)
	remember(st, s.ballots, ballotID)
	s.ballots[ballotID] = updated
	return nil
}

func (s *InMemoryStore) ListBallots(ctx context.Context, boxID id.BallotBoxID) ([]*models.Ballot, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	return s.filterBallots(func(b *models.Ballot) bool { return b.BallotBoxID == boxID }), nil
}

func (s *InMemoryStore) ListBallotsBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Ballot, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	return s.filterBallots(func(b *models.Ballot) bool {
		return b.BallotBoxID == boxID && b.NextTerritorySubdivision == subdivision
	}), nil
}

func (s *InMemoryStore) filterBallots(keep func(*models.Ballot) bool) []*models.Ballot {
	var out []*models.Ballot
	for _, b := range s.ballots {
		if keep(b) {
			out = append(out, cloneBallot(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out
}

func (s *InMemoryStore) MoveBallot(ctx context.Context, ballotID id.BallotID, move models.Move) (bool, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	ballot, ok := s.ballots[ballotID]
	if !ok {
		return false, fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrNotFound)
	}
	if ballot.BallotBoxID != move.From || ballot.NextTerritorySubdivision != move.FromSubdivision {
		return false, nil
	}
	updated := cloneBallot(ballot)
	updated.BallotBoxID = move.To
	updated.NextTerritorySubdivision = move.NewSubdivision
	remember(st, s.ballots, ballotID)
	s.ballots[ballotID] = updated
	return true, nil
}

func (s *InMemoryStore) EraseBallotIdentities(ctx context.Context, sessionID id.VotingSessionID) (int, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	erased := 0
	for ballotID, b := range s.ballots {
		if b.VotingSessionID != sessionID || b.IsErased() {
			continue
		}
		updated := cloneBallot(b)
		updated.SecurityToken = ""
		updated.PollingStationID = ""
		updated.NextTerritorySubdivision = ""
		remember(st, s.ballots, ballotID)
		s.ballots[ballotID] = updated
		erased++
	}
	return erased, nil
}

func (s *InMemoryStore) DeleteUnusedBallots(ctx context.Context, sessionID id.VotingSessionID) (int, error) {
	return s.deleteBallots(ctx, func(b *models.Ballot) bool { return b.VotingSessionID == sessionID && !b.Used })
}

func (s *InMemoryStore) DeleteExpiredBallots(ctx context.Context, now time.Time) (int, error) {
	return s.deleteBallots(ctx, func(b *models.Ballot) bool { return b.IsExpiredAt(now) })
}

func (s *InMemoryStore) DeleteBallots(ctx context.Context, sessionID id.VotingSessionID) error {
	_, err := s.deleteBallots(ctx, func(b *models.Ballot) bool { return b.VotingSessionID == sessionID })
	return err
}

func (s *InMemoryStore) deleteBallots(ctx context.Context, match func(*models.Ballot) bool) (int, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	deleted := 0
	for ballotID, b := range s.ballots {
		if match(b) {
			remember(st, s.ballots, ballotID)
			delete(s.ballots, ballotID)
			deleted++
		}
	}
	return deleted, nil
}

// ============================================================================
// Voters
// ============================================================================

func (s *InMemoryStore) CreateVoter(ctx context.Context, voter *models.Voter) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	key := voterKey{voter.VotingSessionID, voter.UserID}
	if _, ok := s.voterIndex[key]; ok {
		return fmt.Errorf("voter %s: %w", voter.UserID, sentinel.ErrConflict)
	}
	remember(st, s.voters, voter.ID)
	remember(st, s.voterIndex, key)
	s.voters[voter.ID] = cloneVoter(voter)
	s.voterIndex[key] = voter.ID
	return nil
}

func (s *InMemoryStore) GetVoter(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) (*models.Voter, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	voterID, ok := s.voterIndex[voterKey{sessionID, userID}]
	if !ok {
		return nil, fmt.Errorf("voter %s: %w", userID, sentinel.ErrNotFound)
	}
	return cloneVoter(s.voters[voterID]), nil
}

func (s *InMemoryStore) ListVoters(ctx context.Context, boxID id.BallotBoxID) ([]*models.Voter, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	return s.filterVoters(func(v *models.Voter) bool { return v.BallotBoxID == boxID }), nil
}

func (s *InMemoryStore) ListVotersBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Voter, error) {
	_, unlock := s.lock(ctx)
	defer unlock()
	return s.filterVoters(func(v *models.Voter) bool {
		return v.BallotBoxID == boxID && v.NextTerritorySubdivision == subdivision
	}), nil
}

func (s *InMemoryStore) filterVoters(keep func(*models.Voter) bool) []*models.Voter {
	var out []*models.Voter
	for _, v := range s.voters {
		if keep(v) {
			out = append(out, cloneVoter(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *InMemoryStore) MoveVoter(ctx context.Context, voterID id.VoterID, move models.Move) (bool, error) {
	st, unlock := s.lock(ctx)
	defer unlock()
	voter, ok := s.voters[voterID]
	if !ok {
		return false, fmt.Errorf("voter %s: %w", voterID, sentinel.ErrNotFound)
	}
	if voter.BallotBoxID != move.From || voter.NextTerritorySubdivision != move.FromSubdivision {
		return false, nil
	}
	updated := cloneVoter(voter)
	updated.BallotBoxID = move.To
	updated.NextTerritorySubdivision = move.NewSubdivision
	remember(st, s.voters, voterID)
	s.voters[voterID] = updated
	return true, nil
}

func (s *InMemoryStore) DeleteVoters(ctx context.Context, sessionID id.VotingSessionID) error {
	st, unlock := s.lock(ctx)
	defer unlock()
	for voterID, v := range s.voters {
		if v.VotingSessionID != sessionID {
			continue
		}
		key := voterKey{v.VotingSessionID, v.UserID}
		remember(st, s.voters, voterID)
		remember(st, s.voterIndex, key)
		delete(s.voters, voterID)
		delete(s.voterIndex, key)
	}
	return nil
}

var _ ports.Store = (*InMemoryStore)(nil)
