// Package ballotrequest holds the per-citizen issuance blocks that stop a
// citizen from requesting a second ballot within the block window.
package ballotrequest

import (
	"context"
	"sync"
	"time"

	"agora/internal/voting/models"
	"agora/internal/voting/ports"
	id "agora/pkg/domain"
)

type requestKey struct {
	sessionID id.VotingSessionID
	userID    id.UserID
}

// InMemoryStore implements ports.BallotRequestStore for single-instance deployments.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[requestKey]models.BallotRequest
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[requestKey]models.BallotRequest)}
}

// Acquire writes req unless an active block exists.
func (s *InMemoryStore) Acquire(_ context.Context, req *models.BallotRequest, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := requestKey{req.VotingSessionID, req.UserID}
	if existing, ok := s.requests[key]; ok && existing.IsActiveAt(now) {
		return false, nil
	}
	s.requests[key] = *req
	return true, nil
}

func (s *InMemoryStore) Release(_ context.Context, sessionID id.VotingSessionID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requestKey{sessionID, userID})
	return nil
}

func (s *InMemoryStore) DeleteBySession(_ context.Context, sessionID id.VotingSessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.requests {
		if key.sessionID == sessionID {
			delete(s.requests, key)
		}
	}
	return nil
}

var (
	_ ports.BallotRequestStore = (*InMemoryStore)(nil)
	_ ports.BallotRequestStore = (*RedisStore)(nil)
	_ ports.BallotRequestStore = (*PostgresStore)(nil)
)
