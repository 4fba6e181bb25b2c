package ballotrequest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func request(sessionID id.VotingSessionID, userID id.UserID, until time.Time) *models.BallotRequest {
	return &models.BallotRequest{VotingSessionID: sessionID, UserID: userID, BlockBallotRequestUntil: until}
}

func TestInMemoryAcquire(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	sessionID := id.NewVotingSessionID()
	userID := id.UserID(id.NewVoterID())

	ok, err := store.Acquire(ctx, request(sessionID, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, request(sessionID, userID, now.Add(2*time.Hour)), now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "block still active")

	ok, err = store.Acquire(ctx, request(sessionID, userID, now.Add(3*time.Hour)), now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "block lapsed")
}

func TestInMemoryReleaseAndDeleteBySession(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	sessionID := id.NewVotingSessionID()
	other := id.NewVotingSessionID()
	userID := id.UserID(id.NewVoterID())

	_, err := store.Acquire(ctx, request(sessionID, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)
	_, err = store.Acquire(ctx, request(other, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, sessionID, userID))
	ok, err := store.Acquire(ctx, request(sessionID, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.DeleteBySession(ctx, sessionID))
	ok, err = store.Acquire(ctx, request(sessionID, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, request(other, userID, now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.False(t, ok, "other session untouched")
}

func TestInMemoryConcurrentAcquireSingleWinner(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	sessionID := id.NewVotingSessionID()
	userID := id.UserID(id.NewVoterID())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Acquire(ctx, request(sessionID, userID, now.Add(time.Hour)), now)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
