package ballotrequest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
)

const (
	// Redis key prefix for ballot request blocks: prefix + session + ":" + user
	ballotRequestKeyPrefix = "voting:ballot-request:"
	scanBatchSize          = 500
)

// RedisStore is a Redis-backed ballot request store. Blocks are keys whose
// TTL is the remaining block window, so expiry needs no sweeping.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed ballot request store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionPrefix(sessionID id.VotingSessionID) string {
	return ballotRequestKeyPrefix + sessionID.String() + ":"
}

func requestKeyFor(sessionID id.VotingSessionID, userID id.UserID) string {
	return sessionPrefix(sessionID) + userID.String()
}

// Acquire uses SET NX so only one concurrent request per citizen wins.
func (s *RedisStore) Acquire(ctx context.Context, req *models.BallotRequest, now time.Time) (bool, error) {
	ttl := req.BlockBallotRequestUntil.Sub(now)
	if ttl <= 0 {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, requestKeyFor(req.VotingSessionID, req.UserID), req.BlockBallotRequestUntil.UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire ballot request: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) error {
	if err := s.client.Del(ctx, requestKeyFor(sessionID, userID)).Err(); err != nil {
		return fmt.Errorf("release ballot request: %w", err)
	}
	return nil
}

// DeleteBySession scans the session's key space and deletes it in pipelined batches.
func (s *RedisStore) DeleteBySession(ctx context.Context, sessionID id.VotingSessionID) error {
	iter := s.client.Scan(ctx, 0, sessionPrefix(sessionID)+"*", scanBatchSize).Iterator()
	batch := make([]string, 0, scanBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		pipe := s.client.Pipeline()
		pipe.Del(ctx, batch...)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("delete ballot requests: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan ballot requests: %w", err)
	}
	return flush()
}
