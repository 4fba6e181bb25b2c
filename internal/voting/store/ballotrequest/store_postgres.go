package ballotrequest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/tx"
)

// PostgresStore persists ballot request blocks in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed ballot request store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Acquire upserts the block only when the stored one has lapsed. The primary
// key on (session, user) makes concurrent first requests race on insert and
// the loser sees zero rows affected.
func (s *PostgresStore) Acquire(ctx context.Context, req *models.BallotRequest, now time.Time) (bool, error) {
	res, err := tx.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ballot_requests (voting_session_id, user_id, block_ballot_request_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (voting_session_id, user_id) DO UPDATE SET
			block_ballot_request_until = EXCLUDED.block_ballot_request_until
		WHERE ballot_requests.block_ballot_request_until <= $4
	`, uuid.UUID(req.VotingSessionID), uuid.UUID(req.UserID), req.BlockBallotRequestUntil, now)
	if err != nil {
		return false, fmt.Errorf("acquire ballot request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire ballot request rows: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) Release(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM ballot_requests WHERE voting_session_id = $1 AND user_id = $2`,
		uuid.UUID(sessionID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("release ballot request: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBySession(ctx context.Context, sessionID id.VotingSessionID) error {
	_, err := tx.Execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM ballot_requests WHERE voting_session_id = $1`, uuid.UUID(sessionID))
	if err != nil {
		return fmt.Errorf("delete ballot requests: %w", err)
	}
	return nil
}
