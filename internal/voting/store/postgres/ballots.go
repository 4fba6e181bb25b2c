package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

const ballotColumns = `id, voting_session_id, ballot_box_id, no, security_token, choices, used,
	valid_until, polling_station_id, next_territory_subdivision`

func (s *PostgresStore) CreateBallot(ctx context.Context, ballot *models.Ballot) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO ballots (`+ballotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(ballot.ID), uuid.UUID(ballot.VotingSessionID), uuid.UUID(ballot.BallotBoxID), ballot.No,
		ballot.SecurityToken, pq.Array(choiceStrings(ballot.Choices)), ballot.Used, nullTime(ballot.ValidUntil),
		string(ballot.PollingStationID), string(ballot.NextTerritorySubdivision))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ballot %s: %w", ballot.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ballot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBallot(ctx context.Context, ballotID id.BallotID) (*models.Ballot, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+ballotColumns+` FROM ballots WHERE id = $1`, uuid.UUID(ballotID))
	ballot, err := scanBallot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrNotFound)
		}
		return nil, err
	}
	return ballot, nil
}

func (s *PostgresStore) ListBallotNumbers(ctx context.Context, boxID id.BallotBoxID) ([]int, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `SELECT no FROM ballots WHERE ballot_box_id = $1 ORDER BY no`, uuid.UUID(boxID))
	if err != nil {
		return nil, fmt.Errorf("select ballot numbers: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var no int
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("scan ballot number: %w", err)
		}
		out = append(out, no)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkBallotUsed(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID, validUntil time.Time) (bool, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballots SET used = TRUE, choices = $2, valid_until = $3
		WHERE id = $1 AND used = FALSE
	`, uuid.UUID(ballotID), pq.Array(choiceStrings(choices)), nullTime(validUntil))
	if err != nil {
		return false, fmt.Errorf("mark ballot used: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetBallot(ctx, ballotID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) UpdateBallotChoices(ctx context.Context, ballotID id.BallotID, choices []id.ChoiceID) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballots SET choices = $2 WHERE id = $1 AND used = TRUE
	`, uuid.UUID(ballotID), pq.Array(choiceStrings(choices)))
	if err != nil {
		return fmt.Errorf("update ballot choices: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetBallot(ctx, ballotID); err != nil {
		return err
	}
	return fmt.Errorf("ballot %s: %w", ballotID, sentinel.ErrInvalidState)
}

func (s *PostgresStore) ListBallots(ctx context.Context, boxID id.BallotBoxID) ([]*models.Ballot, error) {
	return s.queryBallots(ctx, `SELECT `+ballotColumns+` FROM ballots WHERE ballot_box_id = $1 ORDER BY no`, uuid.UUID(boxID))
}

func (s *PostgresStore) ListBallotsBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Ballot, error) {
	return s.queryBallots(ctx, `SELECT `+ballotColumns+` FROM ballots
		WHERE ballot_box_id = $1 AND next_territory_subdivision = $2 ORDER BY no`,
		uuid.UUID(boxID), string(subdivision))
}

func (s *PostgresStore) queryBallots(ctx context.Context, query string, args ...any) ([]*models.Ballot, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ballots: %w", err)
	}
	defer rows.Close()
	var out []*models.Ballot
	for rows.Next() {
		ballot, err := scanBallot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ballot)
	}
	return out, rows.Err()
}

func scanBallot(row rowScanner) (*models.Ballot, error) {
	var (
		ballot     models.Ballot
		rawID      uuid.UUID
		session    uuid.UUID
		box        uuid.UUID
		choices    []string
		validUntil sql.NullTime
		station    string
		next       string
	)
	if err := row.Scan(&rawID, &session, &box, &ballot.No, &ballot.SecurityToken, pq.Array(&choices),
		&ballot.Used, &validUntil, &station, &next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ballot: %w", err)
	}
	ballot.ID = id.BallotID(rawID)
	ballot.VotingSessionID = id.VotingSessionID(session)
	ballot.BallotBoxID = id.BallotBoxID(box)
	if len(choices) > 0 {
		ballot.Choices = make([]id.ChoiceID, len(choices))
		for i, c := range choices {
			ballot.Choices[i] = id.ChoiceID(c)
		}
	}
	if validUntil.Valid {
		ballot.ValidUntil = validUntil.Time
	}
	ballot.PollingStationID = id.TerritoryID(station)
	ballot.NextTerritorySubdivision = id.TerritoryID(next)
	return &ballot, nil
}

func (s *PostgresStore) MoveBallot(ctx context.Context, ballotID id.BallotID, move models.Move) (bool, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballots SET ballot_box_id = $2, next_territory_subdivision = $3
		WHERE id = $1 AND ballot_box_id = $4 AND next_territory_subdivision = $5
	`, uuid.UUID(ballotID), uuid.UUID(move.To), string(move.NewSubdivision),
		uuid.UUID(move.From), string(move.FromSubdivision))
	if err != nil {
		return false, fmt.Errorf("move ballot: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (s *PostgresStore) EraseBallotIdentities(ctx context.Context, sessionID id.VotingSessionID) (int, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballots SET security_token = '', polling_station_id = '', next_territory_subdivision = ''
		WHERE voting_session_id = $1
			AND (security_token <> '' OR polling_station_id <> '' OR next_territory_subdivision <> '')
	`, uuid.UUID(sessionID))
	if err != nil {
		return 0, fmt.Errorf("erase ballot identities: %w", err)
	}
	return rowsAffected(res)
}

func (s *PostgresStore) DeleteUnusedBallots(ctx context.Context, sessionID id.VotingSessionID) (int, error) {
	res, err := s.exec(ctx).ExecContext(ctx,
		`DELETE FROM ballots WHERE voting_session_id = $1 AND used = FALSE`, uuid.UUID(sessionID))
	if err != nil {
		return 0, fmt.Errorf("delete unused ballots: %w", err)
	}
	return rowsAffected(res)
}

func (s *PostgresStore) DeleteExpiredBallots(ctx context.Context, now time.Time) (int, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		DELETE FROM ballots WHERE used = FALSE AND valid_until IS NOT NULL AND valid_until <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired ballots: %w", err)
	}
	return rowsAffected(res)
}

func (s *PostgresStore) DeleteBallots(ctx context.Context, sessionID id.VotingSessionID) error {
	if _, err := s.exec(ctx).ExecContext(ctx,
		`DELETE FROM ballots WHERE voting_session_id = $1`, uuid.UUID(sessionID)); err != nil {
		return fmt.Errorf("delete ballots: %w", err)
	}
	return nil
}

func choiceStrings(choices []id.ChoiceID) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = string(c)
	}
	return out
}
