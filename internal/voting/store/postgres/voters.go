package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

const voterColumns = `id, voting_session_id, user_id, name, ballot_box_id, polling_station_id,
	next_territory_subdivision`

func (s *PostgresStore) CreateVoter(ctx context.Context, voter *models.Voter) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO voters (`+voterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(voter.ID), uuid.UUID(voter.VotingSessionID), uuid.UUID(voter.UserID), voter.Name,
		uuid.UUID(voter.BallotBoxID), string(voter.PollingStationID), string(voter.NextTerritorySubdivision))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("voter %s: %w", voter.UserID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert voter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVoter(ctx context.Context, sessionID id.VotingSessionID, userID id.UserID) (*models.Voter, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voters
		WHERE voting_session_id = $1 AND user_id = $2`, uuid.UUID(sessionID), uuid.UUID(userID))
	voter, err := scanVoter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("voter %s: %w", userID, sentinel.ErrNotFound)
		}
		return nil, err
	}
	return voter, nil
}

func (s *PostgresStore) ListVoters(ctx context.Context, boxID id.BallotBoxID) ([]*models.Voter, error) {
	return s.queryVoters(ctx, `SELECT `+voterColumns+` FROM voters WHERE ballot_box_id = $1 ORDER BY name`, uuid.UUID(boxID))
}

func (s *PostgresStore) ListVotersBySubdivision(ctx context.Context, boxID id.BallotBoxID, subdivision id.TerritoryID) ([]*models.Voter, error) {
	return s.queryVoters(ctx, `SELECT `+voterColumns+` FROM voters
		WHERE ballot_box_id = $1 AND next_territory_subdivision = $2 ORDER BY name`,
		uuid.UUID(boxID), string(subdivision))
}

func (s *PostgresStore) queryVoters(ctx context.Context, query string, args ...any) ([]*models.Voter, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select voters: %w", err)
	}
	defer rows.Close()
	var out []*models.Voter
	for rows.Next() {
		voter, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, voter)
	}
	return out, rows.Err()
}

func scanVoter(row rowScanner) (*models.Voter, error) {
	var (
		voter   models.Voter
		rawID   uuid.UUID
		session uuid.UUID
		user    uuid.UUID
		box     uuid.UUID
		station string
		next    string
	)
	if err := row.Scan(&rawID, &session, &user, &voter.Name, &box, &station, &next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan voter: %w", err)
	}
	voter.ID = id.VoterID(rawID)
	voter.VotingSessionID = id.VotingSessionID(session)
	voter.UserID = id.UserID(user)
	voter.BallotBoxID = id.BallotBoxID(box)
	voter.PollingStationID = id.TerritoryID(station)
	voter.NextTerritorySubdivision = id.TerritoryID(next)
	return &voter, nil
}

func (s *PostgresStore) MoveVoter(ctx context.Context, voterID id.VoterID, move models.Move) (bool, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE voters SET ballot_box_id = $2, next_territory_subdivision = $3
		WHERE id = $1 AND ballot_box_id = $4 AND next_territory_subdivision = $5
	`, uuid.UUID(voterID), uuid.UUID(move.To), string(move.NewSubdivision),
		uuid.UUID(move.From), string(move.FromSubdivision))
	if err != nil {
		return false, fmt.Errorf("move voter: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (s *PostgresStore) DeleteVoters(ctx context.Context, sessionID id.VotingSessionID) error {
	if _, err := s.exec(ctx).ExecContext(ctx,
		`DELETE FROM voters WHERE voting_session_id = $1`, uuid.UUID(sessionID)); err != nil {
		return fmt.Errorf("delete voters: %w", err)
	}
	return nil
}
