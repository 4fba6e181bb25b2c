package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

func (s *PostgresStore) CreateVotingSession(ctx context.Context, session *models.VotingSession) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		var end sql.NullTime
		if session.EndTime != nil {
			end = sql.NullTime{Time: *session.EndTime, Valid: true}
		}
		_, err := s.exec(ctx).ExecContext(ctx, `
			INSERT INTO voting_sessions (id, type, start_time, end_time, territory_id, territory_type,
				max_choices, voters_count, status, root_ballot_box_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, uuid.UUID(session.ID), string(session.Type), session.StartTime, end,
			string(session.TerritoryID), string(session.TerritoryType), session.MaxChoices,
			session.VotersCount, string(session.Status), uuid.UUID(session.RootBallotBoxID), session.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("voting session %s: %w", session.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert voting session: %w", err)
		}
		for i, choice := range session.Choices {
			_, err := s.exec(ctx).ExecContext(ctx, `
				INSERT INTO voting_session_choices (voting_session_id, choice, tiebreaker, position)
				VALUES ($1, $2, $3, $4)
			`, uuid.UUID(session.ID), string(choice), session.ChoiceTiebreak[choice], i+1)
			if err != nil {
				return fmt.Errorf("insert voting session choice: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetVotingSession(ctx context.Context, sessionID id.VotingSessionID) (*models.VotingSession, error) {
	var (
		session   models.VotingSession
		rawID     uuid.UUID
		rawRoot   uuid.UUID
		sType     string
		status    string
		territory string
		tType     string
		end       sql.NullTime
	)
	err := s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, type, start_time, end_time, territory_id, territory_type, max_choices,
			voters_count, status, root_ballot_box_id, created_at
		FROM voting_sessions WHERE id = $1
	`, uuid.UUID(sessionID)).Scan(&rawID, &sType, &session.StartTime, &end, &territory, &tType,
		&session.MaxChoices, &session.VotersCount, &status, &rawRoot, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("select voting session: %w", err)
	}
	session.ID = id.VotingSessionID(rawID)
	session.Type = models.SessionType(sType)
	session.Status = models.SessionStatus(status)
	session.TerritoryID = id.TerritoryID(territory)
	session.TerritoryType = id.TerritoryType(tType)
	session.RootBallotBoxID = id.BallotBoxID(rawRoot)
	if end.Valid {
		t := end.Time
		session.EndTime = &t
	}

	if err := s.loadChoices(ctx, &session); err != nil {
		return nil, err
	}
	if err := s.loadVotes(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PostgresStore) loadChoices(ctx context.Context, session *models.VotingSession) error {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT choice, tiebreaker FROM voting_session_choices
		WHERE voting_session_id = $1 ORDER BY position
	`, uuid.UUID(session.ID))
	if err != nil {
		return fmt.Errorf("select voting session choices: %w", err)
	}
	defer rows.Close()
	session.Choices = []id.ChoiceID{}
	session.ChoiceTiebreak = map[id.ChoiceID]int{}
	for rows.Next() {
		var (
			choice     string
			tiebreaker int
		)
		if err := rows.Scan(&choice, &tiebreaker); err != nil {
			return fmt.Errorf("scan voting session choice: %w", err)
		}
		session.Choices = append(session.Choices, id.ChoiceID(choice))
		session.ChoiceTiebreak[id.ChoiceID(choice)] = tiebreaker
	}
	return rows.Err()
}

func (s *PostgresStore) loadVotes(ctx context.Context, session *models.VotingSession) error {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT choice, votes FROM voting_session_votes WHERE voting_session_id = $1
	`, uuid.UUID(session.ID))
	if err != nil {
		return fmt.Errorf("select voting session votes: %w", err)
	}
	defer rows.Close()
	session.VotesSum = map[id.ChoiceID]int{}
	for rows.Next() {
		var (
			choice string
			votes  int
		)
		if err := rows.Scan(&choice, &votes); err != nil {
			return fmt.Errorf("scan voting session votes: %w", err)
		}
		session.VotesSum[id.ChoiceID(choice)] = votes
	}
	return rows.Err()
}

func (s *PostgresStore) ListEndedVotingSessions(ctx context.Context, now time.Time) ([]*models.VotingSession, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id FROM voting_sessions
		WHERE status = $1 AND end_time IS NOT NULL AND end_time <= $2
		ORDER BY end_time
	`, string(models.SessionStatusAvailable), now)
	if err != nil {
		return nil, fmt.Errorf("select ended voting sessions: %w", err)
	}
	var ids []id.VotingSessionID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ended voting session: %w", err)
		}
		ids = append(ids, id.VotingSessionID(raw))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate ended voting sessions: %w", err)
	}
	rows.Close()

	out := make([]*models.VotingSession, 0, len(ids))
	for _, sessionID := range ids {
		session, err := s.GetVotingSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *PostgresStore) AddChoice(ctx context.Context, sessionID id.VotingSessionID, choice id.ChoiceID, tiebreaker int) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO voting_session_choices (voting_session_id, choice, tiebreaker, position)
		SELECT vs.id, $2, $3, COALESCE(
			(SELECT MAX(position) FROM voting_session_choices WHERE voting_session_id = vs.id), 0) + 1
		FROM voting_sessions vs
		WHERE vs.id = $1 AND vs.status = $4
	`, uuid.UUID(sessionID), string(choice), tiebreaker, string(models.SessionStatusAvailable))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("choice %s: %w", choice, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert choice: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetVotingSession(ctx, sessionID); err != nil {
		return err
	}
	return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrInvalidState)
}

func (s *PostgresStore) CloseVotingSession(ctx context.Context, sessionID id.VotingSessionID) (bool, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE voting_sessions SET status = $2 WHERE id = $1 AND status = $3
	`, uuid.UUID(sessionID), string(models.SessionStatusClosed), string(models.SessionStatusAvailable))
	if err != nil {
		return false, fmt.Errorf("close voting session: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetVotingSession(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) IncrementVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID, voters int, choices map[id.ChoiceID]int) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx).ExecContext(ctx, `
			UPDATE voting_sessions SET voters_count = voters_count + $2 WHERE id = $1
		`, uuid.UUID(sessionID), voters)
		if err != nil {
			return fmt.Errorf("increment voters: %w", err)
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("voting session %s: %w", sessionID, sentinel.ErrNotFound)
		}
		for choice, delta := range choices {
			if delta == 0 {
				continue
			}
			_, err := s.exec(ctx).ExecContext(ctx, `
				INSERT INTO voting_session_votes (voting_session_id, choice, votes)
				VALUES ($1, $2, $3)
				ON CONFLICT (voting_session_id, choice) DO UPDATE SET
					votes = voting_session_votes.votes + EXCLUDED.votes
			`, uuid.UUID(sessionID), string(choice), delta)
			if err != nil {
				return fmt.Errorf("increment choice votes: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ResetVotingSessionVotes(ctx context.Context, sessionID id.VotingSessionID) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx).ExecContext(ctx,
			`UPDATE voting_sessions SET voters_count = 0 WHERE id = $1`, uuid.UUID(sessionID)); err != nil {
			return fmt.Errorf("reset voters: %w", err)
		}
		if _, err := s.exec(ctx).ExecContext(ctx,
			`DELETE FROM voting_session_votes WHERE voting_session_id = $1`, uuid.UUID(sessionID)); err != nil {
			return fmt.Errorf("reset choice votes: %w", err)
		}
		return nil
	})
}
