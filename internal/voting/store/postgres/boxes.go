package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agora/internal/voting/models"
	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
	"agora/pkg/platform/tx"
)

const boxColumns = `id, voting_session_id, root_territory_id, name, parent_ballot_box_id,
	child_ballot_box_ids, votes_count, status, votes_sum, total_votes_count, created_at`

func (s *PostgresStore) CreateBallotBox(ctx context.Context, box *models.BallotBox) error {
	var parent uuid.NullUUID
	if box.ParentBallotBoxID != nil {
		parent = uuid.NullUUID{UUID: uuid.UUID(*box.ParentBallotBoxID), Valid: true}
	}
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO ballot_boxes (id, voting_session_id, root_territory_id, name, parent_ballot_box_id,
			child_ballot_box_ids, votes_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(box.ID), uuid.UUID(box.VotingSessionID), string(box.RootTerritoryID), box.Name, parent,
		pq.Array(boxIDStrings(box.ChildBallotBoxIDs)), box.VotesCount, string(box.Status), box.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ballot box for %s: %w", box.RootTerritoryID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ballot box: %w", err)
	}
	return nil
}

// GetBallotBox locks the row when called inside a transaction, which
// serializes ballot number allocation within a box.
func (s *PostgresStore) GetBallotBox(ctx context.Context, boxID id.BallotBoxID) (*models.BallotBox, error) {
	query := `SELECT ` + boxColumns + ` FROM ballot_boxes WHERE id = $1`
	if _, ok := tx.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	box, err := scanBox(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(boxID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
		}
		return nil, err
	}
	if err := s.loadSubdivisions(ctx, []*models.BallotBox{box}); err != nil {
		return nil, err
	}
	return box, nil
}

func (s *PostgresStore) FindBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, territories []id.TerritoryID) ([]*models.BallotBox, error) {
	names := make([]string, len(territories))
	for i, t := range territories {
		names[i] = string(t)
	}
	return s.queryBoxes(ctx, `SELECT `+boxColumns+` FROM ballot_boxes
		WHERE voting_session_id = $1 AND root_territory_id = ANY($2)`,
		uuid.UUID(sessionID), pq.Array(names))
}

func (s *PostgresStore) ListBallotBoxes(ctx context.Context, sessionID id.VotingSessionID) ([]*models.BallotBox, error) {
	return s.queryBoxes(ctx, `SELECT `+boxColumns+` FROM ballot_boxes
		WHERE voting_session_id = $1 ORDER BY created_at`, uuid.UUID(sessionID))
}

func (s *PostgresStore) queryBoxes(ctx context.Context, query string, args ...any) ([]*models.BallotBox, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ballot boxes: %w", err)
	}
	var boxes []*models.BallotBox
	for rows.Next() {
		box, err := scanBox(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		boxes = append(boxes, box)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate ballot boxes: %w", err)
	}
	rows.Close()
	if err := s.loadSubdivisions(ctx, boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBox(row rowScanner) (*models.BallotBox, error) {
	var (
		box       models.BallotBox
		rawID     uuid.UUID
		session   uuid.UUID
		territory string
		parent    uuid.NullUUID
		children  []string
		status    string
		votesSum  []byte
		total     sql.NullInt64
	)
	if err := row.Scan(&rawID, &session, &territory, &box.Name, &parent, pq.Array(&children),
		&box.VotesCount, &status, &votesSum, &total, &box.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ballot box: %w", err)
	}
	box.ID = id.BallotBoxID(rawID)
	box.VotingSessionID = id.VotingSessionID(session)
	box.RootTerritoryID = id.TerritoryID(territory)
	box.Status = models.BallotBoxStatus(status)
	if parent.Valid {
		p := id.BallotBoxID(parent.UUID)
		box.ParentBallotBoxID = &p
	}
	box.ChildBallotBoxIDs = make([]id.BallotBoxID, 0, len(children))
	for _, c := range children {
		childID, err := id.ParseBallotBoxID(c)
		if err != nil {
			return nil, fmt.Errorf("parse child ballot box id: %w", err)
		}
		box.ChildBallotBoxIDs = append(box.ChildBallotBoxIDs, childID)
	}
	if len(votesSum) > 0 {
		if err := json.Unmarshal(votesSum, &box.VotesSum); err != nil {
			return nil, fmt.Errorf("decode ballot box tally: %w", err)
		}
	}
	if total.Valid {
		t := int(total.Int64)
		box.TotalVotesCount = &t
	}
	box.BallotBySubdivision = map[id.TerritoryID]int{}
	return &box, nil
}

func (s *PostgresStore) loadSubdivisions(ctx context.Context, boxes []*models.BallotBox) error {
	if len(boxes) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.BallotBox, len(boxes))
	ids := make([]string, 0, len(boxes))
	for _, b := range boxes {
		byID[uuid.UUID(b.ID)] = b
		ids = append(ids, b.ID.String())
	}
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT ballot_box_id, territory_id, votes FROM ballot_box_subdivisions
		WHERE ballot_box_id = ANY($1::uuid[]) AND votes <> 0
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select ballot box subdivisions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			boxID     uuid.UUID
			territory string
			votes     int
		)
		if err := rows.Scan(&boxID, &territory, &votes); err != nil {
			return fmt.Errorf("scan ballot box subdivision: %w", err)
		}
		if b, ok := byID[boxID]; ok {
			b.BallotBySubdivision[id.TerritoryID(territory)] = votes
		}
	}
	return rows.Err()
}

func (s *PostgresStore) TransitionBallotBoxStatus(ctx context.Context, boxID id.BallotBoxID, from, to models.BallotBoxStatus) (bool, error) {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballot_boxes SET status = $2 WHERE id = $1 AND status = $3
	`, uuid.UUID(boxID), string(to), string(from))
	if err != nil {
		return false, fmt.Errorf("transition ballot box status: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetBallotBox(ctx, boxID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) AppendChildBallotBox(ctx context.Context, parentID, childID id.BallotBoxID) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballot_boxes SET child_ballot_box_ids = array_append(child_ballot_box_ids, $2)
		WHERE id = $1
	`, uuid.UUID(parentID), childID.String())
	if err != nil {
		return fmt.Errorf("append child ballot box: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("ballot box %s: %w", parentID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) IncrementBallotBoxVotes(ctx context.Context, boxID id.BallotBoxID, votes int, subdivisions map[id.TerritoryID]int) (*models.BallotBox, error) {
	var box *models.BallotBox
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx).ExecContext(ctx, `
			UPDATE ballot_boxes SET votes_count = votes_count + $2 WHERE id = $1
		`, uuid.UUID(boxID), votes)
		if err != nil {
			return fmt.Errorf("increment ballot box votes: %w", err)
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
		}
		for territory, delta := range subdivisions {
			if delta == 0 {
				continue
			}
			_, err := s.exec(ctx).ExecContext(ctx, `
				INSERT INTO ballot_box_subdivisions (ballot_box_id, territory_id, votes)
				VALUES ($1, $2, $3)
				ON CONFLICT (ballot_box_id, territory_id) DO UPDATE SET
					votes = ballot_box_subdivisions.votes + EXCLUDED.votes
			`, uuid.UUID(boxID), string(territory), delta)
			if err != nil {
				return fmt.Errorf("increment ballot box subdivision: %w", err)
			}
		}
		box, err = s.GetBallotBox(ctx, boxID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return box, nil
}

func (s *PostgresStore) SaveBallotBoxTally(ctx context.Context, boxID id.BallotBoxID, votesSum map[id.ChoiceID]int, totalVotes int) error {
	encoded, err := json.Marshal(votesSum)
	if err != nil {
		return fmt.Errorf("encode ballot box tally: %w", err)
	}
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE ballot_boxes SET votes_sum = $2, total_votes_count = $3 WHERE id = $1
	`, uuid.UUID(boxID), encoded, totalVotes)
	if err != nil {
		return fmt.Errorf("save ballot box tally: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("ballot box %s: %w", boxID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ResetBallotBoxes(ctx context.Context, sessionID id.VotingSessionID, keepID id.BallotBoxID) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx).ExecContext(ctx, `
			DELETE FROM ballot_boxes WHERE voting_session_id = $1 AND id <> $2
		`, uuid.UUID(sessionID), uuid.UUID(keepID)); err != nil {
			return fmt.Errorf("delete ballot boxes: %w", err)
		}
		if _, err := s.exec(ctx).ExecContext(ctx,
			`DELETE FROM ballot_box_subdivisions WHERE ballot_box_id = $1`, uuid.UUID(keepID)); err != nil {
			return fmt.Errorf("reset ballot box subdivisions: %w", err)
		}
		res, err := s.exec(ctx).ExecContext(ctx, `
			UPDATE ballot_boxes SET child_ballot_box_ids = '{}', votes_count = 0, status = $2,
				votes_sum = NULL, total_votes_count = NULL
			WHERE id = $1
		`, uuid.UUID(keepID), string(models.BallotBoxStatusNormal))
		if err != nil {
			return fmt.Errorf("reset ballot box: %w", err)
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("ballot box %s: %w", keepID, sentinel.ErrNotFound)
		}
		return nil
	})
}

func boxIDStrings(ids []id.BallotBoxID) []string {
	out := make([]string, len(ids))
	for i, b := range ids {
		out[i] = b.String()
	}
	return out
}
