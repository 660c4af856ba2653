package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ProgressStore manages the per-user completed milestone set.
type ProgressStore struct {
	db *sql.DB
}

// NewProgressStore creates a new ProgressStore with the given database connection.
func NewProgressStore(db *sql.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Completed returns the user's completed milestone ids, sorted.
func (s *ProgressStore) Completed(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return completedMilestones(ctx, s.db, userID)
}

// Toggle flips one milestone inside a transaction: an existing row is
// removed, otherwise one is inserted. When a concurrent toggle inserts the
// same row first the milestone is left complete. It returns the new state
// and the completed set after the change.
func (s *ProgressStore) Toggle(ctx context.Context, userID uuid.UUID, milestoneID string) (bool, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin toggle: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_milestones WHERE user_id = $1 AND milestone_id = $2`, userID, milestoneID)
	if err != nil {
		return false, nil, fmt.Errorf("toggle delete: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("toggle rows affected: %w", err)
	}

	complete := removed == 0
	if complete {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_milestones (user_id, milestone_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, userID, milestoneID); err != nil {
			return false, nil, fmt.Errorf("toggle insert: %w", err)
		}
	}

	ids, err := completedMilestones(ctx, tx, userID)
	if err != nil {
		return false, nil, err
	}
	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit toggle: %w", err)
	}
	return complete, ids, nil
}

// Reset clears every completed milestone and returns how many were removed.
func (s *ProgressStore) Reset(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_milestones WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("reset progress: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
