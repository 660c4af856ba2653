package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"pathways/internal/models"
)

// DefaultHistoryLimit caps history listings when no limit is given.
const DefaultHistoryLimit = 50

// HistoryStore records journey snapshots.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore with the given database connection.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record inserts an entry. ID and CreatedAt are filled in on e.
func (s *HistoryStore) Record(ctx context.Context, e *models.JourneyEntry) error {
	completed, err := json.Marshal(nonNil(e.CompletedMilestoneIDs))
	if err != nil {
		return fmt.Errorf("marshal completed ids: %w", err)
	}
	stages := e.StageProgress
	if stages == nil {
		stages = []models.StageSnapshot{}
	}
	progress, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("marshal stage progress: %w", err)
	}

	e.ID = uuid.New()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO journey_history
			(id, user_id, milestone_id, stage_id, action, completed_milestone_ids, stage_progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.UserID, e.MilestoneID, e.StageID, string(e.Action), string(completed), string(progress),
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record journey entry: %w", err)
	}
	return nil
}

// List returns up to limit entries for the user, newest first.
func (s *HistoryStore) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.JourneyEntry, error) {
	return s.query(ctx, `
		SELECT id, user_id, milestone_id, stage_id, action, completed_milestone_ids, stage_progress, created_at
		FROM journey_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
}

// ListForMilestone returns up to limit entries touching one milestone.
func (s *HistoryStore) ListForMilestone(ctx context.Context, userID uuid.UUID, milestoneID string, limit int) ([]models.JourneyEntry, error) {
	return s.query(ctx, `
		SELECT id, user_id, milestone_id, stage_id, action, completed_milestone_ids, stage_progress, created_at
		FROM journey_history
		WHERE user_id = $1 AND milestone_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, milestoneID, clampLimit(limit))
}

func (s *HistoryStore) query(ctx context.Context, q string, args ...any) ([]models.JourneyEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list journey history: %w", err)
	}
	defer rows.Close()

	entries := []models.JourneyEntry{}
	for rows.Next() {
		var (
			e                   models.JourneyEntry
			action              string
			completed, progress []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.MilestoneID, &e.StageID, &action,
			&completed, &progress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journey entry: %w", err)
		}
		e.Action = models.JourneyAction(action)
		if err := json.Unmarshal(completed, &e.CompletedMilestoneIDs); err != nil {
			return nil, fmt.Errorf("decode completed ids: %w", err)
		}
		if err := json.Unmarshal(progress, &e.StageProgress); err != nil {
			return nil, fmt.Errorf("decode stage progress: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
