package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pathways/internal/models"
)

// OnboardingStore persists questionnaire submissions.
type OnboardingStore struct {
	db *sql.DB
}

// NewOnboardingStore creates a new OnboardingStore with the given database connection.
func NewOnboardingStore(db *sql.DB) *OnboardingStore {
	return &OnboardingStore{db: db}
}

// Create stores a submission and sets the user's recommended stage in the
// same transaction. ID and CreatedAt are filled in on r.
func (s *OnboardingStore) Create(ctx context.Context, r *models.OnboardingResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin onboarding: %w", err)
	}
	defer tx.Rollback()

	r.ID = uuid.New()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO onboarding_responses
			(id, user_id, child_age_range, diagnosis_status, primary_concern, recommended_stage_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, r.ID, r.UserID, r.ChildAgeRange, r.DiagnosisStatus, r.PrimaryConcern, r.RecommendedStageID,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create onboarding response: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET recommended_stage_id = $1, updated_at = NOW() WHERE id = $2`,
		r.RecommendedStageID, r.UserID); err != nil {
		return fmt.Errorf("set recommended stage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit onboarding: %w", err)
	}
	return nil
}

// Latest returns the user's most recent submission. Returns nil if there is none.
func (s *OnboardingStore) Latest(ctx context.Context, userID uuid.UUID) (*models.OnboardingResponse, error) {
	r := &models.OnboardingResponse{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, child_age_range, diagnosis_status, primary_concern, recommended_stage_id, created_at
		FROM onboarding_responses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(
		&r.ID, &r.UserID, &r.ChildAgeRange, &r.DiagnosisStatus, &r.PrimaryConcern,
		&r.RecommendedStageID, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest onboarding response: %w", err)
	}
	return r, nil
}
