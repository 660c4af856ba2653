// Package store provides database access methods for the account service.
// Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"pathways/internal/models"
)

// ErrEmailTaken is returned when an email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// UserStore handles all user-related database operations.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, password_hash, name, recommended_stage_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.RecommendedStageID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.CompletedMilestones = []string{}
	return u, nil
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *UserStore) Create(ctx context.Context, email, password string, name *string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		uuid.New(), NormalizeEmail(email), string(hash), name,
	))
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// FindByEmail retrieves a user by email. Returns nil if not found.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if u.CompletedMilestones, err = completedMilestones(ctx, s.db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID retrieves a user and their completed milestones. Returns nil if
// not found.
func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if u.CompletedMilestones, err = completedMilestones(ctx, s.db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CheckPassword reports whether password matches the user's hash.
func CheckPassword(u *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// UpdateProfile applies patch in one transaction and returns the updated
// user. An empty Name clears it; a non-nil CompletedMilestones replaces the
// whole set. Returns nil if the user does not exist.
func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update profile: %w", err)
	}
	defer tx.Rollback()

	var email *string
	if patch.Email != nil {
		e := NormalizeEmail(*patch.Email)
		email = &e
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET
			name = CASE WHEN $2 THEN NULLIF($3, '') ELSE name END,
			email = COALESCE($4, email),
			recommended_stage_id = COALESCE($5, recommended_stage_id),
			updated_at = NOW()
		WHERE id = $1
	`, id, patch.Name != nil, patch.Name, email, patch.RecommendedStageID)
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	if patch.CompletedMilestones != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_milestones WHERE user_id = $1`, id); err != nil {
			return nil, fmt.Errorf("clear milestones: %w", err)
		}
		for _, m := range patch.CompletedMilestones {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_milestones (user_id, milestone_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, m); err != nil {
				return nil, fmt.Errorf("insert milestone: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update profile: %w", err)
	}
	return s.FindByID(ctx, id)
}

// UpdatePassword replaces the user's password hash.
func (s *UserStore) UpdatePassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, string(hash), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetRecommendedStage records the stage a questionnaire recommended.
func (s *UserStore) SetRecommendedStage(ctx context.Context, id uuid.UUID, stageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET recommended_stage_id = $1, updated_at = NOW() WHERE id = $2`, stageID, id)
	if err != nil {
		return fmt.Errorf("set recommended stage: %w", err)
	}
	return nil
}

// Delete removes a user by ID. Milestones, onboarding answers and history
// go with it.
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// completedMilestones loads a user's completed set, sorted.
func completedMilestones(ctx context.Context, q querier, userID uuid.UUID) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT milestone_id FROM user_milestones WHERE user_id = $1 ORDER BY milestone_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
