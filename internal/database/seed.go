package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Demo account created by Seed.
const (
	DemoEmail    = "demo@pathways.local"
	DemoPassword = "pathways-demo"
)

// demoMilestones are checked off on the demo account so progress views
// have something to show.
var demoMilestones = []string{"m1-1", "m1-2", "m1-3"}

// Seed populates the database with development data: one demo parent who
// has been recommended the diagnosis stage and has started the checklist.
// It does nothing when any user exists.
func Seed(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		log.Info("database already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, recommended_stage_id)
		VALUES ($1, $2, $3, $4, $5)
	`, id, DemoEmail, string(hash), "Demo Parent", "s2")
	if err != nil {
		return fmt.Errorf("seed insert user: %w", err)
	}

	for _, m := range demoMilestones {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_milestones (user_id, milestone_id) VALUES ($1, $2)`, id, m); err != nil {
			return fmt.Errorf("seed insert milestone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	log.Info("database seeded with demo parent",
		zap.String("email", DemoEmail),
		zap.String("password", DemoPassword),
	)
	return nil
}
