// Package handlers contains the HTTP handlers for the Pathways account
// service. Handlers are grouped by concern (auth, account, journey,
// catalog, health) and receive their dependencies through the handler
// struct. Every response is JSON; errors are {"error": "..."}.
package handlers

import (
	"context"

	"github.com/google/uuid"

	"pathways/internal/auth"
	"pathways/internal/cache"
	"pathways/internal/models"
	"pathways/internal/session"
)

// UserStore is the user persistence the handlers need.
type UserStore interface {
	Create(ctx context.Context, email, password string, name *string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) error
}

// ProgressStore holds each parent's completed milestone set.
type ProgressStore interface {
	Completed(ctx context.Context, userID uuid.UUID) ([]string, error)
	Toggle(ctx context.Context, userID uuid.UUID, milestoneID string) (bool, []string, error)
	Reset(ctx context.Context, userID uuid.UUID) (int64, error)
}

// OnboardingStore keeps questionnaire submissions.
type OnboardingStore interface {
	Create(ctx context.Context, r *models.OnboardingResponse) error
	Latest(ctx context.Context, userID uuid.UUID) (*models.OnboardingResponse, error)
}

// HistoryStore keeps journey snapshots.
type HistoryStore interface {
	Record(ctx context.Context, e *models.JourneyEntry) error
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.JourneyEntry, error)
	ListForMilestone(ctx context.Context, userID uuid.UUID, milestoneID string, limit int) ([]models.JourneyEntry, error)
}

// SessionStore tracks live bearer tokens.
type SessionStore interface {
	Create(ctx context.Context, tokenID string, data *session.Data) error
	Destroy(ctx context.Context, userID uuid.UUID, tokenID string) error
	DestroyAll(ctx context.Context, userID uuid.UUID, keepTokenID string) (int, error)
}

// ProgressCache holds computed progress reports.
type ProgressCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*cache.Entry, error)
	Set(ctx context.Context, userID uuid.UUID, e *cache.Entry) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// TokenIssuer mints bearer tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, auth.Identity, error)
}
