// Package account holds the signed-in parent's session on the client: who
// they are, their bearer token, the stage they were recommended and the
// milestones they have checked off. A Manager owns one session and keeps
// the account service and the local cache in step with it.
package account

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"time"

	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/onboarding"
)

// Keys under which the session is cached locally. PendingKey holds
// questionnaire answers given while signed out.
const (
	TokenKey   = "pathways_token"
	UserKey    = "pathways_user"
	PendingKey = "pathways_pending_answers"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

// User is the account as the service reports it.
type User struct {
	ID                  string           `json:"id"`
	Email               string           `json:"email"`
	Name                *string          `json:"name,omitempty"`
	RecommendedStageID  *catalog.StageID `json:"recommendedStageId,omitempty"`
	CompletedMilestones []string         `json:"completedMilestones"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// HasCompleted reports whether milestoneID is checked off.
func (u User) HasCompleted(milestoneID string) bool {
	i := sort.SearchStrings(u.CompletedMilestones, milestoneID)
	return i < len(u.CompletedMilestones) && u.CompletedMilestones[i] == milestoneID
}

// DisplayName returns the name, or the email when no name is set.
func (u User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

func (u User) clone() User {
	if u.Name != nil {
		n := *u.Name
		u.Name = &n
	}
	if u.RecommendedStageID != nil {
		s := *u.RecommendedStageID
		u.RecommendedStageID = &s
	}
	u.CompletedMilestones = append([]string{}, u.CompletedMilestones...)
	return u
}

// Session is a signed-in user plus the bearer token that proves it.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{User: s.User.clone(), Token: s.Token}
}

// ProfileUpdate lists the profile fields to change. Nil fields are left as
// they are. CompletedMilestones replaces the whole set when non-nil.
type ProfileUpdate struct {
	Name                *string          `json:"name,omitempty"`
	Email               *string          `json:"email,omitempty"`
	RecommendedStageID  *catalog.StageID `json:"recommendedStageId,omitempty"`
	CompletedMilestones []string         `json:"completedMilestones,omitempty"`
}

// Remote is the account service. Every call that acts on an account takes
// the bearer token explicitly.
type Remote interface {
	Signup(ctx context.Context, email, password string, name *string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Me(ctx context.Context, token string) (*User, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (*User, error)
	SubmitOnboarding(ctx context.Context, token string, a onboarding.Answers) (catalog.StageID, error)
	ToggleMilestone(ctx context.Context, token, milestoneID string) (bool, error)
	ResetProgress(ctx context.Context, token string) error
}

// LocalStore is the on-device cache for the token and the user snapshot.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// ValidateCredentials checks the shape of an email and password before
// they are sent anywhere.
func ValidateCredentials(email, password string) error {
	const op = "credentials"
	if err := ValidateEmail(email); err != nil {
		return apperr.Auth(op, apperr.MessageOf(err))
	}
	if len(password) < MinPasswordLength {
		return apperr.Auth(op, "password must be at least 8 characters")
	}
	return nil
}

// ValidateEmail accepts a bare address such as parent@example.com.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, ".") {
		return apperr.Validation("email", "invalid email address")
	}
	return nil
}

// NormalizeMilestones returns ids deduplicated and sorted. Ids that are not
// in cat yield a NotFound error.
func NormalizeMilestones(cat *catalog.Catalog, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !cat.HasMilestone(id) {
			return nil, apperr.NotFound("milestones", "milestone "+id+" not found")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// sanitize drops references the catalog does not know about. It is applied
// to data read back from the local cache, which may predate a catalog change.
func sanitize(cat *catalog.Catalog, u *User) {
	kept := make([]string, 0, len(u.CompletedMilestones))
	seen := make(map[string]struct{}, len(u.CompletedMilestones))
	for _, id := range u.CompletedMilestones {
		if _, dup := seen[id]; dup || !cat.HasMilestone(id) {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}
	sort.Strings(kept)
	u.CompletedMilestones = kept
	if u.RecommendedStageID != nil && !cat.HasStage(*u.RecommendedStageID) {
		u.RecommendedStageID = nil
	}
}

func setMembership(ids []string, id string, member bool) []string {
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if member {
		out = append(out, id)
		sort.Strings(out)
	}
	return out
}
