package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"pathways/internal/account"
	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/middleware"
	"pathways/internal/models"
	"pathways/internal/store"
)

// Account handles the signed-in parent's profile.
type Account struct {
	users    UserStore
	sessions SessionStore
	progress ProgressCache
	cat      *catalog.Catalog
	log      *zap.Logger
}

// NewAccount creates a new Account handler group.
func NewAccount(users UserStore, sessions SessionStore, progress ProgressCache, cat *catalog.Catalog, log *zap.Logger) *Account {
	return &Account{users: users, sessions: sessions, progress: progress, cat: cat, log: log}
}

// profileRequest distinguishes an absent milestone list from an empty one.
type profileRequest struct {
	Name                *string   `json:"name"`
	Email               *string   `json:"email"`
	RecommendedStageID  *string   `json:"recommendedStageId"`
	CompletedMilestones *[]string `json:"completedMilestones"`
}

// Profile returns the signed-in account.
func (a *Account) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r, a.users, a.log)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateProfile applies a partial update. Unknown stage or milestone ids
// are rejected; a milestone list replaces the whole set.
func (a *Account) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	const op = "update profile"

	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		fail(w, a.log, apperr.Auth(op, "not signed in"))
		return
	}

	var in profileRequest
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, a.log, err)
		return
	}

	patch, err := a.buildPatch(in)
	if err != nil {
		fail(w, a.log, err)
		return
	}
	if patch.Empty() {
		a.Profile(w, r)
		return
	}

	u, err := a.users.UpdateProfile(r.Context(), id.UserID, patch)
	if err != nil {
		fail(w, a.log, err)
		return
	}
	if u == nil {
		fail(w, a.log, apperr.NotFound(op, "user not found"))
		return
	}

	if patch.CompletedMilestones != nil {
		if err := a.progress.Invalidate(r.Context(), id.UserID); err != nil {
			a.log.Warn("invalidate progress cache", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *Account) buildPatch(in profileRequest) (models.ProfilePatch, error) {
	const op = "update profile"
	var patch models.ProfilePatch

	if in.Name != nil {
		name, err := validateName(in.Name)
		if err != nil {
			return patch, err
		}
		// A blank name clears it.
		if name == nil {
			name = new(string)
		}
		patch.Name = name
	}
	if in.Email != nil {
		email, err := validateEmail(*in.Email)
		if err != nil {
			return patch, err
		}
		patch.Email = &email
	}
	if in.RecommendedStageID != nil {
		if !a.cat.HasStage(catalog.StageID(*in.RecommendedStageID)) {
			return patch, apperr.NotFound(op, "stage "+*in.RecommendedStageID+" not found")
		}
		patch.RecommendedStageID = in.RecommendedStageID
	}
	if in.CompletedMilestones != nil {
		ids, err := account.NormalizeMilestones(a.cat, *in.CompletedMilestones)
		if err != nil {
			return patch, err
		}
		patch.CompletedMilestones = ids
	}
	return patch, nil
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the password after checking the current one. All
// other sessions of the account are revoked; the calling token stays valid.
func (a *Account) ChangePassword(w http.ResponseWriter, r *http.Request) {
	const op = "change password"

	var in passwordRequest
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, a.log, err)
		return
	}
	if err := validatePassword(op, in.NewPassword); err != nil {
		fail(w, a.log, err)
		return
	}

	u, ok := currentUser(w, r, a.users, a.log)
	if !ok {
		return
	}
	if !store.CheckPassword(u, in.CurrentPassword) {
		fail(w, a.log, apperr.Validation(op, "current password is incorrect"))
		return
	}

	if err := a.users.UpdatePassword(r.Context(), u.ID, in.NewPassword); err != nil {
		fail(w, a.log, err)
		return
	}

	id, _ := middleware.IdentityFromCtx(r.Context())
	revoked, err := a.sessions.DestroyAll(r.Context(), u.ID, id.TokenID)
	if err != nil {
		a.log.Warn("revoke sessions after password change", zap.Error(err))
	}

	a.log.Info("password changed", zap.String("user_id", u.ID.String()), zap.Int("revoked_sessions", revoked))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Password updated",
		"revoked_sessions": revoked,
	})
}
