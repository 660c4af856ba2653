package handlers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"pathways/internal/apperr"
	"pathways/internal/middleware"
	"pathways/internal/models"
	"pathways/internal/session"
	"pathways/internal/store"
)

// Auth handles sign-up, login, logout and the current-user lookup.
type Auth struct {
	users    UserStore
	sessions SessionStore
	tokens   TokenIssuer
	log      *zap.Logger
}

// NewAuth creates a new Auth handler group.
func NewAuth(users UserStore, sessions SessionStore, tokens TokenIssuer, log *zap.Logger) *Auth {
	return &Auth{users: users, sessions: sessions, tokens: tokens, log: log}
}

type credentials struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Signup creates an account and returns it with a fresh token.
func (a *Auth) Signup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, a.log, err)
		return
	}

	email, name, err := validateSignup(in.Email, in.Password, in.Name)
	if err != nil {
		fail(w, a.log, err)
		return
	}

	u, err := a.users.Create(r.Context(), email, in.Password, name)
	if err != nil {
		fail(w, a.log, err)
		return
	}

	token, err := a.startSession(r.Context(), u)
	if err != nil {
		fail(w, a.log, err)
		return
	}

	a.log.Info("account created", zap.String("user_id", u.ID.String()))
	writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

// Login verifies credentials and returns the account with a fresh token.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, a.log, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		fail(w, a.log, apperr.Validation("login", "email and password are required"))
		return
	}

	u, err := a.users.FindByEmail(r.Context(), in.Email)
	if err != nil {
		fail(w, a.log, err)
		return
	}
	// The same message for an unknown email and a wrong password.
	if u == nil || !store.CheckPassword(u, in.Password) {
		a.log.Info("failed login", zap.String("email", store.NormalizeEmail(in.Email)))
		fail(w, a.log, apperr.Auth("login", "invalid email or password"))
		return
	}

	token, err := a.startSession(r.Context(), u)
	if err != nil {
		fail(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: u, Token: token})
}

// Me returns the signed-in account.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r, a.users, a.log)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout revokes the session behind the request's token.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		fail(w, a.log, apperr.Auth("logout", "not signed in"))
		return
	}
	if err := a.sessions.Destroy(r.Context(), id.UserID, id.TokenID); err != nil {
		fail(w, a.log, err)
		return
	}
	writeMessage(w, "Logged out")
}

// startSession issues a token for u and registers its session.
func (a *Auth) startSession(ctx context.Context, u *models.User) (string, error) {
	token, id, err := a.tokens.Issue(u.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	err = a.sessions.Create(ctx, id.TokenID, &session.Data{
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: id.ExpiresAt,
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// currentUser loads the account behind the request's identity. It writes
// the error response itself and reports whether the caller may continue.
func currentUser(w http.ResponseWriter, r *http.Request, users UserStore, log *zap.Logger) (*models.User, bool) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		fail(w, log, apperr.Auth("current user", "not signed in"))
		return nil, false
	}
	u, err := users.FindByID(r.Context(), id.UserID)
	if err != nil {
		fail(w, log, err)
		return nil, false
	}
	if u == nil {
		fail(w, log, apperr.NotFound("current user", "user not found"))
		return nil, false
	}
	return u, true
}
