package account

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/onboarding"
	"pathways/internal/progress"
)

// Manager owns the current session. It is safe for concurrent use; each
// operation runs to completion before the next starts.
type Manager struct {
	mu      sync.Mutex
	remote  Remote
	local   LocalStore
	cat     *catalog.Catalog
	log     *zap.Logger
	sess    *Session
	pending *onboarding.Answers
}

// NewManager returns a signed-out Manager. Call Restore to pick up a session
// cached by a previous run.
func NewManager(remote Remote, local LocalStore, cat *catalog.Catalog, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{remote: remote, local: local, cat: cat, log: log}
}

// Catalog returns the catalog the manager validates against.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.cat
}

// Register creates an account and signs it in. A failed registration leaves
// any existing session untouched.
func (m *Manager) Register(ctx context.Context, email, password string, name *string) (*Session, error) {
	email = strings.TrimSpace(email)
	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		name = &n
		if n == "" {
			name = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.remote.Signup(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	m.signIn(ctx, sess)
	m.log.Info("account registered", zap.String("user_id", sess.User.ID))
	return m.sess.clone(), nil
}

// Login signs in with an existing account.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Auth("login", "email and password are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.remote.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.signIn(ctx, sess)
	m.log.Info("signed in", zap.String("user_id", sess.User.ID))
	return m.sess.clone(), nil
}

// signIn installs sess as the current session, caches it and submits any
// questionnaire answered while signed out. Caller holds m.mu.
func (m *Manager) signIn(ctx context.Context, sess *Session) {
	next := sess.clone()
	sanitize(m.cat, &next.User)
	m.submitPending(ctx, next)

	if err := m.persist(ctx, next); err != nil {
		m.log.Warn("cache session", zap.Error(err))
	}
	m.sess = next
}

// submitPending sends held answers for next and records the stage on it.
// The answers stay held if the service does not accept them. Caller holds
// m.mu.
func (m *Manager) submitPending(ctx context.Context, next *Session) {
	if m.pending == nil {
		return
	}
	stage, err := m.remote.SubmitOnboarding(ctx, next.Token, *m.pending)
	if err != nil {
		m.log.Warn("submit pending onboarding", zap.Error(err))
		return
	}
	if !m.cat.HasStage(stage) {
		stage = onboarding.Recommend(*m.pending)
	}
	next.User.RecommendedStageID = &stage
	m.pending = nil
	if err := m.local.Delete(ctx, PendingKey); err != nil {
		m.log.Warn("clear pending onboarding", zap.Error(err))
	}
}

// Logout ends the session. It always succeeds in memory; the returned error
// only reports a failure to clear the local cache. Held questionnaire answers
// are dropped too. Calling it while signed out is a no-op apart from clearing
// the cache again.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var token string
	if m.sess != nil {
		token = m.sess.Token
	}
	m.sess = nil
	m.pending = nil

	err := m.local.Delete(ctx, TokenKey, UserKey, PendingKey)
	if err != nil {
		m.log.Warn("clear cached session", zap.Error(err))
		err = fmt.Errorf("clear cached session: %w", err)
	}

	if token != "" {
		if rerr := m.remote.Logout(ctx, token); rerr != nil {
			m.log.Debug("remote logout", zap.Error(rerr))
		}
		m.log.Info("signed out")
	}
	return err
}

// Current returns a copy of the active session.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return nil, apperr.State("session", "not signed in")
	}
	return m.sess.clone(), nil
}

// SignedIn reports whether a session is active.
func (m *Manager) SignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// UpdateProfile merges upd into the account. Unknown stage or milestone ids
// are rejected before anything is sent; repeated milestone ids collapse.
func (m *Manager) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Session, error) {
	const op = "update profile"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return nil, apperr.State(op, "not signed in")
	}
	if upd.RecommendedStageID != nil && !m.cat.HasStage(*upd.RecommendedStageID) {
		return nil, apperr.NotFound(op, "stage "+string(*upd.RecommendedStageID)+" not found")
	}
	if upd.CompletedMilestones != nil {
		ids, err := NormalizeMilestones(m.cat, upd.CompletedMilestones)
		if err != nil {
			return nil, err
		}
		upd.CompletedMilestones = ids
	}
	if upd.Email != nil {
		e := strings.TrimSpace(*upd.Email)
		if err := ValidateEmail(e); err != nil {
			return nil, err
		}
		upd.Email = &e
	}
	if upd.Name != nil {
		n := strings.TrimSpace(*upd.Name)
		upd.Name = &n
	}

	u, err := m.remote.UpdateProfile(ctx, m.sess.Token, upd)
	if err != nil {
		return nil, err
	}

	next := &Session{User: u.clone(), Token: m.sess.Token}
	sanitize(m.cat, &next.User)
	if err := m.persist(ctx, next); err != nil {
		m.log.Warn("cache session", zap.Error(err))
	}
	m.sess = next
	return m.sess.clone(), nil
}

// ToggleMilestone flips a milestone and returns whether it is now complete.
// The service decides the resulting state; the session changes only after
// that state has been cached locally. If caching fails the service change
// is undone and the session stays as it was.
func (m *Manager) ToggleMilestone(ctx context.Context, milestoneID string) (bool, error) {
	const op = "toggle milestone"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return false, apperr.State(op, "not signed in")
	}
	if !m.cat.HasMilestone(milestoneID) {
		return false, apperr.NotFound(op, "milestone "+milestoneID+" not found")
	}

	done, err := m.remote.ToggleMilestone(ctx, m.sess.Token, milestoneID)
	if err != nil {
		return false, err
	}

	next := m.sess.clone()
	next.User.CompletedMilestones = setMembership(next.User.CompletedMilestones, milestoneID, done)

	if err := m.persist(ctx, next); err != nil {
		if _, cerr := m.remote.ToggleMilestone(ctx, m.sess.Token, milestoneID); cerr != nil {
			m.log.Error("revert milestone toggle",
				zap.String("milestone_id", milestoneID), zap.Error(cerr))
		}
		return false, fmt.Errorf("%s: cache session: %w", op, err)
	}
	m.sess = next

	m.log.Debug("milestone toggled", zap.String("milestone_id", milestoneID), zap.Bool("complete", done))
	return done, nil
}

// ResetProgress clears every completed milestone. The service records the
// reset in the journey history.
func (m *Manager) ResetProgress(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return nil, apperr.State("reset progress", "not signed in")
	}
	if err := m.remote.ResetProgress(ctx, m.sess.Token); err != nil {
		return nil, err
	}

	next := m.sess.clone()
	next.User.CompletedMilestones = []string{}
	if err := m.persist(ctx, next); err != nil {
		m.log.Warn("cache session", zap.Error(err))
	}
	m.sess = next
	return m.sess.clone(), nil
}

// ApplyAnswers turns questionnaire answers into a recommended stage. When
// signed in the answers are submitted and the stage is saved on the account;
// when signed out they are cached locally and submitted on the next sign-in,
// including one made by a later process over the same store.
func (m *Manager) ApplyAnswers(ctx context.Context, a onboarding.Answers) (catalog.StageID, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	stage := onboarding.Recommend(a)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		data, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode answers: %w", err)
		}
		if err := m.local.Set(ctx, PendingKey, string(data)); err != nil {
			return "", fmt.Errorf("hold answers: %w", err)
		}
		m.pending = &a
		return stage, nil
	}

	remoteStage, err := m.remote.SubmitOnboarding(ctx, m.sess.Token, a)
	if err != nil {
		return "", err
	}
	if m.cat.HasStage(remoteStage) {
		stage = remoteStage
	}

	next := m.sess.clone()
	next.User.RecommendedStageID = &stage
	if err := m.persist(ctx, next); err != nil {
		m.log.Warn("cache session", zap.Error(err))
	}
	m.sess = next
	return stage, nil
}

// PendingAnswers returns answers held for submission after sign-in.
func (m *Manager) PendingAnswers() (onboarding.Answers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return onboarding.Answers{}, false
	}
	return *m.pending, true
}

// Progress reports completion for the current session.
func (m *Manager) Progress() (progress.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return progress.Report{}, apperr.State("progress", "not signed in")
	}
	return progress.Compute(m.cat, m.sess.User.CompletedMilestones), nil
}

// Restore rebuilds the session cached by a previous run. The token is
// checked with the service; when the service cannot be reached the cached
// snapshot is used instead. A rejected token, a corrupt snapshot or a
// snapshot with no token leaves the manager signed out and clears the
// cache. Answers held by an earlier run are picked up and, when a session is
// restored, submitted. Restore returns nil, nil when there is no session to
// restore.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadPending(ctx); err != nil {
		return nil, err
	}

	token, ok, err := m.local.Get(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if !ok || token == "" {
		if _, hasUser, _ := m.local.Get(ctx, UserKey); hasUser {
			m.log.Info("discarding cached profile without token")
			m.discard(ctx)
		}
		return nil, nil
	}

	u, err := m.remote.Me(ctx, token)
	switch {
	case err == nil:
		next := &Session{User: u.clone(), Token: token}
		sanitize(m.cat, &next.User)
		m.submitPending(ctx, next)
		if err := m.persist(ctx, next); err != nil {
			m.log.Warn("cache session", zap.Error(err))
		}
		m.sess = next
		return m.sess.clone(), nil

	case apperr.IsAuth(err), apperr.IsNotFound(err):
		m.log.Info("cached token rejected", zap.Error(err))
		m.discard(ctx)
		return nil, nil
	}

	m.log.Warn("account service unavailable, using cached profile", zap.Error(err))
	snap, ok, lerr := m.local.Get(ctx, UserKey)
	if lerr != nil {
		return nil, fmt.Errorf("restore session: %w", lerr)
	}
	if !ok {
		return nil, err
	}
	var cached User
	if jerr := json.Unmarshal([]byte(snap), &cached); jerr != nil || cached.ID == "" || cached.Email == "" {
		m.log.Warn("discarding corrupt cached profile")
		m.discard(ctx)
		return nil, nil
	}
	sanitize(m.cat, &cached)
	m.sess = &Session{User: cached, Token: token}
	return m.sess.clone(), nil
}

// persist writes the token and the user snapshot together, so a cached
// token is never paired with another account's snapshot. Caller holds m.mu.
func (m *Manager) persist(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return m.local.SetMany(ctx, map[string]string{
		TokenKey: s.Token,
		UserKey:  string(data),
	})
}

// loadPending picks up answers held by an earlier run. Unreadable answers
// are dropped. Caller holds m.mu.
func (m *Manager) loadPending(ctx context.Context) error {
	raw, ok, err := m.local.Get(ctx, PendingKey)
	if err != nil {
		return fmt.Errorf("restore pending answers: %w", err)
	}
	if !ok {
		return nil
	}
	var a onboarding.Answers
	if jerr := json.Unmarshal([]byte(raw), &a); jerr != nil || a.Validate() != nil {
		m.log.Warn("discarding unreadable pending answers")
		if derr := m.local.Delete(ctx, PendingKey); derr != nil {
			m.log.Warn("clear pending onboarding", zap.Error(derr))
		}
		return nil
	}
	m.pending = &a
	return nil
}

func (m *Manager) discard(ctx context.Context) {
	m.sess = nil
	if err := m.local.Delete(ctx, TokenKey, UserKey); err != nil {
		m.log.Warn("clear cached session", zap.Error(err))
	}
}
