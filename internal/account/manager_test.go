package account

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pathways/internal/apperr"
	"pathways/internal/catalog"
	"pathways/internal/localstore"
	"pathways/internal/onboarding"
)

// fakeRemote is an in-memory account service.
type fakeRemote struct {
	mu       sync.Mutex
	users    map[string]*User // by email
	password map[string]string
	tokens   map[string]string // token -> email
	next     int

	down        bool
	toggleCalls int
	resets      int
	logouts     []string
	onboarded   []onboarding.Answers
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		users:    make(map[string]*User),
		password: make(map[string]string),
		tokens:   make(map[string]string),
	}
}

func (f *fakeRemote) issue(email string) string {
	f.next++
	tok := "tok-" + email + "-" + string(rune('a'+f.next))
	f.tokens[tok] = email
	return tok
}

func (f *fakeRemote) user(token string) (*User, error) {
	if f.down {
		return nil, apperr.Network("remote", errors.New("connection refused"))
	}
	email, ok := f.tokens[token]
	if !ok {
		return nil, apperr.Auth("remote", "invalid or expired token")
	}
	return f.users[email], nil
}

func (f *fakeRemote) Signup(_ context.Context, email, password string, name *string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, apperr.Network("signup", errors.New("connection refused"))
	}
	if _, exists := f.users[email]; exists {
		return nil, apperr.Auth("signup", "email already registered")
	}
	u := &User{ID: "u-" + email, Email: email, Name: name, CompletedMilestones: []string{}, CreatedAt: time.Now()}
	f.users[email] = u
	f.password[email] = password
	return &Session{User: u.clone(), Token: f.issue(email)}, nil
}

func (f *fakeRemote) Login(_ context.Context, email, password string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, apperr.Network("login", errors.New("connection refused"))
	}
	u, ok := f.users[email]
	if !ok || f.password[email] != password {
		return nil, apperr.Auth("login", "invalid email or password")
	}
	return &Session{User: u.clone(), Token: f.issue(email)}, nil
}

func (f *fakeRemote) Me(_ context.Context, token string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(token)
	if err != nil {
		return nil, err
	}
	c := u.clone()
	return &c, nil
}

func (f *fakeRemote) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, token)
	delete(f.tokens, token)
	return nil
}

func (f *fakeRemote) UpdateProfile(_ context.Context, token string, upd ProfileUpdate) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(token)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.RecommendedStageID != nil {
		u.RecommendedStageID = upd.RecommendedStageID
	}
	if upd.CompletedMilestones != nil {
		u.CompletedMilestones = append([]string{}, upd.CompletedMilestones...)
	}
	c := u.clone()
	return &c, nil
}

func (f *fakeRemote) SubmitOnboarding(_ context.Context, token string, a onboarding.Answers) (catalog.StageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(token)
	if err != nil {
		return "", err
	}
	f.onboarded = append(f.onboarded, a)
	stage := onboarding.Recommend(a)
	u.RecommendedStageID = &stage
	return stage, nil
}

func (f *fakeRemote) ToggleMilestone(_ context.Context, token, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls++
	u, err := f.user(token)
	if err != nil {
		return false, err
	}
	done := !u.HasCompleted(id)
	u.CompletedMilestones = setMembership(u.CompletedMilestones, id, done)
	sort.Strings(u.CompletedMilestones)
	return done, nil
}

func (f *fakeRemote) ResetProgress(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(token)
	if err != nil {
		return err
	}
	f.resets++
	u.CompletedMilestones = []string{}
	return nil
}

// flakyStore wraps a Memory store and can be told to fail writes.
type flakyStore struct {
	*localstore.Memory
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	return s.Memory.Set(ctx, key, value)
}

func (s *flakyStore) SetMany(ctx context.Context, values map[string]string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	return s.Memory.SetMany(ctx, values)
}

func newTestManager(t *testing.T) (*Manager, *fakeRemote, *flakyStore) {
	t.Helper()
	remote := newFakeRemote()
	store := &flakyStore{Memory: localstore.NewMemory()}
	return NewManager(remote, store, catalog.MustDefault(), zap.NewNop()), remote, store
}

func strPtr(s string) *string { return &s }

func TestRegister_SignsInAndCaches(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Register(ctx, " parent@example.com ", "password123", strPtr("  Sam "))
	require.NoError(t, err)
	assert.Equal(t, "parent@example.com", sess.User.Email)
	require.NotNil(t, sess.User.Name)
	assert.Equal(t, "Sam", *sess.User.Name)
	assert.NotEmpty(t, sess.Token)

	tok, ok, _ := store.Get(ctx, TokenKey)
	assert.True(t, ok)
	assert.Equal(t, sess.Token, tok)

	raw, ok, _ := store.Get(ctx, UserKey)
	require.True(t, ok)
	var cached User
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, sess.User.ID, cached.ID)
}

func TestRegister_RejectsBadCredentialsLocally(t *testing.T) {
	m, remote, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "not-an-email", "password123", nil)
	assert.True(t, apperr.IsAuth(err))

	_, err = m.Register(ctx, "parent@example.com", "short", nil)
	assert.True(t, apperr.IsAuth(err))

	assert.Empty(t, remote.users)
}

func TestRegister_DuplicateKeepsExistingSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	other, err := m.Register(ctx, "b@example.com", "password123", nil)
	require.NoError(t, err)

	_, err = m.Register(ctx, "a@example.com", "password123", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsAuth(err))

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, other.User.ID, cur.User.ID)
	assert.Equal(t, other.Token, cur.Token)
}

func TestLogin(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	_, err = m.Login(ctx, "a@example.com", "wrong-password")
	assert.True(t, apperr.IsAuth(err))
	assert.False(t, m.SignedIn())

	_, err = m.Login(ctx, "", "")
	assert.True(t, apperr.IsAuth(err))

	sess, err := m.Login(ctx, "a@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.User.Email)
	assert.True(t, m.SignedIn())
}

func TestLogout_ThenOperationsFailWithStateError(t *testing.T) {
	m, remote, store := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))
	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, []string{sess.Token}, remote.logouts)

	_, err = m.Current()
	assert.True(t, apperr.IsState(err))

	_, err = m.ToggleMilestone(ctx, "m1-1")
	assert.True(t, apperr.IsState(err))

	_, err = m.UpdateProfile(ctx, ProfileUpdate{Name: strPtr("x")})
	assert.True(t, apperr.IsState(err))

	_, err = m.Progress()
	assert.True(t, apperr.IsState(err))

	_, ok, _ := store.Get(ctx, TokenKey)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, UserKey)
	assert.False(t, ok)
}

func TestToggleMilestone_Involution(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	before, _ := m.Current()

	done, err := m.ToggleMilestone(ctx, "m2-3")
	require.NoError(t, err)
	assert.True(t, done)

	mid, _ := m.Current()
	assert.True(t, mid.User.HasCompleted("m2-3"))

	done, err = m.ToggleMilestone(ctx, "m2-3")
	require.NoError(t, err)
	assert.False(t, done)

	after, _ := m.Current()
	assert.Equal(t, before.User.CompletedMilestones, after.User.CompletedMilestones)
}

func TestToggleMilestone_UnknownID(t *testing.T) {
	m, remote, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	_, err = m.ToggleMilestone(ctx, "m9-9")
	assert.True(t, apperr.IsNotFound(err))
	assert.Zero(t, remote.toggleCalls)
}

func TestToggleMilestone_CacheFailureRevertsRemote(t *testing.T) {
	m, remote, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	store.failSet = true
	_, err = m.ToggleMilestone(ctx, "m1-1")
	require.Error(t, err)
	assert.Equal(t, 2, remote.toggleCalls)

	cur, _ := m.Current()
	assert.False(t, cur.User.HasCompleted("m1-1"))
	assert.False(t, remote.users["a@example.com"].HasCompleted("m1-1"))
}

func TestToggleMilestone_RemoteFailureLeavesSession(t *testing.T) {
	m, remote, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	remote.down = true
	_, err = m.ToggleMilestone(ctx, "m1-1")
	assert.True(t, apperr.IsNetwork(err))

	cur, _ := m.Current()
	assert.Empty(t, cur.User.CompletedMilestones)
}

func TestUpdateProfile(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	stage := catalog.StageDiagnosis
	sess, err := m.UpdateProfile(ctx, ProfileUpdate{
		Name:                strPtr(" Robin "),
		RecommendedStageID:  &stage,
		CompletedMilestones: []string{"m2-2", "m1-1", "m2-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Robin", *sess.User.Name)
	assert.Equal(t, catalog.StageDiagnosis, *sess.User.RecommendedStageID)
	assert.Equal(t, []string{"m1-1", "m2-2"}, sess.User.CompletedMilestones)

	bad := catalog.StageID("s9")
	_, err = m.UpdateProfile(ctx, ProfileUpdate{RecommendedStageID: &bad})
	assert.True(t, apperr.IsNotFound(err))

	_, err = m.UpdateProfile(ctx, ProfileUpdate{CompletedMilestones: []string{"nope"}})
	assert.True(t, apperr.IsNotFound(err))

	_, err = m.UpdateProfile(ctx, ProfileUpdate{Email: strPtr("broken")})
	assert.True(t, apperr.IsValidation(err))

	cur, _ := m.Current()
	assert.Equal(t, []string{"m1-1", "m2-2"}, cur.User.CompletedMilestones)
}

func TestCurrent_ReturnsCopy(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", strPtr("Sam"))
	require.NoError(t, err)

	cur, _ := m.Current()
	*cur.User.Name = "changed"
	cur.User.CompletedMilestones = append(cur.User.CompletedMilestones, "m1-1")

	again, _ := m.Current()
	assert.Equal(t, "Sam", *again.User.Name)
	assert.Empty(t, again.User.CompletedMilestones)
}

func TestApplyAnswers(t *testing.T) {
	m, remote, _ := newTestManager(t)
	ctx := context.Background()

	a := onboarding.Answers{ChildAge: onboarding.Age3To5Years, Diagnosis: onboarding.DiagnosisNone, Concern: onboarding.ConcernSchool}

	t.Run("signed out holds answers until sign-in", func(t *testing.T) {
		stage, err := m.ApplyAnswers(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, catalog.StageSchoolReadiness, stage)

		_, held := m.PendingAnswers()
		assert.True(t, held)

		sess, err := m.Register(ctx, "a@example.com", "password123", nil)
		require.NoError(t, err)
		require.NotNil(t, sess.User.RecommendedStageID)
		assert.Equal(t, catalog.StageSchoolReadiness, *sess.User.RecommendedStageID)
		assert.Len(t, remote.onboarded, 1)

		_, held = m.PendingAnswers()
		assert.False(t, held)
	})

	t.Run("signed in submits immediately", func(t *testing.T) {
		retake := onboarding.Answers{ChildAge: onboarding.AgeUnder18Months, Diagnosis: onboarding.DiagnosisEstablished, Concern: onboarding.ConcernBehavior}
		stage, err := m.ApplyAnswers(ctx, retake)
		require.NoError(t, err)
		assert.Equal(t, catalog.StageEarlySigns, stage)

		cur, _ := m.Current()
		assert.Equal(t, catalog.StageEarlySigns, *cur.User.RecommendedStageID)
		assert.Len(t, remote.onboarded, 2)
	})

	t.Run("invalid answers", func(t *testing.T) {
		_, err := m.ApplyAnswers(ctx, onboarding.Answers{ChildAge: "old"})
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestApplyAnswers_HeldAcrossManagers(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	local := localstore.NewMemory()
	cat := catalog.MustDefault()

	first := NewManager(remote, local, cat, zap.NewNop())
	a := onboarding.Answers{ChildAge: onboarding.Age3To5Years, Diagnosis: onboarding.DiagnosisNone, Concern: onboarding.ConcernSchool}
	stage, err := first.ApplyAnswers(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, catalog.StageSchoolReadiness, stage)

	second := NewManager(remote, local, cat, zap.NewNop())
	sess, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
	held, ok := second.PendingAnswers()
	require.True(t, ok)
	assert.Equal(t, a, held)

	sess, err = second.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	require.NotNil(t, sess.User.RecommendedStageID)
	assert.Equal(t, catalog.StageSchoolReadiness, *sess.User.RecommendedStageID)
	assert.Len(t, remote.onboarded, 1)

	_, ok, _ = local.Get(ctx, PendingKey)
	assert.False(t, ok, "submitted answers are cleared")

	third := NewManager(remote, local, cat, zap.NewNop())
	_, err = third.Restore(ctx)
	require.NoError(t, err)
	_, ok = third.PendingAnswers()
	assert.False(t, ok)
	assert.Len(t, remote.onboarded, 1)
}

func TestApplyAnswers_PendingSubmittedOnRestore(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	local := localstore.NewMemory()
	cat := catalog.MustDefault()

	m := NewManager(remote, local, cat, zap.NewNop())
	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)

	a := onboarding.Answers{ChildAge: onboarding.Age18To36Months, Diagnosis: onboarding.DiagnosisWaiting, Concern: onboarding.ConcernSpeech}
	require.NoError(t, local.Set(ctx, PendingKey, mustJSON(t, a)))

	next := NewManager(remote, local, cat, zap.NewNop())
	sess, err := next.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, sess.User.RecommendedStageID)
	assert.Equal(t, catalog.StageDiagnosis, *sess.User.RecommendedStageID)
	assert.Len(t, remote.onboarded, 1)
}

func TestApplyAnswers_UnreadablePendingDropped(t *testing.T) {
	ctx := context.Background()
	local := localstore.NewMemory()
	require.NoError(t, local.Set(ctx, PendingKey, "{not json"))

	m := NewManager(newFakeRemote(), local, catalog.MustDefault(), zap.NewNop())
	_, err := m.Restore(ctx)
	require.NoError(t, err)
	_, ok := m.PendingAnswers()
	assert.False(t, ok)
	_, ok, _ = local.Get(ctx, PendingKey)
	assert.False(t, ok)
}

func TestLogout_ClearsPendingAnswers(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyAnswers(ctx, onboarding.Answers{ChildAge: onboarding.Age5To8Years, Diagnosis: onboarding.DiagnosisRecent, Concern: onboarding.ConcernBehavior})
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	_, ok, _ := store.Get(ctx, PendingKey)
	assert.False(t, ok)
	_, ok = m.PendingAnswers()
	assert.False(t, ok)
}

func TestResetProgress(t *testing.T) {
	m, remote, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.ResetProgress(ctx)
	assert.True(t, apperr.IsState(err))

	_, err = m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	for _, id := range []string{"m1-1", "m2-1"} {
		_, err := m.ToggleMilestone(ctx, id)
		require.NoError(t, err)
	}

	sess, err := m.ResetProgress(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.User.CompletedMilestones)
	assert.Equal(t, 1, remote.resets)

	snap, _, _ := store.Get(ctx, UserKey)
	var cached User
	require.NoError(t, json.Unmarshal([]byte(snap), &cached))
	assert.Empty(t, cached.CompletedMilestones)
}

func TestPersist_TokenAndSnapshotStayPaired(t *testing.T) {
	m, _, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	_, err = m.Register(ctx, "b@example.com", "password123", nil)
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	_, err = m.Login(ctx, "a@example.com", "password123")
	require.NoError(t, err)
	tokA, _, _ := store.Get(ctx, TokenKey)

	store.failSet = true
	_, err = m.Login(ctx, "b@example.com", "password123")
	require.NoError(t, err)

	tok, _, _ := store.Get(ctx, TokenKey)
	snap, _, _ := store.Get(ctx, UserKey)
	var cached User
	require.NoError(t, json.Unmarshal([]byte(snap), &cached))
	assert.Equal(t, tokA, tok)
	assert.Equal(t, "a@example.com", cached.Email)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestProgress(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Register(ctx, "a@example.com", "password123", nil)
	require.NoError(t, err)
	for _, id := range []string{"m1-1", "m1-2"} {
		_, err := m.ToggleMilestone(ctx, id)
		require.NoError(t, err)
	}

	r, err := m.Progress()
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalCompleted)
	s1, _ := r.Stage(catalog.StageEarlySigns)
	assert.Equal(t, 33, s1.Percent)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing cached", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		sess, err := m.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("valid token", func(t *testing.T) {
		m, remote, store := newTestManager(t)
		_, err := m.Register(ctx, "a@example.com", "password123", nil)
		require.NoError(t, err)
		_, err = m.ToggleMilestone(ctx, "m3-1")
		require.NoError(t, err)

		fresh := NewManager(remote, store, catalog.MustDefault(), zap.NewNop())
		sess, err := fresh.Restore(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, []string{"m3-1"}, sess.User.CompletedMilestones)
	})

	t.Run("service down falls back to snapshot", func(t *testing.T) {
		m, remote, store := newTestManager(t)
		_, err := m.Register(ctx, "a@example.com", "password123", nil)
		require.NoError(t, err)

		remote.down = true
		fresh := NewManager(remote, store, catalog.MustDefault(), zap.NewNop())
		sess, err := fresh.Restore(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "a@example.com", sess.User.Email)
	})

	t.Run("expired token clears cache", func(t *testing.T) {
		m, remote, store := newTestManager(t)
		sess, err := m.Register(ctx, "a@example.com", "password123", nil)
		require.NoError(t, err)
		delete(remote.tokens, sess.Token)

		fresh := NewManager(remote, store, catalog.MustDefault(), zap.NewNop())
		got, err := fresh.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
		_, ok, _ := store.Get(ctx, TokenKey)
		assert.False(t, ok)
	})

	t.Run("corrupt snapshot is discarded", func(t *testing.T) {
		remote := newFakeRemote()
		remote.down = true
		store := &flakyStore{Memory: localstore.NewMemory()}
		require.NoError(t, store.Set(ctx, TokenKey, "tok"))
		require.NoError(t, store.Set(ctx, UserKey, "{not json"))

		m := NewManager(remote, store, catalog.MustDefault(), zap.NewNop())
		sess, err := m.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.False(t, m.SignedIn())
		_, ok, _ := store.Get(ctx, UserKey)
		assert.False(t, ok)
	})

	t.Run("snapshot without token is discarded", func(t *testing.T) {
		m, _, store := newTestManager(t)
		require.NoError(t, store.Set(ctx, UserKey, `{"id":"1","email":"a@example.com"}`))

		sess, err := m.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
		_, ok, _ := store.Get(ctx, UserKey)
		assert.False(t, ok)
	})

	t.Run("snapshot drops unknown ids", func(t *testing.T) {
		remote := newFakeRemote()
		remote.down = true
		store := &flakyStore{Memory: localstore.NewMemory()}
		require.NoError(t, store.Set(ctx, TokenKey, "tok"))
		require.NoError(t, store.Set(ctx, UserKey,
			`{"id":"1","email":"a@example.com","recommendedStageId":"s9","completedMilestones":["m1-2","gone","m1-2"]}`))

		m := NewManager(remote, store, catalog.MustDefault(), zap.NewNop())
		sess, err := m.Restore(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, []string{"m1-2"}, sess.User.CompletedMilestones)
		assert.Nil(t, sess.User.RecommendedStageID)
	})
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"a@example.com", "first.last@school.org"} {
		assert.NoError(t, ValidateEmail(ok), ok)
	}
	for _, bad := range []string{"", "plain", "Sam <sam@example.com>", "a@b"} {
		assert.Error(t, ValidateEmail(bad), bad)
	}
}
