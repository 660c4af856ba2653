package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pathways/internal/auth"
	"pathways/internal/cache"
	"pathways/internal/catalog"
	"pathways/internal/middleware"
	"pathways/internal/models"
	"pathways/internal/session"
	"pathways/internal/store"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.User
	progs *fakeProgress
}

func (f *fakeUsers) Create(_ context.Context, email, password string, name *string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return nil, store.ErrEmailTaken
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: string(hash), Name: name, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	return f.view(u), nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == store.NormalizeEmail(email) {
			return f.view(u), nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return f.view(u), nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, p models.ProfilePatch) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	if p.Email != nil {
		for _, other := range f.byID {
			if other.ID != id && other.Email == *p.Email {
				return nil, store.ErrEmailTaken
			}
		}
		u.Email = *p.Email
	}
	if p.Name != nil {
		if *p.Name == "" {
			u.Name = nil
		} else {
			n := *p.Name
			u.Name = &n
		}
	}
	if p.RecommendedStageID != nil {
		s := *p.RecommendedStageID
		u.RecommendedStageID = &s
	}
	if p.CompletedMilestones != nil {
		set := map[string]bool{}
		for _, m := range p.CompletedMilestones {
			set[m] = true
		}
		f.progs.set(id, set)
	}
	return f.view(u), nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uuid.UUID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	f.byID[id].PasswordHash = string(hash)
	return nil
}

func (f *fakeUsers) view(u *models.User) *models.User {
	c := *u
	c.CompletedMilestones = f.progs.list(u.ID)
	return &c
}

// fakeProgress is an in-memory ProgressStore.
type fakeProgress struct {
	mu   sync.Mutex
	sets map[uuid.UUID]map[string]bool
}

func (f *fakeProgress) set(id uuid.UUID, s map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets[id] = s
}

func (f *fakeProgress) list(id uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for m := range f.sets[id] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (f *fakeProgress) Completed(_ context.Context, id uuid.UUID) ([]string, error) {
	return f.list(id), nil
}

func (f *fakeProgress) Toggle(_ context.Context, id uuid.UUID, m string) (bool, []string, error) {
	f.mu.Lock()
	s := f.sets[id]
	if s == nil {
		s = map[string]bool{}
		f.sets[id] = s
	}
	done := !s[m]
	if done {
		s[m] = true
	} else {
		delete(s, m)
	}
	f.mu.Unlock()
	return done, f.list(id), nil
}

func (f *fakeProgress) Reset(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sets[id])
	delete(f.sets, id)
	return int64(n), nil
}

// fakeOnboarding is an in-memory OnboardingStore.
type fakeOnboarding struct {
	mu    sync.Mutex
	users *fakeUsers
	rows  []models.OnboardingResponse
}

func (f *fakeOnboarding) Create(_ context.Context, r *models.OnboardingResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	f.rows = append(f.rows, *r)
	f.users.mu.Lock()
	if u, ok := f.users.byID[r.UserID]; ok {
		s := r.RecommendedStageID
		u.RecommendedStageID = &s
	}
	f.users.mu.Unlock()
	return nil
}

func (f *fakeOnboarding) Latest(_ context.Context, id uuid.UUID) (*models.OnboardingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == id {
			r := f.rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

// fakeHistory is an in-memory HistoryStore, newest last.
type fakeHistory struct {
	mu      sync.Mutex
	entries []models.JourneyEntry
}

func (f *fakeHistory) Record(_ context.Context, e *models.JourneyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeHistory) List(ctx context.Context, id uuid.UUID, limit int) ([]models.JourneyEntry, error) {
	return f.filter(id, "", limit), nil
}

func (f *fakeHistory) ListForMilestone(ctx context.Context, id uuid.UUID, m string, limit int) ([]models.JourneyEntry, error) {
	return f.filter(id, m, limit), nil
}

func (f *fakeHistory) filter(id uuid.UUID, m string, limit int) []models.JourneyEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.JourneyEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.UserID != id || (m != "" && (e.MilestoneID == nil || *e.MilestoneID != m)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

// testEnv wires the handlers the way the router does, with in-memory
// stores and a miniredis-backed session store and progress cache.
type testEnv struct {
	t       *testing.T
	handler http.Handler
	mr      *miniredis.Miniredis
	users   *fakeUsers
	history *fakeHistory
	pcache  *cache.ProgressCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	cat := catalog.MustDefault()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	progs := &fakeProgress{sets: map[uuid.UUID]map[string]bool{}}
	users := &fakeUsers{byID: map[uuid.UUID]*models.User{}, progs: progs}
	onb := &fakeOnboarding{users: users}
	hist := &fakeHistory{}
	sessions := session.NewStore(rdb)
	pcache := cache.NewProgressCache(rdb, time.Minute)
	issuer := auth.NewIssuer("handler-test-secret", time.Hour)

	authH := NewAuth(users, sessions, issuer, log)
	accountH := NewAccount(users, sessions, pcache, cat, log)
	journeyH := NewJourney(onb, progs, hist, pcache, cat, log)
	catalogH := NewCatalog(cat, log)

	r := chi.NewRouter()
	r.Post("/auth/signup", authH.Signup)
	r.Post("/auth/login", authH.Login)
	r.Get("/stages", catalogH.Stages)
	r.Get("/stages/{id}", catalogH.Stage)
	r.Get("/milestones", catalogH.Milestones)
	r.Get("/milestones/{id}", catalogH.Milestone)
	r.Get("/resources", catalogH.Resources)
	r.Get("/resources/{id}", catalogH.Resource)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(issuer, sessions, log))
		r.Get("/auth/me", authH.Me)
		r.Post("/auth/logout", authH.Logout)
		r.Get("/users/me", accountH.Profile)
		r.Patch("/users/me", accountH.UpdateProfile)
		r.Patch("/users/me/password", accountH.ChangePassword)
		r.Post("/onboarding", journeyH.SubmitOnboarding)
		r.Get("/onboarding", journeyH.LatestOnboarding)
		r.Get("/progress", journeyH.Progress)
		r.Delete("/progress", journeyH.ResetProgress)
		r.Post("/progress/milestones/{id}/toggle", journeyH.ToggleMilestone)
		r.Get("/progress/history", journeyH.History)
		r.Get("/progress/history/milestone/{id}", journeyH.MilestoneHistory)
	})

	return &testEnv{t: t, handler: r, mr: mr, users: users, history: hist, pcache: pcache}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(method, path, token string, body any, out any) int {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(rr.Body.Bytes(), out), "body: %s", rr.Body.String())
	}
	return rr.Code
}

// signup registers an account and returns its token.
func (e *testEnv) signup(email string) (string, map[string]any) {
	e.t.Helper()
	var out struct {
		User  map[string]any `json:"user"`
		Token string         `json:"token"`
	}
	code := e.do(http.MethodPost, "/auth/signup", "", map[string]any{
		"email": email, "password": "password123", "name": "Sam",
	}, &out)
	require.Equal(e.t, http.StatusCreated, code)
	require.NotEmpty(e.t, out.Token)
	return out.Token, out.User
}
