package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pathways/internal/catalog"
)

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var stages []catalog.Stage
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/stages", "", nil, &stages))
	require.Len(t, stages, catalog.StageCount)
	for i, s := range stages {
		assert.Equal(t, i+1, s.Order)
	}

	var s catalog.Stage
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/stages/s2", "", nil, &s))
	assert.Equal(t, catalog.StageDiagnosis, s.ID)

	var milestones []catalog.Milestone
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/milestones?stageId=s3", "", nil, &milestones))
	require.Len(t, milestones, 6)
	for _, m := range milestones {
		assert.Equal(t, catalog.StageEarlyIntervention, m.StageID)
	}
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/milestones", "", nil, &milestones))
	assert.Len(t, milestones, 30)

	var m catalog.Milestone
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/milestones/m1-1", "", nil, &m))
	assert.Equal(t, "m1-1", m.ID)

	var resources []catalog.Resource
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/resources?category=IEP", "", nil, &resources))
	require.NotEmpty(t, resources)
	for _, r := range resources {
		assert.Equal(t, catalog.CategoryIEP, r.Category)
	}
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/resources", "", nil, &resources))
	assert.Len(t, resources, 10)

	var r catalog.Resource
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/resources/"+resources[0].ID, "", nil, &r))
	assert.Equal(t, resources[0].ID, r.ID)

	notFound := []string{"/stages/s9", "/milestones?stageId=s9", "/milestones/m0-0", "/resources/r999"}
	for _, path := range notFound {
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, "", nil, nil), path)
	}
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/resources?category=Astrology", "", nil, nil))
}

func TestHealth(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{"healthy", nil, http.StatusOK, "ok", "connected"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded", "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealth(stubPinger{err: tt.err}, zap.NewNop())
			h.now = func() time.Time { return fixed }

			rr := httptest.NewRecorder()
			h.Check(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.JSONEq(t, `{"status":"`+tt.wantStatus+`","database":"`+tt.wantDB+`","timestamp":"2026-04-01T12:00:00Z"}`, rr.Body.String())
		})
	}
}
