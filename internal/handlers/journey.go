package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pathways/internal/apperr"
	"pathways/internal/cache"
	"pathways/internal/catalog"
	"pathways/internal/middleware"
	"pathways/internal/models"
	"pathways/internal/onboarding"
	"pathways/internal/progress"
)

// Journey handles the questionnaire, the milestone checklist and the
// history of changes to it.
type Journey struct {
	onboarding OnboardingStore
	progress   ProgressStore
	history    HistoryStore
	cache      ProgressCache
	cat        *catalog.Catalog
	log        *zap.Logger
}

// NewJourney creates a new Journey handler group.
func NewJourney(onb OnboardingStore, prog ProgressStore, hist HistoryStore, pc ProgressCache, cat *catalog.Catalog, log *zap.Logger) *Journey {
	return &Journey{onboarding: onb, progress: prog, history: hist, cache: pc, cat: cat, log: log}
}

type answersRequest struct {
	ChildAgeRange   string `json:"childAgeRange"`
	DiagnosisStatus string `json:"diagnosisStatus"`
	PrimaryConcern  string `json:"primaryConcern"`
}

// SubmitOnboarding stores questionnaire answers and the stage they
// recommend, which also becomes the account's recommended stage.
func (j *Journey) SubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}

	var in answersRequest
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, j.log, err)
		return
	}
	answers, err := onboarding.ParseAnswers(in.ChildAgeRange, in.DiagnosisStatus, in.PrimaryConcern)
	if err != nil {
		fail(w, j.log, err)
		return
	}

	resp := &models.OnboardingResponse{
		UserID:             id,
		ChildAgeRange:      string(answers.ChildAge),
		DiagnosisStatus:    string(answers.Diagnosis),
		PrimaryConcern:     string(answers.Concern),
		RecommendedStageID: string(onboarding.Recommend(answers)),
	}
	if err := j.onboarding.Create(r.Context(), resp); err != nil {
		fail(w, j.log, err)
		return
	}

	j.log.Info("onboarding submitted",
		zap.String("user_id", id.String()),
		zap.String("recommended_stage_id", resp.RecommendedStageID))
	writeJSON(w, http.StatusCreated, resp)
}

// LatestOnboarding returns the most recent questionnaire submission.
func (j *Journey) LatestOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}
	resp, err := j.onboarding.Latest(r.Context(), id)
	if err != nil {
		fail(w, j.log, err)
		return
	}
	if resp == nil {
		fail(w, j.log, apperr.NotFound("onboarding", "no onboarding response found"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type progressResponse struct {
	CompletedMilestoneIDs []string `json:"completed_milestone_ids"`
	progress.Report
}

// Progress returns per-stage and overall completion. Reports are served
// from the cache when one is present.
func (j *Journey) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}

	entry, err := j.cache.Get(r.Context(), id)
	if err != nil {
		j.log.Warn("read progress cache", zap.Error(err))
	}
	if entry == nil {
		ids, err := j.progress.Completed(r.Context(), id)
		if err != nil {
			fail(w, j.log, err)
			return
		}
		entry = &cache.Entry{CompletedMilestoneIDs: ids, Report: progress.Compute(j.cat, ids)}
		if err := j.cache.Set(r.Context(), id, entry); err != nil {
			j.log.Warn("write progress cache", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, progressResponse{
		CompletedMilestoneIDs: entry.CompletedMilestoneIDs,
		Report:                entry.Report,
	})
}

// ResetProgress clears the checklist.
func (j *Journey) ResetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}

	n, err := j.progress.Reset(r.Context(), id)
	if err != nil {
		fail(w, j.log, err)
		return
	}
	j.afterChange(r, &models.JourneyEntry{UserID: id, Action: models.ActionReset}, nil)

	j.log.Info("progress reset", zap.String("user_id", id.String()), zap.Int64("removed", n))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":              "Progress reset",
		"completed_milestones": []string{},
	})
}

// ToggleMilestone flips one milestone. The response carries the resulting
// state so clients apply it rather than flipping locally.
func (j *Journey) ToggleMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}

	milestoneID := chi.URLParam(r, "id")
	m, found := j.cat.Milestone(milestoneID)
	if !found {
		fail(w, j.log, apperr.NotFound("toggle milestone", "milestone "+milestoneID+" not found"))
		return
	}

	complete, ids, err := j.progress.Toggle(r.Context(), id, milestoneID)
	if err != nil {
		fail(w, j.log, err)
		return
	}

	action := models.ActionUncompleted
	msg := "Milestone marked incomplete"
	if complete {
		action = models.ActionCompleted
		msg = "Milestone marked complete"
	}
	stageID := string(m.StageID)
	j.afterChange(r, &models.JourneyEntry{
		UserID:      id,
		MilestoneID: &milestoneID,
		StageID:     &stageID,
		Action:      action,
	}, ids)

	writeJSON(w, http.StatusOK, map[string]any{
		"milestone_id": milestoneID,
		"isComplete":   complete,
		"message":      msg,
	})
}

// afterChange records a history snapshot for the new completed set and
// drops the cached report. Neither failure undoes the change itself.
func (j *Journey) afterChange(r *http.Request, e *models.JourneyEntry, completed []string) {
	if completed == nil {
		completed = []string{}
	}
	e.CompletedMilestoneIDs = completed
	e.StageProgress = snapshot(progress.Compute(j.cat, completed))

	if err := j.history.Record(r.Context(), e); err != nil {
		j.log.Warn("record journey history", zap.Error(err), zap.String("action", string(e.Action)))
	}
	if err := j.cache.Invalidate(r.Context(), e.UserID); err != nil {
		j.log.Warn("invalidate progress cache", zap.Error(err))
	}
}

// History lists recent checklist changes, newest first.
func (j *Journey) History(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		fail(w, j.log, err)
		return
	}

	entries, err := j.history.List(r.Context(), id, limit)
	if err != nil {
		fail(w, j.log, err)
		return
	}
	entries = nonNilEntries(entries)
	writeJSON(w, http.StatusOK, map[string]any{
		"history":       entries,
		"total_entries": len(entries),
	})
}

// MilestoneHistory lists the changes to one milestone.
func (j *Journey) MilestoneHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, j.log)
	if !ok {
		return
	}
	milestoneID := chi.URLParam(r, "id")
	if !j.cat.HasMilestone(milestoneID) {
		fail(w, j.log, apperr.NotFound("milestone history", "milestone "+milestoneID+" not found"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		fail(w, j.log, err)
		return
	}

	entries, err := j.history.ListForMilestone(r.Context(), id, milestoneID, limit)
	if err != nil {
		fail(w, j.log, err)
		return
	}
	entries = nonNilEntries(entries)
	writeJSON(w, http.StatusOK, map[string]any{
		"milestone_id":  milestoneID,
		"history":       entries,
		"total_entries": len(entries),
	})
}

func identity(w http.ResponseWriter, r *http.Request, log *zap.Logger) (uuid.UUID, bool) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		fail(w, log, apperr.Auth("identity", "not signed in"))
		return uuid.Nil, false
	}
	return id.UserID, true
}

func snapshot(rep progress.Report) []models.StageSnapshot {
	out := make([]models.StageSnapshot, len(rep.Stages))
	for i, s := range rep.Stages {
		out[i] = models.StageSnapshot{
			StageID:   string(s.StageID),
			Title:     s.Title,
			Total:     s.Total,
			Completed: s.Completed,
			Percent:   s.Percent,
		}
	}
	return out
}

func nonNilEntries(e []models.JourneyEntry) []models.JourneyEntry {
	if e == nil {
		return []models.JourneyEntry{}
	}
	return e
}
