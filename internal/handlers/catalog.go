package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pathways/internal/apperr"
	"pathways/internal/catalog"
)

// Catalog serves the read-only stages, milestones and resources.
type Catalog struct {
	cat *catalog.Catalog
	log *zap.Logger
}

// NewCatalog creates a new Catalog handler group.
func NewCatalog(cat *catalog.Catalog, log *zap.Logger) *Catalog {
	return &Catalog{cat: cat, log: log}
}

// Stages lists all stages in journey order.
func (c *Catalog) Stages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.cat.Stages())
}

// Stage returns one stage.
func (c *Catalog) Stage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := c.cat.Stage(catalog.StageID(id))
	if !ok {
		fail(w, c.log, apperr.NotFound("stage", "stage "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Milestones lists milestones, optionally for one stage (?stageId=).
func (c *Catalog) Milestones(w http.ResponseWriter, r *http.Request) {
	stageID := catalog.StageID(r.URL.Query().Get("stageId"))
	if stageID == "" {
		writeJSON(w, http.StatusOK, c.cat.Milestones())
		return
	}
	if !c.cat.HasStage(stageID) {
		fail(w, c.log, apperr.NotFound("milestones", "stage "+string(stageID)+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, c.cat.MilestonesForStage(stageID))
}

// Milestone returns one milestone.
func (c *Catalog) Milestone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := c.cat.Milestone(id)
	if !ok {
		fail(w, c.log, apperr.NotFound("milestone", "milestone "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Resources lists resources filtered by ?category= and ?search=.
func (c *Catalog) Resources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.ResourceFilter{
		Category: catalog.Category(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	if f.Category != "" && !f.Category.Valid() {
		fail(w, c.log, apperr.Validation("resources", "unknown category "+string(f.Category)))
		return
	}
	if utf8.RuneCountInString(f.Search) > maxSearchLen {
		fail(w, c.log, apperr.Validation("resources", "search is too long"))
		return
	}
	writeJSON(w, http.StatusOK, c.cat.Resources(f))
}

// Resource returns one resource.
func (c *Catalog) Resource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := c.cat.Resource(id)
	if !ok {
		fail(w, c.log, apperr.NotFound("resource", "resource "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
