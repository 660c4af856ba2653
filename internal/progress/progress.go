// Package progress derives per-stage and overall completion from a set of
// completed milestone ids. Everything here is a pure function of its inputs.
package progress

import "pathways/internal/catalog"

// StageProgress is the completion of one stage.
type StageProgress struct {
	StageID   catalog.StageID `json:"stage_id"`
	Title     string          `json:"title"`
	Total     int             `json:"total_milestones"`
	Completed int             `json:"completed_milestones"`
	Percent   int             `json:"percentage"`
}

// Report is the completion of the whole journey.
type Report struct {
	Stages          []StageProgress `json:"stage_progress"`
	TotalMilestones int             `json:"total_milestones"`
	TotalCompleted  int             `json:"total_completed"`
	Percent         int             `json:"percentage"`
}

// Stage returns the entry for id, if present.
func (r Report) Stage(id catalog.StageID) (StageProgress, bool) {
	for _, s := range r.Stages {
		if s.StageID == id {
			return s, true
		}
	}
	return StageProgress{}, false
}

// Percent rounds 100*completed/total half up. A stage with no milestones is
// 0% complete.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	return (100*completed + total/2) / total
}

// Compute builds a report over every catalog stage, in journey order.
// Ids that are unknown to the catalog or repeated are not counted.
func Compute(cat *catalog.Catalog, completed []string) Report {
	done := make(map[catalog.StageID]int)
	seen := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m, ok := cat.Milestone(id)
		if !ok {
			continue
		}
		done[m.StageID]++
	}

	stages := cat.Stages()
	r := Report{Stages: make([]StageProgress, 0, len(stages))}
	for _, s := range stages {
		total := cat.MilestoneCount(s.ID)
		sp := StageProgress{
			StageID:   s.ID,
			Title:     s.Title,
			Total:     total,
			Completed: done[s.ID],
			Percent:   Percent(done[s.ID], total),
		}
		r.Stages = append(r.Stages, sp)
		r.TotalMilestones += total
		r.TotalCompleted += sp.Completed
	}
	r.Percent = Percent(r.TotalCompleted, r.TotalMilestones)
	return r
}

// StageIsComplete reports whether every milestone of a non-empty stage is
// in completed.
func StageIsComplete(cat *catalog.Catalog, id catalog.StageID, completed []string) bool {
	sp, ok := Compute(cat, completed).Stage(id)
	return ok && sp.Total > 0 && sp.Completed == sp.Total
}
