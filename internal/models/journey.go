package models

import (
	"time"

	"github.com/google/uuid"
)

// JourneyAction is what happened in a journey history entry.
type JourneyAction string

const (
	ActionCompleted   JourneyAction = "completed"
	ActionUncompleted JourneyAction = "uncompleted"
	ActionReset       JourneyAction = "reset"
)

// StageSnapshot is the completion of one stage at the time of an entry.
type StageSnapshot struct {
	StageID   string `json:"stage_id"`
	Title     string `json:"title,omitempty"`
	Total     int    `json:"total_milestones"`
	Completed int    `json:"completed_milestones"`
	Percent   int    `json:"percentage"`
}

// JourneyEntry records a milestone change together with the resulting
// progress, so a parent can look back on how their journey went.
type JourneyEntry struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                uuid.UUID       `json:"-"`
	MilestoneID           *string         `json:"milestone_id,omitempty"`
	StageID               *string         `json:"stage_id,omitempty"`
	Action                JourneyAction   `json:"action"`
	CompletedMilestoneIDs []string        `json:"completed_milestone_ids"`
	StageProgress         []StageSnapshot `json:"stage_progress"`
	CreatedAt             time.Time       `json:"timestamp"`
}
