// Package models defines the data structures that map to database tables
// and provides the core types used throughout the account service.
package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// User is a parent account. CompletedMilestones is loaded from
// user_milestones and always sorted.
type User struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"` // Never serialize the hash
	Name                *string   `json:"name,omitempty"`
	RecommendedStageID  *string   `json:"recommendedStageId,omitempty"`
	CompletedMilestones []string  `json:"completedMilestones"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"-"`
}

// HasCompleted reports whether milestoneID is in the completed set.
func (u *User) HasCompleted(milestoneID string) bool {
	i := sort.SearchStrings(u.CompletedMilestones, milestoneID)
	return i < len(u.CompletedMilestones) && u.CompletedMilestones[i] == milestoneID
}

// ProfilePatch holds the optional fields of a profile update. Nil means
// unchanged; a non-nil empty CompletedMilestones clears the set.
type ProfilePatch struct {
	Name                *string
	Email               *string
	RecommendedStageID  *string
	CompletedMilestones []string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.RecommendedStageID == nil && p.CompletedMilestones == nil
}
