package models

import (
	"time"

	"github.com/google/uuid"
)

// OnboardingResponse is one stored questionnaire submission.
type OnboardingResponse struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"userId"`
	ChildAgeRange      string    `json:"childAgeRange"`
	DiagnosisStatus    string    `json:"diagnosisStatus"`
	PrimaryConcern     string    `json:"primaryConcern"`
	RecommendedStageID string    `json:"recommendedStageId"`
	CreatedAt          time.Time `json:"createdAt"`
}
