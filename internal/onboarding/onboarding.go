// Package onboarding defines the starting-point questionnaire and maps a
// parent's answers to the journey stage they should begin with.
package onboarding

import (
	"strings"

	"pathways/internal/apperr"
	"pathways/internal/catalog"
)

// AgeRange is the child's age bracket.
type AgeRange string

const (
	AgeUnder18Months AgeRange = "0-18m"
	Age18To36Months  AgeRange = "18-36m"
	Age3To5Years     AgeRange = "3-5y"
	Age5To8Years     AgeRange = "5-8y"
)

// DiagnosisStatus is where the family is in the diagnostic process.
type DiagnosisStatus string

const (
	DiagnosisNone        DiagnosisStatus = "none"
	DiagnosisWaiting     DiagnosisStatus = "waiting"
	DiagnosisRecent      DiagnosisStatus = "recent"
	DiagnosisEstablished DiagnosisStatus = "established"
)

// Concern is the parent's primary focus right now.
type Concern string

const (
	ConcernSpeech   Concern = "speech"
	ConcernBehavior Concern = "behavior"
	ConcernSchool   Concern = "school"
	ConcernServices Concern = "services"
)

// Valid option values, in questionnaire order.
var (
	AgeRanges = []AgeRange{AgeUnder18Months, Age18To36Months, Age3To5Years, Age5To8Years}
	Diagnoses = []DiagnosisStatus{DiagnosisNone, DiagnosisWaiting, DiagnosisRecent, DiagnosisEstablished}
	Concerns  = []Concern{ConcernSpeech, ConcernBehavior, ConcernSchool, ConcernServices}
)

var baseByDiag = map[DiagnosisStatus]catalog.StageID{
	DiagnosisNone:        catalog.StageEarlySigns,
	DiagnosisWaiting:     catalog.StageDiagnosis,
	DiagnosisRecent:      catalog.StageEarlyIntervention,
	DiagnosisEstablished: catalog.StageSchoolReadiness,
}

func (a AgeRange) Valid() bool {
	for _, v := range AgeRanges {
		if a == v {
			return true
		}
	}
	return false
}

func (d DiagnosisStatus) Valid() bool {
	_, ok := baseByDiag[d]
	return ok
}

func (c Concern) Valid() bool {
	for _, v := range Concerns {
		if c == v {
			return true
		}
	}
	return false
}

// Answers is one completed questionnaire.
type Answers struct {
	ChildAge  AgeRange        `json:"childAgeRange"`
	Diagnosis DiagnosisStatus `json:"diagnosisStatus"`
	Concern   Concern         `json:"primaryConcern"`
}

// Validate reports the first unanswered or unknown field as a validation error.
func (a Answers) Validate() error {
	const op = "onboarding"
	switch {
	case a.ChildAge == "":
		return apperr.Validation(op, "child age range is required")
	case !a.ChildAge.Valid():
		return apperr.Validation(op, "unknown child age range "+quote(string(a.ChildAge)))
	case a.Diagnosis == "":
		return apperr.Validation(op, "diagnosis status is required")
	case !a.Diagnosis.Valid():
		return apperr.Validation(op, "unknown diagnosis status "+quote(string(a.Diagnosis)))
	case a.Concern == "":
		return apperr.Validation(op, "primary concern is required")
	case !a.Concern.Valid():
		return apperr.Validation(op, "unknown primary concern "+quote(string(a.Concern)))
	}
	return nil
}

// ParseAnswers builds Answers from raw option values, trimming whitespace
// and folding case, then validates them.
func ParseAnswers(age, diagnosis, concern string) (Answers, error) {
	a := Answers{
		ChildAge:  AgeRange(normalize(age)),
		Diagnosis: DiagnosisStatus(normalize(diagnosis)),
		Concern:   Concern(normalize(concern)),
	}
	if err := a.Validate(); err != nil {
		return Answers{}, err
	}
	return a, nil
}

// Recommend returns the stage a family with these answers should start at.
// The rules apply in order, each one possibly replacing the previous result:
//
//  1. diagnosis picks the base stage (none s1, waiting s2, recent s3, established s4)
//  2. under 18 months always starts at s1
//  3. 18 to 36 months caps s3 and s4 down to s2
//  4. a school concern at 3 to 8 years jumps to s4; a speech concern under
//     18 months stays at s1
//
// The result is always one of s1..s4. Answers must already be valid.
func Recommend(a Answers) catalog.StageID {
	stage, ok := baseByDiag[a.Diagnosis]
	if !ok {
		stage = catalog.StageEarlySigns
	}

	if a.ChildAge == AgeUnder18Months {
		stage = catalog.StageEarlySigns
	}
	if a.ChildAge == Age18To36Months &&
		(stage == catalog.StageEarlyIntervention || stage == catalog.StageSchoolReadiness) {
		stage = catalog.StageDiagnosis
	}

	if a.Concern == ConcernSchool && (a.ChildAge == Age3To5Years || a.ChildAge == Age5To8Years) {
		stage = catalog.StageSchoolReadiness
	}
	if a.Concern == ConcernSpeech && a.ChildAge == AgeUnder18Months {
		stage = catalog.StageEarlySigns
	}
	return stage
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func quote(s string) string { return "\"" + s + "\"" }
