package onboarding

// Option is one selectable answer.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Question is one step of the questionnaire.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// Question ids, in the order they are asked.
const (
	QuestionAge       = "age"
	QuestionDiagnosis = "diagnosis"
	QuestionConcern   = "concern"
)

// Questions returns the questionnaire definition. Every call returns a fresh
// slice.
func Questions() []Question {
	return []Question{
		{
			ID:     QuestionAge,
			Prompt: "How old is your child?",
			Options: []Option{
				{string(AgeUnder18Months), "0 - 18 months"},
				{string(Age18To36Months), "18 - 36 months"},
				{string(Age3To5Years), "3 - 5 years"},
				{string(Age5To8Years), "5 - 8 years"},
			},
		},
		{
			ID:     QuestionDiagnosis,
			Prompt: "What is your child's diagnosis status?",
			Options: []Option{
				{string(DiagnosisNone), "Not diagnosed / Just concerned"},
				{string(DiagnosisWaiting), "Referred / Waiting for evaluation"},
				{string(DiagnosisRecent), "Diagnosed within last 12 months"},
				{string(DiagnosisEstablished), "Diagnosed over 12 months ago"},
			},
		},
		{
			ID:     QuestionConcern,
			Prompt: "What is your primary concern right now?",
			Options: []Option{
				{string(ConcernSpeech), "Speech & Communication"},
				{string(ConcernBehavior), "Behavior & Meltdowns"},
				{string(ConcernSchool), "School Readiness & IEPs"},
				{string(ConcernServices), "Navigating Services & Insurance"},
			},
		},
	}
}

// FromMap builds Answers from a question-id keyed map, as collected by an
// interactive front end.
func FromMap(m map[string]string) (Answers, error) {
	return ParseAnswers(m[QuestionAge], m[QuestionDiagnosis], m[QuestionConcern])
}
