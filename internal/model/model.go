package model

// Role represents a transcript turn role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is the conversation state of a session.
type Mode string

const (
	// ModePatient is the default: the simulator answers as the patient.
	ModePatient Mode = "Patient"
	// ModeCE is clinical-educator coaching, triggered by explicit phrases.
	ModeCE Mode = "CE"
	// ModeTutor is the final feedback mode, triggered by "Done".
	ModeTutor Mode = "Tutor"
)

// Turn is one utterance in a conversation. Timestamp is Unix milliseconds.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// SessionData is the persisted state of one interview session.
type SessionData struct {
	Mode   Mode   `json:"mode"`
	Turns  []Turn `json:"turns"`
	Opened bool   `json:"opened"`
}

// Category groups must-elicit facts.
type Category string

const (
	CategorySymptoms    Category = "symptoms"
	CategoryHistory     Category = "history"
	CategorySocial      Category = "social"
	CategoryMedications Category = "medications"
	CategoryAllergies   Category = "allergies"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySymptoms, CategoryHistory, CategorySocial, CategoryMedications, CategoryAllergies:
		return true
	}
	return false
}

// QAPattern is a scripted stimulus-response rule for the dialogue generator.
type QAPattern struct {
	Patterns []string `json:"patterns"`
	Response string   `json:"response"`
	Facts    []string `json:"facts,omitempty"`
}

// MustElicitFact is a gradable clinical detail.
type MustElicitFact struct {
	ID          string   `json:"id"`
	Keywords    []string `json:"keywords"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category"`
	// Weight is carried for compatibility; scoring is unweighted.
	Weight float64 `json:"weight,omitempty"`
}

// DisplayText returns the description, falling back to the label.
func (f MustElicitFact) DisplayText() string {
	if f.Description != "" {
		return f.Description
	}
	return f.Label
}

// VoiceConfig holds speech-rendering parameters.
type VoiceConfig struct {
	VoiceName string `json:"voiceName"`
	Emotion   string `json:"emotion,omitempty"`
	Pace      string `json:"pace,omitempty"`
}

// SocialHistory is part of a patient's background.
type SocialHistory struct {
	Smoking string `json:"smoking,omitempty"`
	Alcohol string `json:"alcohol,omitempty"`
	Drugs   string `json:"drugs,omitempty"`
}

// Background is optional patient detail used by the dialogue prompt.
type Background struct {
	Occupation    string         `json:"occupation,omitempty"`
	Family        string         `json:"family,omitempty"`
	SocialHistory *SocialHistory `json:"socialHistory,omitempty"`
	Medications   []string       `json:"medications,omitempty"`
	Allergies     []string       `json:"allergies,omitempty"`
	PMH           []string       `json:"pmh,omitempty"`
}

// PatientCase is the static configuration of one simulated patient.
type PatientCase struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Age                int              `json:"age"`
	Gender             string           `json:"gender"`
	Diagnosis          string           `json:"diagnosis"`
	Course             string           `json:"course,omitempty"`
	TriageNote         string           `json:"triageNote"`
	Greeting           string           `json:"greeting"`
	QAScript           []QAPattern      `json:"qaScript"`
	MustElicitFacts    []MustElicitFact `json:"mustElicitFacts"`
	VoiceConfig        VoiceConfig      `json:"voiceConfig"`
	Background         *Background      `json:"background,omitempty"`
	LearningObjectives []string         `json:"learningObjectives,omitempty"`
	BehaviorNotes      string           `json:"behaviorNotes,omitempty"`
}

// QuestionKind is the outcome of classifying one student utterance.
type QuestionKind int

const (
	Unclassified QuestionKind = iota
	OpenEnded
	ClosedEnded
)

func (k QuestionKind) String() string {
	switch k {
	case OpenEnded:
		return "open-ended"
	case ClosedEnded:
		return "closed-ended"
	default:
		return "unclassified"
	}
}

// FactMatch is the per-fact outcome of grading.
type FactMatch struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Matched     bool     `json:"matched"`
	Category    Category `json:"category"`
	Weight      float64  `json:"weight"`
}

// GradingResult is derived from a transcript and never stored authoritatively.
type GradingResult struct {
	Completeness       int         `json:"completeness"`
	Empathy            int         `json:"empathy"`
	FactsElicited      []FactMatch `json:"factsElicited"`
	TotalFacts         int         `json:"totalFacts"`
	ElicitedCount      int         `json:"elicitedCount"`
	MissedFacts        []string    `json:"missedFacts"`
	OpenEndedQuestions int         `json:"openEndedQuestions"`
	ClosedQuestions    int         `json:"closedQuestions"`
}
