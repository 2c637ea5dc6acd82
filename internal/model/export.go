package model

import "time"

// SessionsExport is the top-level JSON structure for the export command.
type SessionsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one stored session with its recomputed grade.
type SessionResult struct {
	CaseID     string            `json:"case_id"`
	SessionID  string            `json:"session_id"`
	Mode       Mode              `json:"mode"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Questions  int               `json:"questions"`
	DurationMs int64             `json:"duration_ms"`
	Grade      *GradingResult    `json:"grade,omitempty"`
	GradeError string            `json:"grade_error,omitempty"`
	Transcript []ConversationMsg `json:"transcript"`
}

// ConversationMsg is a single turn in an exported transcript.
type ConversationMsg struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// StoredSession is a raw session row as listed by the durable store.
type StoredSession struct {
	Key       string
	Data      SessionData
	UpdatedAt time.Time
	ExpiresAt time.Time
}
