package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/patientsim/internal/model"
	"github.com/pavelanni/patientsim/internal/session"
)

// GradeFunc recomputes the grade of a transcript for a case.
type GradeFunc func(caseID string, turns []model.Turn) (model.GradingResult, error)

// ExportSessions builds export-ready results for every unexpired session.
// A session that cannot be graded is exported with its error text.
func (s *Store) ExportSessions(ctx context.Context, grade GradeFunc) ([]model.SessionResult, error) {
	stored, err := s.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.SessionResult, 0, len(stored))
	for _, ss := range stored {
		caseID, sessionID, ok := session.ParseKey(ss.Key)
		if !ok {
			slog.Warn("skipping session with unrecognised key", "key", ss.Key)
			continue
		}

		var conv []model.ConversationMsg
		questions := 0
		for _, t := range ss.Data.Turns {
			if t.Role == model.RoleUser {
				questions++
			}
			conv = append(conv, model.ConversationMsg{
				Role:    string(t.Role),
				Content: t.Content,
				At:      time.UnixMilli(t.Timestamp),
			})
		}

		sr := model.SessionResult{
			CaseID:     caseID,
			SessionID:  sessionID,
			Mode:       ss.Data.Mode,
			UpdatedAt:  ss.UpdatedAt,
			Questions:  questions,
			DurationMs: duration(ss.Data.Turns),
			Transcript: conv,
		}
		g, err := grade(caseID, ss.Data.Turns)
		if err != nil {
			sr.GradeError = err.Error()
		} else {
			sr.Grade = &g
		}
		results = append(results, sr)
	}
	return results, nil
}

func duration(turns []model.Turn) int64 {
	if len(turns) == 0 {
		return 0
	}
	return turns[len(turns)-1].Timestamp - turns[0].Timestamp
}
