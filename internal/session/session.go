// Package session persists interview transcripts in a key-value store.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pavelanni/patientsim/internal/model"
)

// DefaultTTL is how long an idle session is retained.
const DefaultTTL = 7 * 24 * time.Hour

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("session not found")

// Store is a key-value store for session data with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (model.SessionData, error)
	Set(ctx context.Context, key string, data model.SessionData, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Key builds the storage key for a session of a case.
func Key(caseID, sessionID string) string {
	return fmt.Sprintf("case:%s:session:%s", caseID, sessionID)
}

// ParseKey splits a key produced by Key.
func ParseKey(key string) (caseID, sessionID string, ok bool) {
	rest, found := strings.CutPrefix(key, "case:")
	if !found {
		return "", "", false
	}
	caseID, sessionID, found = strings.Cut(rest, ":session:")
	if !found {
		return "", "", false
	}
	return caseID, sessionID, true
}

// Load returns the stored session, or a fresh unopened one in patient mode.
func Load(ctx context.Context, s Store, caseID, sessionID string) (model.SessionData, error) {
	data, err := s.Get(ctx, Key(caseID, sessionID))
	if errors.Is(err, ErrNotFound) {
		return model.SessionData{Mode: model.ModePatient}, nil
	}
	if err != nil {
		return model.SessionData{}, fmt.Errorf("load session %s/%s: %w", caseID, sessionID, err)
	}
	if data.Mode == "" {
		data.Mode = model.ModePatient
	}
	return data, nil
}

// Save writes the session and resets its expiry.
func Save(ctx context.Context, s Store, caseID, sessionID string, data model.SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.Set(ctx, Key(caseID, sessionID), data, ttl); err != nil {
		return fmt.Errorf("save session %s/%s: %w", caseID, sessionID, err)
	}
	return nil
}

var (
	tutorTrigger = regexp.MustCompile(`(?i)^done$`)
	ceTrigger    = regexp.MustCompile(`(?i)^(CE help|Pause and explain|Summarize|Continue as patient)$`)
)

// NextMode returns the mode after the student sends text.
func NextMode(text string, current model.Mode) model.Mode {
	t := strings.TrimSpace(text)
	switch {
	case tutorTrigger.MatchString(t):
		return model.ModeTutor
	case ceTrigger.MatchString(t):
		return model.ModeCE
	}
	return current
}
