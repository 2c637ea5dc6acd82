// Package chat runs an interview session: it keeps the transcript in the
// session store, asks the dialogue generator for patient replies, and
// answers "Done" with rule-based tutor feedback.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/patientsim/internal/cases"
	"github.com/pavelanni/patientsim/internal/grading"
	"github.com/pavelanni/patientsim/internal/llm/prompts"
	"github.com/pavelanni/patientsim/internal/model"
	"github.com/pavelanni/patientsim/internal/session"
)

// Generator produces the patient's side of the dialogue.
type Generator interface {
	Complete(ctx context.Context, turns []model.Turn) (string, error)
	Stream(ctx context.Context, turns []model.Turn, onChunk func(string) error) (string, error)
}

// ErrEmptyMessage is returned when the student text is blank.
var ErrEmptyMessage = errors.New("message is empty")

// Config holds runtime session parameters.
type Config struct {
	HistoryWindow int           // turns sent to the generator, excluding the system prompt
	SessionTTL    time.Duration // retention after the last exchange
}

// DefaultConfig mirrors the reference deployment.
var DefaultConfig = Config{HistoryWindow: 30, SessionTTL: session.DefaultTTL}

type Service struct {
	gen   Generator
	store session.Store
	cases *cases.Registry
	cfg   Config
	now   func() time.Time
	newID func() string
}

func NewService(gen Generator, store session.Store, reg *cases.Registry, cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultConfig.HistoryWindow
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig.SessionTTL
	}
	return &Service{
		gen:   gen,
		store: store,
		cases: reg,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// StartOutput is what a student sees before the first question.
type StartOutput struct {
	SessionID  string
	Greeting   string
	TriageNote string
}

// StartSession creates a session with its opening bundle already recorded.
func (s *Service) StartSession(ctx context.Context, caseID string) (*StartOutput, error) {
	c, err := s.cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	sessionID := s.newID()

	opening, err := s.openingBundle(c)
	if err != nil {
		return nil, err
	}
	data := model.SessionData{Mode: model.ModePatient, Turns: opening, Opened: true}
	if err := session.Save(ctx, s.store, c.ID, sessionID, data, s.cfg.SessionTTL); err != nil {
		return nil, err
	}

	slog.Info("session started", "case_id", c.ID, "session_id", sessionID)
	return &StartOutput{SessionID: sessionID, Greeting: c.Greeting, TriageNote: c.TriageNote}, nil
}

// SendInput is one student message.
type SendInput struct {
	CaseID    string
	SessionID string
	Text      string
	Stream    bool
	// OnChunk receives streamed reply fragments when Stream is set.
	OnChunk func(string) error
}

// SendOutput is the reply recorded for the message.
type SendOutput struct {
	Response string
	Mode     model.Mode
}

// Send records the student message, obtains a reply and saves both turns.
// If the generator fails or ctx is cancelled mid-stream, the user turn is
// kept, no partial assistant turn is recorded, and the error is returned.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	if in.Text == "" {
		return nil, ErrEmptyMessage
	}
	c, err := s.cases.Get(in.CaseID)
	if err != nil {
		return nil, err
	}

	log := slog.With("case_id", c.ID, "session_id", in.SessionID)

	data, err := session.Load(ctx, s.store, c.ID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !data.Opened {
		opening, err := s.openingBundle(c)
		if err != nil {
			return nil, err
		}
		data.Turns = opening
		data.Opened = true
	}

	data.Mode = session.NextMode(in.Text, data.Mode)
	data.Turns = append(data.Turns, s.turn(model.RoleUser, in.Text))
	log = log.With("mode", data.Mode)

	var reply string
	if data.Mode == model.ModeTutor {
		reply, err = s.tutorFeedback(data.Turns, c)
		if err == nil && in.Stream && in.OnChunk != nil {
			err = in.OnChunk(reply)
		}
	} else {
		window := s.window(data.Turns)
		if in.Stream {
			reply, err = s.gen.Stream(ctx, window, in.OnChunk)
		} else {
			reply, err = s.gen.Complete(ctx, window)
		}
	}
	if err != nil {
		log.Error("reply failed, keeping user turn only", "error", err, "partial_chars", len(reply))
		if saveErr := session.Save(context.WithoutCancel(ctx), s.store, c.ID, in.SessionID, data, s.cfg.SessionTTL); saveErr != nil {
			log.Error("failed to save session after reply error", "error", saveErr)
		}
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	data.Turns = append(data.Turns, s.turn(model.RoleAssistant, reply))
	if err := session.Save(ctx, s.store, c.ID, in.SessionID, data, s.cfg.SessionTTL); err != nil {
		return nil, err
	}

	log.Info("message exchanged", "turns", len(data.Turns))
	return &SendOutput{Response: reply, Mode: data.Mode}, nil
}

// Summary is a grading result with interview statistics.
type Summary struct {
	Result        model.GradingResult
	DurationMs    int64
	QuestionCount int
}

// Grade recomputes the grade of a stored session from its turns.
func (s *Service) Grade(ctx context.Context, caseID, sessionID string) (*Summary, error) {
	c, err := s.cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, session.Key(c.ID, sessionID))
	if err != nil {
		return nil, err
	}
	result, err := grading.Grade(data.Turns, c)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Result: result, QuestionCount: len(grading.UserUtterances(data.Turns))}
	if n := len(data.Turns); n > 0 {
		sum.DurationMs = data.Turns[n-1].Timestamp - data.Turns[0].Timestamp
	}
	return sum, nil
}

// Feedback renders tutor feedback for a stored session.
func (s *Service) Feedback(ctx context.Context, caseID, sessionID string) (string, error) {
	sum, err := s.Grade(ctx, caseID, sessionID)
	if err != nil {
		return "", err
	}
	return grading.FormatFeedback(sum.Result), nil
}

func (s *Service) tutorFeedback(turns []model.Turn, c model.PatientCase) (string, error) {
	result, err := grading.Grade(turns, c)
	if err != nil {
		return "", err
	}
	return grading.FormatFeedback(result), nil
}

func (s *Service) openingBundle(c model.PatientCase) ([]model.Turn, error) {
	system, err := prompts.SystemPrompt(c)
	if err != nil {
		return nil, err
	}
	triage, err := prompts.TriageNarration(c)
	if err != nil {
		return nil, err
	}
	return []model.Turn{
		s.turn(model.RoleSystem, system),
		s.turn(model.RoleSystem, triage),
		s.turn(model.RoleSystem, prompts.StartVisitNarration),
		s.turn(model.RoleAssistant, c.Greeting),
	}, nil
}

// window keeps the leading system prompt and the last HistoryWindow turns,
// with student text sanitized for the generator.
func (s *Service) window(turns []model.Turn) []model.Turn {
	var head []model.Turn
	rest := turns
	if len(turns) > 0 && turns[0].Role == model.RoleSystem {
		head, rest = turns[:1], turns[1:]
	}
	if len(rest) > s.cfg.HistoryWindow {
		rest = rest[len(rest)-s.cfg.HistoryWindow:]
	}

	out := make([]model.Turn, 0, len(head)+len(rest))
	out = append(out, head...)
	for _, t := range rest {
		if t.Role == model.RoleUser {
			t.Content = prompts.SanitizeUserText(t.Content)
		}
		out = append(out, t)
	}
	return out
}

func (s *Service) turn(role model.Role, content string) model.Turn {
	return model.Turn{Role: role, Content: content, Timestamp: s.now().UnixMilli()}
}
