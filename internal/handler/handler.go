package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/patientsim/internal/cases"
	"github.com/pavelanni/patientsim/internal/chat"
	"github.com/pavelanni/patientsim/internal/grading"
	"github.com/pavelanni/patientsim/internal/i18n"
	"github.com/pavelanni/patientsim/internal/model"
	"github.com/pavelanni/patientsim/internal/session"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	chat  *chat.Service
	cases *cases.Registry
}

// New creates a new Handler.
func New(svc *chat.Service, reg *cases.Registry) *Handler {
	return &Handler{chat: svc, cases: reg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/cases", h.handleListCases)
		r.Get("/cases/{caseID}", h.handleGetCase)
		r.Get("/cases/{caseID}/sessions/{sessionID}/grade", h.handleGrade)
		r.Get("/cases/{caseID}/sessions/{sessionID}/feedback", h.handleFeedback)
		r.Post("/sessions", h.handleStartSession)
		r.Post("/chat", h.handleChat)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

type caseSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	Course     string `json:"course,omitempty"`
	TriageNote string `json:"triageNote"`
	FactCount  int    `json:"factCount"`
}

type caseDetail struct {
	caseSummary
	Greeting           string   `json:"greeting"`
	LearningObjectives []string `json:"learningObjectives,omitempty"`
}

func summarize(c model.PatientCase) caseSummary {
	return caseSummary{
		ID:         c.ID,
		Name:       c.Name,
		Age:        c.Age,
		Gender:     c.Gender,
		Course:     c.Course,
		TriageNote: c.TriageNote,
		FactCount:  len(c.MustElicitFacts),
	}
}

func (h *Handler) handleListCases(w http.ResponseWriter, _ *http.Request) {
	list := h.cases.List()
	out := make([]caseSummary, 0, len(list))
	for _, c := range list {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.Get(chi.URLParam(r, "caseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caseDetail{
		caseSummary:        summarize(c),
		Greeting:           c.Greeting,
		LearningObjectives: c.LearningObjectives,
	})
}

type startRequest struct {
	CaseID string `json:"caseId"`
}

type startResponse struct {
	SessionID  string `json:"sessionId"`
	Greeting   string `json:"greeting"`
	TriageNote string `json:"triageNote"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	// An empty body starts a session for the default case.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrInvalidJSON"))
		return
	}
	out, err := h.chat.StartSession(r.Context(), caseOrDefault(req.CaseID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		SessionID:  out.SessionID,
		Greeting:   out.Greeting,
		TriageNote: out.TriageNote,
	})
}

type chatRequest struct {
	CaseID    string `json:"caseId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	UserText  string `json:"userText"`
	Stream    *bool  `json:"stream"`
}

// streaming reports whether the reply should be streamed; omitted means yes.
func (req chatRequest) streaming() bool {
	return req.Stream == nil || *req.Stream
}

func (req chatRequest) text() string {
	if strings.TrimSpace(req.Message) != "" {
		return req.Message
	}
	return req.UserText
}

type chatResponse struct {
	Response string     `json:"response"`
	Mode     model.Mode `json:"mode"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrInvalidJSON"))
		return
	}
	text := req.text()
	if req.SessionID == "" || strings.TrimSpace(text) == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrMissingFields"))
		return
	}

	in := chat.SendInput{
		CaseID:    caseOrDefault(req.CaseID),
		SessionID: req.SessionID,
		Text:      text,
	}
	if !req.streaming() {
		out, err := h.chat.Send(r.Context(), in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Response: out.Response, Mode: out.Mode})
		return
	}

	if _, err := h.cases.Get(in.CaseID); err != nil {
		h.writeError(w, r, err)
		return
	}
	sse, ok := newEventWriter(w)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	in.Stream = true
	in.OnChunk = sse.delta
	if _, err := h.chat.Send(r.Context(), in); err != nil {
		if r.Context().Err() == nil {
			slog.Error("chat stream failed", "session_id", req.SessionID, "error", err)
			sse.fail(i18n.T(r.Context(), "ErrChatFailed"))
		}
		return
	}
	sse.done()
}

type gradeResponse struct {
	model.GradingResult
	DurationMs              int64  `json:"durationMs"`
	QuestionCount           int    `json:"questionCount"`
	CompletenessExplanation string `json:"completenessExplanation"`
	EmpathyExplanation      string `json:"empathyExplanation"`
	NextBandHint            string `json:"nextBandHint,omitempty"`
	EmpathyHint             string `json:"empathyHint,omitempty"`
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	sum, err := h.chat.Grade(r.Context(), chi.URLParam(r, "caseID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res := sum.Result
	resp := gradeResponse{
		GradingResult:           res,
		DurationMs:              sum.DurationMs,
		QuestionCount:           sum.QuestionCount,
		CompletenessExplanation: i18n.T(r.Context(), fmt.Sprintf("CompletenessBand%d", res.Completeness)),
		EmpathyExplanation:      i18n.T(r.Context(), fmt.Sprintf("EmpathyBand%d", res.Empathy)),
	}
	if needed, score, ok := grading.NextBand(res.ElicitedCount, res.TotalFacts); ok {
		resp.NextBandHint = i18n.Tp(r.Context(), "NextBandHint", needed, map[string]any{"Score": score})
	}
	if needed, score, ok := grading.NextEmpathyBand(res.OpenEndedQuestions, res.ClosedQuestions); ok {
		resp.EmpathyHint = i18n.Tp(r.Context(), "NextEmpathyHint", needed, map[string]any{"Score": score})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	text, err := h.chat.Feedback(r.Context(), chi.URLParam(r, "caseID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func caseOrDefault(id string) string {
	if id == "" {
		return cases.DefaultCaseID
	}
	return id
}

// writeError maps service errors to status codes with a localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, cases.ErrUnknownCase):
		writeMessage(w, http.StatusNotFound, i18n.T(ctx, "ErrUnknownCase"))
	case errors.Is(err, session.ErrNotFound):
		writeMessage(w, http.StatusNotFound, i18n.T(ctx, "ErrSessionNotFound"))
	case errors.Is(err, chat.ErrEmptyMessage):
		writeMessage(w, http.StatusBadRequest, i18n.T(ctx, "ErrMissingFields"))
	case errors.Is(err, grading.ErrNoFacts):
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, i18n.T(ctx, "ErrChatFailed"))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
