package grading

import (
	"bytes"
	_ "embed"
	"log/slog"
	"text/template"

	"github.com/pavelanni/patientsim/internal/model"
)

//go:embed feedback.tmpl
var feedbackSource string

var feedbackTemplate = template.Must(template.New("feedback").Parse(feedbackSource))

type feedbackData struct {
	model.GradingResult
	Praise string
}

// Praise returns the one-line qualitative comment for a completeness score.
func Praise(completeness int) string {
	switch {
	case completeness >= 4:
		return "Excellent work gathering a thorough history!"
	case completeness >= 3:
		return "Good effort in collecting key information."
	default:
		return "You gathered some important details, but there's room to be more systematic."
	}
}

// FormatFeedback renders a grading result as tutor feedback text.
func FormatFeedback(r model.GradingResult) string {
	var buf bytes.Buffer
	if err := renderFeedback(&buf, r); err != nil {
		slog.Error("render tutor feedback", "error", err)
	}
	return buf.String()
}

func renderFeedback(buf *bytes.Buffer, r model.GradingResult) error {
	return feedbackTemplate.Execute(buf, feedbackData{GradingResult: r, Praise: Praise(r.Completeness)})
}
