package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/patientsim/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const maxUserTextRunes = 4000

var (
	// Strip role-switch markers a student might paste to hijack the patient.
	controlTagRegex = regexp.MustCompile(`(?i)</?\s*(system|system-instructions|assistant)\b[^>]*>`)
	roleLabelRegex  = regexp.MustCompile(`(?im)^\s*\[(patient|ce|tutor)\]\s*`)
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.New("prompts").ParseFS(templateFS, "templates/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

// SystemPrompt builds the patient role-play instructions for a case.
func SystemPrompt(c model.PatientCase) (string, error) {
	return render("patient.tmpl", c)
}

// TriageNarration is the narrator text shown before the interview starts.
func TriageNarration(c model.PatientCase) (string, error) {
	return render("narrator.tmpl", c)
}

// StartVisitNarration is the second narrator line of the opening bundle.
const StartVisitNarration = "Your patient is sitting in the clinic room awaiting your arrival. Start the visit."

func render(name string, c model.PatientCase) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, c); err != nil {
		return "", fmt.Errorf("render %s for case %q: %w", name, c.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SanitizeUserText removes injected control markers and bounds the length
// of student input before it is sent to the dialogue generator.
func SanitizeUserText(text string) string {
	text = controlTagRegex.ReplaceAllString(text, "")
	text = roleLabelRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > maxUserTextRunes {
		runes := []rune(text)
		text = string(runes[:maxUserTextRunes])
	}
	return text
}
