package grading

import (
	"regexp"
	"strings"

	"github.com/pavelanni/patientsim/internal/model"
)

// Open-ended patterns are checked before closed-ended ones, so
// "What brings you in?" is never counted as closed.
var openEndedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`what (brings|brought)`),
	regexp.MustCompile(`tell me (about|more)`),
	regexp.MustCompile(`how (are|do) you`),
	regexp.MustCompile(`describe`),
	regexp.MustCompile(`can you (explain|talk)`),
	regexp.MustCompile(`what('s| is) going on`),
}

var closedEndedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(do|did|does|is|are|was|were|have|has|had|can|could|would|will)`),
	regexp.MustCompile(`\?$`),
}

// Classify labels a single student utterance.
func Classify(utterance string) model.QuestionKind {
	u := strings.TrimSpace(strings.ToLower(utterance))
	if u == "" {
		return model.Unclassified
	}
	for _, re := range openEndedPatterns {
		if re.MatchString(u) {
			return model.OpenEnded
		}
	}
	for _, re := range closedEndedPatterns {
		if re.MatchString(u) {
			return model.ClosedEnded
		}
	}
	return model.Unclassified
}

// CountQuestions classifies each utterance once and tallies the results.
func CountQuestions(utterances []string) (open, closed int) {
	for _, u := range utterances {
		switch Classify(u) {
		case model.OpenEnded:
			open++
		case model.ClosedEnded:
			closed++
		}
	}
	return open, closed
}
