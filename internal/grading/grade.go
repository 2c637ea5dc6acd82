// Package grading scores a standardized-patient interview transcript.
//
// Every function here is pure: the same transcript and case always produce
// the same result, so a session can be re-graded at any time from its turns.
package grading

import (
	"fmt"

	"github.com/pavelanni/patientsim/internal/model"
)

// Grade scores the user turns of a transcript against a case's facts.
// System and assistant turns are ignored. The only error is ErrNoFacts.
func Grade(turns []model.Turn, c model.PatientCase) (model.GradingResult, error) {
	utterances := UserUtterances(turns)

	facts := MatchFacts(utterances, c.MustElicitFacts)
	elicited := 0
	missed := []string{}
	for _, f := range facts {
		if f.Matched {
			elicited++
		} else {
			missed = append(missed, f.Description)
		}
	}

	completeness, err := CompletenessScore(elicited, len(facts))
	if err != nil {
		return model.GradingResult{}, fmt.Errorf("grade case %q: %w", c.ID, err)
	}

	open, closed := CountQuestions(utterances)

	return model.GradingResult{
		Completeness:       completeness,
		Empathy:            EmpathyScore(open, closed),
		FactsElicited:      facts,
		TotalFacts:         len(facts),
		ElicitedCount:      elicited,
		MissedFacts:        missed,
		OpenEndedQuestions: open,
		ClosedQuestions:    closed,
	}, nil
}

// UserUtterances returns the content of user turns in transcript order.
func UserUtterances(turns []model.Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role == model.RoleUser {
			out = append(out, t.Content)
		}
	}
	return out
}
