package grading

import (
	"strings"

	"github.com/pavelanni/patientsim/internal/model"
)

// MatchFacts reports, for each fact in order, whether any of its keywords
// occurs as a substring of any utterance. Comparison is case-insensitive.
// Negation is not detected: "no fever" still elicits a fever fact.
func MatchFacts(utterances []string, facts []model.MustElicitFact) []model.FactMatch {
	lowered := make([]string, len(utterances))
	for i, u := range utterances {
		lowered[i] = strings.ToLower(u)
	}

	matches := make([]model.FactMatch, 0, len(facts))
	for _, f := range facts {
		matches = append(matches, model.FactMatch{
			ID:          f.ID,
			Description: f.DisplayText(),
			Matched:     anyKeywordIn(f.Keywords, lowered),
			Category:    f.Category,
			Weight:      f.Weight,
		})
	}
	return matches
}

func anyKeywordIn(keywords, utterances []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		for _, u := range utterances {
			if strings.Contains(u, kw) {
				return true
			}
		}
	}
	return false
}
