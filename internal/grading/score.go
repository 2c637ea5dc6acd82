package grading

import "errors"

// ErrNoFacts is returned when a case defines nothing to elicit.
var ErrNoFacts = errors.New("case has no must-elicit facts")

// Band is a threshold (in percent) and the score awarded at or above it.
type Band struct {
	Percent int
	Score   int
}

// CompletenessBands are ordered highest first.
var CompletenessBands = []Band{
	{Percent: 90, Score: 5},
	{Percent: 75, Score: 4},
	{Percent: 60, Score: 3},
	{Percent: 40, Score: 2},
}

// EmpathyBands are ordered highest first.
var EmpathyBands = []Band{
	{Percent: 40, Score: 5},
	{Percent: 30, Score: 4},
	{Percent: 20, Score: 3},
	{Percent: 10, Score: 2},
}

// CompletenessScore maps elicited/total to 1..5.
func CompletenessScore(elicited, total int) (int, error) {
	if total <= 0 {
		return 0, ErrNoFacts
	}
	return reduce(elicited, total, CompletenessBands), nil
}

// EmpathyScore maps open/(open+closed) to 1..5. No questions scores 1.
func EmpathyScore(open, closed int) int {
	total := open + closed
	if total == 0 {
		return 1
	}
	return reduce(open, total, EmpathyBands)
}

// reduce compares num/den against each band in integer arithmetic so that
// boundaries such as 9/10 >= 90% are exact.
func reduce(num, den int, bands []Band) int {
	for _, b := range bands {
		if num*100 >= den*b.Percent {
			return b.Score
		}
	}
	return 1
}

// NextBand returns how many more facts are needed to reach the next
// completeness band, and that band's score. ok is false at the top band.
func NextBand(elicited, total int) (needed, score int, ok bool) {
	if total <= 0 {
		return 0, 0, false
	}
	for i := len(CompletenessBands) - 1; i >= 0; i-- {
		b := CompletenessBands[i]
		if elicited*100 >= total*b.Percent {
			continue
		}
		// Smallest n with n*100 >= total*Percent.
		target := (total*b.Percent + 99) / 100
		return target - elicited, b.Score, true
	}
	return 0, 0, false
}

// NextEmpathyBand returns how many more open-ended questions would lift the
// empathy score to the next band, and the score they would earn. Each added
// question also counts towards the total. ok is false at the top band or
// when no questions were asked.
func NextEmpathyBand(open, closed int) (needed, score int, ok bool) {
	total := open + closed
	if total == 0 {
		return 0, 0, false
	}
	for i := len(EmpathyBands) - 1; i >= 0; i-- {
		b := EmpathyBands[i]
		if open*100 >= total*b.Percent {
			continue
		}
		// Smallest n with (open+n)*100 >= (total+n)*Percent.
		deficit := total*b.Percent - open*100
		step := 100 - b.Percent
		n := (deficit + step - 1) / step
		return n, EmpathyScore(open+n, closed), true
	}
	return 0, 0, false
}
