package quality

import (
	"context"
	"fmt"
	"strings"

	"persona/internal/persona"
)

// realismMetric runs heuristic plausibility checks; each passing check
// contributes an equal share of the dimension score.
type realismMetric struct{}

func (m *realismMetric) Dimension() persona.Dimension {
	return persona.DimRealism
}

var genericNames = map[string]struct{}{
	"john doe":   {},
	"jane doe":   {},
	"john smith": {},
	"jane smith": {},
	"test user":  {},
	"user":       {},
	"persona":    {},
	"n/a":        {},
	"unknown":    {},
}

var genericGoals = map[string]struct{}{
	"be happy":      {},
	"be successful": {},
	"success":       {},
	"improve":       {},
}

func (m *realismMetric) Evaluate(_ context.Context, in Input) (Evaluation, error) {
	c := in.Candidate
	var issues []string
	score := 0.0
	const share = 0.25

	// Non-generic name with at least a given and family part.
	name := normalizeText(c.Name)
	if _, generic := genericNames[name]; !generic && len(strings.Fields(name)) >= 2 {
		score += share
	} else {
		issues = append(issues, fmt.Sprintf("name %q looks generic or incomplete", c.Name))
	}

	// Demographic plausibility.
	if lo, hi, ok := parseAge(c.Age); ok && lo >= 16 && hi <= 100 {
		score += share
	} else if strings.TrimSpace(c.Age) == "" {
		score += share * 0.5
	} else {
		issues = append(issues, fmt.Sprintf("age %q is implausible", c.Age))
	}

	// Quote naturalness: conversational length, no template leftovers.
	if naturalQuote(c.Quotes) {
		score += share
	} else {
		issues = append(issues, "no natural-sounding quote")
	}

	// Goal specificity.
	if specificGoals(c.Goals) {
		score += share
	} else {
		issues = append(issues, "goals are too vague")
	}

	return Evaluation{Score: score, Issues: issues}, nil
}

func naturalQuote(quotes []string) bool {
	for _, q := range quotes {
		words := len(strings.Fields(q))
		if words < 4 || words > 60 {
			continue
		}
		lower := strings.ToLower(q)
		if strings.ContainsAny(q, "{}<>") || strings.Contains(lower, "lorem ipsum") {
			continue
		}
		return true
	}
	return false
}

func specificGoals(goals []string) bool {
	specific := 0
	total := 0
	for _, g := range goals {
		if !nonTrivial(g) {
			continue
		}
		total++
		if _, generic := genericGoals[normalizeText(g)]; generic {
			continue
		}
		if len(strings.Fields(g)) >= 4 {
			specific++
		}
	}
	return total > 0 && specific*2 >= total
}
