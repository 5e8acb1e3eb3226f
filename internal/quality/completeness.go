package quality

import (
	"context"
	"fmt"
	"strings"

	"persona/internal/persona"
)

// fieldWeight describes one expected candidate field and its importance.
type fieldWeight struct {
	name     string
	weight   float64
	required bool
	filled   func(c *persona.Candidate) bool
}

// requiredFloor caps the completeness score when any required field is empty.
const requiredFloor = 0.3

func nonTrivial(s string) bool {
	return len(strings.TrimSpace(s)) >= 2
}

func anyNonTrivial(values []string) bool {
	for _, v := range values {
		if nonTrivial(v) {
			return true
		}
	}
	return false
}

var expectedFields = []fieldWeight{
	{name: "name", weight: 2, required: true, filled: func(c *persona.Candidate) bool { return nonTrivial(c.Name) }},
	{name: "goals", weight: 2, required: true, filled: func(c *persona.Candidate) bool { return anyNonTrivial(c.Goals) }},
	{name: "pain_points", weight: 2, required: true, filled: func(c *persona.Candidate) bool { return anyNonTrivial(c.PainPoints) }},
	{name: "occupation", weight: 1, filled: func(c *persona.Candidate) bool { return nonTrivial(c.Occupation) }},
	{name: "age", weight: 1, filled: func(c *persona.Candidate) bool { return nonTrivial(c.Age) }},
	{name: "location", weight: 1, filled: func(c *persona.Candidate) bool { return nonTrivial(c.Location) }},
	{name: "behaviors", weight: 1, filled: func(c *persona.Candidate) bool { return anyNonTrivial(c.Behaviors) }},
	{name: "motivations", weight: 1, filled: func(c *persona.Candidate) bool { return anyNonTrivial(c.Motivations) }},
	{name: "quotes", weight: 1, filled: func(c *persona.Candidate) bool { return anyNonTrivial(c.Quotes) }},
}

// completenessMetric measures the importance-weighted fraction of expected
// fields populated with non-trivial content.
type completenessMetric struct{}

func (m *completenessMetric) Dimension() persona.Dimension {
	return persona.DimCompleteness
}

func (m *completenessMetric) Evaluate(_ context.Context, in Input) (Evaluation, error) {
	c := in.Candidate
	var filled, total float64
	var issues []string
	missingRequired := false

	for _, f := range expectedFields {
		total += f.weight
		if f.filled(c) {
			filled += f.weight
			continue
		}
		if f.required {
			missingRequired = true
			issues = append(issues, fmt.Sprintf("required field %s is empty", f.name))
		} else {
			issues = append(issues, fmt.Sprintf("field %s is empty", f.name))
		}
	}

	score := filled / total

	if goalCount(c) < in.Config.MinGoals {
		issues = append(issues, fmt.Sprintf("has %d goals, want at least %d", goalCount(c), in.Config.MinGoals))
		score *= 0.85
	}

	if missingRequired && score > requiredFloor {
		score = requiredFloor
	}

	return Evaluation{Score: score, Issues: issues}, nil
}

func goalCount(c *persona.Candidate) int {
	n := 0
	for _, g := range c.Goals {
		if nonTrivial(g) {
			n++
		}
	}
	return n
}
