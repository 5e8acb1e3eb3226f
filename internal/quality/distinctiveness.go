package quality

import (
	"context"
	"fmt"

	"persona/internal/evidence"
	"persona/internal/persona"
)

// distinctivenessMetric scores how different a candidate is from its most
// similar sibling: 1 minus the maximum pairwise similarity. The only
// dimension that needs the full sibling pool.
type distinctivenessMetric struct{}

func (m *distinctivenessMetric) Dimension() persona.Dimension {
	return persona.DimDistinctiveness
}

func (m *distinctivenessMetric) Evaluate(_ context.Context, in Input) (Evaluation, error) {
	text := in.Candidate.NarrativeText()

	maxSim := 0.0
	nearest := ""
	for _, sibling := range in.Siblings {
		if sibling.ID == in.Candidate.ID {
			continue
		}
		sim := evidence.CosineSimilarity(text, sibling.NarrativeText())
		if sim > maxSim {
			maxSim = sim
			nearest = sibling.Name
		}
	}

	score := 1 - maxSim
	var issues []string
	if maxSim > 0.8 {
		issues = append(issues, fmt.Sprintf("nearly identical to sibling %q (similarity %.2f)", nearest, maxSim))
	} else if maxSim > 0.6 {
		issues = append(issues, fmt.Sprintf("overlaps heavily with sibling %q (similarity %.2f)", nearest, maxSim))
	}

	return Evaluation{Score: score, Issues: issues}, nil
}
