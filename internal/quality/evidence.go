package quality

import (
	"context"
	"fmt"

	"persona/internal/persona"
)

// evidenceMetric measures how much of the candidate traces back to source
// data: the fraction of attributes with a passage link above the similarity
// threshold, combined with the average strength of those links.
type evidenceMetric struct{}

func (m *evidenceMetric) Dimension() persona.Dimension {
	return persona.DimEvidence
}

func (m *evidenceMetric) Evaluate(ctx context.Context, in Input) (Evaluation, error) {
	attrs := in.Candidate.Attributes()
	if len(attrs) == 0 {
		return Evaluation{Score: 0, Issues: []string{"no attributes to trace to source data"}}, nil
	}
	if in.Linker == nil {
		return Evaluation{Score: 0, Issues: []string{"no source data available for evidence checks"}}, nil
	}

	var links []persona.EvidenceLink
	var strengthSum float64
	for _, attr := range attrs {
		match, found, err := in.Linker.BestMatch(ctx, attr.Text)
		if err != nil {
			return Evaluation{}, fmt.Errorf("evidence lookup for %s: %w", attr.ID, err)
		}
		if !found || match.Strength < in.Config.EvidenceSimilarityThreshold {
			continue
		}
		links = append(links, persona.EvidenceLink{
			AttributeID: attr.ID,
			PassageID:   match.PassageID,
			Strength:    match.Strength,
		})
		strengthSum += match.Strength
	}

	coverage := float64(len(links)) / float64(len(attrs))
	avgStrength := 0.0
	if len(links) > 0 {
		avgStrength = strengthSum / float64(len(links))
	}
	score := 0.6*coverage + 0.4*avgStrength

	var issues []string
	if coverage < in.Config.EvidenceCoverageMin {
		issues = append(issues, fmt.Sprintf("only %.0f%% of attributes trace to source data, want %.0f%%",
			coverage*100, in.Config.EvidenceCoverageMin*100))
	}

	return Evaluation{Score: score, Issues: issues, Links: links}, nil
}
