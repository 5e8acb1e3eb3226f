package pipeline

import (
	"fmt"
	"strings"

	"persona/internal/evidence"
	"persona/internal/persona"
)

const draftSystemPrompt = `You are a UX research assistant. You synthesize ` +
	`personas strictly from the research data you are given. Never invent ` +
	`facts the data does not support. Respond with JSON only, no prose.`

const refineSystemPrompt = `You are a senior UX researcher. You improve an ` +
	`existing persona so it addresses the listed quality issues while staying ` +
	`faithful to the research data. Respond with a single JSON object only.`

const personaSchema = `{"name": string, "age": string, "occupation": string, ` +
	`"location": string, "goals": [string], "pain_points": [string], ` +
	`"behaviors": [string], "motivations": [string], "quotes": [string]}`

// buildDraftPrompt asks for count personas grounded in the source corpus.
func buildDraftPrompt(source *evidence.SourceData, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create exactly %d distinct user personas grounded in the research data below.\n\n", count)
	b.WriteString("Research data:\n---\n")
	b.WriteString(source.Text())
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Return a JSON array of %d objects, each shaped as:\n%s\n", count, personaSchema)
	b.WriteString("Every goal, pain point and quote must be traceable to the research data.")
	return b.String()
}

// buildRefinePrompt feeds the candidate's own content plus its scored issues
// back as refinement context.
func buildRefinePrompt(c *persona.Candidate, source *evidence.SourceData) string {
	var b strings.Builder
	b.WriteString("Improve the persona below. It failed a quality review.\n\n")

	b.WriteString("Current persona:\n")
	fmt.Fprintf(&b, "- name: %s\n- age: %s\n- occupation: %s\n- location: %s\n", c.Name, c.Age, c.Occupation, c.Location)
	writeList(&b, "goals", c.Goals)
	writeList(&b, "pain_points", c.PainPoints)
	writeList(&b, "behaviors", c.Behaviors)
	writeList(&b, "motivations", c.Motivations)
	writeList(&b, "quotes", c.Quotes)

	b.WriteString("\nQuality issues to fix:\n")
	if c.Score != nil {
		for _, issue := range c.Score.Issues() {
			b.WriteString("- " + issue + "\n")
		}
	}

	b.WriteString("\nResearch data to stay grounded in:\n---\n")
	b.WriteString(source.Text())
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Return one JSON object shaped as:\n%s\n", personaSchema)
	return b.String()
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		fmt.Fprintf(b, "- %s: (none)\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(values, "; "))
}
