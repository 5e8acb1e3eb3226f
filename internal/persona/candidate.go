// Package persona holds the domain model shared by every pipeline stage:
// candidates, their lifecycle states, quality scores and evidence links.
package persona

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies which pipeline stage produced a candidate version.
type Stage string

const (
	StageDraft  Stage = "draft"
	StageRefine Stage = "refine"
)

// Candidate is one synthetic individual. A refinement never mutates a
// candidate in place: it creates a new version via NewRevision, preserving
// the audit chain through ParentID.
type Candidate struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	// Identity
	Name         string            `json:"name"`
	Age          string            `json:"age,omitempty"`
	Occupation   string            `json:"occupation,omitempty"`
	Location     string            `json:"location,omitempty"`
	Demographics map[string]string `json:"demographics,omitempty"`

	// Psychology
	Goals       []string `json:"goals,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
	Behaviors   []string `json:"behaviors,omitempty"`
	Motivations []string `json:"motivations,omitempty"`

	// Narrative
	Quotes []string `json:"quotes,omitempty"`

	// Provenance
	Stage           Stage          `json:"stage"`
	Model           string         `json:"model"`
	BatchID         string         `json:"batch_id,omitempty"`
	RefinementCount int            `json:"refinement_count"`
	BestEffort      bool           `json:"best_effort,omitempty"`
	EvidenceLinks   []EvidenceLink `json:"evidence_links,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`

	State State         `json:"state"`
	Score *QualityScore `json:"score,omitempty"`
}

// EvidenceLink ties one candidate attribute back to a source passage.
type EvidenceLink struct {
	AttributeID string  `json:"attribute_id"`
	PassageID   string  `json:"passage_id"`
	Strength    float64 `json:"strength"`
}

// Attribute is a scoreable unit of candidate content, addressed by a stable
// identifier so provenance never depends on positional indexing.
type Attribute struct {
	ID   string
	Text string
}

// NewDraft constructs an empty draft candidate attributed to a model and batch.
func NewDraft(model, batchID string) *Candidate {
	return &Candidate{
		ID:        uuid.NewString(),
		Stage:     StageDraft,
		Model:     model,
		BatchID:   batchID,
		State:     StateDrafted,
		CreatedAt: time.Now().UTC(),
	}
}

// NewRevision clones c into a fresh refinement version. The clone gets its
// own ID, points back at c, and starts in the Refining state with the
// refinement counter advanced.
func (c *Candidate) NewRevision(model string) *Candidate {
	rev := &Candidate{
		ID:              uuid.NewString(),
		ParentID:        c.ID,
		Name:            c.Name,
		Age:             c.Age,
		Occupation:      c.Occupation,
		Location:        c.Location,
		Demographics:    copyMap(c.Demographics),
		Goals:           copySlice(c.Goals),
		PainPoints:      copySlice(c.PainPoints),
		Behaviors:       copySlice(c.Behaviors),
		Motivations:     copySlice(c.Motivations),
		Quotes:          copySlice(c.Quotes),
		Stage:           StageRefine,
		Model:           model,
		BatchID:         c.BatchID,
		RefinementCount: c.RefinementCount + 1,
		State:           StateRefining,
		CreatedAt:       time.Now().UTC(),
	}
	return rev
}

// Attributes flattens the candidate's content into addressable units for
// evidence linking and similarity checks.
func (c *Candidate) Attributes() []Attribute {
	var attrs []Attribute
	add := func(kind string, values []string) {
		for i, v := range values {
			if v == "" {
				continue
			}
			attrs = append(attrs, Attribute{ID: fmt.Sprintf("%s:%d", kind, i), Text: v})
		}
	}
	if c.Occupation != "" {
		attrs = append(attrs, Attribute{ID: "occupation", Text: c.Occupation})
	}
	add("goal", c.Goals)
	add("pain_point", c.PainPoints)
	add("behavior", c.Behaviors)
	add("motivation", c.Motivations)
	add("quote", c.Quotes)
	return attrs
}

// NarrativeText joins the candidate's free-text content; used for pairwise
// distinctiveness comparison.
func (c *Candidate) NarrativeText() string {
	text := c.Name + " " + c.Occupation
	for _, attr := range c.Attributes() {
		text += " " + attr.Text
	}
	return text
}

func copySlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
