package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"persona/internal/logging"
	"persona/internal/persona"
)

// flexString tolerates models emitting numbers where strings are expected
// (most often the age field).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("value %s is neither string nor number", strings.TrimSpace(string(data)))
}

// rawPersona is the wire shape a backend is prompted to emit per candidate.
type rawPersona struct {
	Name         string            `json:"name"`
	Age          flexString        `json:"age"`
	Occupation   string            `json:"occupation"`
	Location     string            `json:"location"`
	Demographics map[string]string `json:"demographics"`
	Goals        []string          `json:"goals"`
	PainPoints   []string          `json:"pain_points"`
	Behaviors    []string          `json:"behaviors"`
	Motivations  []string          `json:"motivations"`
	Quotes       []string          `json:"quotes"`
}

// personaEnvelope accepts either a bare array or {"personas": [...]}.
type personaEnvelope struct {
	Personas []json.RawMessage `json:"personas"`
}

// ParseCandidates turns raw model output into draft candidates. Malformed
// output is repaired when possible (models love trailing commas and markdown
// fences); entries that still cannot be parsed, or lack a name, are dropped
// individually with a warning and counted. An error is returned only when
// nothing at all could be parsed, which callers treat as a permanent
// per-call failure.
func ParseCandidates(raw, model, batchID string, logger logging.Logger) ([]*persona.Candidate, int, error) {
	logger = logging.OrNop(logger)

	entries, err := extractEntries(raw)
	if err != nil {
		return nil, 0, err
	}

	var candidates []*persona.Candidate
	dropped := 0
	for i, entry := range entries {
		var rp rawPersona
		if err := json.Unmarshal(entry, &rp); err != nil {
			logger.Warn("dropping candidate %d from batch %s: %v", i, batchID, err)
			dropped++
			continue
		}
		if strings.TrimSpace(rp.Name) == "" {
			logger.Warn("dropping candidate %d from batch %s: missing name", i, batchID)
			dropped++
			continue
		}
		c := persona.NewDraft(model, batchID)
		c.Name = strings.TrimSpace(rp.Name)
		c.Age = strings.TrimSpace(string(rp.Age))
		c.Occupation = strings.TrimSpace(rp.Occupation)
		c.Location = strings.TrimSpace(rp.Location)
		c.Demographics = rp.Demographics
		c.Goals = cleanList(rp.Goals)
		c.PainPoints = cleanList(rp.PainPoints)
		c.Behaviors = cleanList(rp.Behaviors)
		c.Motivations = cleanList(rp.Motivations)
		c.Quotes = cleanList(rp.Quotes)
		candidates = append(candidates, c)
	}

	return candidates, dropped, nil
}

// extractEntries locates the JSON payload in model output and splits it into
// per-candidate raw messages.
func extractEntries(raw string) ([]json.RawMessage, error) {
	text := stripFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty model output")
	}

	entries, err := decodeEntries(text)
	if err == nil {
		return entries, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return nil, fmt.Errorf("unparseable model output: %w", err)
	}
	entries, err = decodeEntries(repaired)
	if err != nil {
		return nil, fmt.Errorf("unparseable model output after repair: %w", err)
	}
	return entries, nil
}

func decodeEntries(text string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	var list []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		return list, nil
	}

	var envelope personaEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && len(envelope.Personas) > 0 {
		return envelope.Personas, nil
	}

	// A single object is a batch of one.
	var single map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil && len(single) > 0 {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}

	return nil, fmt.Errorf("output is neither a JSON array nor object")
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
