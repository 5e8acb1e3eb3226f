package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona/internal/logging"
	"persona/internal/persona"
)

const validBatch = `[
	{"name": "Maya Delgado", "age": 34, "occupation": "ICU nurse",
	 "goals": ["finish charting at work"], "pain_points": ["charting at home"],
	 "quotes": ["I chart for two hours every night at home."]},
	{"name": "Viktor Osei", "age": "41-50", "occupation": "translator",
	 "goals": ["win larger contracts"], "pain_points": ["late payments"]}
]`

func TestParseCandidatesValidArray(t *testing.T) {
	candidates, dropped, err := ParseCandidates(validBatch, "local-model", "batch-1", logging.Nop())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, "Maya Delgado", first.Name)
	assert.Equal(t, "34", first.Age, "numeric age is coerced to string")
	assert.Equal(t, persona.StateDrafted, first.State)
	assert.Equal(t, "local-model", first.Model)
	assert.Equal(t, "batch-1", first.BatchID)
	assert.Equal(t, "41-50", candidates[1].Age)
}

func TestParseCandidatesStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validBatch + "\n```"
	candidates, dropped, err := ParseCandidates(fenced, "m", "b", logging.Nop())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Len(t, candidates, 2)
}

func TestParseCandidatesRepairsBrokenJSON(t *testing.T) {
	// Trailing comma and unquoted key, typical small-model output.
	broken := `[{"name": "Ana Petrova", "goals": ["ship the migration",], occupation: "data engineer"}]`
	candidates, dropped, err := ParseCandidates(broken, "m", "b", logging.Nop())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Ana Petrova", candidates[0].Name)
	assert.Equal(t, "data engineer", candidates[0].Occupation)
}

func TestParseCandidatesEnvelopeAndSingleObject(t *testing.T) {
	envelope := `{"personas": [{"name": "Sam Ruiz"}]}`
	candidates, _, err := ParseCandidates(envelope, "m", "b", logging.Nop())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Sam Ruiz", candidates[0].Name)

	single := `{"name": "Ida Larsen", "goals": ["retire early"]}`
	candidates, _, err = ParseCandidates(single, "m", "b", logging.Nop())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Ida Larsen", candidates[0].Name)
}

func TestParseCandidatesDropsNamelessEntries(t *testing.T) {
	mixed := `[{"name": "Keiko Tanaka"}, {"occupation": "no name here"}, {"name": "  "}]`
	candidates, dropped, err := ParseCandidates(mixed, "m", "b", logging.Nop())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, 2, dropped)
}

func TestParseCandidatesUnparseableOutputFails(t *testing.T) {
	_, _, err := ParseCandidates("I could not generate personas today, sorry!", "m", "b", logging.Nop())
	assert.Error(t, err)

	_, _, err = ParseCandidates("", "m", "b", logging.Nop())
	assert.Error(t, err)
}

func TestParseCandidatesTrimsListEntries(t *testing.T) {
	raw := `[{"name": "Lea Meyer", "goals": ["  spaced  ", ""], "quotes": [" q "]}]`
	candidates, _, err := ParseCandidates(raw, "m", "b", logging.Nop())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"spaced"}, candidates[0].Goals)
	assert.Equal(t, []string{"q"}, candidates[0].Quotes)
}
