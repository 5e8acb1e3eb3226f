package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSource() *SourceData {
	return &SourceData{Documents: []Document{
		{
			ID:    "interview-01",
			Title: "Nurse interview",
			Text:  "I spend two hours every night charting patient notes at home.\n\nThe scheduling software crashes whenever I swap a shift.",
		},
		{
			ID:   "survey-02",
			Text: "Most respondents said onboarding took longer than a month.",
		},
	}}
}

func TestPassagesSplitWithStableIDs(t *testing.T) {
	passages := sampleSource().Passages()
	require.Len(t, passages, 3)
	assert.Equal(t, "interview-01#0", passages[0].ID)
	assert.Equal(t, "interview-01#1", passages[1].ID)
	assert.Equal(t, "survey-02#0", passages[2].ID)
	assert.Equal(t, "interview-01", passages[1].DocumentID)
}

func TestCosineSimilarityBounds(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity("charting patient notes", "charting patient notes"), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, CosineSimilarity("", "anything"))

	partial := CosineSimilarity("charting notes at home", "charting patient notes at home every night")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestLexicalLinkerFindsSupportingPassage(t *testing.T) {
	linker := NewLexicalLinker(sampleSource())

	match, ok, err := linker.BestMatch(context.Background(), "spends evenings charting patient notes at home")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "interview-01#0", match.PassageID)
	assert.Greater(t, match.Strength, 0.3)
}

func TestLexicalLinkerIsDeterministic(t *testing.T) {
	linker := NewLexicalLinker(sampleSource())

	first, ok, err := linker.BestMatch(context.Background(), "shift swap crashes the scheduler")
	require.NoError(t, err)
	require.True(t, ok)

	second, _, err := linker.BestMatch(context.Background(), "shift swap crashes the scheduler")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLexicalLinkerEmptyCorpus(t *testing.T) {
	linker := NewLexicalLinker(&SourceData{})
	_, ok, err := linker.BestMatch(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSourceDataEmpty(t *testing.T) {
	assert.True(t, (&SourceData{}).Empty())
	assert.True(t, (&SourceData{Documents: []Document{{ID: "x", Text: "  "}}}).Empty())
	assert.False(t, sampleSource().Empty())
}
