package evidence

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// Match is the best source passage found for a piece of candidate text.
type Match struct {
	PassageID string
	Strength  float64 // cosine similarity in [0,1]
}

// Linker finds the source passage that best supports a piece of text.
type Linker interface {
	BestMatch(ctx context.Context, text string) (Match, bool, error)
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9']+`)

// Tokenize lowercases text and extracts word tokens.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// termFrequency builds a term-count vector.
func termFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}

// CosineSimilarity computes cosine similarity between two texts over term
// frequency vectors. Deterministic, no backend calls.
func CosineSimilarity(a, b string) float64 {
	tfA := termFrequency(Tokenize(a))
	tfB := termFrequency(Tokenize(b))
	if len(tfA) == 0 || len(tfB) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, ca := range tfA {
		normA += ca * ca
		if cb, ok := tfB[term]; ok {
			dot += ca * cb
		}
	}
	for _, cb := range tfB {
		normB += cb * cb
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexicalLinker matches attributes to passages by lexical cosine similarity.
// It is the default linker: deterministic across runs, no network calls.
type lexicalLinker struct {
	passages []Passage
}

// NewLexicalLinker builds a linker over the corpus passages.
func NewLexicalLinker(source *SourceData) Linker {
	return &lexicalLinker{passages: source.Passages()}
}

func (l *lexicalLinker) BestMatch(_ context.Context, text string) (Match, bool, error) {
	var best Match
	found := false
	for _, p := range l.passages {
		sim := CosineSimilarity(text, p.Text)
		if !found || sim > best.Strength {
			best = Match{PassageID: p.ID, Strength: sim}
			found = true
		}
	}
	return best, found, nil
}
