package evidence

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	chromem "github.com/philippgille/chromem-go"
)

// EmbeddingFunc produces an embedding vector for a text. Matches the
// chromem-go signature so provider funcs (e.g. chromem.NewEmbeddingFuncOllama)
// plug in directly.
type EmbeddingFunc = chromem.EmbeddingFunc

// embeddingLinker matches attributes to passages via vector similarity over
// an in-memory chromem collection.
//
// Embedding backends are not perfectly deterministic; when the same run is
// repeated, match strengths can drift slightly. That variance is inherent to
// this linker and is why the lexical linker remains the default.
type embeddingLinker struct {
	collection *chromem.Collection
	count      int
	cache      *lru.Cache[string, Match]
}

// NewEmbeddingLinker indexes the corpus passages with the given embedding
// function. Matches are cached per attribute text: re-scoring the same
// candidate must not trigger a second round of embedding calls.
func NewEmbeddingLinker(ctx context.Context, source *SourceData, embed EmbeddingFunc) (Linker, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("source-passages", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create passage collection: %w", err)
	}

	passages := source.Passages()
	for _, p := range passages {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:       p.ID,
			Content:  p.Text,
			Metadata: map[string]string{"document_id": p.DocumentID},
		})
		if err != nil {
			return nil, fmt.Errorf("index passage %s: %w", p.ID, err)
		}
	}

	cache, err := lru.New[string, Match](4096)
	if err != nil {
		return nil, fmt.Errorf("create match cache: %w", err)
	}

	return &embeddingLinker{collection: collection, count: len(passages), cache: cache}, nil
}

func (l *embeddingLinker) BestMatch(ctx context.Context, text string) (Match, bool, error) {
	if l.count == 0 {
		return Match{}, false, nil
	}
	if match, ok := l.cache.Get(text); ok {
		return match, true, nil
	}

	results, err := l.collection.Query(ctx, text, 1, nil, nil)
	if err != nil {
		return Match{}, false, fmt.Errorf("query passages: %w", err)
	}
	if len(results) == 0 {
		return Match{}, false, nil
	}

	match := Match{PassageID: results[0].ID, Strength: float64(results[0].Similarity)}
	l.cache.Add(text, match)
	return match, true, nil
}
