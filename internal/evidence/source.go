// Package evidence links persona attributes back to passages of the original
// qualitative source data. The evidence-strength quality dimension and the
// per-attribute provenance links are both built on this package.
package evidence

import (
	"fmt"
	"strings"
)

// Document is one input artifact (interview transcript, survey export,
// support-ticket dump).
type Document struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// SourceData is the full corpus a pipeline run draws from.
type SourceData struct {
	Documents []Document `json:"documents" yaml:"documents"`
}

// Passage is an addressable slice of a document.
type Passage struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Passages splits every document into paragraph-level passages with stable
// identifiers of the form "<doc>#<n>".
func (s *SourceData) Passages() []Passage {
	var passages []Passage
	for _, doc := range s.Documents {
		n := 0
		for _, block := range strings.Split(doc.Text, "\n\n") {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			passages = append(passages, Passage{
				ID:         fmt.Sprintf("%s#%d", doc.ID, n),
				DocumentID: doc.ID,
				Text:       block,
			})
			n++
		}
	}
	return passages
}

// Text concatenates all documents; used to seed generation prompts.
func (s *SourceData) Text() string {
	parts := make([]string, 0, len(s.Documents))
	for _, doc := range s.Documents {
		if doc.Title != "" {
			parts = append(parts, doc.Title+"\n"+doc.Text)
			continue
		}
		parts = append(parts, doc.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Empty reports whether the corpus holds no usable text.
func (s *SourceData) Empty() bool {
	for _, doc := range s.Documents {
		if strings.TrimSpace(doc.Text) != "" {
			return false
		}
	}
	return true
}
