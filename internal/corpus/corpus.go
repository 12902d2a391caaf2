// Package corpus holds the in-memory search index over the curated document
// collection used for retrieval.
package corpus

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

const snippetLen = 240

// Document is one indexed corpus entry.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Index is a bleve-backed full-text index. It is safe for concurrent use
// by all sessions; per-query state never lives here.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	docs map[string]Document
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx, docs: make(map[string]Document)}, nil
}

// Add indexes one document, replacing any previous entry with the same ID.
func (i *Index) Add(doc Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.idx.Index(doc.ID, doc); err != nil {
		return err
	}
	i.docs[doc.ID] = doc
	return nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search returns up to k ranked snippets. No matches is a valid empty
// result, never an error.
func (i *Index) Search(ctx context.Context, query string, k int) ([]workflow.RetrievedDoc, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)

	i.mu.RLock()
	defer i.mu.RUnlock()
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]workflow.RetrievedDoc, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := i.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, workflow.RetrievedDoc{
			ID:      doc.ID,
			Title:   doc.Title,
			Snippet: snippet(doc.Content),
			Score:   hit.Score,
		})
	}
	return out, nil
}

// snippet truncates content to at most snippetLen runes, preferring a word
// boundary. Cutting on runes keeps multi-byte text valid UTF-8.
func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= snippetLen {
		return content
	}
	cut := string([]rune(content)[:snippetLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
