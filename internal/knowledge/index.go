// Package knowledge maintains an in-memory index over the project's
// markdown knowledge base and serves relevance-ranked lookups for the
// resolution pipeline.
package knowledge

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// snippetLimit bounds how much of a document body participates in scoring.
const snippetLimit = 4000

// Document is a single knowledge base entry.
type Document struct {
	Path    string
	Title   string
	Content string
}

// Match is a document with its relevance score for a query.
type Match struct {
	Document
	Score int
}

// Index holds loaded documents and answers relevance queries.
// Safe for concurrent use; drift monitors add documents at runtime.
type Index struct {
	mu   sync.RWMutex
	docs []Document
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Load walks fsys and indexes every markdown file found.
func Load(fsys fs.FS) (*Index, error) {
	idx := NewIndex()

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		content := string(data)
		idx.docs = append(idx.docs, Document{
			Path:    p,
			Title:   extractTitle(content, p),
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge base: %w", err)
	}

	return idx, nil
}

// Add appends a document to the index.
func (i *Index) Add(doc Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs = append(i.docs, doc)
}

// Len reports the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search returns up to limit documents ranked by relevance to query.
// A document scores the summed length of every query token its title or
// leading content contains; zero-score documents are omitted.
func (i *Index) Search(query string, limit int) []Match {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var matches []Match
	for _, doc := range i.docs {
		body := doc.Content
		if len(body) > snippetLimit {
			body = body[:snippetLimit]
		}
		haystack := strings.ToLower(doc.Title + "\n" + body)

		score := 0
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				score += len(tok)
			}
		}
		if score > 0 {
			matches = append(matches, Match{Document: doc, Score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// extractTitle returns the first level-one heading, falling back to the
// file name without extension.
func extractTitle(content, p string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(path.Base(p), ".md")
}

// tokenize lowercases and splits a query, dropping short stop tokens.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
