package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/toolmesh/core"
)

type entry struct {
	doc core.Document
	vec []float32
}

// InMemoryStore is a process-local VectorStore.
type InMemoryStore struct {
	embedder core.Embedder

	mu          sync.RWMutex
	collections map[string][]entry
}

var _ core.VectorStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store. embedder may be nil.
func NewInMemoryStore(embedder core.Embedder) *InMemoryStore {
	return &InMemoryStore{
		embedder:    embedder,
		collections: make(map[string][]entry),
	}
}

// Add stores docs in collection, embedding them first when an embedder is
// configured. Documents without an ID get a generated one; an existing ID is
// replaced in place.
func (s *InMemoryStore) Add(ctx context.Context, collection string, docs ...core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	vecs, err := embedDocs(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.collections[collection]

	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.Metadata = copyMetadata(d.Metadata)

		e := entry{doc: d}
		if vecs != nil {
			e.vec = vecs[i]
		}

		replaced := false
		for j := range entries {
			if entries[j].doc.ID == d.ID {
				entries[j] = e
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, e)
		}
	}

	s.collections[collection] = entries

	return nil
}

// Search ranks the documents of collection against query.
func (s *InMemoryStore) Search(ctx context.Context, query, collection string, opts core.SearchOptions) ([]core.SearchResult, error) {
	qvec, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := s.collections[collection]
	results := make([]core.SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, core.SearchResult{
			ID:       e.doc.ID,
			Content:  e.doc.Content,
			Score:    score(query, qvec, e.doc.Content, e.vec),
			Metadata: copyMetadata(e.doc.Metadata),
		})
	}
	s.mu.RUnlock()

	return rank(results, opts), nil
}

// Len returns the number of documents in collection.
func (s *InMemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection])
}

func score(query string, qvec []float32, content string, vec []float32) float64 {
	if qvec != nil && vec != nil {
		return cosine(qvec, vec)
	}
	return keywordScore(query, content)
}

func embedDocs(ctx context.Context, embedder core.Embedder, docs []core.Document) ([][]float32, error) {
	if embedder == nil {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vecs), len(docs))
	}

	return vecs, nil
}

func embedQuery(ctx context.Context, embedder core.Embedder, query string) ([]float32, error) {
	if embedder == nil {
		return nil, nil
	}

	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	return vecs[0], nil
}
