package core

import "context"

// SearchResult represents a retrieved document with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Document is an entry added to a vector store collection.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// SearchOptions bound a similarity query. Zero values mean "no limit" and
// "no minimum score".
type SearchOptions struct {
	Limit    int
	MinScore float64
}

// VectorStore is the document-similarity oracle consulted by retrieval.
type VectorStore interface {
	Search(ctx context.Context, query, collection string, opts SearchOptions) ([]SearchResult, error)
	Add(ctx context.Context, collection string, docs ...Document) error
}

// Embedder turns texts into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
