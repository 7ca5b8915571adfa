// Package knowledge implements the built-in search_knowledge tool's backend:
// an embedding step plus a namespaced vector search with org-scoped
// collections and global fallback. The default implementation wraps
// chromem-go so a single binary needs no external vector database.
package knowledge

import "context"

// Document is a single semantic-search hit.
type Document struct {
	Content   string            `json:"content"`
	Namespace string            `json:"namespace"`
	Score     float64           `json:"score"` // cosine similarity, rounded to 4 decimals
	Key       string            `json:"key"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Embedder turns a query into an embedding vector.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a vector search over a set of namespaces. When
// fallbackToGlobal is set, namespaces with no org-scoped collection fall
// back to the shared global collection of the same namespace.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, namespaces []string, orgID string, limit int, fallbackToGlobal bool) ([]Document, error)
}
