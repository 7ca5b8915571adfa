package knowledge

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore is an embedded vector store backed by chromem-go. Documents
// live in one collection per (namespace, scope) pair, where scope is either
// an org id or the shared global scope.
type ChromemStore struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

// NewChromemStore creates a volatile, in-process store. embedFunc is the
// embedding function to use, e.g. chromem.NewEmbeddingFuncOpenAI.
func NewChromemStore(embedFunc chromem.EmbeddingFunc) *ChromemStore {
	return &ChromemStore{db: chromem.NewDB(), embedFn: embedFunc}
}

// NewPersistentChromemStore creates (or opens) a store persisted under dir.
func NewPersistentChromemStore(dir string, embedFunc chromem.EmbeddingFunc) (*ChromemStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return &ChromemStore{db: db, embedFn: embedFunc}, nil
}

func collectionName(namespace, orgID string) string {
	if orgID == "" {
		return fmt.Sprintf("kb_%s_global", namespace)
	}
	return fmt.Sprintf("kb_%s_org_%s", namespace, orgID)
}

// EmbedSingle embeds one query string.
func (s *ChromemStore) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return s.embedFn(ctx, text)
}

// AddDocument indexes (or re-indexes) a document under the given namespace.
// An empty orgID targets the shared global scope of the namespace.
func (s *ChromemStore) AddDocument(ctx context.Context, namespace, orgID, key, content string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.db.GetOrCreateCollection(collectionName(namespace, orgID), nil, s.embedFn)
	if err != nil {
		return fmt.Errorf("collection %q: %w", collectionName(namespace, orgID), err)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:       key,
		Content:  content,
		Metadata: metadata,
	})
}

// Search queries every namespace with the given embedding, merges the hits
// and returns the top results ordered by descending score. Scores are cosine
// similarity rounded to 4 decimals. A namespace with no org-scoped collection
// falls back to the global scope when fallbackToGlobal is set.
func (s *ChromemStore) Search(ctx context.Context, embedding []float32, namespaces []string, orgID string, limit int, fallbackToGlobal bool) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	var out []Document
	for _, ns := range namespaces {
		col := s.lookupCollection(ns, orgID, fallbackToGlobal)
		if col == nil {
			continue
		}
		results, err := s.queryCollection(ctx, col, embedding, limit)
		if err != nil {
			return nil, fmt.Errorf("search namespace %q: %w", ns, err)
		}
		for _, r := range results {
			out = append(out, Document{
				Content:   r.Content,
				Namespace: ns,
				Score:     math.Round(float64(r.Similarity)*10000) / 10000,
				Key:       r.ID,
				Metadata:  r.Metadata,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ChromemStore) lookupCollection(namespace, orgID string, fallbackToGlobal bool) *chromem.Collection {
	if orgID != "" {
		if col := s.db.GetCollection(collectionName(namespace, orgID), s.embedFn); col != nil && col.Count() > 0 {
			return col
		}
		if !fallbackToGlobal {
			return nil
		}
	}
	return s.db.GetCollection(collectionName(namespace, ""), s.embedFn)
}

func (s *ChromemStore) queryCollection(ctx context.Context, col *chromem.Collection, embedding []float32, k int) ([]chromem.Result, error) {
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	// chromem-go sometimes rejects nResults despite the Count check; step
	// down k until the query succeeds.
	var results []chromem.Result
	var err error
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.QueryEmbedding(ctx, embedding, attemptK, nil, nil)
		if err == nil {
			return results, nil
		}
	}
	return nil, err
}
