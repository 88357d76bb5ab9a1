package vectorstore

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a substring-matching fake used in tests and local runs
// without an embedding backend.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

func (s *MemoryStore) Add(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	s.collections[collection] = append(s.collections[collection], docs...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SearchByText(_ context.Context, collection, query string, topK int, minSimilarity float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}

	var out []SearchResult
	for _, doc := range s.collections[collection] {
		if !strings.Contains(strings.ToLower(doc.Content), strings.ToLower(query)) {
			continue
		}
		if minSimilarity > 1.0 {
			continue
		}
		out = append(out, SearchResult{Document: doc, Similarity: 1.0})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *MemoryStore) DropCollection(collection string) error {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
	return nil
}
