package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/feichai0017/ingestion-wizard/pkg/embedding"
)

// Document is one embedded chunk.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult pairs a document with its cosine similarity to the query.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// Store manages embeddings and similarity search. Collections are keyed per
// session; dropping a collection discards that session's index.
type Store interface {
	// Add embeds and stores documents in the named collection.
	Add(ctx context.Context, collection string, docs []Document) error

	// SearchByText embeds the query and returns results at or above
	// minSimilarity, best first.
	SearchByText(ctx context.Context, collection, query string, topK int, minSimilarity float32) ([]SearchResult, error)

	// Count returns the number of documents in the collection.
	Count(collection string) int

	// DropCollection removes the collection and its documents.
	DropCollection(collection string) error
}

type chromemStore struct {
	db       *chromem.DB
	embedder embedding.Embedder
}

// NewChromemStore creates a chromem-go backed store. An empty persistPath
// keeps everything in memory.
func NewChromemStore(persistPath string, embedder embedding.Embedder) (Store, error) {
	var db *chromem.DB
	var err error

	if persistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(persistPath, "chromem.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("create persistent vector db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &chromemStore{db: db, embedder: embedder}, nil
}

func (s *chromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

func (s *chromemStore) collection(name string) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
}

func (s *chromemStore) Add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return fmt.Errorf("open collection %s: %w", collection, err)
	}

	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}

	return nil
}

func (s *chromemStore) SearchByText(ctx context.Context, collection, query string, topK int, minSimilarity float32) ([]SearchResult, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}

	if topK <= 0 {
		topK = 5
	}
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	var out []SearchResult
	for _, r := range results {
		if r.Similarity < minSimilarity {
			continue
		}
		out = append(out, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}

	return out, nil
}

func (s *chromemStore) Count(collection string) int {
	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return 0
	}
	return col.Count()
}

func (s *chromemStore) DropCollection(collection string) error {
	return s.db.DeleteCollection(collection)
}
