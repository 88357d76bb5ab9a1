package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/ingestion-wizard/internal/models"
)

// ChunkContent is one retrievable chunk inside a processing artifact.
type ChunkContent struct {
	Text       string `json:"text"`
	Position   int    `json:"position"`
	TokenCount int    `json:"tokenCount"`
}

// ProcessedDocument is the artifact written to storage after a document has
// been chunked and embedded. It is what the chat stage cites from.
type ProcessedDocument struct {
	DocumentID  string         `json:"documentId"`
	Filename    string         `json:"filename"`
	Origin      string         `json:"origin"`
	ChunkCount  int            `json:"chunkCount"`
	Content     []ChunkContent `json:"content"`
	ProcessedAt time.Time      `json:"processedAt"`
}

// DocumentConverter turns chunked content into a storable artifact.
type DocumentConverter interface {
	Convert(doc *models.AcquiredDocument, chunks []ChunkContent) (*ProcessedDocument, error)
}

// JSONConverter implements DocumentConverter.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(doc *models.AcquiredDocument, chunks []ChunkContent) (*ProcessedDocument, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to convert")
	}

	out := &ProcessedDocument{
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		Origin:      string(doc.Origin),
		ChunkCount:  len(chunks),
		Content:     make([]ChunkContent, len(chunks)),
		ProcessedAt: time.Now(),
	}
	copy(out.Content, chunks)

	return out, nil
}

// Marshal serializes the artifact for storage.
func (c *JSONConverter) Marshal(doc *ProcessedDocument) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return data, nil
}
