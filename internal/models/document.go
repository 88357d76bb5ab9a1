package models

import (
	"time"
)

// DocumentOrigin records how a document entered the session.
type DocumentOrigin string

const (
	OriginFile    DocumentOrigin = "file"
	OriginCrawler DocumentOrigin = "crawler"
)

// AcquiredDocument is a validated piece of content admitted into the
// session's document set. Immutable after acquisition except for ChunkCount,
// which the ingestion runner writes once chunking finishes.
type AcquiredDocument struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	Origin      DocumentOrigin `json:"origin"`
	SizeBytes   int64          `json:"sizeBytes"`
	TokenCount  int            `json:"tokenCount"`
	UploadedAt  time.Time      `json:"uploadedAt"`
	PreviewText string         `json:"previewText,omitempty"`
	StorageKey  string         `json:"storageKey"`
	ChunkCount  int            `json:"chunkCount,omitempty"`
}
