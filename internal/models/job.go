package models

import (
	"time"
)

// JobPhase is the lifecycle of one per-document processing job.
type JobPhase string

const (
	JobPending   JobPhase = "pending"
	JobChunking  JobPhase = "chunking"
	JobEmbedding JobPhase = "embedding"
	JobCompleted JobPhase = "completed"
	JobError     JobPhase = "error"
)

// Terminal reports whether the phase is final.
func (p JobPhase) Terminal() bool {
	return p == JobCompleted || p == JobError
}

// ProcessingJob tracks one document through chunking and embedding.
// Mutated in place by the ingestion runner; terminal once completed or error.
type ProcessingJob struct {
	ID                  string     `json:"id"`
	DocumentID          string     `json:"documentId"`
	Phase               JobPhase   `json:"phase"`
	ProgressPercent     float64    `json:"progressPercent"`
	ChunkCount          int        `json:"chunkCount"`
	TotalChunksEstimate int        `json:"totalChunksEstimate"`
	StartedAt           time.Time  `json:"startedAt"`
	EndedAt             *time.Time `json:"endedAt,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}
