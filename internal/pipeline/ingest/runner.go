package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/converters"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/storage"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

// Progress split between the two phases of a job. Chunking owns the first
// portion of the bar, embedding the rest.
const (
	chunkingPortion  = 60.0
	embeddingPortion = 40.0
	embedBatchSize   = 16
)

// ErrRunInProgress is returned when Run is called while a run is active.
var ErrRunInProgress = errors.New("processing run already in progress")

// TextSource loads the full text of an acquired document.
type TextSource interface {
	DocumentText(ctx context.Context, doc *models.AcquiredDocument) (string, error)
}

// Hooks receive job updates as the runner works. All callbacks are optional
// and invoked synchronously from the run loop. OnDocumentChunked reports the
// final chunk count for a document; the runner never writes the shared
// document struct itself, so the owner can apply the count under its own lock.
type Hooks struct {
	OnJobUpdated      func(job models.ProcessingJob)
	OnDocumentChunked func(documentID string, chunkCount int)
}

// Runner processes one session's documents: chunk, embed, store the artifact.
// Jobs run strictly one at a time so progress is deterministic; a failed job
// is marked error and the run moves on to the next one.
type Runner struct {
	chunker   *Chunker
	vectors   vectorstore.Store
	store     storage.Storage
	source    TextSource
	converter *converters.JSONConverter
	log       logger.Logger
	hooks     Hooks

	prefix     string // storage key prefix, e.g. sessions/<id>
	collection string // vector collection, e.g. session-<id>

	mu      sync.Mutex
	running bool
	jobs    []*models.ProcessingJob
	docs    map[string]*models.AcquiredDocument // jobID -> document
}

func NewRunner(
	chunker *Chunker,
	vectors vectorstore.Store,
	store storage.Storage,
	source TextSource,
	log logger.Logger,
	prefix, collection string,
) *Runner {
	return &Runner{
		chunker:    chunker,
		vectors:    vectors,
		store:      store,
		source:     source,
		converter:  converters.NewJSONConverter(),
		log:        log,
		prefix:     prefix,
		collection: collection,
		docs:       make(map[string]*models.AcquiredDocument),
	}
}

// SetHooks registers update callbacks. Not safe to call during a run.
func (r *Runner) SetHooks(h Hooks) {
	r.hooks = h
}

// LoadJobs replaces the job list with one pending job per document. The
// chunk-count estimate is provisional; it is reconciled to the real count
// once chunking finishes.
func (r *Runner) LoadJobs(docs []*models.AcquiredDocument, chunkSize int) []models.ProcessingJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chunkSize <= 0 {
		chunkSize = 512
	}

	r.jobs = r.jobs[:0]
	r.docs = make(map[string]*models.AcquiredDocument, len(docs))

	for _, doc := range docs {
		estimate := doc.TokenCount / chunkSize
		if estimate < 1 {
			estimate = 1
		}
		job := &models.ProcessingJob{
			ID:                  uuid.New().String(),
			DocumentID:          doc.ID,
			Phase:               models.JobPending,
			TotalChunksEstimate: estimate,
		}
		r.jobs = append(r.jobs, job)
		r.docs[job.ID] = doc
	}

	return r.snapshotLocked()
}

// Run processes jobs sequentially. With no arguments every job runs; with
// job IDs only that subset runs, each reset to pending first, which is how
// errored documents are retried. Per-job failures are recorded on the job
// and do not abort the run.
func (r *Runner) Run(ctx context.Context, jobIDs ...string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunInProgress
	}

	targets, err := r.selectLocked(jobIDs)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	for _, job := range targets {
		job.Phase = models.JobPending
		job.ProgressPercent = 0
		job.ChunkCount = 0
		job.ErrorMessage = ""
		job.EndedAt = nil
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	for _, job := range targets {
		if err := ctx.Err(); err != nil {
			r.failJob(job, err)
			continue
		}
		if err := r.process(ctx, job); err != nil {
			r.log.Error("document processing failed",
				logger.String("jobId", job.ID),
				logger.String("documentId", job.DocumentID),
				logger.Error(err))
			r.failJob(job, err)
		}
	}

	return nil
}

func (r *Runner) selectLocked(jobIDs []string) ([]*models.ProcessingJob, error) {
	if len(jobIDs) == 0 {
		return append([]*models.ProcessingJob(nil), r.jobs...), nil
	}

	byID := make(map[string]*models.ProcessingJob, len(r.jobs))
	for _, job := range r.jobs {
		byID[job.ID] = job
	}

	targets := make([]*models.ProcessingJob, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown job %q", id)
		}
		targets = append(targets, job)
	}
	return targets, nil
}

func (r *Runner) process(ctx context.Context, job *models.ProcessingJob) error {
	r.mu.Lock()
	doc := r.docs[job.ID]
	r.mu.Unlock()
	if doc == nil {
		return fmt.Errorf("no document for job %q", job.ID)
	}

	r.update(job, func(j *models.ProcessingJob) {
		j.Phase = models.JobChunking
		j.StartedAt = time.Now()
	})

	text, err := r.source.DocumentText(ctx, doc)
	if err != nil {
		return fmt.Errorf("load document text: %w", err)
	}

	chunks := r.chunker.Split(text)
	if len(chunks) == 0 {
		return fmt.Errorf("document %q produced no chunks", doc.ID)
	}

	// Walk the chunks so the visible count only ever grows.
	for i := range chunks {
		done := i + 1
		r.update(job, func(j *models.ProcessingJob) {
			j.ChunkCount = done
			j.ProgressPercent = chunkingPortion * float64(done) / float64(len(chunks))
		})
	}

	// The estimate was tokenCount/chunkSize; replace it with reality before
	// embedding so the remaining progress is computed against actual work.
	r.update(job, func(j *models.ProcessingJob) {
		j.Phase = models.JobEmbedding
		j.TotalChunksEstimate = len(chunks)
		j.ProgressPercent = chunkingPortion
	})

	if err := r.embed(ctx, job, doc, chunks); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := r.storeArtifact(ctx, doc, chunks); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	if r.hooks.OnDocumentChunked != nil {
		r.hooks.OnDocumentChunked(doc.ID, len(chunks))
	}
	now := time.Now()
	r.update(job, func(j *models.ProcessingJob) {
		j.Phase = models.JobCompleted
		j.ProgressPercent = 100
		j.EndedAt = &now
	})

	r.log.Info("document processed",
		logger.String("documentId", doc.ID),
		logger.Int("chunks", len(chunks)))

	return nil
}

func (r *Runner) embed(ctx context.Context, job *models.ProcessingJob, doc *models.AcquiredDocument, chunks []Chunk) error {
	total := len(chunks)
	for start := 0; start < total; start += embedBatchSize {
		end := start + embedBatchSize
		if end > total {
			end = total
		}

		batch := make([]vectorstore.Document, 0, end-start)
		for _, chunk := range chunks[start:end] {
			batch = append(batch, vectorstore.Document{
				ID:      fmt.Sprintf("%s-%d", doc.ID, chunk.Position),
				Content: chunk.Text,
				Metadata: map[string]string{
					"documentId": doc.ID,
					"filename":   doc.Filename,
					"position":   fmt.Sprintf("%d", chunk.Position),
				},
			})
		}

		if err := r.vectors.Add(ctx, r.collection, batch); err != nil {
			return err
		}

		r.update(job, func(j *models.ProcessingJob) {
			j.ProgressPercent = chunkingPortion + embeddingPortion*float64(end)/float64(total)
		})
	}
	return nil
}

func (r *Runner) storeArtifact(ctx context.Context, doc *models.AcquiredDocument, chunks []Chunk) error {
	contents := make([]converters.ChunkContent, len(chunks))
	for i, chunk := range chunks {
		contents[i] = converters.ChunkContent{
			Text:       chunk.Text,
			Position:   chunk.Position,
			TokenCount: chunk.TokenCount,
		}
	}

	artifact, err := r.converter.Convert(doc, contents)
	if err != nil {
		return err
	}
	data, err := r.converter.Marshal(artifact)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s/results/%s.json", r.prefix, doc.ID)
	if _, err := r.store.Store(ctx, bytes.NewReader(data), key); err != nil {
		return err
	}
	return nil
}

func (r *Runner) failJob(job *models.ProcessingJob, cause error) {
	now := time.Now()
	r.update(job, func(j *models.ProcessingJob) {
		j.Phase = models.JobError
		j.ErrorMessage = cause.Error()
		j.EndedAt = &now
	})
}

// update mutates a job under the lock and notifies the hook with a copy.
func (r *Runner) update(job *models.ProcessingJob, fn func(*models.ProcessingJob)) {
	r.mu.Lock()
	fn(job)
	snapshot := *job
	r.mu.Unlock()

	if r.hooks.OnJobUpdated != nil {
		r.hooks.OnJobUpdated(snapshot)
	}
}

// Jobs returns a copy of the current job list.
func (r *Runner) Jobs() []models.ProcessingJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() []models.ProcessingJob {
	out := make([]models.ProcessingJob, len(r.jobs))
	for i, job := range r.jobs {
		out[i] = *job
	}
	return out
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// AggregateProgress is the arithmetic mean of every job's progress.
func (r *Runner) AggregateProgress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) == 0 {
		return 0
	}
	var sum float64
	for _, job := range r.jobs {
		sum += job.ProgressPercent
	}
	return sum / float64(len(r.jobs))
}

// OverallComplete reports whether every job finished cleanly. A single
// errored job keeps the session out of the chat stage until it is retried.
func (r *Runner) OverallComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) == 0 {
		return false
	}
	for _, job := range r.jobs {
		if job.Phase != models.JobCompleted {
			return false
		}
	}
	return true
}
