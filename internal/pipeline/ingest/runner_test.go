package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/converters"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	storagememory "github.com/feichai0017/ingestion-wizard/pkg/storage/memory"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

type fakeTextSource struct {
	texts map[string]string
	errs  map[string]error
}

func (s *fakeTextSource) DocumentText(_ context.Context, doc *models.AcquiredDocument) (string, error) {
	if err := s.errs[doc.ID]; err != nil {
		return "", err
	}
	return s.texts[doc.ID], nil
}

// failingVectorStore fails Add for documents of one ID, passing the rest
// through to an in-memory store.
type failingVectorStore struct {
	*vectorstore.MemoryStore
	failDocID string
	failures  int
}

func (s *failingVectorStore) Add(ctx context.Context, collection string, docs []vectorstore.Document) error {
	for _, doc := range docs {
		if doc.Metadata["documentId"] == s.failDocID && s.failures > 0 {
			s.failures--
			return errors.New("vector backend unavailable")
		}
	}
	return s.MemoryStore.Add(ctx, collection, docs)
}

func testDoc(id string, tokens int) *models.AcquiredDocument {
	return &models.AcquiredDocument{
		ID:         id,
		Filename:   id + ".txt",
		Origin:     models.OriginFile,
		TokenCount: tokens,
	}
}

func docText(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "line %d alpha beta gamma\n", i)
	}
	return b.String()
}

func newTestRunner(t *testing.T, vectors vectorstore.Store, source TextSource) (*Runner, *storagememory.Store) {
	t.Helper()
	store := storagememory.New()
	chunker := newChunkerWithCounter(10, 2, wordCount)
	r := NewRunner(chunker, vectors, store, source, logger.NewTestLogger(), "sessions/s1", "session-s1")
	return r, store
}

func TestRunnerProcessesAllDocuments(t *testing.T) {
	docA := testDoc("doc-a", 40)
	docB := testDoc("doc-b", 40)
	source := &fakeTextSource{texts: map[string]string{
		"doc-a": docText(8),
		"doc-b": docText(6),
	}}
	vectors := vectorstore.NewMemoryStore()
	r, _ := newTestRunner(t, vectors, source)

	jobs := r.LoadJobs([]*models.AcquiredDocument{docA, docB}, 10)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.JobPending, jobs[0].Phase)
	assert.Equal(t, 4, jobs[0].TotalChunksEstimate)

	require.NoError(t, r.Run(context.Background()))

	for _, job := range r.Jobs() {
		assert.Equal(t, models.JobCompleted, job.Phase)
		assert.Equal(t, 100.0, job.ProgressPercent)
		assert.Greater(t, job.ChunkCount, 0)
		assert.Equal(t, job.ChunkCount, job.TotalChunksEstimate)
		require.NotNil(t, job.EndedAt)
	}

	assert.Equal(t, 100.0, r.AggregateProgress())
	assert.True(t, r.OverallComplete())
	assert.Greater(t, vectors.Count("session-s1"), 0)
}

func TestRunnerReportsChunkCountsViaHook(t *testing.T) {
	docA := testDoc("doc-a", 40)
	docB := testDoc("doc-b", 40)
	source := &fakeTextSource{texts: map[string]string{
		"doc-a": docText(8),
		"doc-b": docText(6),
	}}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	counts := make(map[string]int)
	r.SetHooks(Hooks{OnDocumentChunked: func(docID string, count int) {
		counts[docID] = count
	}})

	r.LoadJobs([]*models.AcquiredDocument{docA, docB}, 10)
	require.NoError(t, r.Run(context.Background()))

	assert.Greater(t, counts["doc-a"], 0)
	assert.Greater(t, counts["doc-b"], 0)
	// The shared document structs stay untouched; the hook's owner decides
	// when and under which lock the count lands on them.
	assert.Zero(t, docA.ChunkCount)
	assert.Zero(t, docB.ChunkCount)
}

func TestRunnerStoresArtifact(t *testing.T) {
	doc := testDoc("doc-a", 40)
	source := &fakeTextSource{texts: map[string]string{"doc-a": docText(8)}}
	r, store := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	require.NoError(t, r.Run(context.Background()))

	reader, err := store.Get(context.Background(), "sessions/s1/results/doc-a.json")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)

	var artifact converters.ProcessedDocument
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.Equal(t, "doc-a", artifact.DocumentID)
	assert.Equal(t, "doc-a.txt", artifact.Filename)
	assert.Equal(t, string(models.OriginFile), artifact.Origin)
	assert.Equal(t, r.Jobs()[0].ChunkCount, artifact.ChunkCount)
	assert.Len(t, artifact.Content, artifact.ChunkCount)
}

func TestRunnerProgressIsMonotonic(t *testing.T) {
	doc := testDoc("doc-a", 100)
	source := &fakeTextSource{texts: map[string]string{"doc-a": docText(20)}}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	var progress []float64
	var counts []int
	r.SetHooks(Hooks{OnJobUpdated: func(job models.ProcessingJob) {
		progress = append(progress, job.ProgressPercent)
		counts = append(counts, job.ChunkCount)
	}})

	r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	require.NoError(t, r.Run(context.Background()))

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress dipped at update %d", i)
		assert.GreaterOrEqual(t, counts[i], counts[i-1], "chunk count dipped at update %d", i)
	}
	assert.Equal(t, 100.0, progress[len(progress)-1])
}

func TestRunnerReconcilesEstimateBeforeEmbedding(t *testing.T) {
	// Estimate of 10 chunks (100 tokens / chunkSize 10) but the text only
	// yields a handful; the estimate must match reality once embedding starts.
	doc := testDoc("doc-a", 100)
	source := &fakeTextSource{texts: map[string]string{"doc-a": docText(4)}}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	var estimateAtEmbedding int
	r.SetHooks(Hooks{OnJobUpdated: func(job models.ProcessingJob) {
		if job.Phase == models.JobEmbedding && estimateAtEmbedding == 0 {
			estimateAtEmbedding = job.TotalChunksEstimate
		}
	}})

	jobs := r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	assert.Equal(t, 10, jobs[0].TotalChunksEstimate)

	require.NoError(t, r.Run(context.Background()))

	final := r.Jobs()[0]
	assert.Equal(t, final.ChunkCount, estimateAtEmbedding)
	assert.NotEqual(t, 10, estimateAtEmbedding)
}

func TestRunnerContinuesPastFailedJob(t *testing.T) {
	docA := testDoc("doc-a", 40)
	docB := testDoc("doc-b", 40)
	source := &fakeTextSource{texts: map[string]string{
		"doc-a": docText(8),
		"doc-b": docText(8),
	}}
	vectors := &failingVectorStore{
		MemoryStore: vectorstore.NewMemoryStore(),
		failDocID:   "doc-a",
		failures:    1,
	}
	r, _ := newTestRunner(t, vectors, source)

	r.LoadJobs([]*models.AcquiredDocument{docA, docB}, 10)
	require.NoError(t, r.Run(context.Background()))

	jobs := r.Jobs()
	assert.Equal(t, models.JobError, jobs[0].Phase)
	assert.Contains(t, jobs[0].ErrorMessage, "vector backend unavailable")
	assert.Equal(t, models.JobCompleted, jobs[1].Phase)

	assert.False(t, r.OverallComplete())
	assert.Less(t, r.AggregateProgress(), 100.0)
}

func TestRunnerRetriesSubset(t *testing.T) {
	docA := testDoc("doc-a", 40)
	docB := testDoc("doc-b", 40)
	source := &fakeTextSource{texts: map[string]string{
		"doc-a": docText(8),
		"doc-b": docText(8),
	}}
	vectors := &failingVectorStore{
		MemoryStore: vectorstore.NewMemoryStore(),
		failDocID:   "doc-a",
		failures:    1,
	}
	r, _ := newTestRunner(t, vectors, source)

	r.LoadJobs([]*models.AcquiredDocument{docA, docB}, 10)
	require.NoError(t, r.Run(context.Background()))
	require.False(t, r.OverallComplete())

	failedID := r.Jobs()[0].ID
	require.NoError(t, r.Run(context.Background(), failedID))

	jobs := r.Jobs()
	assert.Equal(t, models.JobCompleted, jobs[0].Phase)
	assert.Empty(t, jobs[0].ErrorMessage)
	assert.Equal(t, models.JobCompleted, jobs[1].Phase)
	assert.True(t, r.OverallComplete())
	assert.Equal(t, 100.0, r.AggregateProgress())
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	doc := testDoc("doc-a", 40)
	source := &fakeTextSource{texts: map[string]string{"doc-a": docText(8)}}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	var guardErr error
	r.SetHooks(Hooks{OnJobUpdated: func(job models.ProcessingJob) {
		if guardErr == nil {
			guardErr = r.Run(context.Background())
		}
	}})

	r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	require.NoError(t, r.Run(context.Background()))

	assert.ErrorIs(t, guardErr, ErrRunInProgress)
}

func TestRunnerUnknownJobID(t *testing.T) {
	doc := testDoc("doc-a", 40)
	source := &fakeTextSource{texts: map[string]string{"doc-a": docText(8)}}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	err := r.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
	assert.False(t, r.Running())
}

func TestRunnerTextSourceError(t *testing.T) {
	doc := testDoc("doc-a", 40)
	source := &fakeTextSource{
		texts: map[string]string{},
		errs:  map[string]error{"doc-a": errors.New("object not found")},
	}
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), source)

	r.LoadJobs([]*models.AcquiredDocument{doc}, 10)
	require.NoError(t, r.Run(context.Background()))

	job := r.Jobs()[0]
	assert.Equal(t, models.JobError, job.Phase)
	assert.Contains(t, job.ErrorMessage, "object not found")
}

func TestRunnerEstimateFloorsAtOne(t *testing.T) {
	doc := testDoc("doc-a", 3)
	r, _ := newTestRunner(t, vectorstore.NewMemoryStore(), &fakeTextSource{})

	jobs := r.LoadJobs([]*models.AcquiredDocument{doc}, 512)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].TotalChunksEstimate)
}
