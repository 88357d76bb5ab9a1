package wizard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/internal/service/chat"
	"github.com/feichai0017/ingestion-wizard/internal/session"
	"github.com/feichai0017/ingestion-wizard/internal/utils/validator"
	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/moderation"
	"github.com/feichai0017/ingestion-wizard/pkg/queue"
	storagememory "github.com/feichai0017/ingestion-wizard/pkg/storage/memory"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

type fakeModeration struct {
	mu       sync.Mutex
	calls    int
	verdicts map[string]*moderation.Result // keyed by source reference
}

func (f *fakeModeration) Check(_ context.Context, req *moderation.Request) (*moderation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if res, ok := f.verdicts[req.SourceReference]; ok {
		return res, nil
	}
	return &moderation.Result{Status: moderation.StatusApproved, IsApproved: true}, nil
}

func (f *fakeModeration) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu       sync.Mutex
	tasks    map[string]*queue.CrawlTask
	statuses map[string]*queue.CrawlStatus
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		tasks:    make(map[string]*queue.CrawlTask),
		statuses: make(map[string]*queue.CrawlStatus),
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.CrawlTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[task.ID] = task
	q.statuses[task.ID] = &queue.CrawlStatus{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    queue.StatusPending,
		StartedAt: time.Now(),
	}
	return nil
}

func (q *fakeQueue) GetStatus(_ context.Context, taskID string) (*queue.CrawlStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, queue.ErrStatusNotFound
	}
	return status, nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, status *queue.CrawlStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = status
	return nil
}

func (q *fakeQueue) Close() error { return nil }

type fakeGenerator struct{ answer string }

func (g *fakeGenerator) Generate(_ context.Context, _ string, _ int) (string, error) {
	return g.answer, nil
}

// eventRecorder captures listener events thread-safely; processing runs emit
// from a background goroutine.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) stages() []models.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Stage
	for _, ev := range r.events {
		if sc, ok := ev.(StageChanged); ok {
			out = append(out, sc.Stage)
		}
	}
	return out
}

func (r *eventRecorder) loadingFlags() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, ev := range r.events {
		if lc, ok := ev.(LoadingChanged); ok {
			out = append(out, lc.IsLoading)
		}
	}
	return out
}

type testEnv struct {
	ctrl       WorkflowController
	sessions   *session.Manager
	moderation *fakeModeration
	queue      *fakeQueue
	vectors    *vectorstore.MemoryStore
	events     *eventRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewTestLogger()
	sessions := session.NewManager(log)
	store := storagememory.New()
	vectors := vectorstore.NewMemoryStore()
	mod := &fakeModeration{verdicts: map[string]*moderation.Result{}}
	q := newFakeQueue()
	chatSvc := chat.NewChatService(vectors, &fakeGenerator{answer: "drafted answer"}, log)

	ctrl := NewWorkflowController(sessions, store, vectors, q, mod, chatSvc, log)

	events := &eventRecorder{}
	ctrl.SetListener(events.record)

	return &testEnv{
		ctrl:       ctrl,
		sessions:   sessions,
		moderation: mod,
		queue:      q,
		vectors:    vectors,
		events:     events,
	}
}

func uploadText() []byte {
	return []byte(strings.Repeat("alpha beta gamma delta epsilon zeta\n", 40))
}

func (e *testEnv) newSessionAtStage(t *testing.T, stage models.Stage) string {
	t.Helper()
	ctx := context.Background()

	sess, err := e.ctrl.CreateSession(30, "en")
	require.NoError(t, err)
	id := sess.ID

	if stage >= models.StageAcquiring {
		_, err = e.ctrl.Advance(ctx, id)
		require.NoError(t, err)
	}
	if stage >= models.StageReviewing {
		_, err = e.ctrl.AcquireFile(ctx, id, "notes.txt", uploadText())
		require.NoError(t, err)
		_, err = e.ctrl.Advance(ctx, id)
		require.NoError(t, err)
	}
	if stage >= models.StageProcessing {
		outcome, err := e.ctrl.RunReview(ctx, id)
		require.NoError(t, err)
		require.True(t, outcome.CanProceed)
		_, err = e.ctrl.Advance(ctx, id)
		require.NoError(t, err)
	}
	if stage >= models.StageChatting {
		_, err = e.ctrl.StartProcessing(ctx, id)
		require.NoError(t, err)
		e.waitForProcessing(t, id)
		_, err = e.ctrl.Advance(ctx, id)
		require.NoError(t, err)
	}
	return id
}

func (e *testEnv) waitForProcessing(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		progress, err := e.ctrl.Progress(id)
		return err == nil && progress.OverallComplete
	}, 5*time.Second, 10*time.Millisecond)

	// The run goroutine flips isLoading off after the last job finishes.
	require.Eventually(t, func() bool {
		state, err := e.ctrl.State(id)
		return err == nil && !state.IsLoading
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWizardHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.newSessionAtStage(t, models.StageChatting)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageChatting, state.ActiveStage)
	assert.Len(t, state.Documents, 1)
	assert.Greater(t, state.Documents[0].ChunkCount, 0)

	answer, err := env.ctrl.Ask(ctx, id, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "drafted answer", answer.Text)
	assert.NotEmpty(t, answer.Citations)

	assert.Equal(t, []models.Stage{
		models.StageAcquiring,
		models.StageReviewing,
		models.StageProcessing,
		models.StageChatting,
	}, env.events.stages())
}

func TestAdvanceBlockedWithoutDocuments(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSessionAtStage(t, models.StageAcquiring)

	_, err := env.ctrl.Advance(context.Background(), id)
	var locked *StageLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, models.StageAcquiring, locked.From)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageAcquiring, state.ActiveStage)
	assert.False(t, state.CanProceed)
}

func TestGateMonotonicity(t *testing.T) {
	env := newTestEnv(t)
	env.moderation.verdicts["bad.txt"] = &moderation.Result{
		Status:            moderation.StatusBlocked,
		IsApproved:        false,
		BlockedCategories: []string{"violence"},
	}
	ctx := context.Background()

	id := env.newSessionAtStage(t, models.StageAcquiring)
	_, err := env.ctrl.AcquireFile(ctx, id, "bad.txt", uploadText())
	require.NoError(t, err)
	_, err = env.ctrl.Advance(ctx, id)
	require.NoError(t, err)

	outcome, err := env.ctrl.RunReview(ctx, id)
	require.NoError(t, err)
	require.False(t, outcome.CanProceed)
	require.NotEmpty(t, outcome.FailedItems)

	// The review gate never opens while failed items remain.
	_, err = env.ctrl.Advance(ctx, id)
	var locked *StageLockedError
	require.ErrorAs(t, err, &locked)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageReviewing, state.ActiveStage)
}

func TestIdempotentBackwardNavigation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.newSessionAtStage(t, models.StageReviewing)

	outcome, err := env.ctrl.RunReview(ctx, id)
	require.NoError(t, err)
	callsAfterRun := env.moderation.callCount()

	// Back to acquiring and forward again: same outcome object, no extra
	// moderation traffic.
	_, err = env.ctrl.Retreat(id)
	require.NoError(t, err)
	_, err = env.ctrl.Advance(ctx, id)
	require.NoError(t, err)

	restored, err := env.ctrl.ReviewOutcome(id)
	require.NoError(t, err)
	assert.Same(t, outcome, restored)
	assert.Equal(t, callsAfterRun, env.moderation.callCount())
}

func TestAcquireFileRejection(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSessionAtStage(t, models.StageAcquiring)

	_, err := env.ctrl.AcquireFile(context.Background(), id, "setup.exe", []byte("MZ..."))
	var rej *validator.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, validator.RejUnsupportedType, rej.Code)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Empty(t, state.Documents, "rejected files must not enter the document set")
}

func TestCrawlLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageAcquiring)

	taskID, err := env.ctrl.SubmitCrawl(ctx, id, "https://example.com/docs")
	require.NoError(t, err)

	// Still pending: resolution says so and the stage gate stays shut even
	// though a file was also acquired.
	res, err := env.ctrl.ResolveCrawl(ctx, id, taskID)
	require.NoError(t, err)
	assert.True(t, res.Pending)

	_, err = env.ctrl.AcquireFile(ctx, id, "notes.txt", uploadText())
	require.NoError(t, err)
	_, err = env.ctrl.Advance(ctx, id)
	var locked *StageLockedError
	require.ErrorAs(t, err, &locked)
	assert.Contains(t, locked.Reason, "in flight")

	// Crawl finishes below the token floor: typed rejection with the count.
	require.NoError(t, env.queue.SaveStatus(ctx, &queue.CrawlStatus{
		TaskID:    taskID,
		SessionID: id,
		Status:    queue.StatusCompleted,
		Result: &crawler.CrawlResult{
			ExtractionStatus: crawler.ExtractionCompleted,
			PagesFound:       1,
			TotalTokens:      30,
			SourceURL:        "https://example.com/docs",
			CrawledPages: []crawler.CrawledPage{
				{URL: "https://example.com/docs", Content: "tiny page"},
			},
		},
	}))

	res, err = env.ctrl.ResolveCrawl(ctx, id, taskID)
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, validator.RejInsufficientData, res.Rejection.Code)
	assert.Equal(t, 30, res.Rejection.ActualTokens)
	assert.Nil(t, res.Document)

	// The rejected task no longer counts as in flight.
	_, err = env.ctrl.Advance(ctx, id)
	require.NoError(t, err)
}

func TestCrawlAdmitsDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageAcquiring)

	taskID, err := env.ctrl.SubmitCrawl(ctx, id, "https://example.com/guide")
	require.NoError(t, err)

	require.NoError(t, env.queue.SaveStatus(ctx, &queue.CrawlStatus{
		TaskID:     taskID,
		SessionID:  id,
		Status:     queue.StatusCompleted,
		StorageKey: "sessions/" + id + "/crawl/" + taskID,
		Result: &crawler.CrawlResult{
			ExtractionStatus: crawler.ExtractionCompleted,
			PagesFound:       3,
			TotalTokens:      900,
			SourceURL:        "https://example.com/guide",
			CrawledPages: []crawler.CrawledPage{
				{URL: "https://example.com/guide", Title: "Guide", Content: strings.Repeat("guide text ", 100)},
			},
		},
	}))

	res, err := env.ctrl.ResolveCrawl(ctx, id, taskID)
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.Equal(t, models.OriginCrawler, res.Document.Origin)
	assert.Equal(t, 900, res.Document.TokenCount)
	assert.Equal(t, "sessions/"+id+"/crawl/"+taskID, res.Document.StorageKey)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Len(t, state.Documents, 1)
	assert.Zero(t, state.PendingAcquisitions)
}

func TestCrawlWorkerFailureRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageAcquiring)

	taskID, err := env.ctrl.SubmitCrawl(ctx, id, "https://unreachable.example")
	require.NoError(t, err)

	require.NoError(t, env.queue.SaveStatus(ctx, &queue.CrawlStatus{
		TaskID:    taskID,
		SessionID: id,
		Status:    queue.StatusFailed,
		Error:     "connection refused",
	}))

	res, err := env.ctrl.ResolveCrawl(ctx, id, taskID)
	require.NoError(t, err)
	require.NotNil(t, res.Rejection)
	assert.Equal(t, validator.RejCrawlFailed, res.Rejection.Code)
}

func TestLoadingEventsBracketReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageReviewing)

	_, err := env.ctrl.RunReview(ctx, id)
	require.NoError(t, err)

	flags := env.events.loadingFlags()
	require.Len(t, flags, 2)
	assert.True(t, flags[0])
	assert.False(t, flags[1])
}

func TestDocumentMutationInvalidatesReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageReviewing)

	_, err := env.ctrl.RunReview(ctx, id)
	require.NoError(t, err)

	// Back to acquiring, add another document: the persisted outcome must
	// not gate content it never saw.
	_, err = env.ctrl.Retreat(id)
	require.NoError(t, err)
	_, err = env.ctrl.AcquireFile(ctx, id, "extra.txt", uploadText())
	require.NoError(t, err)
	_, err = env.ctrl.Advance(ctx, id)
	require.NoError(t, err)

	outcome, err := env.ctrl.ReviewOutcome(id)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	_, err = env.ctrl.Advance(ctx, id)
	var locked *StageLockedError
	require.ErrorAs(t, err, &locked)
	assert.Contains(t, locked.Reason, "has not been run")
}

func TestProcessingRetryAfterSubsetFailure(t *testing.T) {
	// Subset restart is exercised at the runner level; here we only check
	// that a second StartProcessing with explicit job ids is accepted once
	// the first run has finished.
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageProcessing)

	jobs, err := env.ctrl.StartProcessing(ctx, id)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	env.waitForProcessing(t, id)

	_, err = env.ctrl.StartProcessing(ctx, id, jobs[0].ID)
	require.NoError(t, err)
	env.waitForProcessing(t, id)
}

func TestStartProcessingUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageProcessing)

	_, err := env.ctrl.StartProcessing(ctx, id)
	require.NoError(t, err)
	env.waitForProcessing(t, id)

	_, err = env.ctrl.StartProcessing(ctx, id, "missing-job")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestSessionExpiryResetsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageProcessing)

	_, err := env.ctrl.StartProcessing(ctx, id)
	require.NoError(t, err)
	env.waitForProcessing(t, id)

	env.ctrl.(*workflowController).handleExpiry(id)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageConfiguring, state.ActiveStage)
	assert.Empty(t, state.Documents)
	assert.Zero(t, state.PendingAcquisitions)
	assert.True(t, state.Session.Expired)

	result, err := env.ctrl.StageResult(id, models.StageReviewing)
	require.NoError(t, err)
	assert.Nil(t, result)

	assert.Zero(t, env.vectors.Count("session-"+id), "expired session's collection must be dropped")
}

// blockingVectorStore parks the first Add until released, holding a
// processing run mid-flight.
type blockingVectorStore struct {
	vectorstore.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingVectorStore) Add(ctx context.Context, collection string, docs []vectorstore.Document) error {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Store.Add(ctx, collection, docs)
}

func TestExpiryDuringProcessingRunDiscardsResults(t *testing.T) {
	log := logger.NewTestLogger()
	sessions := session.NewManager(log)
	store := storagememory.New()
	mem := vectorstore.NewMemoryStore()
	blocking := &blockingVectorStore{
		Store:   mem,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	mod := &fakeModeration{verdicts: map[string]*moderation.Result{}}
	chatSvc := chat.NewChatService(mem, &fakeGenerator{answer: "drafted answer"}, log)
	ctrl := NewWorkflowController(sessions, store, blocking, newFakeQueue(), mod, chatSvc, log)

	env := &testEnv{
		ctrl:       ctrl,
		sessions:   sessions,
		moderation: mod,
		vectors:    mem,
		events:     &eventRecorder{},
	}
	ctrl.SetListener(env.events.record)

	id := env.newSessionAtStage(t, models.StageProcessing)
	_, err := env.ctrl.StartProcessing(context.Background(), id)
	require.NoError(t, err)

	// The run is now parked inside the embedding phase; expire the session
	// underneath it, then let it finish.
	<-blocking.entered
	ctrl.(*workflowController).handleExpiry(id)
	close(blocking.release)

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageConfiguring, state.ActiveStage)
	assert.Empty(t, state.Documents)

	// The orphaned run must not hand its jobs back to the reset session.
	require.Never(t, func() bool {
		result, err := env.ctrl.StageResult(id, models.StageProcessing)
		return err == nil && result != nil
	}, 300*time.Millisecond, 20*time.Millisecond)

	state, err = env.ctrl.State(id)
	require.NoError(t, err)
	assert.False(t, state.IsLoading)
}

func TestParameterMutationVisibility(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSessionAtStage(t, models.StageConfiguring)

	require.NoError(t, env.ctrl.SetParameter(id, "maxFileSizeMB", 5))
	require.NoError(t, env.ctrl.SetParameter(id, "supportedFileTypes", []string{"txt"}))

	p, err := env.ctrl.Parameters(id)
	require.NoError(t, err)
	assert.Equal(t, 5, p.MaxFileSizeMB)
	assert.Equal(t, []string{"txt"}, p.SupportedFileTypes)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ctrl.State("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.ctrl.Advance(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	err = env.ctrl.SetParameter("nope", "chunkSize", 256)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.ctrl.Ask(ctx, "nope", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAskLockedOutsideChatStage(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSessionAtStage(t, models.StageProcessing)

	_, err := env.ctrl.Ask(context.Background(), id, "hello")
	var locked *StageLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, models.StageProcessing, locked.From)
}

func TestRestartDiscardsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.newSessionAtStage(t, models.StageReviewing)

	_, err := env.ctrl.RunReview(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.ctrl.RestartSession(ctx, id))

	state, err := env.ctrl.State(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageConfiguring, state.ActiveStage)
	assert.Empty(t, state.Documents)

	outcome, err := env.ctrl.ReviewOutcome(id)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	p, err := env.ctrl.Parameters(id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultParameters(), p)
}
