package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/internal/params"
	"github.com/feichai0017/ingestion-wizard/internal/pipeline/ingest"
	"github.com/feichai0017/ingestion-wizard/internal/pipeline/review"
	"github.com/feichai0017/ingestion-wizard/internal/preview"
	"github.com/feichai0017/ingestion-wizard/internal/service/chat"
	"github.com/feichai0017/ingestion-wizard/internal/session"
	"github.com/feichai0017/ingestion-wizard/internal/utils/validator"
	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/moderation"
	"github.com/feichai0017/ingestion-wizard/pkg/queue"
	"github.com/feichai0017/ingestion-wizard/pkg/storage"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

// sessionState is everything the controller owns for one session. Guarded by
// its own mutex; the single-run-at-a-time invariant lives in the sequencer
// and runner guards.
type sessionState struct {
	mu sync.Mutex

	session        *models.Session
	params         *params.Store
	gate           *validator.AcquisitionGate
	sequencer      *review.Sequencer
	runner         *ingest.Runner
	activeStage    models.Stage
	stageResults   map[models.Stage]any
	docs           []*models.AcquiredDocument
	pendingCrawls  map[string]struct{}
	isLoading      bool
	loadingMessage string
}

type workflowController struct {
	sessions   *session.Manager
	store      storage.Storage
	vectors    vectorstore.Store
	queue      queue.Queue
	moderation moderation.Client
	chat       chat.ChatService
	extractor  *preview.Extractor
	counter    *ingest.Chunker
	logger     logger.Logger

	mu       sync.RWMutex
	states   map[string]*sessionState
	listener Listener
}

func NewWorkflowController(
	sessions *session.Manager,
	store storage.Storage,
	vectors vectorstore.Store,
	q queue.Queue,
	moderationClient moderation.Client,
	chatService chat.ChatService,
	log logger.Logger,
) WorkflowController {
	c := &workflowController{
		sessions:   sessions,
		store:      store,
		vectors:    vectors,
		queue:      q,
		moderation: moderationClient,
		chat:       chatService,
		extractor:  preview.NewExtractor(log),
		counter:    ingest.NewChunker(512, 0),
		logger:     log,
		states:     make(map[string]*sessionState),
	}
	sessions.OnExpired(c.handleExpiry)
	return c
}

func (c *workflowController) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *workflowController) emit(ev Event) {
	c.mu.RLock()
	l := c.listener
	c.mu.RUnlock()
	if l != nil {
		l(ev)
	}
}

// --- session lifecycle ---

func (c *workflowController) CreateSession(ttlMinutes int, language string) (*models.Session, error) {
	sess := c.sessions.Create(ttlMinutes, language)

	st := &sessionState{session: sess}
	c.resetStateLocked(st)

	c.mu.Lock()
	c.states[sess.ID] = st
	c.mu.Unlock()

	c.logger.Info("Session created",
		logger.String("sessionId", sess.ID),
		logger.Int("ttlMinutes", sess.TTLMinutes),
	)
	return sess, nil
}

func (c *workflowController) CloseSession(ctx context.Context, id string) error {
	if _, err := c.anyState(id); err != nil {
		return err
	}

	c.sessions.Close(id)
	c.cleanupArtifacts(ctx, id)

	c.mu.Lock()
	delete(c.states, id)
	c.mu.Unlock()

	return nil
}

func (c *workflowController) RestartSession(ctx context.Context, id string) error {
	st, err := c.liveState(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	c.resetStateLocked(st)
	st.mu.Unlock()

	c.cleanupArtifacts(ctx, id)

	c.emit(StageChanged{SessionID: id, Stage: models.StageFirst})
	c.emit(CanProceedChanged{SessionID: id, CanProceed: true})
	return nil
}

// handleExpiry runs on the session cache's eviction hook. The state is reset
// to the first stage rather than removed so a late poll sees a clean wizard
// instead of a dangling one.
func (c *workflowController) handleExpiry(id string) {
	st, err := c.anyState(id)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.session.Expired = true
	c.resetStateLocked(st)
	st.mu.Unlock()

	c.cleanupArtifacts(context.Background(), id)

	c.logger.Info("Session expired, workflow reset", logger.String("sessionId", id))
	c.emit(StageChanged{SessionID: id, Stage: models.StageFirst})
}

// resetStateLocked discards everything but the session identity.
func (c *workflowController) resetStateLocked(st *sessionState) {
	st.params = params.NewStore()
	st.gate = validator.NewAcquisitionGate(st.params, c.logger)
	st.sequencer = review.NewSequencer(c.moderation, c.logger)
	st.runner = nil
	st.activeStage = models.StageFirst
	st.stageResults = make(map[models.Stage]any)
	st.docs = nil
	st.pendingCrawls = make(map[string]struct{})
	st.isLoading = false
	st.loadingMessage = ""
}

func (c *workflowController) cleanupArtifacts(ctx context.Context, id string) {
	if err := c.vectors.DropCollection(collectionName(id)); err != nil {
		c.logger.Warn("failed to drop session collection",
			logger.String("sessionId", id), logger.Error(err))
	}
	if err := c.store.DeletePrefix(ctx, storagePrefix(id)+"/"); err != nil {
		c.logger.Warn("failed to delete session objects",
			logger.String("sessionId", id), logger.Error(err))
	}
}

func (c *workflowController) State(id string) (*StateSnapshot, error) {
	st, err := c.anyState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	docs := make([]models.AcquiredDocument, len(st.docs))
	for i, doc := range st.docs {
		docs[i] = *doc
	}

	return &StateSnapshot{
		Session:             st.session,
		ActiveStage:         st.activeStage,
		ActiveStageName:     st.activeStage.String(),
		CanProceed:          c.canProceedLocked(st),
		IsLoading:           st.isLoading,
		LoadingMessage:      st.loadingMessage,
		Documents:           docs,
		PendingAcquisitions: len(st.pendingCrawls),
	}, nil
}

// --- navigation ---

func (c *workflowController) Advance(ctx context.Context, id string) (models.Stage, error) {
	st, err := c.liveState(id)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	cur := st.activeStage
	if cur == models.StageLast {
		st.mu.Unlock()
		return 0, &StageLockedError{From: cur, Reason: "already at the final stage"}
	}
	if reason := c.advanceBlockReasonLocked(st); reason != "" {
		st.mu.Unlock()
		return 0, &StageLockedError{From: cur, Reason: reason}
	}

	if result := c.liveStageResultLocked(st, cur); result != nil {
		st.stageResults[cur] = result
	}
	st.activeStage = cur + 1
	next := st.activeStage
	canProceed := c.canProceedLocked(st)
	st.mu.Unlock()

	c.emit(StageChanged{SessionID: id, Stage: next})
	c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
	return next, nil
}

func (c *workflowController) Retreat(id string) (models.Stage, error) {
	st, err := c.liveState(id)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	cur := st.activeStage
	if cur == models.StageFirst {
		st.mu.Unlock()
		return 0, &StageLockedError{From: cur, Reason: "already at the first stage"}
	}

	// Persist the current stage's result so moving forward again restores it
	// without recomputation.
	if result := c.liveStageResultLocked(st, cur); result != nil {
		st.stageResults[cur] = result
	}
	st.activeStage = cur - 1
	prev := st.activeStage
	canProceed := c.canProceedLocked(st)
	st.mu.Unlock()

	c.emit(StageChanged{SessionID: id, Stage: prev})
	c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
	return prev, nil
}

func (c *workflowController) StageResult(id string, stage models.Stage) (any, error) {
	st, err := c.anyState(id)
	if err != nil {
		return nil, err
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("invalid stage %d", stage)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if result, ok := st.stageResults[stage]; ok {
		return result, nil
	}
	return c.liveStageResultLocked(st, stage), nil
}

// advanceBlockReasonLocked returns why the current stage cannot be left, or
// "" when the transition is allowed.
func (c *workflowController) advanceBlockReasonLocked(st *sessionState) string {
	switch st.activeStage {
	case models.StageConfiguring:
		return ""
	case models.StageAcquiring:
		if len(st.docs) == 0 {
			return "no documents have been acquired"
		}
		if len(st.pendingCrawls) > 0 {
			return "acquisitions are still in flight"
		}
		return ""
	case models.StageReviewing:
		outcome := st.sequencer.Outcome()
		if outcome == nil {
			return "the review has not been run"
		}
		if !outcome.CanProceed {
			return "the review found blocking issues"
		}
		return ""
	case models.StageProcessing:
		if st.runner == nil {
			return "processing has not been started"
		}
		if st.runner.Running() {
			return "processing is still running"
		}
		if !st.runner.OverallComplete() {
			return "not every document finished processing"
		}
		return ""
	default:
		return "unknown stage"
	}
}

func (c *workflowController) canProceedLocked(st *sessionState) bool {
	return st.activeStage != models.StageLast && c.advanceBlockReasonLocked(st) == ""
}

// liveStageResultLocked computes the current value of a stage's result for
// persistence into stageResults.
func (c *workflowController) liveStageResultLocked(st *sessionState, stage models.Stage) any {
	switch stage {
	case models.StageConfiguring:
		return st.params.Get()
	case models.StageAcquiring:
		docs := make([]models.AcquiredDocument, len(st.docs))
		for i, doc := range st.docs {
			docs[i] = *doc
		}
		return docs
	case models.StageReviewing:
		if outcome := st.sequencer.Outcome(); outcome != nil {
			return outcome
		}
		return nil
	case models.StageProcessing:
		if st.runner != nil {
			return st.runner.Jobs()
		}
		return nil
	default:
		return nil
	}
}

// --- configuring ---

func (c *workflowController) Parameters(id string) (models.Parameters, error) {
	st, err := c.liveState(id)
	if err != nil {
		return models.Parameters{}, err
	}
	return st.params.Get(), nil
}

func (c *workflowController) SetParameter(id, key string, value any) error {
	st, err := c.liveState(id)
	if err != nil {
		return err
	}
	return st.params.Set(key, value)
}

// --- acquiring ---

func (c *workflowController) AcquireFile(ctx context.Context, id, filename string, content []byte) (*models.AcquiredDocument, error) {
	st, err := c.liveState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.activeStage != models.StageAcquiring {
		stage := st.activeStage
		st.mu.Unlock()
		return nil, &StageLockedError{From: stage, Reason: "file acquisition is only available in the acquiring stage"}
	}
	gate := st.gate
	st.mu.Unlock()

	doc, rej := gate.ValidateFile(validator.FileInput{
		Name:      filename,
		SizeBytes: int64(len(content)),
	})
	if rej != nil {
		return nil, rej
	}

	text, err := c.extractor.Text(filename, content)
	if err != nil {
		return nil, fmt.Errorf("extract text from %q: %w", filename, err)
	}
	doc.PreviewText = preview.Snippet(text)
	doc.TokenCount = c.counter.CountTokens(text)

	key := fmt.Sprintf("%s/uploads/%s", storagePrefix(id), doc.ID)
	if _, err := c.store.Store(ctx, bytes.NewReader(content), key); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	doc.StorageKey = key

	st.mu.Lock()
	st.docs = append(st.docs, doc)
	c.invalidateDownstreamLocked(st)
	canProceed := c.canProceedLocked(st)
	st.mu.Unlock()

	c.logger.Info("Document acquired",
		logger.String("sessionId", id),
		logger.String("documentId", doc.ID),
		logger.String("filename", filename),
		logger.Int("tokens", doc.TokenCount),
	)
	c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
	return doc, nil
}

func (c *workflowController) SubmitCrawl(ctx context.Context, id, url string) (string, error) {
	st, err := c.liveState(id)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	if st.activeStage != models.StageAcquiring {
		stage := st.activeStage
		st.mu.Unlock()
		return "", &StageLockedError{From: stage, Reason: "crawling is only available in the acquiring stage"}
	}
	p := st.params.Get()
	st.mu.Unlock()

	task := &queue.CrawlTask{
		ID:        uuid.New().String(),
		SessionID: id,
		URL:       url,
		MaxPages:  p.CrawlerMaxPages,
		MaxTokens: p.CrawlerMaxTokens,
		CreatedAt: time.Now(),
	}
	if err := c.queue.Enqueue(ctx, task); err != nil {
		return "", fmt.Errorf("enqueue crawl: %w", err)
	}

	st.mu.Lock()
	st.pendingCrawls[task.ID] = struct{}{}
	canProceed := c.canProceedLocked(st)
	st.mu.Unlock()

	c.logger.Info("Crawl submitted",
		logger.String("sessionId", id),
		logger.String("taskId", task.ID),
		logger.String("url", url),
	)
	c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
	return task.ID, nil
}

func (c *workflowController) ResolveCrawl(ctx context.Context, id, taskID string) (*CrawlResolution, error) {
	st, err := c.liveState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if _, ok := st.pendingCrawls[taskID]; !ok {
		st.mu.Unlock()
		return nil, fmt.Errorf("unknown crawl task %q", taskID)
	}
	gate := st.gate
	st.mu.Unlock()

	status, err := c.queue.GetStatus(ctx, taskID)
	if errors.Is(err, queue.ErrStatusNotFound) {
		return &CrawlResolution{TaskID: taskID, Pending: true}, nil
	}
	if err != nil {
		return nil, err
	}

	switch status.Status {
	case queue.StatusPending, queue.StatusRunning:
		return &CrawlResolution{TaskID: taskID, Pending: true}, nil

	case queue.StatusFailed:
		_, rej := gate.ValidateCrawlResult(&crawler.CrawlResult{
			ExtractionStatus: crawler.ExtractionFailed,
			ErrorMessage:     status.Error,
		})
		canProceed := c.settleCrawl(st, taskID, nil)
		c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
		return &CrawlResolution{TaskID: taskID, Rejection: rej}, nil

	case queue.StatusCompleted:
		doc, rej := gate.ValidateCrawlResult(status.Result)
		if rej != nil {
			canProceed := c.settleCrawl(st, taskID, nil)
			c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
			return &CrawlResolution{TaskID: taskID, Rejection: rej}, nil
		}

		doc.StorageKey = status.StorageKey
		canProceed := c.settleCrawl(st, taskID, doc)

		c.logger.Info("Crawled document acquired",
			logger.String("sessionId", id),
			logger.String("documentId", doc.ID),
			logger.Int("tokens", doc.TokenCount),
		)
		c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
		return &CrawlResolution{TaskID: taskID, Document: doc}, nil

	default:
		return nil, fmt.Errorf("unexpected crawl status %q", status.Status)
	}
}

// settleCrawl removes the pending marker and, when the gate admitted a
// document, adds it to the session's set.
func (c *workflowController) settleCrawl(st *sessionState, taskID string, doc *models.AcquiredDocument) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.pendingCrawls, taskID)
	if doc != nil {
		st.docs = append(st.docs, doc)
		c.invalidateDownstreamLocked(st)
	}
	return c.canProceedLocked(st)
}

// invalidateDownstreamLocked discards review and processing results after
// the document set changes; stale outcomes must not gate stale content.
func (c *workflowController) invalidateDownstreamLocked(st *sessionState) {
	st.sequencer.Reset()
	st.runner = nil
	delete(st.stageResults, models.StageReviewing)
	delete(st.stageResults, models.StageProcessing)
}

// --- reviewing ---

func (c *workflowController) RunReview(ctx context.Context, id string) (*models.ReviewOutcome, error) {
	return c.runReview(ctx, id, false)
}

func (c *workflowController) RetryReview(ctx context.Context, id string) (*models.ReviewOutcome, error) {
	return c.runReview(ctx, id, true)
}

func (c *workflowController) runReview(ctx context.Context, id string, retry bool) (*models.ReviewOutcome, error) {
	st, err := c.liveState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.activeStage != models.StageReviewing {
		stage := st.activeStage
		st.mu.Unlock()
		return nil, &StageLockedError{From: stage, Reason: "the review can only run in the reviewing stage"}
	}
	sequencer := st.sequencer
	if sequencer.State() == review.RunRunning {
		st.mu.Unlock()
		return nil, ErrRunInProgress
	}
	docs := append([]*models.AcquiredDocument(nil), st.docs...)
	academic := st.params.Get().AcademicMode
	st.isLoading = true
	st.loadingMessage = "Running safety review"
	st.mu.Unlock()

	c.emit(LoadingChanged{SessionID: id, IsLoading: true, Message: "Running safety review"})

	var outcome *models.ReviewOutcome
	if retry {
		outcome, err = sequencer.Retry(ctx, docs, academic)
	} else {
		outcome, err = sequencer.Run(ctx, docs, academic)
	}

	st.mu.Lock()
	st.isLoading = false
	st.loadingMessage = ""
	if outcome != nil {
		st.stageResults[models.StageReviewing] = outcome
	}
	canProceed := c.canProceedLocked(st)
	st.mu.Unlock()

	c.emit(LoadingChanged{SessionID: id, IsLoading: false})

	if err != nil {
		if errors.Is(err, review.ErrRunInProgress) {
			return nil, ErrRunInProgress
		}
		return nil, err
	}

	c.emit(CanProceedChanged{SessionID: id, CanProceed: canProceed})
	return outcome, nil
}

func (c *workflowController) ReviewOutcome(id string) (*models.ReviewOutcome, error) {
	st, err := c.anyState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if result, ok := st.stageResults[models.StageReviewing]; ok {
		if outcome, ok := result.(*models.ReviewOutcome); ok {
			return outcome, nil
		}
	}
	return st.sequencer.Outcome(), nil
}

// --- processing ---

func (c *workflowController) StartProcessing(ctx context.Context, id string, jobIDs ...string) ([]models.ProcessingJob, error) {
	st, err := c.liveState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.activeStage != models.StageProcessing {
		stage := st.activeStage
		st.mu.Unlock()
		return nil, &StageLockedError{From: stage, Reason: "processing can only start in the processing stage"}
	}

	if st.runner == nil {
		p := st.params.Get()
		chunker := ingest.NewChunker(p.ChunkSize, p.ChunkOverlap)
		r := ingest.NewRunner(chunker, c.vectors, c.store, c, c.logger,
			storagePrefix(id), collectionName(id))
		r.SetHooks(ingest.Hooks{
			OnDocumentChunked: func(docID string, count int) {
				c.annotateChunkCount(st, r, docID, count)
			},
		})
		r.LoadJobs(st.docs, p.ChunkSize)
		st.runner = r
	}
	runner := st.runner

	if runner.Running() {
		st.mu.Unlock()
		return nil, ErrRunInProgress
	}

	jobs := runner.Jobs()
	if err := validateJobSubset(jobs, jobIDs); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	st.isLoading = true
	st.loadingMessage = "Processing documents"
	st.mu.Unlock()

	c.emit(LoadingChanged{SessionID: id, IsLoading: true, Message: "Processing documents"})

	go func() {
		if err := runner.Run(context.Background(), jobIDs...); err != nil {
			c.logger.Error("processing run aborted",
				logger.String("sessionId", id), logger.Error(err))
		}

		st.mu.Lock()
		if st.runner != runner {
			// A reset (expiry or restart) discarded this runner mid-run;
			// its results belong to the old workflow and must not leak
			// into the fresh one.
			st.mu.Unlock()
			return
		}
		st.isLoading = false
		st.loadingMessage = ""
		st.stageResults[models.StageProcessing] = runner.Jobs()
		complete := runner.OverallComplete()
		st.mu.Unlock()

		c.emit(LoadingChanged{SessionID: id, IsLoading: false})
		c.emit(CanProceedChanged{SessionID: id, CanProceed: complete})
	}()

	return jobs, nil
}

// annotateChunkCount lands a finished document's chunk count on the session's
// copy of the document. The write happens under the session lock so state
// snapshots never observe a torn document, and only while the reporting
// runner is still the session's current one.
func (c *workflowController) annotateChunkCount(st *sessionState, runner *ingest.Runner, docID string, count int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.runner != runner {
		return
	}
	for _, doc := range st.docs {
		if doc.ID == docID {
			doc.ChunkCount = count
			return
		}
	}
}

func validateJobSubset(jobs []models.ProcessingJob, jobIDs []string) error {
	for _, id := range jobIDs {
		found := false
		for _, job := range jobs {
			if job.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown job %q", id)
		}
	}
	return nil
}

func (c *workflowController) Progress(id string) (*ProcessingProgress, error) {
	st, err := c.anyState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	runner := st.runner
	st.mu.Unlock()

	if runner == nil {
		return &ProcessingProgress{Jobs: []models.ProcessingJob{}}, nil
	}
	return &ProcessingProgress{
		Jobs:              runner.Jobs(),
		AggregateProgress: runner.AggregateProgress(),
		OverallComplete:   runner.OverallComplete(),
	}, nil
}

// --- chatting ---

func (c *workflowController) Ask(ctx context.Context, id, question string) (*chat.Answer, error) {
	st, err := c.liveState(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.activeStage != models.StageChatting {
		stage := st.activeStage
		st.mu.Unlock()
		return nil, &StageLockedError{From: stage, Reason: "questions can only be asked in the chatting stage"}
	}
	p := st.params.Get()
	st.mu.Unlock()

	return c.chat.Ask(ctx, collectionName(id), question, &p)
}

// --- plumbing ---

// DocumentText loads and extracts a stored document's full text for the
// ingestion runner.
func (c *workflowController) DocumentText(ctx context.Context, doc *models.AcquiredDocument) (string, error) {
	reader, err := c.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", doc.StorageKey, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", doc.StorageKey, err)
	}

	return c.extractor.Text(doc.Filename, data)
}

// liveState returns the state for an unexpired session and refreshes its TTL.
func (c *workflowController) liveState(id string) (*sessionState, error) {
	st, err := c.anyState(id)
	if err != nil {
		return nil, err
	}
	if _, ok := c.sessions.Get(id); !ok {
		return nil, ErrSessionNotFound
	}
	c.sessions.Touch(id)
	return st, nil
}

// anyState also returns expired sessions, letting reads observe the
// post-expiry reset.
func (c *workflowController) anyState(id string) (*sessionState, error) {
	c.mu.RLock()
	st := c.states[id]
	c.mu.RUnlock()
	if st == nil {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

func storagePrefix(sessionID string) string {
	return "sessions/" + sessionID
}

func collectionName(sessionID string) string {
	return "session-" + sessionID
}
