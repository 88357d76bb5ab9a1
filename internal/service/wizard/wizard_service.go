package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/internal/service/chat"
	"github.com/feichai0017/ingestion-wizard/internal/utils/validator"
)

// ErrSessionNotFound covers unknown and expired session ids alike.
var ErrSessionNotFound = errors.New("session not found")

// ErrRunInProgress is returned when a stage's asynchronous run is started
// while a previous one is still running.
var ErrRunInProgress = errors.New("a run is already in progress for this stage")

// StageLockedError reports a forward transition whose gate is not satisfied.
type StageLockedError struct {
	From   models.Stage
	Reason string
}

func (e *StageLockedError) Error() string {
	return fmt.Sprintf("stage %s is locked: %s", e.From, e.Reason)
}

// Event is the typed union delivered to the registered listener.
type Event interface {
	isEvent()
}

type StageChanged struct {
	SessionID string
	Stage     models.Stage
}

type LoadingChanged struct {
	SessionID string
	IsLoading bool
	Message   string
}

type CanProceedChanged struct {
	SessionID  string
	CanProceed bool
}

func (StageChanged) isEvent()      {}
func (LoadingChanged) isEvent()    {}
func (CanProceedChanged) isEvent() {}

// Listener receives workflow events. A single listener is supported; events
// are delivered synchronously in emission order.
type Listener func(Event)

// CrawlResolution is the outcome of polling a crawl task. Exactly one of
// Pending, Document, or Rejection is meaningful.
type CrawlResolution struct {
	TaskID    string                   `json:"taskId"`
	Pending   bool                     `json:"pending"`
	Document  *models.AcquiredDocument `json:"document,omitempty"`
	Rejection *validator.Rejection     `json:"rejection,omitempty"`
}

// ProcessingProgress is the processing stage's poll payload.
type ProcessingProgress struct {
	Jobs              []models.ProcessingJob `json:"jobs"`
	AggregateProgress float64                `json:"aggregateProgress"`
	OverallComplete   bool                   `json:"overallComplete"`
}

// StateSnapshot is the read-only view of one session's workflow.
type StateSnapshot struct {
	Session             *models.Session           `json:"session"`
	ActiveStage         models.Stage              `json:"activeStage"`
	ActiveStageName     string                    `json:"activeStageName"`
	CanProceed          bool                      `json:"canProceed"`
	IsLoading           bool                      `json:"isLoading"`
	LoadingMessage      string                    `json:"loadingMessage,omitempty"`
	Documents           []models.AcquiredDocument `json:"documents"`
	PendingAcquisitions int                       `json:"pendingAcquisitions"`
}

// WorkflowController drives a session through the five wizard stages. It is
// the only component allowed to change the active stage; every other piece
// hands its result back here.
type WorkflowController interface {
	// Session lifecycle.
	CreateSession(ttlMinutes int, language string) (*models.Session, error)
	CloseSession(ctx context.Context, id string) error
	RestartSession(ctx context.Context, id string) error
	State(id string) (*StateSnapshot, error)

	// Navigation.
	Advance(ctx context.Context, id string) (models.Stage, error)
	Retreat(id string) (models.Stage, error)
	StageResult(id string, stage models.Stage) (any, error)

	// Configuring.
	Parameters(id string) (models.Parameters, error)
	SetParameter(id, key string, value any) error

	// Acquiring.
	AcquireFile(ctx context.Context, id, filename string, content []byte) (*models.AcquiredDocument, error)
	SubmitCrawl(ctx context.Context, id, url string) (string, error)
	ResolveCrawl(ctx context.Context, id, taskID string) (*CrawlResolution, error)

	// Reviewing.
	RunReview(ctx context.Context, id string) (*models.ReviewOutcome, error)
	RetryReview(ctx context.Context, id string) (*models.ReviewOutcome, error)
	ReviewOutcome(id string) (*models.ReviewOutcome, error)

	// Processing.
	StartProcessing(ctx context.Context, id string, jobIDs ...string) ([]models.ProcessingJob, error)
	Progress(id string) (*ProcessingProgress, error)

	// Chatting.
	Ask(ctx context.Context, id, question string) (*chat.Answer, error)

	// SetListener registers the single event listener.
	SetListener(l Listener)
}
