package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/moderation"
)

// RunState is the tagged status of one review run.
type RunState int

const (
	RunIdle RunState = iota
	RunRunning
	RunCompleted
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// ErrRunInProgress is returned when a run is started while another is active.
var ErrRunInProgress = errors.New("a review run is already in progress")

// Hooks are the sequencer's progress events, delivered synchronously in
// checklist order.
type Hooks struct {
	OnItemStarted func(itemKey string)
	OnProgress    func(completed, total int)
	OnCompleted   func(outcome *models.ReviewOutcome)
}

// Sequencer runs the fixed review checklist against the acquired document
// set. Every item runs to completion even after a failure; the aggregate
// gates the transition out of the review stage. Only the harmful-content
// item consults the moderation service; the other items are structural
// placeholders that pass unconditionally until real scanners exist.
type Sequencer struct {
	client moderation.Client
	logger logger.Logger
	hooks  Hooks

	mu      sync.Mutex
	state   RunState
	outcome *models.ReviewOutcome
}

func NewSequencer(client moderation.Client, log logger.Logger) *Sequencer {
	return &Sequencer{
		client: client,
		logger: log,
	}
}

// SetHooks registers progress callbacks. Must be called before Run.
func (s *Sequencer) SetHooks(h Hooks) {
	s.hooks = h
}

// State returns the current run state.
func (s *Sequencer) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns the persisted outcome of the last completed run, or nil.
func (s *Sequencer) Outcome() *models.ReviewOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Reset clears the sequencer back to Idle, discarding any outcome.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != RunRunning {
		s.state = RunIdle
		s.outcome = nil
	}
}

// Run executes the checklist once. A completed run is idempotent: calling
// Run again returns the persisted outcome without re-invoking the
// moderation service. Use Retry for a fresh pass.
func (s *Sequencer) Run(ctx context.Context, docs []*models.AcquiredDocument, academicMode bool) (*models.ReviewOutcome, error) {
	s.mu.Lock()
	switch s.state {
	case RunRunning:
		s.mu.Unlock()
		return nil, ErrRunInProgress
	case RunCompleted:
		outcome := s.outcome
		s.mu.Unlock()
		return outcome, nil
	}
	s.state = RunRunning
	s.mu.Unlock()

	outcome := s.execute(ctx, docs, academicMode)

	s.mu.Lock()
	s.state = RunCompleted
	s.outcome = outcome
	s.mu.Unlock()

	if s.hooks.OnCompleted != nil {
		s.hooks.OnCompleted(outcome)
	}
	return outcome, nil
}

// Retry clears state and re-runs the full sequence from scratch.
func (s *Sequencer) Retry(ctx context.Context, docs []*models.AcquiredDocument, academicMode bool) (*models.ReviewOutcome, error) {
	s.mu.Lock()
	if s.state == RunRunning {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.state = RunIdle
	s.outcome = nil
	s.mu.Unlock()

	return s.Run(ctx, docs, academicMode)
}

func (s *Sequencer) execute(ctx context.Context, docs []*models.AcquiredDocument, academicMode bool) *models.ReviewOutcome {
	outcome := &models.ReviewOutcome{
		CompletedItemKeys: make([]string, 0, len(models.ReviewChecklist)),
		FailedItems:       make([]models.FailedItem, 0),
	}

	total := len(models.ReviewChecklist)
	for i, key := range models.ReviewChecklist {
		if s.hooks.OnItemStarted != nil {
			s.hooks.OnItemStarted(key)
		}
		s.logger.Info("Review item started", logger.String("item", key))

		if key == models.CheckHarmfulContent {
			failed, warnings := s.checkHarmfulContent(ctx, docs, academicMode)
			outcome.Warnings = append(outcome.Warnings, warnings...)
			if failed != nil {
				outcome.FailedItems = append(outcome.FailedItems, *failed)
			} else {
				outcome.CompletedItemKeys = append(outcome.CompletedItemKeys, key)
			}
		} else {
			outcome.CompletedItemKeys = append(outcome.CompletedItemKeys, key)
		}

		if s.hooks.OnProgress != nil {
			s.hooks.OnProgress(i+1, total)
		}
	}

	outcome.CanProceed = len(outcome.FailedItems) == 0
	outcome.CompletedAt = time.Now()

	s.logger.Info("Review run completed",
		logger.Int("passed", len(outcome.CompletedItemKeys)),
		logger.Int("failed", len(outcome.FailedItems)),
		logger.Bool("canProceed", outcome.CanProceed),
	)
	return outcome
}

// checkHarmfulContent builds one moderation pair per document and collects
// explicit blocks. A moderation transport error passes the pair (fail-open):
// transient infrastructure trouble must not block legitimate content. The
// warning list tells the caller a pass was degraded.
func (s *Sequencer) checkHarmfulContent(ctx context.Context, docs []*models.AcquiredDocument, academicMode bool) (*models.FailedItem, []string) {
	if len(docs) == 0 {
		return nil, nil
	}

	var warnings []string
	var blockedRefs []string
	var categories []string
	seen := make(map[string]struct{})

	for _, doc := range docs {
		content := doc.PreviewText
		if content == "" {
			content = doc.Filename
		}

		result, err := s.client.Check(ctx, &moderation.Request{
			Content:         content,
			SourceReference: doc.Filename,
			AcademicMode:    academicMode,
		})
		if err != nil {
			s.logger.Warn("Moderation service unavailable, passing item",
				logger.String("source", doc.Filename),
				logger.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("content safety could not verify %q: %v", doc.Filename, err))
			continue
		}

		if result.IsApproved {
			continue
		}

		blockedRefs = append(blockedRefs, doc.Filename)
		for _, cat := range result.BlockedCategories {
			if _, dup := seen[cat]; dup {
				continue
			}
			seen[cat] = struct{}{}
			categories = append(categories, cat)
		}
	}

	if len(blockedRefs) == 0 {
		return nil, warnings
	}

	return &models.FailedItem{
		ItemKey:           models.CheckHarmfulContent,
		Reason:            fmt.Sprintf("content blocked for: %s", strings.Join(blockedRefs, ", ")),
		BlockedCategories: categories,
		SourceReferences:  blockedRefs,
	}, warnings
}
