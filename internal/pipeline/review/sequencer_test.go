package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/moderation"
)

// fakeModeration scripts per-source verdicts and counts calls.
type fakeModeration struct {
	calls    int
	verdicts map[string]*moderation.Result
	err      error
}

func (f *fakeModeration) Check(_ context.Context, req *moderation.Request) (*moderation.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.verdicts[req.SourceReference]; ok {
		return v, nil
	}
	return &moderation.Result{Status: moderation.StatusApproved, IsApproved: true}, nil
}

func docs(names ...string) []*models.AcquiredDocument {
	out := make([]*models.AcquiredDocument, len(names))
	for i, name := range names {
		out[i] = &models.AcquiredDocument{ID: name, Filename: name, PreviewText: "text of " + name}
	}
	return out
}

func TestSequencer_AllItemsPassWhenApproved(t *testing.T) {
	mod := &fakeModeration{}
	seq := NewSequencer(mod, logger.NewTestLogger())

	outcome, err := seq.Run(context.Background(), docs("a.pdf", "b.pdf"), false)
	require.NoError(t, err)

	assert.Equal(t, models.ReviewChecklist, outcome.CompletedItemKeys)
	assert.Empty(t, outcome.FailedItems)
	assert.True(t, outcome.CanProceed)
	assert.Equal(t, 2, mod.calls)
	assert.Equal(t, RunCompleted, seq.State())
}

func TestSequencer_BlockedDocumentFailsHarmfulContent(t *testing.T) {
	mod := &fakeModeration{verdicts: map[string]*moderation.Result{
		"bad.pdf": {Status: moderation.StatusBlocked, IsApproved: false, BlockedCategories: []string{"violence", "hate"}},
	}}
	seq := NewSequencer(mod, logger.NewTestLogger())

	outcome, err := seq.Run(context.Background(), docs("good.pdf", "bad.pdf"), false)
	require.NoError(t, err)

	require.Len(t, outcome.FailedItems, 1)
	failed := outcome.FailedItems[0]
	assert.Equal(t, models.CheckHarmfulContent, failed.ItemKey)
	assert.Equal(t, []string{"bad.pdf"}, failed.SourceReferences)
	assert.ElementsMatch(t, []string{"violence", "hate"}, failed.BlockedCategories)
	assert.False(t, outcome.CanProceed)

	// Checklist completeness: all items run, no skips.
	assert.Equal(t, len(models.ReviewChecklist), len(outcome.CompletedItemKeys)+len(outcome.FailedItems))
	assert.NotContains(t, outcome.CompletedItemKeys, models.CheckHarmfulContent)
}

func TestSequencer_FailOpenOnServiceError(t *testing.T) {
	mod := &fakeModeration{err: errors.New("connection refused")}
	seq := NewSequencer(mod, logger.NewTestLogger())

	outcome, err := seq.Run(context.Background(), docs("a.pdf", "b.pdf"), false)
	require.NoError(t, err)

	assert.Empty(t, outcome.FailedItems)
	assert.True(t, outcome.CanProceed)
	assert.Contains(t, outcome.CompletedItemKeys, models.CheckHarmfulContent)
	assert.Len(t, outcome.Warnings, 2)
}

func TestSequencer_EmptyDocumentSetPassesTrivially(t *testing.T) {
	mod := &fakeModeration{}
	seq := NewSequencer(mod, logger.NewTestLogger())

	outcome, err := seq.Run(context.Background(), nil, false)
	require.NoError(t, err)

	assert.True(t, outcome.CanProceed)
	assert.Zero(t, mod.calls)
}

func TestSequencer_ItemsRunInChecklistOrder(t *testing.T) {
	seq := NewSequencer(&fakeModeration{}, logger.NewTestLogger())

	var started []string
	var progress []int
	seq.SetHooks(Hooks{
		OnItemStarted: func(key string) { started = append(started, key) },
		OnProgress:    func(done, total int) { progress = append(progress, done) },
	})

	_, err := seq.Run(context.Background(), docs("a.pdf"), false)
	require.NoError(t, err)

	assert.Equal(t, models.ReviewChecklist, started)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
}

func TestSequencer_CompletedRunIsIdempotent(t *testing.T) {
	mod := &fakeModeration{}
	seq := NewSequencer(mod, logger.NewTestLogger())

	first, err := seq.Run(context.Background(), docs("a.pdf"), false)
	require.NoError(t, err)
	callsAfterFirst := mod.calls

	second, err := seq.Run(context.Background(), docs("a.pdf"), false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, callsAfterFirst, mod.calls)
}

func TestSequencer_RetryRunsFromScratch(t *testing.T) {
	mod := &fakeModeration{verdicts: map[string]*moderation.Result{
		"bad.pdf": {Status: moderation.StatusBlocked, IsApproved: false, BlockedCategories: []string{"violence"}},
	}}
	seq := NewSequencer(mod, logger.NewTestLogger())

	first, err := seq.Run(context.Background(), docs("bad.pdf"), false)
	require.NoError(t, err)
	assert.False(t, first.CanProceed)

	// The second pass sees an approved verdict, e.g. academic mode.
	mod.verdicts = nil
	second, err := seq.Retry(context.Background(), docs("bad.pdf"), true)
	require.NoError(t, err)

	assert.True(t, second.CanProceed)
	assert.Equal(t, 2, mod.calls)
	assert.Same(t, second, seq.Outcome())
}

func TestSequencer_FallsBackToFilenameWithoutPreview(t *testing.T) {
	var gotContent string
	mod := &fakeModeration{}
	seq := NewSequencer(checkFunc(func(_ context.Context, req *moderation.Request) (*moderation.Result, error) {
		gotContent = req.Content
		return mod.Check(context.Background(), req)
	}), logger.NewTestLogger())

	d := &models.AcquiredDocument{ID: "1", Filename: "scan.pdf"}
	_, err := seq.Run(context.Background(), []*models.AcquiredDocument{d}, false)
	require.NoError(t, err)

	assert.Equal(t, "scan.pdf", gotContent)
}

type checkFunc func(ctx context.Context, req *moderation.Request) (*moderation.Result, error)

func (f checkFunc) Check(ctx context.Context, req *moderation.Request) (*moderation.Result, error) {
	return f(ctx, req)
}
