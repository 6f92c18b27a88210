package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/triage/ai/mock"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failOnce runs a batch in which m1 exhausts its retries.
func failOnce(t *testing.T) (*harness, *Orchestrator) {
	t.Helper()
	h := newHarness(t, message("m1", "Lunch", "Lunch on Friday?"))
	h.policy.MaxRetries = 0
	h.provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("personal", 2)
	h.provider.MockComposer().ComposeFunc = mock.ComposeError(fmt.Errorf("%w: upstream timeout", core.ErrTransientProvider))
	o := h.orchestrator(t)

	_, err := o.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.StageFailed, h.record(t, "m1").Stage)
	return h, o
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	h, o := failOnce(t)

	record, err := o.Reset(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StageClassified, record.Stage)
	assert.Empty(t, record.LastError)
	assert.Zero(t, record.Attempts)

	// A failed record stays failed until reset; the next batch resumes it.
	h.provider.MockComposer().ComposeFunc = mock.Reply("Friday it is.", 0.95)
	summary, err := o.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Resumed)
	assert.Equal(t, core.StageArchived, h.record(t, "m1").Stage)
	assert.Equal(t, 1, h.mail.SendCalls())
}

func TestReset_Errors(t *testing.T) {
	ctx := context.Background()
	h, o := failOnce(t)

	_, err := o.Reset(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = o.Reset(ctx, "m1")
	require.NoError(t, err)
	_, err = o.Reset(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "only failed records can be reset")
	assert.Equal(t, core.StageClassified, h.record(t, "m1").Stage)
}

func TestFailedRecordsAreNotRetriedAutomatically(t *testing.T) {
	h, o := failOnce(t)
	h.provider.MockComposer().ComposeFunc = mock.Reply("Friday it is.", 0.95)

	summary, err := o.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Resumed)
	assert.Equal(t, core.StageFailed, h.record(t, "m1").Stage)
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	h, o := failOnce(t)

	record, err := o.Archive(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.StageArchived, record.Stage)
	assert.Equal(t, core.StageArchived, h.record(t, "m1").Stage)

	_, err = o.Archive(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = o.Archive(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLearn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		message("m1", "Refunds", "How long do refunds take?"),
		message("m2", "Hours", "When are you open?"),
	)
	h.provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("personal", 2)
	h.provider.MockComposer().ComposeFunc = mock.Reply("Refunds are issued within 14 days of receipt.", 0.95)
	o := h.orchestrator(t)

	start := time.Now().UTC().Add(-time.Second)
	_, err := o.RunBatch(ctx)
	require.NoError(t, err)

	learned, err := o.Learn(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, learned, "nothing dispatched after the cutoff")

	learned, err = o.Learn(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 2, learned)
	stats := h.index.Stats()
	assert.Equal(t, 2, stats.Categories[knowledge.ExchangeCategory])

	// Learning again replaces the same entries.
	_, err = o.Learn(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 2, h.index.Len())
}

func TestLearn_SkipsUnsentReplies(t *testing.T) {
	h := newHarness(t, message("m1", "Refunds", "How long do refunds take?"))
	h.provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("personal", 2)
	h.provider.MockComposer().ComposeFunc = mock.Reply("Probably two weeks, let me check.", 0.6)
	o := h.orchestrator(t)

	_, err := o.RunBatch(context.Background())
	require.NoError(t, err)

	learned, err := o.Learn(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, learned, "drafts are not learned from")
	assert.Zero(t, h.index.Len())
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		message("m1", "Lunch", "Lunch on Friday?"),
		message("m2", "Dinner", "Dinner on Saturday?"),
	)
	h.provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("personal", 2)
	h.provider.MockComposer().ComposeFunc = mock.Reply("Sounds great.", 0.95)
	o := h.orchestrator(t)

	_, err := o.RunBatch(ctx)
	require.NoError(t, err)

	deleted, err := o.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	later := h.orchestrator(t, WithClock(func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }))
	deleted, err = later.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := h.repos.Records.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCleanup_KeepsFailedRecords(t *testing.T) {
	h, _ := failOnce(t)
	later := h.orchestrator(t, WithClock(func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }))

	deleted, err := later.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, core.StageFailed, h.record(t, "m1").Stage)
}
