package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/triage/ai/mock"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = 32

type countingSearcher struct {
	inner Searcher
	calls int
}

func (c *countingSearcher) Search(query []float32, k int) ([]core.ScoredEntry, error) {
	c.calls++
	return c.inner.Search(query, k)
}

type recordingMonitor struct {
	started  bool
	skipped  string
	searched []core.ScoredEntry
	finished bool
}

func (m *recordingMonitor) Start(core.MessageID, core.Category) { m.started = true }
func (m *recordingMonitor) Skipped(reason string)               { m.skipped = reason }
func (m *recordingMonitor) AfterSearch(hits []core.ScoredEntry) { m.searched = hits }
func (m *recordingMonitor) Finish(core.ContextResult)           { m.finished = true }

func seedIndex(t *testing.T, texts map[string]string) *knowledge.Index {
	t.Helper()
	idx, err := knowledge.NewIndex(knowledge.WithDimensions(dims))
	require.NoError(t, err)
	for id, text := range texts {
		require.NoError(t, idx.Upsert(context.Background(), &core.KnowledgeEntry{
			ID:     id,
			Text:   text,
			Vector: mock.DeterministicVector(text, dims),
		}))
	}
	return idx
}

func newEmbedder() *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.Dimensions = dims
	return e
}

func msg(subject, body string) *core.Message {
	return &core.Message{ID: "m1", Sender: "a@b.c", Subject: subject, Body: body}
}

func TestNew(t *testing.T) {
	idx := seedIndex(t, nil)

	t.Run("valid configuration", func(t *testing.T) {
		r, err := New(idx, newEmbedder(), WithLogger(slog.Default()), WithK(3))
		require.NoError(t, err)
		assert.NotNil(t, r)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := New(nil, newEmbedder())
		assert.Equal(t, ErrIndexRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := New(idx, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestRetrieve_ShortCircuitsCategories(t *testing.T) {
	idx := seedIndex(t, map[string]string{"a": "pricing details"})
	searcher := &countingSearcher{inner: idx}
	embedder := newEmbedder()
	r, err := New(searcher, embedder, WithContextCategories(core.CategorySupport))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	result, err := r.RetrieveWithMonitor(context.Background(), msg("Sale!", "50% off"), core.CategoryNewsletter, monitor)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, 0, embedder.CallCount())
	assert.Equal(t, 0, searcher.calls)
	assert.True(t, monitor.started)
	assert.NotEmpty(t, monitor.skipped)
	assert.True(t, monitor.finished)
}

func TestRetrieve_FindsExactMatchFirst(t *testing.T) {
	texts := map[string]string{
		"refunds":  "Refund policy\n\nRefunds are issued within 14 days.",
		"shipping": "Shipping\n\nWe ship worldwide within 5 days.",
		"hours":    "Hours\n\nOpen 9 to 5.",
	}
	idx := seedIndex(t, texts)
	searcher := &countingSearcher{inner: idx}
	r, err := New(searcher, newEmbedder(), WithContextCategories(core.CategorySupport), WithK(2))
	require.NoError(t, err)

	// The message text embeds identically to the "refunds" entry.
	result, err := r.Retrieve(context.Background(), msg("Refund policy", "Refunds are issued within 14 days."), core.CategorySupport)
	require.NoError(t, err)
	require.NotEmpty(t, result.Entries)
	assert.LessOrEqual(t, len(result.Entries), 2)
	assert.Equal(t, "refunds", result.Entries[0].EntryID)
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, 3, idx.Len(), "retrieval never mutates the index")
}

func TestRetrieve_MinScoreFilters(t *testing.T) {
	idx := seedIndex(t, map[string]string{"a": "alpha", "b": "bravo", "c": "charlie"})
	r, err := New(idx, newEmbedder(), WithContextCategories(core.CategorySales), WithMinScore(1.5))
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), msg("anything", "at all"), core.CategorySales)
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	r, err := New(seedIndex(t, nil), newEmbedder(), WithContextCategories(core.CategoryUrgent))
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), msg("Server down", "help"), core.CategoryUrgent)
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestRetrieve_EmbeddingFailureIsTransient(t *testing.T) {
	embedder := newEmbedder()
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}
	r, err := New(seedIndex(t, nil), embedder, WithContextCategories(core.CategorySupport))
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), msg("Help", "please"), core.CategorySupport)
	assert.ErrorIs(t, err, core.ErrTransientProvider)
}

func TestRetrieve_VerbatimBoostReorders(t *testing.T) {
	r, err := New(stubSearcher{
		{EntryID: "a", Score: 0.50, Text: "general info"},
		{EntryID: "b", Score: 0.48, Text: "Invoice numbering rules"},
	}, newEmbedder(), WithContextCategories(core.CategoryInvoice))
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), msg("Invoice numbering", "How does it work?"), core.CategoryInvoice)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, []string{"b", "a"}, result.IDs())
}

func TestRetrieve_BoostedScoresStayBoundedAndTieBreakByID(t *testing.T) {
	r, err := New(stubSearcher{
		{EntryID: "b", Score: 1.0, Text: "general info"},
		{EntryID: "a", Score: 0.99, Text: "Invoice numbering rules"},
		{EntryID: "c", Score: 0.2, Text: "unrelated"},
	}, newEmbedder(), WithContextCategories(core.CategoryInvoice))
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), msg("Invoice numbering", "How does it work?"), core.CategoryInvoice)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.IDs())
	for _, e := range result.Entries {
		assert.LessOrEqual(t, e.Score, float32(1))
	}
	assert.Equal(t, float32(1), result.Entries[0].Score)
}

type stubSearcher []core.ScoredEntry

func (s stubSearcher) Search([]float32, int) ([]core.ScoredEntry, error) {
	return append([]core.ScoredEntry(nil), s...), nil
}

func TestContainsAllWords(t *testing.T) {
	assert.True(t, containsAllWords("The refund policy is simple.", "Re: Refund policy"))
	assert.False(t, containsAllWords("The refund policy is simple.", "shipping policy"))
	assert.False(t, containsAllWords("anything", "the a an"))
}
