package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/poiesic/triage/ai/mock"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, n, dims int) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	entries := make([]*core.KnowledgeEntry, n)
	for i := range n {
		text := fmt.Sprintf("knowledge entry %d", i)
		entries[i] = &core.KnowledgeEntry{
			ID:     fmt.Sprintf("e%02d", i),
			Text:   text,
			Vector: mock.DeterministicVector(text, dims),
		}
	}
	if n > 0 {
		require.NoError(t, repos.Knowledge.PutEntries(context.Background(), entries...))
	}
	return repos
}

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	}
}

func TestNewReembedder_Requirements(t *testing.T) {
	repos := setupTestDB(t, 0, 8)

	_, err := NewReembedder(nil, nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewReembedder(repos.Knowledge, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(repos.Knowledge, nil, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.iterator.batchSize)
}

func TestReembedder_Run(t *testing.T) {
	ctx := context.Background()
	repos := setupTestDB(t, 10, 8)

	index, err := knowledge.NewIndex(knowledge.WithRepository(repos.Knowledge))
	require.NoError(t, err)
	require.NoError(t, index.Load(ctx))
	require.Equal(t, 8, index.Dimensions())

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 16

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Knowledge, index, embedder, testConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Entries)
	assert.Equal(t, 16, result.Dimensions)
	require.NotNil(t, result.Index)
	assert.Equal(t, 10, result.Index.Entries)
	assert.Equal(t, 16, index.Dimensions(), "index picks up the new model's dimensions")
	assert.Equal(t, 4, embedder.CallCount(), "ten entries in batches of three")

	err = repos.Knowledge.ForEachEntry(ctx, func(entry *core.KnowledgeEntry) error {
		require.Len(t, entry.Vector, 16)
		var magnitude float64
		for _, v := range entry.Vector {
			magnitude += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(magnitude), 0.001, "vector should be normalized")
		assert.False(t, entry.UpdatedAt.IsZero())
		return nil
	})
	require.NoError(t, err)

	// The rebuilt index searches with the new vectors.
	hits, err := index.Search(mock.DeterministicVector("knowledge entry 4", 16), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e04", hits[0].EntryID)

	assert.Contains(t, buf.String(), "10/10", "should show completion")
}

func TestReembedder_EmptyRepository(t *testing.T) {
	repos := setupTestDB(t, 0, 8)
	var buf bytes.Buffer

	r, err := NewReembedder(repos.Knowledge, nil, mock.NewMockEmbedder(), DefaultConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Entries)
	assert.Contains(t, buf.String(), "0 entries")
}

func TestReembedder_EmbeddingFailure(t *testing.T) {
	repos := setupTestDB(t, 5, 8)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}

	r, err := NewReembedder(repos.Knowledge, nil, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientProvider)
	assert.Equal(t, 2, embedder.CallCount(), "one retry")
}

func TestReembedder_CountMismatch(t *testing.T) {
	repos := setupTestDB(t, 3, 8)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{mock.DeterministicVector("only one", 8)}, nil
	}

	r, err := NewReembedder(repos.Knowledge, nil, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "embedding count mismatch")
}

func TestReembedder_InconsistentDimensions(t *testing.T) {
	repos := setupTestDB(t, 6, 8)
	embedder := mock.NewMockEmbedder()
	calls := 0
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		dims := 8
		if calls > 1 {
			dims = 12
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, dims)
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Knowledge, nil, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrInconsistentDimensions)
}

func TestEntryIterator_Batches(t *testing.T) {
	repos := setupTestDB(t, 10, 8)
	it := NewEntryIterator(repos.Knowledge, 3)

	var sizes []int
	var ids []string
	err := it.ForEach(context.Background(), func(batch []*core.KnowledgeEntry) error {
		sizes = append(sizes, len(batch))
		for _, e := range batch {
			ids = append(ids, e.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)
	assert.Equal(t, "e00", ids[0])
	assert.Equal(t, "e09", ids[9])
}

func TestEntryIterator_StopsOnError(t *testing.T) {
	repos := setupTestDB(t, 10, 8)
	it := NewEntryIterator(repos.Knowledge, 3)
	boom := errors.New("boom")

	batches := 0
	err := it.ForEach(context.Background(), func([]*core.KnowledgeEntry) error {
		batches++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, batches)
}

func TestEntryIterator_CancelledContext(t *testing.T) {
	repos := setupTestDB(t, 3, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewEntryIterator(repos.Knowledge, 0).ForEach(ctx, func([]*core.KnowledgeEntry) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
