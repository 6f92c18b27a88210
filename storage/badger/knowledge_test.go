package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeRepository_PutGetDelete(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	entry := &core.KnowledgeEntry{
		ID:       "refunds-0",
		Text:     "Refunds are issued within 5 business days.",
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: core.KnowledgeMetadata{Title: "Refunds", Category: "policy"},
	}
	require.NoError(t, repos.Knowledge.PutEntries(ctx, entry))

	got, err := repos.Knowledge.GetEntry(ctx, "refunds-0")
	require.NoError(t, err)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, entry.Vector, got.Vector)
	assert.Equal(t, "Refunds", got.Metadata.Title)
	created := got.CreatedAt

	// Replacing keeps the original creation time.
	replacement := &core.KnowledgeEntry{ID: "refunds-0", Text: "Refunds take 7 days.", Vector: []float32{0.3, 0.2, 0.1}}
	require.NoError(t, repos.Knowledge.PutEntries(ctx, replacement))
	got, err = repos.Knowledge.GetEntry(ctx, "refunds-0")
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 7 days.", got.Text)
	assert.True(t, got.CreatedAt.Equal(created))

	require.NoError(t, repos.Knowledge.DeleteEntries(ctx, "refunds-0", "absent"))
	_, err = repos.Knowledge.GetEntry(ctx, "refunds-0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestKnowledgeRepository_ForEachInIDOrder(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	for _, id := range []string{"b", "c", "a"} {
		require.NoError(t, repos.Knowledge.PutEntries(ctx, &core.KnowledgeEntry{ID: id, Text: id, Vector: []float32{1}}))
	}

	var ids []string
	err = repos.Knowledge.ForEachEntry(ctx, func(e *core.KnowledgeEntry) error {
		ids = append(ids, e.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stop := errors.New("stop")
	seen := 0
	err = repos.Knowledge.ForEachEntry(ctx, func(e *core.KnowledgeEntry) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestKnowledgeRepository_RecordsAreSeparate(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	require.NoError(t, repos.Records.ClaimRecord(ctx, newTestRecord("m1", nowUTC())))

	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
