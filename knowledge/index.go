// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package knowledge

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/storage"
)

// Index is an in-process cosine similarity index over knowledge entries.
//
// Searches run concurrently. Upsert, Remove, Load, and Rebuild are exclusive
// with each other and with searches; a mutation is visible to every search
// that starts after it returns.
type Index struct {
	mu sync.RWMutex

	// configuredDims is the dimension requested at construction; 0 means adopt.
	configuredDims int
	dims           int
	entries        map[string]*indexedEntry

	repo   storage.KnowledgeRepository
	logger *slog.Logger
	now    func() time.Time
}

type indexedEntry struct {
	entry *core.KnowledgeEntry
	unit  []float32
}

// Option configures an Index.
type Option func(*Index) error

// WithDimensions fixes the vector dimension. 0 adopts the dimension of the
// first entry inserted or loaded.
func WithDimensions(dims int) Option {
	return func(i *Index) error {
		if dims < 0 {
			return ErrInvalidDimensions
		}
		i.configuredDims = dims
		i.dims = dims
		return nil
	}
}

// WithRepository persists every mutation and enables Load and Rebuild.
func WithRepository(repo storage.KnowledgeRepository) Option {
	return func(i *Index) error {
		i.repo = repo
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// NewIndex creates an empty index. Call Load to populate it from the repository.
func NewIndex(opts ...Option) (*Index, error) {
	i := &Index{
		entries: make(map[string]*indexedEntry),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "knowledge-index")
	return i, nil
}

// Upsert inserts or replaces entries by ID. Every entry is validated before
// anything is written, so on error the index and repository are unchanged.
func (i *Index) Upsert(ctx context.Context, entries ...*core.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dims := i.dims
	if dims == 0 && entries[0] != nil {
		dims = len(entries[0].Vector)
	}
	now := i.now()
	prepared := make([]*indexedEntry, 0, len(entries))
	for _, entry := range entries {
		if err := core.ValidateKnowledgeEntry(entry, dims); err != nil {
			return fmt.Errorf("entry %q: %w", entryID(entry), err)
		}
		stored := cloneEntry(entry)
		stored.UpdatedAt = now
		if existing, ok := i.entries[stored.ID]; ok {
			stored.CreatedAt = existing.entry.CreatedAt
		} else if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		prepared = append(prepared, &indexedEntry{entry: stored, unit: Normalize(stored.Vector)})
	}

	if i.repo != nil {
		toStore := make([]*core.KnowledgeEntry, len(prepared))
		for n, p := range prepared {
			toStore[n] = p.entry
		}
		if err := i.repo.PutEntries(ctx, toStore...); err != nil {
			i.logger.Error("failed to persist knowledge entries", "count", len(toStore), "err", err)
			return err
		}
	}

	i.dims = dims
	for _, p := range prepared {
		i.entries[p.entry.ID] = p
	}
	i.logger.Debug("upserted knowledge entries", "count", len(prepared), "total", len(i.entries))
	return nil
}

// Remove deletes entries by ID. Unknown IDs are ignored.
// Returns the number of entries that were present.
func (i *Index) Remove(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.repo != nil {
		if err := i.repo.DeleteEntries(ctx, ids...); err != nil {
			i.logger.Error("failed to delete knowledge entries", "count", len(ids), "err", err)
			return 0, err
		}
	}

	removed := 0
	for _, id := range ids {
		if _, ok := i.entries[id]; ok {
			delete(i.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Search returns up to k entries nearest to query by cosine similarity,
// ordered by score descending and then by entry ID ascending.
// k <= 0, a zero query, or an empty index yield no results. A query whose
// length differs from the index dimension is a validation error.
func (i *Index) Search(query []float32, k int) ([]core.ScoredEntry, error) {
	if k <= 0 || len(query) == 0 || isZero(query) {
		return []core.ScoredEntry{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.entries) == 0 {
		return []core.ScoredEntry{}, nil
	}
	if err := core.ValidateVector(query, i.dims); err != nil {
		return nil, err
	}

	unit := Normalize(query)
	h := make(topK, 0, min(k, len(i.entries)))
	for id, e := range i.entries {
		candidate := hit{id: id, score: dot(unit, e.unit)}
		if len(h) < k {
			heap.Push(&h, candidate)
			continue
		}
		if candidate.beats(h[0]) {
			h[0] = candidate
			heap.Fix(&h, 0)
		}
	}

	hits := []hit(h)
	slices.SortFunc(hits, func(a, b hit) int {
		switch {
		case a.beats(b):
			return -1
		case b.beats(a):
			return 1
		default:
			return 0
		}
	})

	results := make([]core.ScoredEntry, len(hits))
	for n, hit := range hits {
		entry := i.entries[hit.id].entry
		results[n] = core.ScoredEntry{
			EntryID: hit.id,
			Score:   hit.score,
			Title:   entry.Metadata.Title,
			Text:    entry.Text,
		}
	}
	return results, nil
}

// Get returns a copy of the entry with the given ID.
func (i *Index) Get(id string) (*core.KnowledgeEntry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.entries[id]
	if !ok {
		return nil, false
	}
	return cloneEntry(e.entry), true
}

// Len returns the number of entries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Dimensions returns the vector dimension, 0 if not yet known.
func (i *Index) Dimensions() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dims
}

// Stats summarizes the index contents.
type Stats struct {
	Entries    int
	Dimensions int
	Categories map[string]int
	Sources    int
}

// Stats returns entry counts per metadata category and the number of distinct sources.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	stats := Stats{
		Entries:    len(i.entries),
		Dimensions: i.dims,
		Categories: make(map[string]int),
	}
	sources := make(map[string]struct{})
	for _, e := range i.entries {
		category := e.entry.Metadata.Category
		if category == "" {
			category = "uncategorized"
		}
		stats.Categories[category]++
		if e.entry.Metadata.Source != "" {
			sources[e.entry.Metadata.Source] = struct{}{}
		}
	}
	stats.Sources = len(sources)
	return stats
}

// Load replaces the in-memory contents with every persisted entry.
func (i *Index) Load(ctx context.Context) error {
	_, err := i.reload(ctx)
	return err
}

// Rebuild reloads the index from the repository. It is an explicit maintenance
// operation, used after bulk changes such as re-embedding. When the index was
// built without fixed dimensions, the dimension is re-derived from the data.
func (i *Index) Rebuild(ctx context.Context) (Stats, error) {
	start := time.Now()
	n, err := i.reload(ctx)
	if err != nil {
		return Stats{}, err
	}
	i.logger.Info("rebuilt knowledge index", "entries", n, "elapsed", time.Since(start))
	return i.Stats(), nil
}

func (i *Index) reload(ctx context.Context) (int, error) {
	if i.repo == nil {
		return 0, ErrRepositoryRequired
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dims := i.configuredDims
	loaded := make(map[string]*indexedEntry)
	err := i.repo.ForEachEntry(ctx, func(entry *core.KnowledgeEntry) error {
		if dims == 0 {
			dims = len(entry.Vector)
		}
		if err := core.ValidateKnowledgeEntry(entry, dims); err != nil {
			return fmt.Errorf("stored entry %q: %w", entry.ID, err)
		}
		loaded[entry.ID] = &indexedEntry{entry: entry, unit: Normalize(entry.Vector)}
		return nil
	})
	if err != nil {
		i.logger.Error("failed to load knowledge entries", "err", err)
		return 0, err
	}

	i.dims = dims
	i.entries = loaded
	return len(loaded), nil
}

func cloneEntry(e *core.KnowledgeEntry) *core.KnowledgeEntry {
	c := *e
	c.Vector = slices.Clone(e.Vector)
	c.Metadata.Tags = slices.Clone(e.Metadata.Tags)
	return &c
}

func entryID(e *core.KnowledgeEntry) string {
	if e == nil {
		return ""
	}
	return e.ID
}

type hit struct {
	id    string
	score float32
}

// beats orders hits by score descending, then ID ascending.
func (h hit) beats(other hit) bool {
	if h.score != other.score {
		return h.score > other.score
	}
	return h.id < other.id
}

// topK is a min-heap whose root is the weakest retained hit.
type topK []hit

func (t topK) Len() int           { return len(t) }
func (t topK) Less(a, b int) bool { return t[b].beats(t[a]) }
func (t topK) Swap(a, b int)      { t[a], t[b] = t[b], t[a] }
func (t *topK) Push(x any)        { *t = append(*t, x.(hit)) }
func (t *topK) Pop() any {
	old := *t
	n := len(old)
	x := old[n-1]
	*t = old[:n-1]
	return x
}
