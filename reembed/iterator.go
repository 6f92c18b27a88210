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


package reembed

import (
	"context"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/storage"
)

const (
	// DefaultBatchSize is the default number of entries embedded per request
	DefaultBatchSize = 100
)

// EntryIterator walks every stored knowledge entry in fixed-size batches.
type EntryIterator struct {
	repo      storage.KnowledgeRepository
	batchSize int
}

// NewEntryIterator creates an iterator. A non-positive batchSize means DefaultBatchSize.
func NewEntryIterator(repo storage.KnowledgeRepository, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &EntryIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches ordered by entry ID.
// Entries are read up front so fn may write back to the repository.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]*core.KnowledgeEntry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var entries []*core.KnowledgeEntry
	err := it.repo.ForEachEntry(ctx, func(entry *core.KnowledgeEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return err
	}

	for i := 0; i < len(entries); i += it.batchSize {
		end := min(i+it.batchSize, len(entries))
		if err := fn(entries[i:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
