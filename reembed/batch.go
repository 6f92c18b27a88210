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
	"fmt"
	"time"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/retry"
	"github.com/poiesic/triage/storage"
)

// BatchProcessor embeds one batch of entries and stores the new vectors.
type BatchProcessor struct {
	repo     storage.KnowledgeRepository
	embedder ai.Embedder
	retry    retry.Policy

	// dims is the vector length seen in the first batch of a run.
	dims int
}

// NewBatchProcessor creates a processor that tries each embedding request up
// to maxRetries+1 times.
func NewBatchProcessor(repo storage.KnowledgeRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:     repo,
		embedder: embedder,
		retry: retry.Policy{
			MaxAttempts: max(maxRetries, 0) + 1,
			BaseDelay:   retryBaseDelay,
		},
	}
}

// Process re-embeds entries and writes them back.
func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}

	var embeddings [][]float32
	attempts, err := bp.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil && !core.IsRetryable(err) {
			// Embedding services report outages as plain errors.
			err = fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", attempts, err)
	}

	if len(embeddings) != len(entries) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(entries), len(embeddings))
	}

	now := time.Now().UTC()
	for i, entry := range entries {
		vector := knowledge.Normalize(embeddings[i])
		if bp.dims == 0 {
			bp.dims = len(vector)
		}
		if err := core.ValidateKnowledgeEntry(&core.KnowledgeEntry{ID: entry.ID, Text: entry.Text, Vector: vector}, bp.dims); err != nil {
			return fmt.Errorf("%w: entry %q: %w", ErrInconsistentDimensions, entry.ID, err)
		}
		entry.Vector = vector
		entry.UpdatedAt = now
	}

	if err := bp.repo.PutEntries(ctx, entries...); err != nil {
		return fmt.Errorf("failed to update entries: %w", err)
	}
	return nil
}

// Dimensions returns the vector length produced so far, 0 before the first batch.
func (bp *BatchProcessor) Dimensions() int {
	return bp.dims
}
