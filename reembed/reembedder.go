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
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/storage"
)

// Config tunes a re-embedding run.
type Config struct {
	// BatchSize is the number of entries embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the number of retries for a failed embedding request
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result describes a finished run.
type Result struct {
	Entries    int
	Dimensions int
	Elapsed    time.Duration

	// Index holds the rebuilt index statistics when an index was attached.
	Index *knowledge.Stats
}

// Reembedder regenerates every stored entry's vector.
type Reembedder struct {
	repo      storage.KnowledgeRepository
	index     *knowledge.Index
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *EntryIterator
	logger    *slog.Logger
}

// NewReembedder creates a re-embedder. index may be nil; when set, it is
// rebuilt from the repository once every entry has been re-embedded.
// Progress lines are written to progress, which may be nil.
func NewReembedder(repo storage.KnowledgeRepository, index *knowledge.Index, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		index:     index,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewEntryIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds every entry. A failed batch stops the run; entries from
// earlier batches keep their new vectors and the index is not rebuilt.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	total, err := r.repo.CountEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No knowledge entries found (0 entries)\n")
		return &Result{}, nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d entries (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(entries []*core.KnowledgeEntry) error {
		if err := r.processor.Process(ctx, entries); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Add(len(entries))
		return nil
	})
	tracker.Finish()
	if err != nil {
		r.logger.Error("re-embedding stopped", "processed", tracker.Current(), "total", total, "err", err)
		return nil, err
	}

	result := &Result{
		Entries:    tracker.Current(),
		Dimensions: r.processor.Dimensions(),
		Elapsed:    tracker.Elapsed(),
	}

	if r.index != nil {
		stats, err := r.index.Rebuild(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild index: %w", err)
		}
		result.Index = &stats
	}

	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d entries in %v (%.1f entries/sec)\n",
		result.Entries, result.Elapsed.Round(time.Millisecond), float64(result.Entries)/max(result.Elapsed.Seconds(), 1e-9))
	return result, nil
}
