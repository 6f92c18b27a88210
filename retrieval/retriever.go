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


// Package retrieval finds knowledge relevant to a message.
//
// The retriever only reads from the knowledge index. Categories that do not
// need context short-circuit to an empty result without touching the embedder.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
)

const (
	defaultK = 5

	// verbatimBoost is added to hits whose text contains every subject word.
	verbatimBoost = 0.05
)

// Searcher is the read side of the knowledge index.
type Searcher interface {
	Search(query []float32, k int) ([]core.ScoredEntry, error)
}

// Retriever embeds a message and searches the knowledge index for it.
type Retriever struct {
	index    Searcher
	embedder ai.Embedder
	k        int
	minScore float32
	needs    core.CategorySet
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithK sets how many entries to retrieve. Default is 5.
func WithK(k int) Option {
	return func(r *Retriever) error {
		if k > 0 {
			r.k = k
		}
		return nil
	}
}

// WithMinScore drops hits scoring below min.
func WithMinScore(min float32) Option {
	return func(r *Retriever) error {
		r.minScore = min
		return nil
	}
}

// WithContextCategories sets the categories that need context.
// Messages in any other category get an empty result.
func WithContextCategories(categories ...core.Category) Option {
	return func(r *Retriever) error {
		r.needs = core.NewCategorySet(categories...)
		return nil
	}
}

// New creates a retriever over index.
func New(index Searcher, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		index:    index,
		embedder: embedder,
		k:        defaultK,
		needs:    core.NewCategorySet(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// NeedsContext reports whether category triggers a search.
func (r *Retriever) NeedsContext(category core.Category) bool {
	return r.needs.Contains(category)
}

// Retrieve returns the knowledge relevant to msg.
func (r *Retriever) Retrieve(ctx context.Context, msg *core.Message, category core.Category) (core.ContextResult, error) {
	return r.RetrieveWithMonitor(ctx, msg, category, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each step.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, msg *core.Message, category core.Category, monitor Monitor) (core.ContextResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if msg == nil {
		return core.ContextResult{}, fmt.Errorf("%w: message is nil", core.ErrValidation)
	}

	monitor.Start(msg.ID, category)
	if !r.NeedsContext(category) {
		monitor.Skipped("category does not need context")
		monitor.Finish(core.ContextResult{})
		return core.ContextResult{}, nil
	}

	vector, err := r.embedder.EmbedText(ctx, msg.Text())
	if err != nil {
		r.logger.Error("error generating embedding for message", "messageID", msg.ID, "err", err)
		if !errors.Is(err, core.ErrTransientProvider) {
			err = fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
		}
		return core.ContextResult{}, err
	}

	hits, err := r.index.Search(vector, r.k)
	if err != nil {
		r.logger.Error("error searching knowledge index", "messageID", msg.ID, "err", err)
		return core.ContextResult{}, err
	}
	monitor.AfterSearch(hits)

	entries := make([]core.ScoredEntry, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.minScore {
			continue
		}
		if containsAllWords(hit.Text, msg.Subject) {
			hit.Score = min(hit.Score+verbatimBoost, 1)
		}
		entries = append(entries, hit)
	}
	// Same order as the index: score descending, then entry id ascending.
	slices.SortFunc(entries, func(a, b core.ScoredEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.EntryID, b.EntryID)
	})

	result := core.ContextResult{Entries: entries}
	monitor.Finish(result)
	r.logger.Debug("retrieved context", "messageID", msg.ID, "category", category, "hits", len(entries))
	return result, nil
}
