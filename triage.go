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


// Package triage ties the storage, provider, knowledge index and pipeline
// packages together behind one handle.
//
// A typical program opens a Triage, builds an orchestrator around a mailbox
// and runs batches:
//
//	t, err := triage.Open("/var/lib/triage", triage.WithPolicy(pol))
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	o, err := t.NewOrchestrator(spoolMailbox)
//	if err != nil {
//	    return err
//	}
//	defer o.Release()
//	summary, err := o.RunBatch(ctx)
package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/ai/openai"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/mailbox"
	"github.com/poiesic/triage/pipeline"
	"github.com/poiesic/triage/policy"
	"github.com/poiesic/triage/reembed"
	"github.com/poiesic/triage/storage"
	"github.com/poiesic/triage/storage/badger"
)

type Triage struct {
	repos    *badger.Repositories
	provider ai.AIProvider
	index    *knowledge.Index
	policy   *policy.Policy
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	aiConfig   *ai.Config
	provider   ai.AIProvider
	policy     *policy.Policy
	logger     *slog.Logger
	inMemory   bool
	dimensions int
}

// WithAIConfig sets the provider configuration. Ignored when WithProvider is used.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an already constructed provider instead of building one.
// Triage takes ownership and closes it on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithPolicy sets the policy batches run under. Default is policy.Default().
func WithPolicy(pol *policy.Policy) Option {
	return func(o *options) {
		o.policy = pol
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInMemory keeps everything in memory. The path given to Open is ignored.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithDimensions fixes the knowledge index dimension instead of adopting it
// from the stored entries.
func WithDimensions(dims int) Option {
	return func(o *options) {
		o.dimensions = dims
	}
}

// Open opens (or creates) the store at filePath and loads the knowledge index from it.
func Open(filePath string, opts ...Option) (*Triage, error) {
	options := &options{
		aiConfig: ai.DefaultConfig(),
		policy:   policy.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.policy == nil {
		return nil, pipeline.ErrPolicyRequired
	}
	if err := options.policy.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	repos := badger.NewRepositories(backend)

	provider := options.provider
	if provider == nil {
		if err := options.aiConfig.Validate(); err != nil {
			repos.Close()
			return nil, err
		}
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	indexOpts := []knowledge.Option{
		knowledge.WithRepository(repos.Knowledge),
		knowledge.WithLogger(options.logger),
	}
	if options.dimensions > 0 {
		indexOpts = append(indexOpts, knowledge.WithDimensions(options.dimensions))
	}
	index, err := knowledge.NewIndex(indexOpts...)
	if err == nil {
		err = index.Load(context.Background())
	}
	if err != nil {
		provider.Close()
		repos.Close()
		return nil, fmt.Errorf("loading knowledge index: %w", err)
	}

	return &Triage{
		repos:    repos,
		provider: provider,
		index:    index,
		policy:   options.policy,
		logger:   options.logger,
	}, nil
}

func (t *Triage) Close() error {
	var errs []error
	if err := t.provider.Close(); err != nil {
		t.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := t.repos.Close(); err != nil {
		t.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Compact reclaims space left behind by deleted records. Run it after Cleanup.
func (t *Triage) Compact() error {
	if err := t.repos.Backend.RunGC(); err != nil {
		return fmt.Errorf("compacting storage: %w", err)
	}
	return nil
}

func (t *Triage) Records() storage.RecordRepository {
	return t.repos.Records
}

func (t *Triage) Knowledge() storage.KnowledgeRepository {
	return t.repos.Knowledge
}

func (t *Triage) Index() *knowledge.Index {
	return t.index
}

func (t *Triage) Policy() *policy.Policy {
	return t.policy
}

// NewOrchestrator builds an orchestrator over mail that shares this store's
// run lease, so two processes opening the same store never run together.
func (t *Triage) NewOrchestrator(mail mailbox.Mailbox, opts ...pipeline.Option) (*pipeline.Orchestrator, error) {
	base := []pipeline.Option{
		pipeline.WithLogger(t.logger),
		pipeline.WithLockRepository(t.repos.Locks),
	}
	return pipeline.NewOrchestrator(t.repos.Records, mail, t.provider, t.index, t.policy, append(base, opts...)...)
}

func (t *Triage) NewLoader(opts ...knowledge.LoaderOption) (*knowledge.Loader, error) {
	base := []knowledge.LoaderOption{knowledge.WithLoaderLogger(t.logger)}
	return knowledge.NewLoader(t.index, t.provider.Embedder(), append(base, opts...)...)
}

// NewReembedder re-embeds the knowledge base with embedder and rebuilds the
// index afterwards. A nil embedder means the provider's own.
func (t *Triage) NewReembedder(embedder ai.Embedder, config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if embedder == nil {
		embedder = t.provider.Embedder()
	}
	return reembed.NewReembedder(t.repos.Knowledge, t.index, embedder, config, progress)
}

// SearchKnowledge embeds query and returns the k nearest knowledge entries.
func (t *Triage) SearchKnowledge(ctx context.Context, query string, k int) ([]core.ScoredEntry, error) {
	vector, err := t.provider.Embedder().EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return t.index.Search(vector, k)
}
