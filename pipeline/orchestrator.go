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


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/classify"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/decide"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/mailbox"
	"github.com/poiesic/triage/policy"
	"github.com/poiesic/triage/respond"
	"github.com/poiesic/triage/retrieval"
	"github.com/poiesic/triage/retry"
	"github.com/poiesic/triage/storage"
	"golang.org/x/time/rate"
)

// RunLockName is the lease name every orchestrator sharing a store contends for.
const RunLockName = "triage-run"

// maxRetryDelay caps the exponential backoff between provider attempts.
const maxRetryDelay = 30 * time.Second

// Orchestrator runs batches of messages through the triage stages.
type Orchestrator struct {
	records storage.RecordRepository
	locks   storage.LockRepository
	mail    mailbox.Mailbox
	index   *knowledge.Index
	policy  *policy.Policy

	classifier *classify.Classifier
	retriever  *retrieval.Retriever
	generator  *respond.Generator
	decider    *decide.Decider
	loader     *knowledge.Loader

	pool    *ants.Pool
	limiter *rate.Limiter
	retry   retry.Policy
	running atomic.Bool

	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithLockRepository enables the durable run lease so that orchestrators in
// different processes sharing one store never run at the same time.
// Without it only runs within this process are serialized.
func WithLockRepository(locks storage.LockRepository) Option {
	return func(o *Orchestrator) error {
		o.locks = locks
		return nil
	}
}

// WithPoolSize overrides the policy's concurrency.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// NewOrchestrator wires the stage components from provider and pol.
// The orchestrator owns a worker pool; call Release when done with it.
func NewOrchestrator(
	records storage.RecordRepository,
	mail mailbox.Mailbox,
	provider ai.AIProvider,
	index *knowledge.Index,
	pol *policy.Policy,
	opts ...Option,
) (*Orchestrator, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if mail == nil {
		return nil, ErrMailboxRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if pol == nil {
		return nil, ErrPolicyRequired
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(pol.Concurrency)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		records: records,
		mail:    mail,
		index:   index,
		policy:  pol,
		pool:    pool,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}
	o.logger = o.logger.With("component", "orchestrator")

	limit := rate.Inf
	if pol.RateLimit > 0 {
		limit = rate.Limit(pol.RateLimit)
	}
	o.limiter = rate.NewLimiter(limit, max(pol.RateBurst, 1))
	o.retry = retry.Policy{
		MaxAttempts: pol.MaxAttempts(),
		BaseDelay:   pol.RetryBaseDelay,
		MaxDelay:    maxRetryDelay,
		CallTimeout: pol.PerCallTimeout,
		Logger:      o.logger,
	}

	// Components are built after options so they share the final logger.
	if err := o.buildStages(provider); err != nil {
		o.Release()
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) buildStages(provider ai.AIProvider) error {
	pol := o.policy
	var err error

	o.classifier, err = classify.New(provider.Analyzer(),
		classify.WithLogger(o.logger),
		classify.WithSenderReputation(pol.TrustedDomains, pol.BlockedDomains))
	if err != nil {
		return err
	}

	o.retriever, err = retrieval.New(o.index, provider.Embedder(),
		retrieval.WithLogger(o.logger),
		retrieval.WithK(pol.ContextK),
		retrieval.WithMinScore(pol.MinContextScore),
		retrieval.WithContextCategories(pol.ContextCategories...))
	if err != nil {
		return err
	}

	o.generator, err = respond.New(provider.Composer(), pol, respond.WithLogger(o.logger))
	if err != nil {
		return err
	}

	o.decider, err = decide.New(pol)
	if err != nil {
		return err
	}

	o.loader, err = knowledge.NewLoader(o.index, provider.Embedder(), knowledge.WithLoaderLogger(o.logger))
	return err
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// exclusive runs fn while holding both the in-process guard and, when
// configured, the durable run lease. Overlapping calls fail with ErrRunInProgress.
// The lease is renewed for as long as fn runs; if a renewal fails, the context
// passed to fn is cancelled and ErrRunLockLost is returned.
func (o *Orchestrator) exclusive(ctx context.Context, owner string, fn func(ctx context.Context) error) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer o.running.Store(false)

	if o.locks == nil {
		return fn(ctx)
	}

	ttl := o.policy.RunLockTTL
	if err := o.locks.AcquireLock(ctx, RunLockName, owner, ttl); err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return fmt.Errorf("%w: %w", ErrRunInProgress, err)
		}
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.renewLease(runCtx, owner, ttl, cancel)
	}()

	err := fn(runCtx)
	if cause := context.Cause(runCtx); err == nil && errors.Is(cause, ErrRunLockLost) {
		err = cause
	}
	cancel(nil)
	wg.Wait()

	if relErr := o.locks.ReleaseLock(context.WithoutCancel(ctx), RunLockName, owner); relErr != nil {
		o.logger.Error("error releasing run lock", "owner", owner, "err", relErr)
	}
	return err
}

// renewLease extends the run lease every third of its ttl until ctx ends.
func (o *Orchestrator) renewLease(ctx context.Context, owner string, ttl time.Duration, lost context.CancelCauseFunc) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := o.locks.AcquireLock(ctx, RunLockName, owner, ttl)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("lost run lock", "owner", owner, "err", err)
			lost(fmt.Errorf("%w: %w", ErrRunLockLost, err))
			return
		}
	}
}

// RunBatch processes one batch: resumable records first, then up to
// batch_size new messages. It returns once every record has reached a
// terminal stage or the batch deadline has passed.
//
// Per-message failures never fail the batch; they are reported in the
// Summary. An error is returned only when the batch could not run at all,
// or when new messages could not be fetched.
func (o *Orchestrator) RunBatch(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	summary := newSummary(runID, o.now())

	var fetchErr error
	err := o.exclusive(ctx, runID, func(ctx context.Context) error {
		batchCtx, cancel := context.WithTimeout(ctx, o.policy.BatchDeadline)
		defer cancel()

		logger := o.logger.With("runID", runID)
		logger.Info("starting batch", "batchSize", o.policy.BatchSize, "concurrency", o.pool.Cap())

		resumed, err := o.records.ListRecords(batchCtx, core.NonTerminalStages()...)
		if err != nil {
			return fmt.Errorf("listing resumable records: %w", err)
		}
		summary.Resumed = len(resumed)

		claimed, err := o.claimNew(batchCtx, runID, summary)
		if err != nil {
			logger.Error("error fetching new messages", "err", err)
			fetchErr = err
		}

		o.processAll(batchCtx, append(resumed, claimed...), summary)

		summary.FinishedAt = o.now()
		logger.Info("finished batch",
			"fetched", summary.Fetched,
			"claimed", summary.Claimed,
			"duplicates", summary.Duplicates,
			"resumed", summary.Resumed,
			"pending", summary.Pending,
			"elapsed", summary.Duration())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return summary, fmt.Errorf("fetching messages: %w", fetchErr)
	}
	return summary, nil
}

// claimNew fetches up to batch_size messages, claims a record for each, and
// acknowledges them. Messages that fail validation are claimed straight into
// Failed so they are not fetched again. Only valid, newly claimed records are
// returned for processing.
func (o *Orchestrator) claimNew(ctx context.Context, runID string, summary *Summary) ([]*core.ProcessingRecord, error) {
	var msgs []core.Message
	_, err := o.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		msgs, err = o.mail.FetchNewMessages(ctx, o.policy.BatchSize)
		if err != nil && !core.IsRetryable(err) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	summary.Fetched = len(msgs)

	var claimed []*core.ProcessingRecord
	for _, msg := range msgs {
		if msg.ID == "" {
			o.logger.Warn("skipping message without id", "sender", msg.Sender, "subject", msg.Subject)
			summary.Invalid++
			continue
		}

		record := core.NewProcessingRecord(msg, runID, o.now())
		validErr := core.ValidateMessage(&msg)
		if validErr != nil {
			if err := record.Fail(validErr, o.now()); err != nil {
				return claimed, err
			}
		}

		err := o.records.ClaimRecord(ctx, record)
		switch {
		case errors.Is(err, storage.ErrAlreadyClaimed):
			o.logger.Debug("message already claimed", "messageID", msg.ID)
			summary.Duplicates++
		case err != nil:
			// Left unacknowledged so the next run fetches it again.
			o.logger.Error("error claiming message", "messageID", msg.ID, "err", err)
			continue
		case validErr != nil:
			o.logger.Warn("rejected invalid message", "messageID", msg.ID, "err", validErr)
			summary.Invalid++
			summary.Claimed++
			summary.count(record)
		default:
			summary.Claimed++
			claimed = append(claimed, record)
		}

		if err := o.mail.Acknowledge(ctx, msg.ID); err != nil {
			o.logger.Warn("error acknowledging message", "messageID", msg.ID, "err", err)
		}
	}
	return claimed, nil
}

// processAll runs every record on the worker pool and waits for all of them.
func (o *Orchestrator) processAll(ctx context.Context, records []*core.ProcessingRecord, summary *Summary) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, record := range records {
		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			o.process(ctx, record)
			mu.Lock()
			summary.count(record)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			o.logger.Error("error submitting record", "messageID", record.MessageID, "err", err)
			mu.Lock()
			summary.count(record)
			mu.Unlock()
		}
	}
	wg.Wait()
}
