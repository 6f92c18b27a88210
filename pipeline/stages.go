package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/triage/classify"
	"github.com/poiesic/triage/core"
)

// work carries what earlier stages produced within a single pass, so a
// record processed start to finish does not reload it from the store.
type work struct {
	record         *core.ProcessingRecord
	classification *classify.Classification
	context        *core.ContextResult
}

// process advances record until it is terminal, it fails, or ctx ends.
// A record interrupted by ctx keeps the last stage that was persisted.
func (o *Orchestrator) process(ctx context.Context, record *core.ProcessingRecord) {
	w := &work{record: record}
	logger := o.logger.With("messageID", record.MessageID)

	for !record.Stage.IsTerminal() {
		if ctx.Err() != nil {
			logger.Info("run stopped, leaving record for the next run", "stage", record.Stage)
			return
		}

		from := record.Stage
		err := o.step(ctx, w)
		if err == nil {
			logger.Debug("stage complete", "from", from, "to", record.Stage)
			continue
		}
		if ctx.Err() != nil {
			logger.Info("run stopped mid-stage, leaving record for the next run", "stage", record.Stage)
			return
		}
		if errors.Is(err, errPersist) {
			logger.Error("error persisting record", "stage", record.Stage, "err", err)
			return
		}

		logger.Warn("record failed", "stage", from, "attempts", record.Attempts, "err", err)
		if failErr := record.Fail(err, o.now()); failErr != nil {
			logger.Error("error failing record", "err", failErr)
			return
		}
		if saveErr := o.save(ctx, record); saveErr != nil {
			logger.Error("error persisting failed record", "err", saveErr)
		}
		return
	}
}

// errPersist marks store failures, which leave the record at its last
// persisted stage instead of failing it.
var errPersist = errors.New("persisting record")

func (o *Orchestrator) save(ctx context.Context, record *core.ProcessingRecord) error {
	// A stage that finished just before the deadline is still recorded.
	if err := o.records.UpdateRecord(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("%w: %w", errPersist, err)
	}
	return nil
}

// advance moves the record to next and persists it.
func (o *Orchestrator) advance(ctx context.Context, record *core.ProcessingRecord, next core.Stage) error {
	if err := record.Advance(next, o.now()); err != nil {
		return err
	}
	return o.save(ctx, record)
}

// step runs the work for the record's current stage.
func (o *Orchestrator) step(ctx context.Context, w *work) error {
	record := w.record
	switch record.Stage {
	case core.StageIngested:
		return o.classify(ctx, w)
	case core.StageClassified:
		if o.retriever.NeedsContext(record.Category) && w.context == nil {
			return o.fetchContext(ctx, w)
		}
		return o.respond(ctx, w)
	case core.StageContextFetched:
		return o.respond(ctx, w)
	case core.StageResponded:
		return o.decide(ctx, w)
	case core.StageAutoSent, core.StageDraftSaved, core.StageHeldForReview:
		if err := o.dispatch(ctx, record); err != nil {
			return err
		}
		return o.advance(ctx, record, core.StageArchived)
	default:
		return core.InvalidTransition(record.Stage, core.StageArchived)
	}
}

// call runs op under the retry policy and rate limiter and adds the
// attempts it took to the record.
func (o *Orchestrator) call(ctx context.Context, record *core.ProcessingRecord, op func(ctx context.Context) error) error {
	attempts, err := o.retry.Do(ctx, func(ctx context.Context, _ int) error {
		if err := o.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
		}
		return op(ctx)
	})
	record.Attempts += attempts
	return err
}

func (o *Orchestrator) classify(ctx context.Context, w *work) error {
	record := w.record
	var cls *classify.Classification
	err := o.call(ctx, record, func(ctx context.Context) error {
		var err error
		cls, err = o.classifier.Classify(ctx, &record.Message)
		return err
	})
	if err != nil {
		return err
	}

	record.Category = cls.Category
	record.Priority = cls.Priority
	record.Facts = cls.Facts
	w.classification = cls
	return o.advance(ctx, record, core.StageClassified)
}

func (o *Orchestrator) fetchContext(ctx context.Context, w *work) error {
	record := w.record
	var result core.ContextResult
	err := o.call(ctx, record, func(ctx context.Context) error {
		var err error
		result, err = o.retriever.Retrieve(ctx, &record.Message, record.Category)
		return err
	})
	if err != nil {
		return err
	}

	record.ContextIDs = result.IDs()
	w.context = &result
	return o.advance(ctx, record, core.StageContextFetched)
}

func (o *Orchestrator) respond(ctx context.Context, w *work) error {
	record := w.record
	cls := w.classificationOf()
	cr := o.contextOf(w)

	var candidate *core.ResponseCandidate
	err := o.call(ctx, record, func(ctx context.Context) error {
		var err error
		candidate, err = o.generator.Generate(ctx, &record.Message, cls, cr)
		return err
	})
	if err != nil {
		return err
	}

	record.Reply = candidate.Text
	record.Confidence = candidate.Confidence
	return o.advance(ctx, record, core.StageResponded)
}

func (o *Orchestrator) decide(ctx context.Context, w *work) error {
	record := w.record
	decision, err := o.decider.Decide(candidateOf(record))
	if err != nil {
		return err
	}

	record.Decision = decision.Stage
	record.Reason = decision.Reason
	o.logger.Info("decided",
		"messageID", record.MessageID,
		"category", record.Category,
		"confidence", record.Confidence,
		"decision", decision.Stage,
		"reason", decision.Reason)
	return o.advance(ctx, record, decision.Stage)
}

// classificationOf rebuilds the classification from the record when the
// record was resumed past the Ingested stage.
func (w *work) classificationOf() *classify.Classification {
	if w.classification != nil {
		return w.classification
	}
	facts := w.record.Facts
	if facts == nil {
		facts = core.Facts{}
	}
	return &classify.Classification{
		Category: w.record.Category,
		Priority: w.record.Priority,
		Facts:    facts,
	}
}

// contextOf returns the context found in this pass, or looks the stored
// entry IDs up in the index for a resumed record. Entries removed from the
// index since are skipped.
func (o *Orchestrator) contextOf(w *work) core.ContextResult {
	if w.context != nil {
		return *w.context
	}
	var result core.ContextResult
	for _, id := range w.record.ContextIDs {
		entry, ok := o.index.Get(id)
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, core.ScoredEntry{
			EntryID: entry.ID,
			Title:   entry.Metadata.Title,
			Text:    entry.Text,
		})
	}
	return result
}

// candidateOf rebuilds the reply candidate a record was advanced with.
// A record without reply text was answered with "no reply warranted".
func candidateOf(record *core.ProcessingRecord) *core.ResponseCandidate {
	responseType := core.ResponseTypeReply
	if record.Reply == "" {
		responseType = core.ResponseTypeNone
	}
	return &core.ResponseCandidate{
		Text:         record.Reply,
		Confidence:   record.Confidence,
		Category:     record.Category,
		Facts:        record.Facts,
		ResponseType: responseType,
	}
}
