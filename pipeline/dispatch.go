package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/mailbox"
)

// dispatch performs the side effect of the record's decision at most once.
//
// A record that already carries DispatchedAt is skipped outright. Otherwise
// the mailbox is asked whether the effect already happened, which covers a
// crash between the side effect and persisting DispatchedAt. A conflict from
// the mailbox counts as success. DispatchedAt is persisted before returning so
// the record is never archived without it.
func (o *Orchestrator) dispatch(ctx context.Context, record *core.ProcessingRecord) error {
	if record.Dispatched() {
		return nil
	}
	reply := mailbox.ReplyTo(&record.Message, record.Reply, o.now())

	err := o.call(ctx, record, func(ctx context.Context) error {
		done, err := o.alreadyDispatched(ctx, record)
		if err != nil || done {
			return err
		}

		switch record.Stage {
		case core.StageAutoSent:
			err = o.mail.DispatchSend(ctx, reply)
		case core.StageDraftSaved:
			err = o.mail.SaveDraft(ctx, reply)
		case core.StageHeldForReview:
			err = o.mail.FlagForReview(ctx, record.MessageID, reviewReason(record))
		default:
			return core.InvalidTransition(record.Stage, core.StageArchived)
		}
		return sinkError(err)
	})
	if err != nil {
		return err
	}

	record.DispatchedAt = o.now()
	return o.save(ctx, record)
}

func (o *Orchestrator) alreadyDispatched(ctx context.Context, record *core.ProcessingRecord) (bool, error) {
	var (
		done bool
		err  error
	)
	switch record.Stage {
	case core.StageAutoSent:
		done, err = o.mail.HasSent(ctx, record.MessageID)
	case core.StageDraftSaved:
		done, err = o.mail.HasDraft(ctx, record.MessageID)
	default:
		return false, nil
	}
	if err != nil {
		return false, sinkError(err)
	}
	if done {
		o.logger.Info("side effect already performed, not repeating", "messageID", record.MessageID, "stage", record.Stage)
	}
	return done, nil
}

// sinkError maps mailbox errors onto the error taxonomy. Conflicts mean the
// effect already exists and are not errors at all; anything unrecognized is
// assumed to be a transport problem.
func sinkError(err error) error {
	switch {
	case err == nil, errors.Is(err, core.ErrDispatchConflict):
		return nil
	case core.IsRetryable(err), errors.Is(err, core.ErrValidation),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
	}
}

func reviewReason(record *core.ProcessingRecord) string {
	if record.Reason != "" {
		return record.Reason
	}
	return "held for review"
}
