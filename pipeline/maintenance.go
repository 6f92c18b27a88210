package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/triage/core"
)

// Reset returns a Failed record to the stage it failed in. The next batch
// resumes it from there.
func (o *Orchestrator) Reset(ctx context.Context, id core.MessageID) (*core.ProcessingRecord, error) {
	record, err := o.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := record.Reset(o.now()); err != nil {
		return nil, err
	}
	if err := o.records.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	o.logger.Info("reset record", "messageID", id, "stage", record.Stage)
	return record, nil
}

// Archive marks a Failed record as archived so it no longer needs attention.
func (o *Orchestrator) Archive(ctx context.Context, id core.MessageID) (*core.ProcessingRecord, error) {
	record, err := o.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Stage != core.StageFailed {
		return nil, core.InvalidTransition(record.Stage, core.StageArchived)
	}
	if err := record.Advance(core.StageArchived, o.now()); err != nil {
		return nil, err
	}
	if err := o.records.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	o.logger.Info("archived failed record", "messageID", id)
	return record, nil
}

// Learn adds every auto-sent exchange archived since the given time to the
// knowledge index, so later replies can draw on what was already said.
// Exchanges learned before are replaced, not duplicated.
// It returns the number of exchanges learned.
func (o *Orchestrator) Learn(ctx context.Context, since time.Time) (int, error) {
	archived, err := o.records.ListRecords(ctx, core.StageArchived)
	if err != nil {
		return 0, err
	}

	learned := 0
	for _, record := range archived {
		if err := ctx.Err(); err != nil {
			return learned, err
		}
		if record.Decision != core.StageAutoSent || record.Reply == "" || record.DispatchedAt.Before(since) {
			continue
		}
		if _, err := o.loader.AddExchange(ctx, record.Message.Subject, record.Message.Body, record.Reply); err != nil {
			return learned, fmt.Errorf("learning from %s: %w", record.MessageID, err)
		}
		learned++
	}
	o.logger.Info("learned from sent replies", "since", since, "exchanges", learned)
	return learned, nil
}

// Cleanup deletes archived records last updated before now minus olderThan.
// It holds the run lock, so it never overlaps a batch.
// It returns the number of records deleted.
func (o *Orchestrator) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := o.now().Add(-olderThan)
	deleted := 0

	err := o.exclusive(ctx, uuid.NewString(), func(ctx context.Context) error {
		archived, err := o.records.ListRecords(ctx, core.StageArchived)
		if err != nil {
			return err
		}
		var ids []core.MessageID
		for _, record := range archived {
			if record.UpdatedAt.Before(cutoff) {
				ids = append(ids, record.MessageID)
			}
		}
		if err := o.records.DeleteRecords(ctx, ids...); err != nil {
			return err
		}
		deleted = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	o.logger.Info("cleaned up archived records", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}
