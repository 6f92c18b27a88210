// Package memory provides an in-process mailbox for tests and dry runs.
//
// The Mailbox records every side effect, counts calls, and lets tests inject
// failures through function fields in the same way the ai/mock package does.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/mailbox"
)

// Mailbox is a thread-safe in-memory mailbox.Mailbox.
type Mailbox struct {
	// FetchFunc is consulted before every fetch. A non-nil error aborts the fetch.
	FetchFunc func(ctx context.Context, limit int) error

	// DispatchSendFunc is consulted before every send. A non-nil error is
	// returned without recording the reply.
	DispatchSendFunc func(ctx context.Context, reply mailbox.Reply) error

	// SaveDraftFunc is consulted before every draft save.
	SaveDraftFunc func(ctx context.Context, reply mailbox.Reply) error

	mu      sync.Mutex
	inbox   []core.Message
	acked   map[core.MessageID]bool
	sent    map[core.MessageID]mailbox.Reply
	drafts  map[core.MessageID]mailbox.Reply
	flagged map[core.MessageID]string

	sendCalls  int
	draftCalls int
	flagCalls  int
}

var _ mailbox.Mailbox = (*Mailbox)(nil)

// New creates a mailbox whose inbox holds msgs.
func New(msgs ...core.Message) *Mailbox {
	m := &Mailbox{
		acked:   make(map[core.MessageID]bool),
		sent:    make(map[core.MessageID]mailbox.Reply),
		drafts:  make(map[core.MessageID]mailbox.Reply),
		flagged: make(map[core.MessageID]string),
	}
	m.Deliver(msgs...)
	return m
}

// Deliver appends messages to the inbox.
func (m *Mailbox) Deliver(msgs ...core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = append(m.inbox, msgs...)
}

// FetchNewMessages returns up to limit unacknowledged messages in delivery order.
func (m *Mailbox) FetchNewMessages(ctx context.Context, limit int) ([]core.Message, error) {
	if m.FetchFunc != nil {
		if err := m.FetchFunc(ctx, limit); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Message
	for _, msg := range m.inbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		if m.acked[msg.ID] {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Acknowledge marks id as read.
func (m *Mailbox) Acknowledge(_ context.Context, id core.MessageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked[id] = true
	return nil
}

// DispatchSend records reply as sent.
func (m *Mailbox) DispatchSend(ctx context.Context, reply mailbox.Reply) error {
	m.mu.Lock()
	m.sendCalls++
	m.mu.Unlock()

	if m.DispatchSendFunc != nil {
		if err := m.DispatchSendFunc(ctx, reply); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[reply.InReplyTo]; ok {
		return fmt.Errorf("%w: reply to %s already sent", core.ErrDispatchConflict, reply.InReplyTo)
	}
	m.sent[reply.InReplyTo] = reply
	return nil
}

// SaveDraft records reply as a draft.
func (m *Mailbox) SaveDraft(ctx context.Context, reply mailbox.Reply) error {
	m.mu.Lock()
	m.draftCalls++
	m.mu.Unlock()

	if m.SaveDraftFunc != nil {
		if err := m.SaveDraftFunc(ctx, reply); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[reply.InReplyTo]; ok {
		return fmt.Errorf("%w: draft for %s already saved", core.ErrDispatchConflict, reply.InReplyTo)
	}
	m.drafts[reply.InReplyTo] = reply
	return nil
}

// FlagForReview records id as needing a human.
func (m *Mailbox) FlagForReview(_ context.Context, id core.MessageID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagCalls++
	if _, ok := m.flagged[id]; ok {
		return fmt.Errorf("%w: %s already flagged", core.ErrDispatchConflict, id)
	}
	m.flagged[id] = reason
	return nil
}

// HasSent reports whether a reply to id was sent.
func (m *Mailbox) HasSent(_ context.Context, id core.MessageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sent[id]
	return ok, nil
}

// HasDraft reports whether a draft for id exists.
func (m *Mailbox) HasDraft(_ context.Context, id core.MessageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[id]
	return ok, nil
}

// Sent returns the reply sent for id.
func (m *Mailbox) Sent(id core.MessageID) (mailbox.Reply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sent[id]
	return r, ok
}

// Draft returns the draft saved for id.
func (m *Mailbox) Draft(id core.MessageID) (mailbox.Reply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.drafts[id]
	return r, ok
}

// Flagged returns the review reason recorded for id.
func (m *Mailbox) Flagged(id core.MessageID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.flagged[id]
	return r, ok
}

// Acknowledged lists acknowledged message IDs in sorted order.
func (m *Mailbox) Acknowledged() []core.MessageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]core.MessageID, 0, len(m.acked))
	for id := range m.acked {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SendCalls returns how many times DispatchSend was called, including
// failed and conflicting calls.
func (m *Mailbox) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

// DraftCalls returns how many times SaveDraft was called.
func (m *Mailbox) DraftCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draftCalls
}

// FlagCalls returns how many times FlagForReview was called.
func (m *Mailbox) FlagCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flagCalls
}
