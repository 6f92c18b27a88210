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


// Package mailbox defines the boundary between the triage core and the mail system.
//
// A Source hands out unread messages and is told when the core has taken
// ownership of one. A Sink performs the three side effects the pipeline can
// decide on. Sinks must be idempotent per message: repeating a side effect that
// already happened returns core.ErrDispatchConflict, which callers treat as
// success.
package mailbox

import (
	"context"
	"time"

	"github.com/poiesic/triage/core"
)

// Source yields inbound messages.
type Source interface {
	// FetchNewMessages returns up to limit messages that have not been
	// acknowledged yet. Messages are returned oldest first.
	FetchNewMessages(ctx context.Context, limit int) ([]core.Message, error)

	// Acknowledge marks a message as taken so it is not fetched again.
	Acknowledge(ctx context.Context, id core.MessageID) error
}

// Sink performs the outbound side effects of a decision.
type Sink interface {
	// DispatchSend sends reply. Returns core.ErrDispatchConflict if a reply
	// to the same message was already sent.
	DispatchSend(ctx context.Context, reply Reply) error

	// SaveDraft stores reply as a draft. Returns core.ErrDispatchConflict if
	// a draft for the same message already exists.
	SaveDraft(ctx context.Context, reply Reply) error

	// FlagForReview marks a message for a human. Flagging twice returns
	// core.ErrDispatchConflict.
	FlagForReview(ctx context.Context, id core.MessageID, reason string) error

	// HasSent reports whether a reply to id was already sent.
	HasSent(ctx context.Context, id core.MessageID) (bool, error)

	// HasDraft reports whether a draft for id already exists.
	HasDraft(ctx context.Context, id core.MessageID) (bool, error)
}

// Mailbox is both ends of a mail system.
type Mailbox interface {
	Source
	Sink
}

// Reply is an outbound message answering an inbound one.
type Reply struct {
	InReplyTo core.MessageID `json:"in_reply_to"`
	ThreadID  string         `json:"thread_id,omitempty"`
	To        string         `json:"to"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReplyTo builds a reply to msg with the given body.
func ReplyTo(msg *core.Message, body string, at time.Time) Reply {
	return Reply{
		InReplyTo: msg.ID,
		ThreadID:  msg.ThreadID,
		To:        msg.Sender,
		Subject:   replySubject(msg.Subject),
		Body:      body,
		CreatedAt: at,
	}
}

func replySubject(subject string) string {
	if len(subject) >= 3 && (subject[:3] == "Re:" || subject[:3] == "RE:" || subject[:3] == "re:") {
		return subject
	}
	return "Re: " + subject
}
