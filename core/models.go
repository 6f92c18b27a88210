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


package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Hex renders the ID as a fixed-width lowercase hex string.
func (id ID) Hex() string {
	s := strconv.FormatUint(uint64(id), 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// MessageID is the stable identifier assigned to a message by the mail source.
type MessageID string

// Message is an inbound unit of work. It is immutable once ingested.
type Message struct {
	ID         MessageID `json:"id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	Labels     []string  `json:"labels,omitempty"`
}

// Text returns the subject and body joined for embedding and analysis.
func (m *Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

// ProcessingRecord is the durable per-message state of the pipeline.
// Exactly one record exists per MessageID.
type ProcessingRecord struct {
	MessageID    MessageID    `json:"message_id"`
	Message      Message      `json:"message"`
	Stage        Stage        `json:"stage"`
	Category     Category     `json:"category,omitempty"`
	Priority     Priority     `json:"priority,omitempty"`
	Facts        Facts        `json:"facts,omitempty"`
	ContextIDs   []string     `json:"context_ids,omitempty"`
	Reply        string       `json:"reply,omitempty"`
	Confidence   float64      `json:"confidence"`
	Decision     Stage        `json:"decision,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	DispatchedAt time.Time    `json:"dispatched_at"`
	FailedStage  Stage        `json:"failed_stage,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	Attempts     int          `json:"attempts"`
	Transitions  []Transition `json:"transitions,omitempty"`
	RunID        string       `json:"run_id,omitempty"`
	ClaimedAt    time.Time    `json:"claimed_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Transition records when a record entered a stage.
type Transition struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

// NewProcessingRecord returns a record in the Ingested stage for msg.
func NewProcessingRecord(msg Message, runID string, now time.Time) *ProcessingRecord {
	return &ProcessingRecord{
		MessageID:   msg.ID,
		Message:     msg,
		Stage:       StageIngested,
		RunID:       runID,
		ClaimedAt:   now,
		UpdatedAt:   now,
		Transitions: []Transition{{Stage: StageIngested, At: now}},
	}
}

// Advance moves the record forward to next. Backward or skipping moves that
// the stage machine does not allow return ErrInvalidTransition.
func (r *ProcessingRecord) Advance(next Stage, at time.Time) error {
	if !CanAdvance(r.Stage, next) {
		return InvalidTransition(r.Stage, next)
	}
	r.Stage = next
	r.UpdatedAt = at
	r.Transitions = append(r.Transitions, Transition{Stage: next, At: at})
	return nil
}

// Fail moves the record to StageFailed and remembers where it failed.
func (r *ProcessingRecord) Fail(cause error, at time.Time) error {
	if !CanAdvance(r.Stage, StageFailed) {
		return InvalidTransition(r.Stage, StageFailed)
	}
	r.FailedStage = r.Stage
	if cause != nil {
		r.LastError = cause.Error()
	}
	return r.Advance(StageFailed, at)
}

// Reset returns a Failed record to the stage it failed in so it can be retried.
func (r *ProcessingRecord) Reset(at time.Time) error {
	if r.Stage != StageFailed {
		return InvalidTransition(r.Stage, r.FailedStage)
	}
	target := ResetTarget(r.FailedStage)
	r.Stage = target
	r.FailedStage = ""
	r.LastError = ""
	r.Attempts = 0
	r.UpdatedAt = at
	r.Transitions = append(r.Transitions, Transition{Stage: target, At: at})
	return nil
}

// Dispatched reports whether the side effect for the current decision is durable.
func (r *ProcessingRecord) Dispatched() bool {
	return !r.DispatchedAt.IsZero()
}

// KnowledgeEntry is one unit of retrievable context.
type KnowledgeEntry struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Vector    []float32         `json:"vector"`
	Metadata  KnowledgeMetadata `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// KnowledgeMetadata describes where an entry came from.
type KnowledgeMetadata struct {
	Title      string   `json:"title,omitempty"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Source     string   `json:"source,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
}

// ScoredEntry is a knowledge entry matched by similarity search.
type ScoredEntry struct {
	EntryID string
	Score   float32
	Title   string
	Text    string
}

// ContextResult is the ranked context retrieved for a single message.
type ContextResult struct {
	Entries []ScoredEntry
}

// Empty reports whether no context was found.
func (c ContextResult) Empty() bool {
	return len(c.Entries) == 0
}

// IDs returns the entry IDs in rank order.
func (c ContextResult) IDs() []string {
	ids := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.EntryID
	}
	return ids
}

// ResponseType indicates whether a message warrants a reply at all.
type ResponseType string

const (
	ResponseTypeReply ResponseType = "reply"
	ResponseTypeNone  ResponseType = "none"
)

// ResponseCandidate is a generated reply together with its confidence.
type ResponseCandidate struct {
	Text             string
	Confidence       float64
	Category         Category
	Facts            Facts
	ResponseType     ResponseType
	SuggestedActions []string
}
