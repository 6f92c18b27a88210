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


// Package spool implements a mailbox on top of a directory tree.
//
// Layout under the root directory:
//
//	inbox/      incoming messages, one JSON document per file
//	processed/  acknowledged messages
//	rejected/   inbox files that could not be parsed
//	sent/       replies that were sent
//	drafts/     replies saved as drafts
//	review/     messages flagged for a human
//
// Outbound files are published by hard-linking a fully written temp file
// under a name derived from the message they answer, so a second dispatch for
// the same message fails with core.ErrDispatchConflict instead of writing a
// duplicate, and an interrupted write never looks like a finished one.
package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/mailbox"
)

const (
	inboxDir     = "inbox"
	processedDir = "processed"
	rejectedDir  = "rejected"
	sentDir      = "sent"
	draftsDir    = "drafts"
	reviewDir    = "review"

	// tempPattern names in-progress outbound files.
	tempPattern = ".writing-*"
)

var (
	// ErrRootRequired is returned when no spool directory is given.
	ErrRootRequired = errors.New("spool directory required")

	// ErrUnknownMessage is returned when acknowledging a message this spool never fetched.
	ErrUnknownMessage = errors.New("unknown message")
)

// Spool is a directory-backed mailbox.Mailbox.
type Spool struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	fetched map[core.MessageID]string
}

var _ mailbox.Mailbox = (*Spool)(nil)

// Option configures a Spool.
type Option func(*Spool) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spool) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "spool")
		return nil
	}
}

// New opens the spool rooted at root, creating its directories as needed.
func New(root string, opts ...Option) (*Spool, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrRootRequired
	}
	s := &Spool{
		root:    root,
		logger:  slog.Default().With("component", "spool"),
		fetched: make(map[core.MessageID]string),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	for _, dir := range []string{inboxDir, processedDir, rejectedDir, sentDir, draftsDir, reviewDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating spool directory: %w", err)
		}
	}
	return s, nil
}

// InboxPath returns the directory a spool rooted at root reads new messages from.
func InboxPath(root string) string {
	return filepath.Join(root, inboxDir)
}

// Root returns the spool directory.
func (s *Spool) Root() string {
	return s.root
}

// FetchNewMessages reads up to limit messages from inbox/ in file name order.
// A message without an id takes the file name (minus extension) as its id.
// Files that do not parse are moved to rejected/.
func (s *Spool) FetchNewMessages(ctx context.Context, limit int) ([]core.Message, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, inboxDir))
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	var out []core.Message
	for _, entry := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.root, inboxDir, entry.Name())
		msg, err := readMessage(path)
		if err != nil {
			s.logger.Warn("rejecting unreadable message", "file", entry.Name(), "err", err)
			if mvErr := os.Rename(path, filepath.Join(s.root, rejectedDir, entry.Name())); mvErr != nil {
				return nil, fmt.Errorf("rejecting %s: %w", entry.Name(), mvErr)
			}
			continue
		}
		if msg.ID == "" {
			msg.ID = core.MessageID(strings.TrimSuffix(entry.Name(), ".json"))
		}
		if msg.ReceivedAt.IsZero() {
			if info, err := entry.Info(); err == nil {
				msg.ReceivedAt = info.ModTime().UTC()
			}
		}

		s.mu.Lock()
		s.fetched[msg.ID] = path
		s.mu.Unlock()
		out = append(out, msg)
	}
	return out, nil
}

// Acknowledge moves a fetched message from inbox/ to processed/.
func (s *Spool) Acknowledge(_ context.Context, id core.MessageID) error {
	s.mu.Lock()
	path, ok := s.fetched[id]
	if ok {
		delete(s.fetched, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}

	dest := filepath.Join(s.root, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("acknowledging %s: %w", id, err)
	}
	return nil
}

// DispatchSend writes reply into sent/.
func (s *Spool) DispatchSend(_ context.Context, reply mailbox.Reply) error {
	return s.writeExclusive(sentDir, reply.InReplyTo, reply)
}

// SaveDraft writes reply into drafts/.
func (s *Spool) SaveDraft(_ context.Context, reply mailbox.Reply) error {
	return s.writeExclusive(draftsDir, reply.InReplyTo, reply)
}

type reviewNote struct {
	MessageID core.MessageID `json:"message_id"`
	Reason    string         `json:"reason"`
	FlaggedAt time.Time      `json:"flagged_at"`
}

// FlagForReview writes a review note into review/.
func (s *Spool) FlagForReview(_ context.Context, id core.MessageID, reason string) error {
	return s.writeExclusive(reviewDir, id, reviewNote{MessageID: id, Reason: reason, FlaggedAt: time.Now().UTC()})
}

// HasSent reports whether sent/ holds a reply to id.
func (s *Spool) HasSent(_ context.Context, id core.MessageID) (bool, error) {
	return s.exists(sentDir, id)
}

// HasDraft reports whether drafts/ holds a reply to id.
func (s *Spool) HasDraft(_ context.Context, id core.MessageID) (bool, error) {
	return s.exists(draftsDir, id)
}

// writeExclusive writes v to a temp file in dir and links it into place.
// The link fails if the final name exists, so a file under the final name is
// always complete and written exactly once.
func (s *Spool) writeExclusive(dir string, id core.MessageID, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, dir), tempPattern)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), s.outboundPath(dir, id)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s/%s", core.ErrDispatchConflict, dir, id)
		}
		return err
	}
	return nil
}

func (s *Spool) exists(dir string, id core.MessageID) (bool, error) {
	_, err := os.Stat(s.outboundPath(dir, id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// outboundPath names files by a hash of the id, since mail ids routinely
// contain characters that are not safe in file names.
func (s *Spool) outboundPath(dir string, id core.MessageID) string {
	return filepath.Join(s.root, dir, core.IDFromContent(string(id)).Hex()+".json")
}

// inboundMessage is the inbox file format. Mail that only has an HTML part
// carries it in HTML and leaves Body empty.
type inboundMessage struct {
	core.Message
	HTML string `json:"html,omitempty"`
}

func readMessage(path string) (core.Message, error) {
	var in inboundMessage
	data, err := os.ReadFile(path)
	if err != nil {
		return in.Message, err
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in.Message, err
	}
	if strings.TrimSpace(in.Body) == "" && in.HTML != "" {
		body, err := mailbox.PlainText(in.HTML)
		if err != nil {
			return in.Message, fmt.Errorf("rendering html body: %w", err)
		}
		in.Body = body
	}
	return in.Message, nil
}
