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


// Package classify assigns a category, priority, and extracted facts to a message.
//
// The provider's analysis is the primary signal. Keyword heuristics fill in
// when the provider's output is unusable, so a well-formed message always
// receives a category. Only empty or malformed input and transient provider
// failures are returned as errors.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
)

// deadlineWindow is how close an explicit deadline must be to raise priority.
const deadlineWindow = 3 * 24 * time.Hour

// Classification is the classifier's verdict for one message.
type Classification struct {
	Category core.Category
	Priority core.Priority
	Facts    core.Facts
	Keywords []string

	// Reasoning is the provider's explanation, or a note about the fallback.
	Reasoning string

	// Degraded is true when heuristics replaced unusable provider output.
	Degraded bool
}

// Classifier combines provider analysis with local heuristics.
type Classifier struct {
	analyzer ai.Analyzer
	trusted  []string
	blocked  []string
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithSenderReputation sets domains whose mail is raised in priority and
// domains whose mail is forced to low priority.
func WithSenderReputation(trusted, blocked []string) Option {
	return func(c *Classifier) error {
		c.trusted = trusted
		c.blocked = blocked
		return nil
	}
}

// New creates a classifier backed by analyzer.
func New(analyzer ai.Analyzer, opts ...Option) (*Classifier, error) {
	if analyzer == nil {
		return nil, ErrAnalyzerRequired
	}
	c := &Classifier{
		analyzer: analyzer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "classifier")
	return c, nil
}

// Classify returns a best-effort classification of msg.
// Malformed input fails with core.ErrClassification wrapping core.ErrValidation.
// Transient provider failures are returned as is so the caller can retry.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*Classification, error) {
	if err := core.ValidateMessage(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrClassification, err)
	}

	text := msg.Text()
	result := &Classification{Facts: core.Facts{}}

	analysis, err := c.analyzer.Analyze(ctx, ai.AnalysisRequest{
		Sender:  msg.Sender,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	switch {
	case err == nil && analysis != nil && strings.TrimSpace(analysis.Category) != "":
		c.applyAnalysis(result, analysis)
	case err == nil, core.IsLogicFailure(err):
		c.logger.Warn("provider analysis unusable, using heuristics", "messageID", msg.ID, "err", err)
		result.Category = heuristicCategory(text)
		result.Priority = basePriority(result.Category)
		result.Reasoning = "keyword heuristics"
		result.Degraded = true
	case errors.Is(err, core.ErrTransientProvider), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, err
	default:
		// Unknown provider errors are treated as transport failures.
		return nil, fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
	}

	result.Facts.Merge(ExtractFacts(text, msg.ReceivedAt))
	result.Priority = c.adjustPriority(result, msg, text)

	c.logger.Debug("classified message",
		"messageID", msg.ID,
		"category", result.Category,
		"priority", result.Priority,
		"facts", len(result.Facts),
		"degraded", result.Degraded)
	return result, nil
}

func (c *Classifier) applyAnalysis(result *Classification, analysis *ai.Analysis) {
	result.Category = core.ParseCategory(analysis.Category)
	if analysis.Priority >= 1 && analysis.Priority <= 5 {
		result.Priority = core.PriorityFromScale(analysis.Priority)
	} else {
		result.Priority = basePriority(result.Category)
	}
	result.Keywords = analysis.Keywords
	result.Reasoning = analysis.Reasoning

	for name, value := range analysis.Facts {
		key, ok := core.ParseFactKey(name)
		if !ok {
			c.logger.Debug("dropping unknown fact", "key", name)
			continue
		}
		result.Facts.Add(key, value)
	}
	if analysis.RequiresResponse {
		result.Facts.Add(core.FactRequiresResponse, strconv.FormatBool(true))
	}
	if analysis.Sentiment != "" {
		result.Facts.Add(core.FactSentiment, strings.ToLower(analysis.Sentiment))
	}
	for _, kw := range analysis.Keywords {
		result.Facts.Add(core.FactTopic, kw)
	}
}

func (c *Classifier) adjustPriority(result *Classification, msg *core.Message, text string) core.Priority {
	domain := senderDomain(msg.Sender)
	if domainMatches(domain, c.blocked) || result.Category == core.CategorySpam {
		return core.PriorityLow
	}

	p := result.Priority
	if !p.Valid() {
		p = basePriority(result.Category)
	}
	if result.Category == core.CategoryUrgent && p < core.PriorityHigh {
		p = core.PriorityHigh
	}
	if len(matchedKeywords(text, UrgencyKeywords)) > 0 {
		p = p.Raise(1)
	}
	if deadlineWithin(result.Facts, msg.ReceivedAt, deadlineWindow) {
		p = p.Raise(1)
	}
	if domainMatches(domain, c.trusted) {
		p = p.Raise(1)
	}
	return p
}
