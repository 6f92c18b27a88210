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


package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/classify"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/policy"
)

// Generator drafts a reply and scores how safe it is to send unedited.
type Generator struct {
	composer ai.Composer
	policy   *policy.Policy
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// New creates a generator. The policy supplies context categories and
// per-category confidence caps.
func New(composer ai.Composer, pol *policy.Policy, opts ...Option) (*Generator, error) {
	if composer == nil {
		return nil, ErrComposerRequired
	}
	if pol == nil {
		return nil, ErrPolicyRequired
	}
	g := &Generator{
		composer: composer,
		policy:   pol,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "generator")
	return g, nil
}

// Generate drafts a reply to msg. The returned candidate always carries a
// confidence in [0,1]. Unusable provider output fails with core.ErrGeneration;
// transport failures fail with core.ErrTransientProvider.
func (g *Generator) Generate(ctx context.Context, msg *core.Message, cls *classify.Classification, cr core.ContextResult) (*core.ResponseCandidate, error) {
	if msg == nil || cls == nil {
		return nil, fmt.Errorf("%w: %w: message and classification are required", core.ErrGeneration, core.ErrValidation)
	}

	snippets := make([]string, len(cr.Entries))
	for i, e := range cr.Entries {
		snippets[i] = e.Text
	}

	comp, err := g.composer.Compose(ctx, ai.CompositionRequest{
		Sender:   msg.Sender,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Category: string(cls.Category),
		Facts:    flattenFacts(cls.Facts),
		Context:  snippets,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTransientProvider), errors.Is(err, core.ErrGeneration),
			errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
		}
	}
	if comp == nil {
		return nil, fmt.Errorf("%w: provider returned no composition", core.ErrGeneration)
	}

	responseType := core.ResponseType(comp.ResponseType)
	if responseType != core.ResponseTypeNone {
		responseType = core.ResponseTypeReply
	}
	text := strings.TrimSpace(comp.Reply)
	if responseType == core.ResponseTypeReply && text == "" {
		return nil, fmt.Errorf("%w: empty reply", core.ErrGeneration)
	}

	needsContext := g.policy.NeedsContext(cls.Category)
	score := Score(Inputs{
		SelfRating:     comp.Confidence,
		Reply:          text,
		Body:           msg.Body,
		NeedsContext:   needsContext,
		ContextFound:   !cr.Empty(),
		AmbiguousFacts: len(cls.Facts.Ambiguous()),
		Cap:            g.policy.ConfidenceCap(cls.Category),
	})

	candidate := &core.ResponseCandidate{
		Text:             text,
		Confidence:       score.Confidence,
		Category:         cls.Category,
		Facts:            cls.Facts,
		ResponseType:     responseType,
		SuggestedActions: comp.SuggestedActions,
	}
	if err := core.ValidateCandidate(candidate); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	g.logger.Debug("generated reply",
		"messageID", msg.ID,
		"category", cls.Category,
		"confidence", candidate.Confidence,
		"adjustments", score.Adjustments)
	return candidate, nil
}

// flattenFacts renders facts as a name to value map for prompting.
// Conflicting values are joined so the provider sees the ambiguity.
func flattenFacts(facts core.Facts) map[string]string {
	out := make(map[string]string, len(facts))
	keys := make([]core.FactKey, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out[string(k)] = strings.Join(facts[k], " | ")
	}
	return out
}
