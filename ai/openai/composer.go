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


package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Composer implements ai.Composer using OpenAI-compatible chat APIs.
type Composer struct {
	client      llms.Model
	prompt      string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

type composition struct {
	Reply            string   `json:"reply"`
	ResponseType     string   `json:"response_type"`
	Confidence       *float64 `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// newComposer is an internal constructor that returns the concrete type.
func newComposer(config *ai.Config) (*Composer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Composer{
		client:      client,
		prompt:      buildCompositionPrompt(config.MaxReplyWords),
		temperature: config.Temperature,
		// Roughly two tokens per word plus the JSON envelope.
		maxTokens: config.MaxReplyWords*2 + 200,
		logger:    slog.Default().With("component", "openai-composer"),
	}, nil
}

// NewComposer creates a new composer using the provided configuration.
//
// Returns ai.Composer interface to enforce abstraction.
func NewComposer(config *ai.Config) (ai.Composer, error) {
	return newComposer(config)
}

// Compose drafts a reply for the request.
func (c *Composer) Compose(ctx context.Context, req ai.CompositionRequest) (*ai.Composition, error) {
	var result composition
	err := generateJSON(ctx, c.client, c.logger, c.prompt, formatCompositionInput(req), &result,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		if errors.Is(err, core.ErrTransientProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	out := &ai.Composition{
		Reply:            strings.TrimSpace(result.Reply),
		ResponseType:     strings.ToLower(strings.TrimSpace(result.ResponseType)),
		Confidence:       -1,
		SuggestedActions: result.SuggestedActions,
	}
	if result.Confidence != nil {
		out.Confidence = *result.Confidence
	}
	if out.ResponseType == "" {
		out.ResponseType = string(core.ResponseTypeReply)
	}

	c.logger.Debug("composed reply",
		"length", len(out.Reply),
		"response_type", out.ResponseType,
		"confidence", out.Confidence)
	return out, nil
}
