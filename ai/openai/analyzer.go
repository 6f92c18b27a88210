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

// Analyzer implements ai.Analyzer using OpenAI-compatible chat APIs.
type Analyzer struct {
	client llms.Model
	prompt string
	logger *slog.Logger
}

// analysis matches the JSON object the model is asked to produce.
// Fact values are loosely typed because models return booleans and numbers.
type analysis struct {
	Category         string         `json:"category"`
	Priority         int            `json:"priority"`
	Keywords         []string       `json:"keywords"`
	Facts            map[string]any `json:"facts"`
	RequiresResponse bool           `json:"requires_response"`
	Sentiment        string         `json:"sentiment"`
	Reasoning        string         `json:"reasoning"`
}

// newAnalyzer is an internal constructor that returns the concrete type.
func newAnalyzer(config *ai.Config) (*Analyzer, error) {
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

	return &Analyzer{
		client: client,
		prompt: buildAnalysisPrompt(),
		logger: slog.Default().With("component", "openai-analyzer"),
	}, nil
}

// NewAnalyzer creates a new analyzer using the provided configuration.
//
// Returns ai.Analyzer interface to enforce abstraction.
func NewAnalyzer(config *ai.Config) (ai.Analyzer, error) {
	return newAnalyzer(config)
}

// Analyze asks the model to categorize a message and extract facts.
func (a *Analyzer) Analyze(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
	var result analysis
	err := generateJSON(ctx, a.client, a.logger, a.prompt,
		formatEmail(req.Sender, req.Subject, req.Body), &result,
		llms.WithTemperature(0.0))
	if err != nil {
		if errors.Is(err, core.ErrTransientProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrClassification, err)
	}

	out := &ai.Analysis{
		Category:         strings.ToLower(strings.TrimSpace(result.Category)),
		Priority:         result.Priority,
		Keywords:         result.Keywords,
		Facts:            make(map[string]string, len(result.Facts)),
		RequiresResponse: result.RequiresResponse,
		Sentiment:        strings.ToLower(result.Sentiment),
		Reasoning:        result.Reasoning,
	}
	for k, v := range result.Facts {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out.Facts[k] = val
		case bool:
			if val {
				out.Facts[k] = "true"
			}
		default:
			out.Facts[k] = fmt.Sprint(val)
		}
	}

	a.logger.Debug("analyzed message",
		"category", out.Category,
		"priority", out.Priority,
		"facts", len(out.Facts))
	return out, nil
}
