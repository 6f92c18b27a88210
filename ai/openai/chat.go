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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/triage/core"
	"github.com/tmc/langchaingo/llms"
)

// parseAttempts is how many times a malformed JSON answer is re-requested.
const parseAttempts = 3

// errNoChoices is returned when the model answers with nothing.
var errNoChoices = errors.New("model returned no choices")

// transient marks a transport-level failure as retryable.
func transient(err error) error {
	return fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
}

// generateJSON sends a system + human prompt and decodes the JSON answer into out.
// Transport errors return immediately wrapped as transient. Malformed answers are
// repaired where possible and re-requested up to parseAttempts times; the final
// parse error is returned unwrapped for the caller to classify.
func generateJSON(ctx context.Context, client llms.Model, logger *slog.Logger, system, human string, out any, opts ...llms.CallOption) error {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(human)},
		},
	}
	opts = append(opts, llms.WithJSONMode())

	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := client.GenerateContent(ctx, content, opts...)
		if err != nil {
			logger.Warn("model call failed", "attempt", attempt+1, "err", err)
			return transient(err)
		}

		if len(response.Choices) < 1 {
			lastErr = errNoChoices
			continue
		}

		text := repairJSON(stripCodeFence(response.Choices[0].Content))
		if err := json.Unmarshal([]byte(text), out); err != nil {
			lastErr = err
			logger.Warn("error parsing model response",
				"attempt", attempt+1,
				"response", text,
				"err", err)
			continue
		}
		return nil
	}

	logger.Error("failed to parse model response after retries", "err", lastErr)
	return lastErr
}
