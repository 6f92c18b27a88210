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
	"fmt"
	"math"
	"strings"
	"time"
)

// clockSkew tolerates small differences between the mail server and local clocks.
const clockSkew = 5 * time.Minute

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Sender must not be empty
//   - Subject and Body must not both be empty
//   - ReceivedAt must not be in the future
//
// Every error wraps both ErrValidation and ErrInvalidMessage.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: %w: message is nil", ErrValidation, ErrInvalidMessage)
	}

	if strings.TrimSpace(string(msg.ID)) == "" {
		return fmt.Errorf("%w: %w: id is empty", ErrValidation, ErrInvalidMessage)
	}

	if strings.TrimSpace(msg.Sender) == "" {
		return fmt.Errorf("%w: %w: sender is empty", ErrValidation, ErrInvalidMessage)
	}

	if strings.TrimSpace(msg.Subject) == "" && strings.TrimSpace(msg.Body) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidMessage, ErrEmptyContent)
	}

	if !IsValidTimestamp(msg.ReceivedAt) {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidMessage, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateKnowledgeEntry validates an entry against the index dimensionality.
// A dims of 0 skips the length check.
//
// Validation rules:
//   - ID and Text must not be empty
//   - Vector must be non-empty with finite, not all zero components
//   - len(Vector) must equal dims when dims > 0
func ValidateKnowledgeEntry(entry *KnowledgeEntry, dims int) error {
	if entry == nil {
		return fmt.Errorf("%w: %w: entry is nil", ErrValidation, ErrInvalidKnowledgeEntry)
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("%w: %w: id is empty", ErrValidation, ErrInvalidKnowledgeEntry)
	}
	if strings.TrimSpace(entry.Text) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidKnowledgeEntry, ErrEmptyContent)
	}
	return ValidateVector(entry.Vector, dims)
}

// ValidateVector checks length and numeric sanity of an embedding.
func ValidateVector(vector []float32, dims int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrValidation)
	}
	if dims > 0 && len(vector) != dims {
		return fmt.Errorf("%w: %w: got %d, want %d", ErrValidation, ErrDimensionMismatch, len(vector), dims)
	}
	var sum float64
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: vector has non-finite component", ErrValidation)
		}
		sum += f * f
	}
	if sum == 0 {
		return fmt.Errorf("%w: vector has zero norm", ErrValidation)
	}
	return nil
}

// ValidateCandidate checks that a response candidate can be acted on.
func ValidateCandidate(c *ResponseCandidate) error {
	if c == nil {
		return fmt.Errorf("%w: candidate is nil", ErrValidation)
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: %w: %v", ErrValidation, ErrInvalidConfidence, c.Confidence)
	}
	if c.ResponseType != ResponseTypeNone && strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: %w: reply text", ErrValidation, ErrEmptyContent)
	}
	return nil
}

// IsValidTimestamp checks that a timestamp is not in the future.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now().Add(clockSkew))
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
