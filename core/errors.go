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
	"context"
	"errors"
)

// Error taxonomy shared by every pipeline stage.
var (
	// ErrValidation indicates malformed input. Fatal for the message, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrTransientProvider indicates a timeout, rate limit, or unavailable provider.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrClassification indicates the classifier could not produce a result.
	ErrClassification = errors.New("classification failed")

	// ErrGeneration indicates the response generator could not produce a reply.
	ErrGeneration = errors.New("generation failed")

	// ErrDispatchConflict indicates the side effect was already performed.
	// Callers treat it as success.
	ErrDispatchConflict = errors.New("dispatch already performed")

	// ErrInvalidTransition indicates a stage move the state machine forbids.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// Domain validation errors
var (
	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidKnowledgeEntry indicates a KnowledgeEntry failed validation.
	ErrInvalidKnowledgeEntry = errors.New("invalid knowledge entry")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptyContent indicates a message or entry carries no text.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidConfidence indicates a confidence outside [0,1] or a missing one.
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
)

// IsRetryable reports whether an operation that failed with err may be tried again.
// Classification and generation failures are retryable; callers bound them separately.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDispatchConflict):
		return false
	case errors.Is(err, ErrTransientProvider), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrClassification), errors.Is(err, ErrGeneration):
		return true
	default:
		return false
	}
}

// IsLogicFailure reports whether err is a classification or generation failure
// rather than a transport problem.
func IsLogicFailure(err error) bool {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrTransientProvider) {
		return false
	}
	return errors.Is(err, ErrClassification) || errors.Is(err, ErrGeneration)
}
