package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/triage/ai"
)

// DefaultReply is the text MockComposer drafts when no behavior is injected.
const DefaultReply = "Thank you for your email. I'll review it and get back to you shortly."

// MockComposer is a test double for ai.Composer.
type MockComposer struct {
	// ComposeFunc is called by Compose if set.
	// If nil, returns DefaultReply with confidence 0.5.
	ComposeFunc func(ctx context.Context, req ai.CompositionRequest) (*ai.Composition, error)

	callCount atomic.Int64
}

// NewMockComposer creates a mock composer with default behavior.
func NewMockComposer() *MockComposer {
	return &MockComposer{}
}

// Compose returns the injected result or a fixed reply.
func (m *MockComposer) Compose(ctx context.Context, req ai.CompositionRequest) (*ai.Composition, error) {
	m.callCount.Add(1)

	if m.ComposeFunc != nil {
		return m.ComposeFunc(ctx, req)
	}
	return &ai.Composition{
		Reply:        DefaultReply,
		ResponseType: "reply",
		Confidence:   0.5,
	}, nil
}

// CallCount returns the number of Compose calls.
func (m *MockComposer) CallCount() int {
	return int(m.callCount.Load())
}

// Reply returns a ComposeFunc that always drafts text at confidence.
func Reply(text string, confidence float64) func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
	return func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
		return &ai.Composition{Reply: text, ResponseType: "reply", Confidence: confidence}, nil
	}
}

// ComposeError returns a ComposeFunc that always fails with err.
func ComposeError(err error) func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
	return func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
		return nil, err
	}
}
