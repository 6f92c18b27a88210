package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/triage/ai"
)

// MockAnalyzer is a test double for ai.Analyzer.
type MockAnalyzer struct {
	// AnalyzeFunc is called by Analyze if set.
	// If nil, every message is reported as "other" with priority 3.
	AnalyzeFunc func(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error)

	callCount atomic.Int64
}

// NewMockAnalyzer creates a mock analyzer with default behavior.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

// Analyze returns the injected result or a neutral default.
func (m *MockAnalyzer) Analyze(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
	m.callCount.Add(1)

	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return &ai.Analysis{
		Category:  "other",
		Priority:  3,
		Facts:     map[string]string{},
		Sentiment: "neutral",
	}, nil
}

// CallCount returns the number of Analyze calls.
func (m *MockAnalyzer) CallCount() int {
	return int(m.callCount.Load())
}

// Categorize returns an AnalyzeFunc that always reports category and priority.
func Categorize(category string, priority int) func(context.Context, ai.AnalysisRequest) (*ai.Analysis, error) {
	return func(context.Context, ai.AnalysisRequest) (*ai.Analysis, error) {
		return &ai.Analysis{Category: category, Priority: priority, Facts: map[string]string{}}, nil
	}
}
