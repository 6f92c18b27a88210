package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/ai/mock"
	"github.com/poiesic/triage/classify"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *core.Message {
	return &core.Message{ID: "m1", Sender: "a@example.com", Subject: "Question", Body: "What are your hours?"}
}

func classification(cat core.Category, facts core.Facts) *classify.Classification {
	if facts == nil {
		facts = core.Facts{}
	}
	return &classify.Classification{Category: cat, Priority: core.PriorityMedium, Facts: facts}
}

func someContext() core.ContextResult {
	return core.ContextResult{Entries: []core.ScoredEntry{{EntryID: "hours", Score: 0.9, Text: "Open 9 to 5."}}}
}

func newGenerator(t *testing.T, fn func(context.Context, ai.CompositionRequest) (*ai.Composition, error)) *Generator {
	t.Helper()
	composer := mock.NewMockComposer()
	composer.ComposeFunc = fn
	g, err := New(composer, policy.Default())
	require.NoError(t, err)
	return g
}

func TestNew_Requirements(t *testing.T) {
	_, err := New(nil, policy.Default())
	assert.ErrorIs(t, err, ErrComposerRequired)
	_, err = New(mock.NewMockComposer(), nil)
	assert.ErrorIs(t, err, ErrPolicyRequired)
}

func TestGenerate_PassesContextAndFacts(t *testing.T) {
	var seen ai.CompositionRequest
	g := newGenerator(t, func(_ context.Context, req ai.CompositionRequest) (*ai.Composition, error) {
		seen = req
		return &ai.Composition{Reply: "We are open 9 to 5.", ResponseType: "reply", Confidence: 0.8}, nil
	})

	facts := core.Facts{}
	facts.Add(core.FactTopic, "hours")
	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategorySupport, facts), someContext())
	require.NoError(t, err)

	assert.Equal(t, []string{"Open 9 to 5."}, seen.Context)
	assert.Equal(t, "support", seen.Category)
	assert.Equal(t, "hours", seen.Facts["topic"])
	assert.Equal(t, "We are open 9 to 5.", c.Text)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
	assert.Equal(t, core.ResponseTypeReply, c.ResponseType)
	assert.Equal(t, core.CategorySupport, c.Category)
}

func TestGenerate_MissingContextLowersConfidence(t *testing.T) {
	g := newGenerator(t, mock.Reply("We are open 9 to 5.", 0.8))

	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategorySupport, nil), core.ContextResult{})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, c.Confidence, 1e-9)

	// Categories that do not need context are not penalized.
	c, err = g.Generate(context.Background(), testMessage(), classification(core.CategoryPersonal, nil), core.ContextResult{})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
}

func TestGenerate_AmbiguousFactsLowerConfidence(t *testing.T) {
	g := newGenerator(t, mock.Reply("Thanks, we will process the payment.", 0.9))

	facts := core.Facts{}
	facts.Add(core.FactAmount, "100")
	facts.Add(core.FactAmount, "120")
	facts.Add(core.FactDeadline, "2026-03-01")
	facts.Add(core.FactDeadline, "2026-03-05")

	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategoryPersonal, facts), core.ContextResult{})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, c.Confidence, 1e-9)
}

func TestGenerate_CategoryCap(t *testing.T) {
	g := newGenerator(t, mock.Reply("Thanks for the offer.", 0.95))

	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategorySpam, nil), core.ContextResult{})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, c.Confidence, 1e-9)
}

func TestGenerate_HeuristicWhenNoSelfRating(t *testing.T) {
	long := strings.Repeat("Thank you for reaching out. ", 15)
	g := newGenerator(t, mock.Reply(long, -1))

	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategoryPersonal, nil), core.ContextResult{})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
}

func TestGenerate_NoReplyWarranted(t *testing.T) {
	g := newGenerator(t, func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
		return &ai.Composition{ResponseType: "none", Confidence: 0.9}, nil
	})

	c, err := g.Generate(context.Background(), testMessage(), classification(core.CategoryPersonal, nil), core.ContextResult{})
	require.NoError(t, err)
	assert.Equal(t, core.ResponseTypeNone, c.ResponseType)
	assert.Empty(t, c.Text)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(context.Context, ai.CompositionRequest) (*ai.Composition, error)
		wantErr   error
		retryable bool
	}{
		{
			name:      "empty reply",
			fn:        mock.Reply("   ", 0.9),
			wantErr:   core.ErrGeneration,
			retryable: true,
		},
		{
			name: "provider logic failure",
			fn: func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
				return nil, fmt.Errorf("%w: bad json", core.ErrGeneration)
			},
			wantErr:   core.ErrGeneration,
			retryable: true,
		},
		{
			name: "transient failure",
			fn: func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
				return nil, fmt.Errorf("%w: 429", core.ErrTransientProvider)
			},
			wantErr:   core.ErrTransientProvider,
			retryable: true,
		},
		{
			name: "unknown failure is transient",
			fn: func(context.Context, ai.CompositionRequest) (*ai.Composition, error) {
				return nil, errors.New("EOF")
			},
			wantErr:   core.ErrTransientProvider,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, tt.fn)
			_, err := g.Generate(context.Background(), testMessage(), classification(core.CategoryPersonal, nil), core.ContextResult{})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.retryable, core.IsRetryable(err))
		})
	}
}

func TestGenerate_RequiresInputs(t *testing.T) {
	g := newGenerator(t, nil)
	_, err := g.Generate(context.Background(), nil, classification(core.CategoryOther, nil), core.ContextResult{})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.False(t, core.IsRetryable(err))
}
