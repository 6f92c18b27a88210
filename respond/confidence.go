package respond

import (
	"fmt"
	"math"

	"github.com/poiesic/triage/core"
)

// Confidence tuning.
const (
	heuristicBase      = 0.7
	shortReplyChars    = 50
	shortReplyPenalty  = 0.2
	longReplyChars     = 300
	longReplyBonus     = 0.1
	longBodyChars      = 1000
	longBodyPenalty    = 0.1
	missingContextCost = 0.25
	ambiguityCost      = 0.1
	maxAmbiguityCost   = 0.3
)

// Inputs are the signals that determine a reply's confidence.
type Inputs struct {
	// SelfRating is the provider's own confidence, or negative when absent.
	SelfRating float64

	Reply string
	Body  string

	NeedsContext bool
	ContextFound bool

	// AmbiguousFacts is the number of fact keys with conflicting values.
	AmbiguousFacts int

	// Cap is the category's upper bound.
	Cap float64
}

// Result is a bounded confidence and the adjustments that produced it.
type Result struct {
	Confidence  float64
	Adjustments []string
}

// Score computes a confidence in [0,1].
func Score(in Inputs) Result {
	var r Result

	c := in.SelfRating
	if math.IsNaN(c) || c < 0 || c > 1 {
		c = heuristic(in.Reply, in.Body)
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("heuristic base %.2f", c))
	}

	if in.NeedsContext && !in.ContextFound {
		c -= missingContextCost
		r.Adjustments = append(r.Adjustments, "missing context")
	}

	if in.AmbiguousFacts > 0 {
		cost := min(float64(in.AmbiguousFacts)*ambiguityCost, maxAmbiguityCost)
		c -= cost
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("%d ambiguous facts", in.AmbiguousFacts))
	}

	if c > in.Cap {
		c = in.Cap
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("category cap %.2f", in.Cap))
	}

	r.Confidence = core.ClampConfidence(c)
	return r
}

// heuristic rates a reply from its length and the complexity of the message
// when the provider gives no rating of its own.
func heuristic(reply, body string) float64 {
	c := heuristicBase
	switch n := len(reply); {
	case n < shortReplyChars:
		c -= shortReplyPenalty
	case n > longReplyChars:
		c += longReplyBonus
	}
	if len(body) > longBodyChars {
		c -= longBodyPenalty
	}
	return c
}
