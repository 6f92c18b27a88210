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

import "fmt"

// Stage is a position in the per-message state machine.
//
//	Ingested -> Classified -> [ContextFetched] -> Responded
//	Responded -> AutoSent | DraftSaved | HeldForReview
//	AutoSent | DraftSaved | HeldForReview -> Archived
//
// Any non-terminal stage may move to Failed. Failed records only leave that
// stage through an explicit Reset or Archive.
type Stage string

const (
	StageIngested       Stage = "ingested"
	StageClassified     Stage = "classified"
	StageContextFetched Stage = "context_fetched"
	StageResponded      Stage = "responded"
	StageAutoSent       Stage = "auto_sent"
	StageDraftSaved     Stage = "draft_saved"
	StageHeldForReview  Stage = "held_for_review"
	StageFailed         Stage = "failed"
	StageArchived       Stage = "archived"
)

// AllStages lists every stage in pipeline order.
var AllStages = []Stage{
	StageIngested,
	StageClassified,
	StageContextFetched,
	StageResponded,
	StageAutoSent,
	StageDraftSaved,
	StageHeldForReview,
	StageFailed,
	StageArchived,
}

var transitions = map[Stage][]Stage{
	StageIngested:       {StageClassified, StageFailed},
	StageClassified:     {StageContextFetched, StageResponded, StageFailed},
	StageContextFetched: {StageResponded, StageFailed},
	StageResponded:      {StageAutoSent, StageDraftSaved, StageHeldForReview, StageFailed},
	StageAutoSent:       {StageArchived, StageFailed},
	StageDraftSaved:     {StageArchived, StageFailed},
	StageHeldForReview:  {StageArchived, StageFailed},
	StageFailed:         {StageArchived},
}

// CanAdvance reports whether the state machine allows moving from -> to.
func CanAdvance(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic progress happens from s.
func (s Stage) IsTerminal() bool {
	return s == StageArchived || s == StageFailed
}

// IsDecision reports whether s is one of the action outcomes.
func (s Stage) IsDecision() bool {
	return s == StageAutoSent || s == StageDraftSaved || s == StageHeldForReview
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", ErrValidation, s)
	}
	return st, nil
}

// NonTerminalStages lists the stages a resumed run picks records up from.
func NonTerminalStages() []Stage {
	var out []Stage
	for _, s := range AllStages {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// ResetTarget returns the stage a Failed record resumes from when reset.
func ResetTarget(failed Stage) Stage {
	if failed == "" || failed == StageFailed || failed == StageArchived {
		return StageIngested
	}
	return failed
}

// InvalidTransition builds an ErrInvalidTransition for from -> to.
func InvalidTransition(from, to Stage) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
