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


// Package decide gates reply candidates on confidence and category policy.
//
// Given a candidate, the decider picks one of three outcomes:
//
//	AutoSent       confidence >= auto_send_threshold and the category allows auto-send
//	DraftSaved     confidence >= draft_threshold
//	HeldForReview  everything else
//
// The decider is pure. Side effects and stage transitions belong to the pipeline.
package decide

import (
	"errors"
	"fmt"

	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/policy"
)

var (
	// ErrPolicyRequired is returned when a policy is not provided.
	ErrPolicyRequired = errors.New("policy required")
)

// Decision is the chosen outcome and a short explanation for audit logs.
type Decision struct {
	Stage  core.Stage
	Reason string
}

// Decider applies thresholds and per-category permissions.
type Decider struct {
	policy *policy.Policy
}

// New creates a decider for pol.
func New(pol *policy.Policy) (*Decider, error) {
	if pol == nil {
		return nil, ErrPolicyRequired
	}
	return &Decider{policy: pol}, nil
}

// Decide picks an outcome for candidate. A candidate without a valid
// confidence, or a reply without text, is a validation error.
func (d *Decider) Decide(candidate *core.ResponseCandidate) (Decision, error) {
	if err := core.ValidateCandidate(candidate); err != nil {
		return Decision{}, err
	}

	if candidate.ResponseType == core.ResponseTypeNone {
		return Decision{Stage: core.StageHeldForReview, Reason: "no reply warranted"}, nil
	}

	c := candidate.Confidence
	autoSendable := d.policy.AllowsAutoSend(candidate.Category)
	switch {
	case c >= d.policy.AutoSendThreshold && autoSendable:
		return Decision{
			Stage:  core.StageAutoSent,
			Reason: fmt.Sprintf("confidence %.2f >= auto-send threshold %.2f", c, d.policy.AutoSendThreshold),
		}, nil
	case c >= d.policy.DraftThreshold:
		reason := fmt.Sprintf("confidence %.2f below auto-send threshold %.2f", c, d.policy.AutoSendThreshold)
		if !autoSendable {
			reason = fmt.Sprintf("category %s does not allow auto-send", candidate.Category)
		}
		return Decision{Stage: core.StageDraftSaved, Reason: reason}, nil
	default:
		return Decision{
			Stage:  core.StageHeldForReview,
			Reason: fmt.Sprintf("confidence %.2f below draft threshold %.2f", c, d.policy.DraftThreshold),
		}, nil
	}
}
