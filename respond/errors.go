// Package respond turns a classified message and its context into a reply
// candidate with a bounded confidence.
package respond

import "errors"

var (
	// ErrComposerRequired is returned when a composer is not provided.
	ErrComposerRequired = errors.New("composer required")

	// ErrPolicyRequired is returned when a policy is not provided.
	ErrPolicyRequired = errors.New("policy required")
)
