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
	"slices"
	"strings"
)

// FactKey names a structured field extracted from a message.
type FactKey string

const (
	FactAmount           FactKey = "amount"
	FactCurrency         FactKey = "currency"
	FactDeadline         FactKey = "deadline"
	FactInvoiceNumber    FactKey = "invoice_number"
	FactVendor           FactKey = "vendor"
	FactMeetingRequest   FactKey = "meeting_request"
	FactActionRequired   FactKey = "action_required"
	FactRequiresResponse FactKey = "requires_response"
	FactSentiment        FactKey = "sentiment"
	FactTopic            FactKey = "topic"
)

var knownFactKeys = []FactKey{
	FactAmount,
	FactCurrency,
	FactDeadline,
	FactInvoiceNumber,
	FactVendor,
	FactMeetingRequest,
	FactActionRequired,
	FactRequiresResponse,
	FactSentiment,
	FactTopic,
}

// multiValued keys legitimately carry several values and never count as conflicts.
var multiValued = map[FactKey]bool{
	FactTopic: true,
}

// ParseFactKey validates a free-form key.
func ParseFactKey(s string) (FactKey, bool) {
	k := FactKey(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(knownFactKeys, k) {
		return k, true
	}
	return "", false
}

// Facts maps fact keys to the distinct values observed for them.
type Facts map[FactKey][]string

// Add records value under key, ignoring blanks and duplicates.
func (f Facts) Add(key FactKey, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	for _, v := range f[key] {
		if strings.EqualFold(v, value) {
			return
		}
	}
	f[key] = append(f[key], value)
}

// Get returns the first value recorded for key.
func (f Facts) Get(key FactKey) (string, bool) {
	vals := f[key]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Merge adds every value from other.
func (f Facts) Merge(other Facts) {
	for k, vals := range other {
		for _, v := range vals {
			f.Add(k, v)
		}
	}
}

// Ambiguous returns, sorted, the single-valued keys that carry conflicting values.
func (f Facts) Ambiguous() []FactKey {
	var out []FactKey
	for k, vals := range f {
		if !multiValued[k] && len(vals) > 1 {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Validate rejects unknown keys and empty values.
func (f Facts) Validate() error {
	for k, vals := range f {
		if !slices.Contains(knownFactKeys, k) {
			return fmt.Errorf("%w: unknown fact key %q", ErrValidation, k)
		}
		for _, v := range vals {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: empty value for fact %q", ErrValidation, k)
			}
		}
	}
	return nil
}
