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


// Package policy holds the tunables that govern a triage run.
//
// A Policy is loaded once, validated, and treated as immutable for the
// duration of a batch. Files are YAML:
//
//	auto_send_threshold: 0.85
//	draft_threshold: 0.5
//	categories_allowing_auto_send: [business, support]
//	needs_context_categories: [business, support, sales]
//	batch_size: 10
//	max_retries: 3
//	per_call_timeout: 30s
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poiesic/triage/core"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidPolicy indicates a policy that failed validation.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// Policy configures classification, retrieval, generation, and the action gate.
type Policy struct {
	// AutoSendThreshold is the minimum confidence for automatic dispatch.
	AutoSendThreshold float64 `yaml:"auto_send_threshold"`

	// DraftThreshold is the minimum confidence for saving a draft.
	// Candidates below it are held for review.
	DraftThreshold float64 `yaml:"draft_threshold"`

	// AutoSendCategories may be auto-sent. Everything else is at most drafted.
	AutoSendCategories []core.Category `yaml:"categories_allowing_auto_send"`

	// ContextCategories trigger knowledge retrieval.
	ContextCategories []core.Category `yaml:"needs_context_categories"`

	// BatchSize bounds new messages fetched per run.
	BatchSize int `yaml:"batch_size"`

	// MaxRetries is the number of retries after the first attempt for transient failures.
	MaxRetries int `yaml:"max_retries"`

	// PerCallTimeout bounds every external call.
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`

	// BatchDeadline bounds a whole run. Unfinished messages stay resumable.
	BatchDeadline time.Duration `yaml:"batch_deadline"`

	// RetryBaseDelay is the first backoff delay; it doubles on each retry.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// Concurrency is the worker pool size.
	Concurrency int `yaml:"concurrency"`

	// ContextK is how many knowledge entries to retrieve.
	ContextK int `yaml:"context_k"`

	// MinContextScore drops retrieved entries scoring below it.
	MinContextScore float32 `yaml:"min_context_score"`

	// ConfidenceCaps bounds the confidence for specific categories.
	ConfidenceCaps map[core.Category]float64 `yaml:"confidence_caps"`

	// RateLimit is the provider calls per second across all workers. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the token bucket size when RateLimit is set.
	RateBurst int `yaml:"rate_burst"`

	// TrustedDomains raise priority. BlockedDomains force it to low.
	TrustedDomains []string `yaml:"trusted_domains"`
	BlockedDomains []string `yaml:"blocked_domains"`

	// RunLockTTL is how long a run lease survives without renewal.
	RunLockTTL time.Duration `yaml:"run_lock_ttl"`
}

// Default returns the policy used when no file is given.
func Default() *Policy {
	return &Policy{
		AutoSendThreshold: 0.85,
		DraftThreshold:    0.5,
		AutoSendCategories: []core.Category{
			core.CategoryBusiness,
			core.CategorySupport,
			core.CategoryPersonal,
		},
		ContextCategories: []core.Category{
			core.CategoryBusiness,
			core.CategorySupport,
			core.CategorySales,
			core.CategoryInvoice,
		},
		BatchSize:       10,
		MaxRetries:      3,
		PerCallTimeout:  30 * time.Second,
		BatchDeadline:   5 * time.Minute,
		RetryBaseDelay:  500 * time.Millisecond,
		Concurrency:     4,
		ContextK:        5,
		MinContextScore: 0,
		ConfidenceCaps: map[core.Category]float64{
			core.CategorySpam:       0.1,
			core.CategoryNewsletter: 0.3,
		},
		RateBurst:  1,
		RunLockTTL: 10 * time.Minute,
	}
}

// Load reads a YAML policy file. Fields absent from the file keep their defaults.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
// Keys that name no policy field are rejected.
func Parse(data []byte) (*Policy, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks ranges and cross-field constraints.
func (p *Policy) Validate() error {
	if p.AutoSendThreshold < 0 || p.AutoSendThreshold > 1 {
		return fmt.Errorf("%w: auto_send_threshold must be within [0,1]", ErrInvalidPolicy)
	}
	if p.DraftThreshold < 0 || p.DraftThreshold > 1 {
		return fmt.Errorf("%w: draft_threshold must be within [0,1]", ErrInvalidPolicy)
	}
	if p.DraftThreshold > p.AutoSendThreshold {
		return fmt.Errorf("%w: draft_threshold must not exceed auto_send_threshold", ErrInvalidPolicy)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidPolicy)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidPolicy)
	}
	if p.PerCallTimeout <= 0 {
		return fmt.Errorf("%w: per_call_timeout must be positive", ErrInvalidPolicy)
	}
	if p.BatchDeadline <= 0 {
		return fmt.Errorf("%w: batch_deadline must be positive", ErrInvalidPolicy)
	}
	if p.RetryBaseDelay < 0 {
		return fmt.Errorf("%w: retry_base_delay must not be negative", ErrInvalidPolicy)
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidPolicy)
	}
	if p.ContextK < 1 {
		return fmt.Errorf("%w: context_k must be positive", ErrInvalidPolicy)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidPolicy)
	}
	if p.RateLimit > 0 && p.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be positive when rate_limit is set", ErrInvalidPolicy)
	}
	if p.RunLockTTL <= 0 {
		return fmt.Errorf("%w: run_lock_ttl must be positive", ErrInvalidPolicy)
	}
	for _, lists := range [][]core.Category{p.AutoSendCategories, p.ContextCategories} {
		for _, c := range lists {
			if !c.Valid() {
				return fmt.Errorf("%w: unknown category %q", ErrInvalidPolicy, c)
			}
		}
	}
	for c, limit := range p.ConfidenceCaps {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q in confidence_caps", ErrInvalidPolicy, c)
		}
		if limit < 0 || limit > 1 {
			return fmt.Errorf("%w: confidence cap for %s must be within [0,1]", ErrInvalidPolicy, c)
		}
	}
	return nil
}

// AllowsAutoSend reports whether category may be dispatched without review.
func (p *Policy) AllowsAutoSend(c core.Category) bool {
	return core.NewCategorySet(p.AutoSendCategories...).Contains(c)
}

// NeedsContext reports whether category triggers knowledge retrieval.
func (p *Policy) NeedsContext(c core.Category) bool {
	return core.NewCategorySet(p.ContextCategories...).Contains(c)
}

// ConfidenceCap returns the upper bound for category, 1 if uncapped.
func (p *Policy) ConfidenceCap(c core.Category) float64 {
	if limit, ok := p.ConfidenceCaps[c]; ok {
		return limit
	}
	return 1
}

// MaxAttempts is the total number of tries for a transient failure.
func (p *Policy) MaxAttempts() int {
	return p.MaxRetries + 1
}
