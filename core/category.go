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
	"strings"
)

// Category is the fixed set of message classes.
type Category string

const (
	CategoryBusiness   Category = "business"
	CategoryPersonal   Category = "personal"
	CategorySupport    Category = "support"
	CategorySales      Category = "sales"
	CategoryInvoice    Category = "invoice"
	CategoryNewsletter Category = "newsletter"
	CategorySpam       Category = "spam"
	CategoryUrgent     Category = "urgent"
	CategoryOther      Category = "other"
)

// AllCategories lists every category.
var AllCategories = []Category{
	CategoryBusiness,
	CategoryPersonal,
	CategorySupport,
	CategorySales,
	CategoryInvoice,
	CategoryNewsletter,
	CategorySpam,
	CategoryUrgent,
	CategoryOther,
}

// ParseCategory maps free text to a Category. Anything unrecognized is CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CategorySet is a set of categories, as used in policy.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from a list.
func NewCategorySet(cats ...Category) CategorySet {
	set := make(CategorySet, len(cats))
	for _, c := range cats {
		set[c] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (s CategorySet) Contains(c Category) bool {
	_, ok := s[c]
	return ok
}

// Priority orders messages by how soon they need attention.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

// PriorityFromScale maps a 1-5 rating onto Priority.
// Out of range values are clamped.
func PriorityFromScale(n int) Priority {
	switch {
	case n <= 2:
		return PriorityLow
	case n == 3:
		return PriorityMedium
	case n == 4:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}

// Raise bumps the priority by n levels, capped at PriorityUrgent.
func (p Priority) Raise(n int) Priority {
	r := p + Priority(n)
	if r > PriorityUrgent {
		return PriorityUrgent
	}
	if r < PriorityLow {
		return PriorityLow
	}
	return r
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}
