package core

import (
	"errors"
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "refund policy"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
			if len(id1.Hex()) != 16 {
				t.Errorf("Hex() = %q, want 16 characters", id1.Hex())
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestProcessingRecord_Lifecycle(t *testing.T) {
	now := time.Now()
	rec := NewProcessingRecord(Message{ID: "m1", Sender: "a@b.c", Subject: "hi"}, "run-1", now)

	steps := []Stage{StageClassified, StageContextFetched, StageResponded, StageDraftSaved, StageArchived}
	for _, s := range steps {
		if err := rec.Advance(s, now); err != nil {
			t.Fatalf("Advance(%s) error = %v", s, err)
		}
	}
	if rec.Stage != StageArchived {
		t.Errorf("Stage = %s, want %s", rec.Stage, StageArchived)
	}
	if len(rec.Transitions) != len(steps)+1 {
		t.Errorf("len(Transitions) = %d, want %d", len(rec.Transitions), len(steps)+1)
	}
}

func TestProcessingRecord_AdvanceRejectsRegression(t *testing.T) {
	rec := NewProcessingRecord(Message{ID: "m1"}, "", time.Now())
	if err := rec.Advance(StageClassified, time.Now()); err != nil {
		t.Fatalf("Advance error = %v", err)
	}

	err := rec.Advance(StageIngested, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance backwards error = %v, want %v", err, ErrInvalidTransition)
	}
	err = rec.Advance(StageAutoSent, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance skipping Responded error = %v, want %v", err, ErrInvalidTransition)
	}
}

func TestProcessingRecord_FailAndReset(t *testing.T) {
	rec := NewProcessingRecord(Message{ID: "m1"}, "", time.Now())
	_ = rec.Advance(StageClassified, time.Now())
	rec.Attempts = 4

	if err := rec.Fail(ErrGeneration, time.Now()); err != nil {
		t.Fatalf("Fail error = %v", err)
	}
	if rec.Stage != StageFailed || rec.FailedStage != StageClassified {
		t.Fatalf("after Fail got stage=%s failed=%s", rec.Stage, rec.FailedStage)
	}
	if rec.LastError == "" {
		t.Errorf("LastError not recorded")
	}

	if err := rec.Reset(time.Now()); err != nil {
		t.Fatalf("Reset error = %v", err)
	}
	if rec.Stage != StageClassified {
		t.Errorf("Stage after Reset = %s, want %s", rec.Stage, StageClassified)
	}
	if rec.Attempts != 0 || rec.LastError != "" {
		t.Errorf("Reset did not clear attempts/error: %d %q", rec.Attempts, rec.LastError)
	}
}

func TestProcessingRecord_ResetRequiresFailed(t *testing.T) {
	rec := NewProcessingRecord(Message{ID: "m1"}, "", time.Now())
	if err := rec.Reset(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset on non-failed record error = %v, want %v", err, ErrInvalidTransition)
	}
}

func TestStage_Terminal(t *testing.T) {
	for _, s := range AllStages {
		want := s == StageArchived || s == StageFailed
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, s.IsTerminal(), want)
		}
	}
	for _, s := range NonTerminalStages() {
		if s.IsTerminal() {
			t.Errorf("NonTerminalStages() contains terminal %s", s)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"business", CategoryBusiness},
		{"  Invoice ", CategoryInvoice},
		{"URGENT", CategoryUrgent},
		{"marketing", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPriority(t *testing.T) {
	if PriorityFromScale(1) != PriorityLow || PriorityFromScale(3) != PriorityMedium ||
		PriorityFromScale(4) != PriorityHigh || PriorityFromScale(9) != PriorityUrgent {
		t.Errorf("PriorityFromScale mapping incorrect")
	}
	if PriorityHigh.Raise(3) != PriorityUrgent {
		t.Errorf("Raise did not cap at urgent")
	}
	if PriorityLow.Raise(-1) != PriorityLow {
		t.Errorf("Raise did not floor at low")
	}
}

func TestFacts(t *testing.T) {
	f := Facts{}
	f.Add(FactAmount, "$100.00")
	f.Add(FactAmount, "$100.00")
	f.Add(FactTopic, "billing")
	f.Add(FactTopic, "refund")
	f.Add(FactCurrency, " ")

	if got := len(f[FactAmount]); got != 1 {
		t.Errorf("duplicate value not collapsed, got %d values", got)
	}
	if _, ok := f.Get(FactCurrency); ok {
		t.Errorf("blank value was recorded")
	}
	if amb := f.Ambiguous(); len(amb) != 0 {
		t.Errorf("Ambiguous() = %v, want none", amb)
	}

	f.Add(FactAmount, "$250.00")
	amb := f.Ambiguous()
	if len(amb) != 1 || amb[0] != FactAmount {
		t.Errorf("Ambiguous() = %v, want [amount]", amb)
	}

	if err := f.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	f[FactKey("shoe_size")] = []string{"42"}
	if err := f.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() with unknown key error = %v, want %v", err, ErrValidation)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", ErrValidation, false},
		{"classification wrapping validation", errors.Join(ErrClassification, ErrValidation), false},
		{"transient", ErrTransientProvider, true},
		{"generation", ErrGeneration, true},
		{"dispatch conflict", ErrDispatchConflict, false},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
