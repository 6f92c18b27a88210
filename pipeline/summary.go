package pipeline

import (
	"time"

	"github.com/poiesic/triage/core"
)

// Summary is the observable outcome of one batch.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Fetched is the number of messages the source returned.
	Fetched int

	// Claimed is the number of records this run created.
	Claimed int

	// Duplicates counts fetched messages that already had a record.
	Duplicates int

	// Invalid counts fetched messages rejected by validation.
	Invalid int

	// Resumed counts records picked up from earlier runs.
	Resumed int

	// Pending counts records left in a non-terminal stage at the deadline.
	Pending int

	// Stages counts outcomes. Archived records are counted under the
	// decision they were archived with; everything else under the stage it
	// ended the run in.
	Stages map[core.Stage]int
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: started,
		Stages:    make(map[core.Stage]int),
	}
}

func (s *Summary) count(record *core.ProcessingRecord) {
	stage := record.Stage
	if stage == core.StageArchived && record.Decision != "" {
		stage = record.Decision
	}
	if !record.Stage.IsTerminal() {
		s.Pending++
	}
	s.Stages[stage]++
}

// Processed is the number of records that reached a terminal stage.
func (s *Summary) Processed() int {
	total := 0
	for _, n := range s.Stages {
		total += n
	}
	return total - s.Pending
}

// Duration is how long the batch ran.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
