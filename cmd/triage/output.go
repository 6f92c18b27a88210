package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/knowledge"
	"github.com/poiesic/triage/pipeline"
)

func stageColor(stage core.Stage) *color.Color {
	switch stage {
	case core.StageAutoSent:
		return color.New(color.FgGreen)
	case core.StageDraftSaved:
		return color.New(color.FgCyan)
	case core.StageHeldForReview:
		return color.New(color.FgYellow)
	case core.StageFailed:
		return color.New(color.FgRed)
	case core.StageArchived:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgHiMagenta)
	}
}

func stageLabel(stage core.Stage) string {
	return stageColor(stage).Sprint(string(stage))
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "Run %s finished in %v\n", s.RunID, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  fetched %d, claimed %d, resumed %d, duplicates %d, invalid %d\n",
		s.Fetched, s.Claimed, s.Resumed, s.Duplicates, s.Invalid)
	for _, stage := range core.AllStages {
		if n := s.Stages[stage]; n > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", stageLabel(stage), n)
		}
	}
	if s.Pending > 0 {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgYellow).Sprintf("%d records still pending", s.Pending))
	}
}

func printRecords(w io.Writer, records []*core.ProcessingRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tCATEGORY\tCONFIDENCE\tUPDATED\tSUBJECT")
	for _, r := range records {
		stage := string(r.Stage)
		if r.Stage == core.StageArchived && r.Decision != "" {
			stage += "/" + string(r.Decision)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			r.MessageID, stage, r.Category, r.Confidence,
			r.UpdatedAt.Format("2006-01-02 15:04"), r.Message.Subject)
	}
	tw.Flush()
}

func printStats(w io.Writer, stats knowledge.Stats) {
	fmt.Fprintf(w, "Entries:    %d\n", stats.Entries)
	fmt.Fprintf(w, "Dimensions: %d\n", stats.Dimensions)
	fmt.Fprintf(w, "Sources:    %d\n", stats.Sources)
	for _, category := range slices.Sorted(maps.Keys(stats.Categories)) {
		name := category
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(w, "  %-20s %d\n", name, stats.Categories[category])
	}
}

func printResults(w io.Writer, results []core.ScoredEntry) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches")
		return
	}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.EntryID
		}
		fmt.Fprintf(w, "%d. %s %s\n", i+1, color.New(color.Bold).Sprint(title), color.New(color.FgCyan).Sprintf("(%.3f)", r.Score))
		fmt.Fprintf(w, "   %s\n", snippet(r.Text, 160))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
