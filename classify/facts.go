package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/poiesic/triage/core"
)

var (
	symbolAmountPattern = regexp.MustCompile(`([$€£])\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)
	codeAmountPattern   = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\s?(USD|EUR|GBP|CAD|AUD)\b`)
	invoicePattern      = regexp.MustCompile(`(?i)\binvoice\s*(?:#|no\.?|number)?\s*:?\s*([A-Z0-9-]*\d[A-Z0-9-]*)`)
	deadlinePattern     = regexp.MustCompile(`(?i)\b(?:due|deadline|by|before)\b(?:\s+(?:on|date|is))?[:\s]+(\d{4}-\d{2}-\d{2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)`)
	meetingPattern      = regexp.MustCompile(`(?i)\b(?:schedule (?:a )?(?:call|meeting)|set up (?:a )?(?:call|meeting)|meeting request|are you available|can we meet|book a (?:call|meeting))\b`)
	ordinalPattern      = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

var writtenDateLayouts = []string{
	"January 2 2006",
	"Jan 2 2006",
	"January 2",
	"Jan 2",
}

// ExtractFacts pulls amounts, deadlines, invoice numbers, and meeting
// requests out of text. Missing facts are simply absent.
// Dates without a year take the year of ref.
func ExtractFacts(text string, ref time.Time) core.Facts {
	facts := core.Facts{}

	for _, m := range symbolAmountPattern.FindAllStringSubmatch(text, -1) {
		facts.Add(core.FactAmount, strings.ReplaceAll(m[2], ",", ""))
		facts.Add(core.FactCurrency, currencySymbols[m[1]])
	}
	for _, m := range codeAmountPattern.FindAllStringSubmatch(text, -1) {
		facts.Add(core.FactAmount, strings.ReplaceAll(m[1], ",", ""))
		facts.Add(core.FactCurrency, strings.ToUpper(m[2]))
	}

	for _, m := range invoicePattern.FindAllStringSubmatch(text, -1) {
		facts.Add(core.FactInvoiceNumber, strings.ToUpper(m[1]))
	}

	for _, m := range deadlinePattern.FindAllStringSubmatch(text, -1) {
		if d, ok := parseDeadline(m[1], ref); ok {
			facts.Add(core.FactDeadline, d.Format(time.DateOnly))
		}
	}

	if meetingPattern.MatchString(text) {
		facts.Add(core.FactMeetingRequest, "true")
	}

	return facts
}

func parseDeadline(s string, ref time.Time) (time.Time, bool) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, true
	}

	s = ordinalPattern.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	// time.Parse wants "Sep", not "Sept".
	if strings.HasPrefix(strings.ToLower(s), "sept ") {
		s = "Sep " + s[5:]
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])

	for _, layout := range writtenDateLayouts {
		d, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if d.Year() == 0 {
			d = d.AddDate(ref.Year(), 0, 0)
		}
		return d, true
	}
	return time.Time{}, false
}

// deadlineWithin reports whether any deadline fact falls between ref's date
// and ref plus window.
func deadlineWithin(facts core.Facts, ref time.Time, window time.Duration) bool {
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(window)
	for _, v := range facts[core.FactDeadline] {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			continue
		}
		if !d.Before(start) && !d.After(end) {
			return true
		}
	}
	return false
}
