package classify

import (
	"net/mail"
	"strings"

	"github.com/poiesic/triage/core"
)

// UrgencyKeywords raise priority by one level when present.
var UrgencyKeywords = []string{"urgent", "asap", "immediately", "deadline", "critical"}

// categoryKeywords drive the fallback classification, checked in order.
var categoryKeywords = []struct {
	category core.Category
	keywords []string
}{
	{core.CategorySpam, []string{"lottery", "you have won", "claim your prize", "wire transfer fee", "click here to claim"}},
	{core.CategoryNewsletter, []string{"unsubscribe", "newsletter", "weekly digest", "view in browser"}},
	{core.CategoryUrgent, []string{"urgent", "asap", "emergency", "immediately"}},
	{core.CategoryInvoice, []string{"invoice", "billing", "payment due", "receipt", "amount due"}},
	{core.CategorySupport, []string{"error", "bug", "not working", "crash", "issue", "help with", "broken"}},
	{core.CategorySales, []string{"pricing", "quote", "demo", "purchase", "discount", "plan options"}},
	{core.CategoryBusiness, []string{"partnership", "proposal", "contract", "meeting", "agenda"}},
}

// basePriority is the starting priority when the provider gave none.
func basePriority(c core.Category) core.Priority {
	switch c {
	case core.CategoryUrgent:
		return core.PriorityUrgent
	case core.CategoryInvoice:
		return core.PriorityHigh
	case core.CategoryNewsletter, core.CategorySpam:
		return core.PriorityLow
	default:
		return core.PriorityMedium
	}
}

// heuristicCategory picks a category from keywords alone.
func heuristicCategory(text string) core.Category {
	lower := strings.ToLower(text)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return core.CategoryOther
}

// matchedKeywords returns the urgency keywords found in text.
func matchedKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// senderDomain extracts the lowercased domain of an address such as
// "Jane <jane@example.com>".
func senderDomain(sender string) string {
	addr := sender
	if parsed, err := mail.ParseAddress(sender); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(addr[at+1:], "<> \t"))
}

// domainMatches reports whether domain equals one of the listed domains or is a subdomain of one.
func domainMatches(domain string, list []string) bool {
	if domain == "" {
		return false
	}
	for _, d := range list {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
