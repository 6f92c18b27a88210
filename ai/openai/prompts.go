package openai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/poiesic/triage/ai"
)

const analysisResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "category": {"type": "string"},
    "priority": {"type": "integer", "minimum": 1, "maximum": 5},
    "keywords": {"type": "array", "items": {"type": "string"}},
    "facts": {"type": "object", "additionalProperties": {"type": "string"}},
    "requires_response": {"type": "boolean"},
    "sentiment": {"type": "string", "enum": ["positive", "negative", "neutral"]},
    "reasoning": {"type": "string"}
  },
  "required": ["category", "priority", "requires_response"],
  "additionalProperties": false
}`

const analysisPromptTemplate = `You are an email triage analyzer. Read the email and return a JSON object.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble or
explanation. Start your response directly with { and end with }. Schema:

%s

Rules:
- "category" must be exactly one of:
%s
- "priority" is 1 (can wait) to 5 (needs action today). Consider urgency words (urgent, asap,
  deadline, important), who the sender is, and whether something is due.
- "facts" may only use these keys: %s. Omit a key when the email does not state it.
  Dates use YYYY-MM-DD. Amounts keep their currency symbol.
- "keywords" lists at most 5 main topics, lowercase.
- If unsure of the category, use "other".

Example:
Input:
From: billing@acme.example
Subject: Invoice INV-2291 due 2025-04-30
Body: Please find attached invoice INV-2291 for $1,250.00. Payment is due by 2025-04-30.
Output:
{"category":"invoice","priority":4,"keywords":["invoice","payment"],"facts":{"invoice_number":"INV-2291","amount":"$1,250.00","currency":"USD","deadline":"2025-04-30","vendor":"acme"},"requires_response":false,"sentiment":"neutral","reasoning":"vendor invoice with due date"}
`

const compositionResponseSchema = `{
  "type": "object",
  "properties": {
    "reply": {"type": "string"},
    "response_type": {"type": "string", "enum": ["reply", "none"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "suggested_actions": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["reply", "response_type", "confidence"],
  "additionalProperties": false
}`

const compositionPromptTemplate = `You are a professional email assistant. Draft a reply body for the email you are given.

Output ONLY valid JSON matching this schema:

%s

Guidelines:
- Be professional and helpful, address the main points, and use an appropriate tone.
- Keep the reply under %d words. Do not include a subject line.
- Use the provided knowledge when it applies. Never invent prices, dates, or commitments
  that are not in the email or the knowledge.
- Set "response_type" to "none" for newsletters, spam, and messages that need no answer,
  and leave "reply" empty in that case.
- "confidence" is how sure you are that the reply could be sent without human edits:
  below 0.5 when information is missing or the request is ambiguous.
`

// buildAnalysisPrompt returns the system prompt for message analysis.
func buildAnalysisPrompt() string {
	var cats strings.Builder
	for _, c := range ai.CategoryDescriptions {
		fmt.Fprintf(&cats, "  - %s: %s\n", c[0], c[1])
	}
	return fmt.Sprintf(analysisPromptTemplate, analysisResponseSchema, strings.TrimRight(cats.String(), "\n"), strings.Join(ai.FactNames, ", "))
}

// buildCompositionPrompt returns the system prompt for reply drafting.
func buildCompositionPrompt(maxWords int) string {
	return fmt.Sprintf(compositionPromptTemplate, compositionResponseSchema, maxWords)
}

// formatEmail renders the human turn describing a message.
func formatEmail(sender, subject, body string) string {
	return fmt.Sprintf("From: %s\nSubject: %s\nBody: %s", sender, subject, truncateRunes(body, maxBodyRunes))
}

// formatCompositionInput renders the human turn for reply drafting.
func formatCompositionInput(req ai.CompositionRequest) string {
	var b strings.Builder
	if len(req.Context) > 0 {
		b.WriteString("Relevant knowledge:\n")
		for i, c := range req.Context {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
		b.WriteString("\n")
	}
	if len(req.Facts) > 0 {
		keys := make([]string, 0, len(req.Facts))
		for k := range req.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Extracted facts:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Facts[k])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Category: %s\n\nOriginal email:\n%s", req.Category, formatEmail(req.Sender, req.Subject, req.Body))
	return b.String()
}
