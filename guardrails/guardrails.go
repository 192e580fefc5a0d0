// Package guardrails validates user input before any provider call is made
// and model output before it is committed to memory or shown to a user.
// Input validation short-circuits the round trip; output validation never
// blocks delivery, it substitutes a sanitized text and attaches warnings.
package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputLength bounds user input; anything longer is rejected outright.
const MaxInputLength = 4000

// Verdict is the result of one validation pass. Produced fresh per call and
// never persisted.
type Verdict struct {
	Safe      bool     `json:"safe"`
	Reasons   []string `json:"reasons,omitempty"`
	Sanitized string   `json:"sanitized,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Patterns that try to subvert the assistant's instructions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)disregard\s+(your|the)\s+(instructions?|system\s+prompt)`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+system\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(dan|in\s+developer\s+mode)`),
}

// Output patterns that should never reach a user verbatim.
var (
	apiKeyPattern     = regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{16,}|sk-ant-[A-Za-z0-9_-]{16,})\b`)
	cardNumberPattern = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
	systemLeakPattern = regexp.MustCompile(`(?i)my\s+system\s+prompt\s+(is|says)`)
)

const redacted = "[redacted]"

// ValidateInput inspects raw user input before it is sent anywhere. A
// rejection guarantees no provider call and no memory write happens for this
// turn.
func ValidateInput(text string) Verdict {
	verdict := Verdict{Safe: true}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		verdict.Safe = false
		verdict.Reasons = append(verdict.Reasons, "message is empty")
		return verdict
	}
	if utf8.RuneCountInString(text) > MaxInputLength {
		verdict.Safe = false
		verdict.Reasons = append(verdict.Reasons, "message exceeds maximum length")
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			verdict.Safe = false
			verdict.Reasons = append(verdict.Reasons, "message attempts to override assistant instructions")
			break
		}
	}
	return verdict
}

// ValidateOutput inspects model output before it is committed or delivered.
// Unsafe content never blocks the reply: Sanitized always carries a deliverable
// text, with Warnings explaining what was scrubbed.
func ValidateOutput(text string) Verdict {
	verdict := Verdict{Safe: true, Sanitized: text}

	if apiKeyPattern.MatchString(text) {
		verdict.Safe = false
		verdict.Warnings = append(verdict.Warnings, "response contained an API credential")
		verdict.Sanitized = apiKeyPattern.ReplaceAllString(verdict.Sanitized, redacted)
	}
	if cardNumberPattern.MatchString(text) {
		verdict.Safe = false
		verdict.Warnings = append(verdict.Warnings, "response contained a possible payment card number")
		verdict.Sanitized = cardNumberPattern.ReplaceAllString(verdict.Sanitized, redacted)
	}
	if systemLeakPattern.MatchString(text) {
		verdict.Safe = false
		verdict.Warnings = append(verdict.Warnings, "response referenced its system prompt")
	}
	return verdict
}

var (
	tripleNewlines = regexp.MustCompile(`\n{3,}`)
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
)

// FormatMarkdown normalizes model output for rendering: line endings become
// \n, trailing whitespace is stripped, and runs of blank lines collapse to
// one. The function is idempotent.
func FormatMarkdown(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = trailingSpace.ReplaceAllString(out, "\n")
	out = tripleNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimRight(out, " \t\n")
}
