package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Filter result reasons.
const (
	ReasonKeyword = "blocked_keyword"
	ReasonSpam    = "spam_pattern"
)

// Compiled once and shared; regexp values are safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains on
	// common TLDs. The bare-domain variant requires a trailing "/" so that
	// "v2.0" or "3.14" do not match.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches +1-555-123-4567, (555) 123-4567, 555.123.4567.
	// It is anchored to whitespace or string boundaries so short numbers
	// like "100" stay clean.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// spamCheck pairs a detection function with a human-readable reason.
type spamCheck struct {
	name   string
	reason string
	match  func(string) bool
	// redact returns text with the offending content removed. Checks
	// without redact are reported but never rewrite a message.
	redact func(string) string
}

// spamChecks is applied in order; the first match wins.
var spamChecks = []spamCheck{
	{
		name:   "url",
		reason: "URLs are not allowed",
		match:  urlPattern.MatchString,
		redact: func(text string) string {
			return urlPattern.ReplaceAllString(text, "[link removed]")
		},
	},
	{
		name:   "phone",
		reason: "Phone numbers are not allowed",
		match:  phonePattern.MatchString,
		redact: func(text string) string {
			return strings.TrimSpace(phonePattern.ReplaceAllString(text, " [number removed] "))
		},
	},
	{name: "char_flood", reason: "Character flooding detected", match: hasCharFlood},
	{name: "word_flood", reason: "Repeated word flooding detected", match: hasWordFlood},
}

// hasCharFlood reports 5 or more consecutive identical runes. RE2 has no
// backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same whitespace-delimited word 3 or more times in
// a row, case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// checkSpamPatterns returns a blocking result for the first matching spam
// check, or a zero result.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{
				Blocked: true,
				Reason:  ReasonSpam,
				Term:    sc.name,
				Detail:  sc.reason,
			}
		}
	}
	return FilterResult{}
}

// redactSpam removes the content matched by the named spam check. The
// boolean is false for checks that only report.
func redactSpam(text, name string) (string, bool) {
	for _, sc := range spamChecks {
		if sc.name == name && sc.redact != nil {
			return sc.redact(text), true
		}
	}
	return "", false
}
