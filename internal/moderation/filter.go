package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// HeuristicTerms is the profanity list used when the classifier path fails
// and the pipeline falls back to local matching.
var HeuristicTerms = []string{
	"fuck", "shit", "asshole", "bitch", "damn", "crap", "stupid", "idiot",
}

// defaultTerms is the blocklist of the local classifier: the heuristic
// profanity plus slurs, threats, self-harm incitement, sexual exploitation
// and scam phrases.
var defaultTerms = append(append([]string{}, HeuristicTerms...),
	// slurs
	"nigger", "faggot", "retard", "tranny", "chink", "spic", "kike",
	// harassment and self-harm
	"kill yourself", "kys", "go die", "nobody loves you",
	// threats
	"i will kill you", "bomb threat",
	// sexual exploitation
	"child porn", "send nudes", "cp links",
	// extremism
	"heil hitler", "white power",
	// scams
	"free bitcoin", "crypto giveaway", "double your money",
)

// leetMap folds common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// FilterResult is the outcome of Filter.Check.
type FilterResult struct {
	Blocked bool
	Reason  string // ReasonKeyword or ReasonSpam
	Term    string // matched term or spam check name
	Detail  string // human-readable spam reason
}

// Filter matches text against a term blocklist on whole-word boundaries,
// case-insensitively and with leetspeak folding, and then against spam
// patterns. It is safe for concurrent use after construction.
type Filter struct {
	words   map[string]struct{}
	phrases []phrase
	mask    *regexp.Regexp // nil when the filter has no terms
}

type phrase struct {
	text   string
	tokens []string
}

// NewFilter returns a Filter over the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewHeuristicFilter returns a Filter over HeuristicTerms only.
func NewHeuristicFilter() *Filter {
	return NewFilterWithTerms(HeuristicTerms)
}

// NewFilterWithTerms returns a Filter over terms. Terms with more than one
// word are matched as consecutive tokens. Blank terms are ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}

	var alternatives []string
	for _, term := range terms {
		tokens := strings.Fields(strings.ToLower(term))
		if len(tokens) == 0 {
			continue
		}
		text := strings.Join(tokens, " ")
		if len(tokens) == 1 {
			f.words[text] = struct{}{}
		} else {
			f.phrases = append(f.phrases, phrase{text: text, tokens: tokens})
		}

		quoted := make([]string, len(tokens))
		for i, tok := range tokens {
			quoted[i] = regexp.QuoteMeta(tok)
		}
		alternatives = append(alternatives, strings.Join(quoted, `\s+`))
	}

	if len(alternatives) > 0 {
		f.mask = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
	}
	return f
}

// Check returns the first blocklist or spam match in text.
func (f *Filter) Check(text string) FilterResult {
	if res := f.CheckKeywords(text); res.Blocked {
		return res
	}
	return f.checkSpamPatterns(text)
}

// CheckKeywords matches the blocklist only, skipping spam patterns.
func (f *Filter) CheckKeywords(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}
	lower := strings.ToLower(text)

	if term, ok := f.matchTokens(tokenizePlain(lower)); ok {
		return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: term}
	}

	leet := tokenizeLeet(lower)
	for i, tok := range leet {
		leet[i] = normalizeLeet(strings.TrimRight(tok, "!"))
	}
	if term, ok := f.matchTokens(leet); ok {
		return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: term}
	}
	return FilterResult{}
}

// Mask replaces every plain-text blocklist match in text with asterisks of
// the same length. Leetspeak variants are left untouched.
func (f *Filter) Mask(text string) string {
	if f.mask == nil {
		return text
	}
	return f.mask.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return r
			}
			return '*'
		}, m)
	})
}

func (f *Filter) matchTokens(tokens []string) (string, bool) {
	for i, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
		for _, p := range f.phrases {
			if tokensHavePrefix(tokens[i:], p.tokens) {
				return p.text, true
			}
		}
	}
	return "", false
}

func tokensHavePrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

// tokenizePlain splits on every rune that is not a letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits like tokenizePlain but keeps leet substitution
// symbols inside tokens.
func tokenizeLeet(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		if _, ok := leetMap[r]; ok {
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if sub, ok := leetMap[r]; ok {
			return sub
		}
		return r
	}, s)
}
