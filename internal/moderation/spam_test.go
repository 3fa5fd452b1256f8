package moderation

import "testing"

func TestSpamChecks(t *testing.T) {
	f := NewFilterWithTerms(nil) // spam checks only

	tests := []struct {
		input string
		term  string // empty when the text is clean
	}{
		// links
		{"check out http://evil.com", "url"},
		{"visit https://spam.xyz/click", "url"},
		{"go to www.phishing.net", "url"},
		{"visit evil.com/free", "url"},
		{"see example.org/page", "url"},
		{"check app.io/signup", "url"},
		{"go to site.ru/malware", "url"},

		// phone numbers
		{"+1-555-123-4567", "phone"},
		{"(555) 123-4567", "phone"},
		{"555.123.4567", "phone"},
		{"555 123 4567", "phone"},
		{"call me at 555-123-4567 okay?", "phone"},

		// flooding
		{"hellooooooo", "char_flood"},
		{"AAAAAA", "char_flood"},
		{"wow!!!!!", "char_flood"},
		{"=====", "char_flood"},
		{"aaaaa", "char_flood"},
		{"buy buy buy", "word_flood"},
		{"hey buy buy buy now", "word_flood"},
		{"BUY buy Buy", "word_flood"},

		// clean
		{"aaaa", ""},
		{"heeeel no", ""},
		{"go go", ""},
		{"yeah yeah whatever", ""},
		{"I got 42 out of 50", ""},
		{"see you in 2025", ""},
		{"upgrade to v2.0", ""},
		{"pi is about 3.14", ""},
		{"it costs $5.99", ""},
		{"ok. sure. fine.", ""},
		{"wow!!! that's great!!", ""},
		{"hello\nworld", ""},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := f.Check(tt.input)
			if res.Blocked != (tt.term != "") {
				t.Fatalf("Check(%q) = %+v, want term %q", tt.input, res, tt.term)
			}
			if !res.Blocked {
				return
			}
			if res.Term != tt.term || res.Reason != ReasonSpam {
				t.Errorf("Check(%q) = %s/%s, want %s/%s", tt.input, res.Reason, res.Term, ReasonSpam, tt.term)
			}
		})
	}
}

func TestSpamChecks_KeywordsTakePrecedence(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	if res := f.Check("badword at http://evil.com"); res.Reason != ReasonKeyword || res.Term != "badword" {
		t.Errorf("mixed message = %+v, want keyword hit", res)
	}
	if res := f.Check("visit http://evil.com"); res.Reason != ReasonSpam || res.Term != "url" {
		t.Errorf("link only = %+v, want url", res)
	}
}

func TestRedactSpam(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		check  string
		want   string
		redact bool
	}{
		{"url", "see https://evil.com/x now", "url", "see [link removed] now", true},
		{"phone", "call 555-123-4567 tonight", "phone", "call [number removed] tonight", true},
		{"char flood is report only", "heyyyyy", "char_flood", "", false},
		{"unknown check", "hello", "nope", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := redactSpam(tt.input, tt.check)
			if ok != tt.redact || got != tt.want {
				t.Errorf("redactSpam(%q, %q) = (%q, %v), want (%q, %v)",
					tt.input, tt.check, got, ok, tt.want, tt.redact)
			}
		})
	}
}
