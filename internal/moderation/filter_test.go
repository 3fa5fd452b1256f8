package moderation

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestFilter_Keywords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive", "kill yourself", "go die", "", "  "})

	if len(f.words) != 2 || len(f.phrases) != 2 {
		t.Fatalf("words=%d phrases=%d, want 2 and 2", len(f.words), len(f.phrases))
	}

	tests := []struct {
		input string
		term  string // empty when the text passes
	}{
		{"badword", "badword"},
		{"this is badword here", "badword"},
		{"BaDwOrD", "badword"},
		{"hello, badword!", "badword"},
		{"b@dw0rd", "badword"},
		{"off3n$ive", "offensive"},
		{"offens!ve", "offensive"},
		{"0ff3n$!v3", "offensive"},
		{"you should kill yourself now", "kill yourself"},
		{"KILL YOURSELF", "kill yourself"},
		{"go die already", "go die"},

		{"badwording is fine", ""},
		{"mybadword", ""},
		{"kill yourselves", ""},
		{"kill and yourself", ""},
		{"hello world", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := f.Check(tt.input)
			if res.Blocked != (tt.term != "") {
				t.Fatalf("Check(%q) = %+v, want term %q", tt.input, res, tt.term)
			}
			if res.Blocked && (res.Term != tt.term || res.Reason != ReasonKeyword) {
				t.Errorf("Check(%q) = %s/%s, want %s/%s", tt.input, res.Reason, res.Term, ReasonKeyword, tt.term)
			}
		})
	}
}

func TestFilter_DefaultBlocklist(t *testing.T) {
	f := NewFilter()

	for _, text := range []string{
		"nigger", "faggot", "kill yourself", "child porn",
		"send nudes", "heil hitler", "bomb threat", "free bitcoin",
	} {
		if !f.Check(text).Blocked {
			t.Errorf("Check(%q) passed, want blocked", text)
		}
	}

	for _, text := range []string{
		"hello, how are you?", "what class are you in?", "I need to assess the situation",
		"the grape harvest was great", "let's talk about movies", "",
	} {
		if res := f.Check(text); res.Blocked {
			t.Errorf("Check(%q) blocked on %q, want clean", text, res.Term)
		}
	}
}

func TestFilter_CheckKeywordsIgnoresSpam(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	if res := f.CheckKeywords("visit http://evil.com"); res.Blocked {
		t.Errorf("CheckKeywords blocked a URL: %+v", res)
	}
	if res := f.CheckKeywords("wow badword!!!"); !res.Blocked || res.Term != "badword" {
		t.Errorf("CheckKeywords(trailing bangs) = %+v, want badword", res)
	}
}

func TestHeuristicFilter(t *testing.T) {
	f := NewHeuristicFilter()

	tests := []struct {
		input   string
		blocked bool
	}{
		{"you are an idiot", true},
		{"well DAMN", true},
		{"what a $h!t show", true},
		{"this is crap", true},
		{"have a nice day", false},
		{"kill yourself", false}, // only profanity is in the heuristic list
		{"scrap metal", false},
	}

	for _, tt := range tests {
		if got := f.CheckKeywords(tt.input).Blocked; got != tt.blocked {
			t.Errorf("CheckKeywords(%q).Blocked = %v, want %v", tt.input, got, tt.blocked)
		}
	}
}

func TestFilter_Mask(t *testing.T) {
	f := NewFilterWithTerms([]string{"idiot", "go die"})

	tests := []struct {
		input string
		want  string
	}{
		{"you idiot", "you *****"},
		{"IDIOT!", "*****!"},
		{"just go  die", "just **  ***"},
		{"idiots are fine", "idiots are fine"},
		{"nothing here", "nothing here"},
	}

	for _, tt := range tests {
		if got := f.Mask(tt.input); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if got := NewFilterWithTerms(nil).Mask("you idiot"); got != "you idiot" {
		t.Errorf("empty filter Mask changed text: %q", got)
	}
}

func TestNormalization(t *testing.T) {
	leet := map[string]string{
		"h3ll0": "hello", "@ss": "ass", "$h!t": "shit", "ch@ng3": "change", "upper": "upper",
	}
	for in, want := range leet {
		if got := normalizeLeet(in); got != want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", in, got, want)
		}
	}

	tokens := []struct {
		fn    func(string) []string
		name  string
		input string
		want  []string
	}{
		{tokenizePlain, "plain", "hello, world!", []string{"hello", "world"}},
		{tokenizePlain, "plain", "  spaced  out  ", []string{"spaced", "out"}},
		{tokenizePlain, "plain", "hello---world", []string{"hello", "world"}},
		{tokenizePlain, "plain", "", nil},
		{tokenizeLeet, "leet", "b@dw0rd", []string{"b@dw0rd"}},
		{tokenizeLeet, "leet", "hello $h!t bye", []string{"hello", "$h!t", "bye"}},
	}
	for _, tt := range tokens {
		if got := tt.fn(tt.input); !slices.Equal(got, tt.want) {
			t.Errorf("tokenize %s(%q) = %q, want %q", tt.name, tt.input, got, tt.want)
		}
	}
}

func BenchmarkLocalClassifier(b *testing.B) {
	l := NewLocalClassifier(nil)
	msgs := []string{
		"hey how are you doing today? I love chatting about music and movies.",
		"you are such an idiot, go die",
		strings.Repeat("this is a perfectly normal message with no bad content. ", 40),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Classify(context.Background(), msgs[i%len(msgs)])
	}
}

// The local classifier sits on every message's path when Gemini is off, so
// it must stay well under a millisecond.
func TestLocalClassifierLatency(t *testing.T) {
	l := NewLocalClassifier(nil)
	msg := strings.Repeat("what are your favorite hobbies? ", 30)

	const iterations = 1000
	start := time.Now()
	for i := 0; i < iterations; i++ {
		_, _ = l.Classify(context.Background(), msg)
	}
	avg := time.Since(start) / iterations
	t.Logf("average Classify latency: %v", avg)

	limit := 200 * time.Microsecond
	if raceDetectorEnabled {
		limit = 2 * time.Millisecond
	}
	if avg > limit {
		t.Errorf("Classify latency %v exceeds %v", avg, limit)
	}
}
