package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClientCheck_PassesVerdictThrough(t *testing.T) {
	stub := NewStub()
	stub.Set("you idiot", Verdict{IsToxic: true, Rewrite: "I disagree with you"})
	c := NewClient(stub, time.Second)

	v := c.Check(context.Background(), "you idiot")
	if !v.IsToxic || v.Rewrite != "I disagree with you" {
		t.Fatalf("Check = %+v, want toxic with rewrite", v)
	}

	if v := c.Check(context.Background(), "hello"); v.IsToxic {
		t.Fatalf("Check(hello) = %+v, want clean", v)
	}
	if stub.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", stub.Calls())
	}
}

func TestClientCheck_FailsOpen(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
	}{
		{"error", ClassifierFunc(func(context.Context, string) (Verdict, error) {
			return Verdict{IsToxic: true}, errors.New("backend down")
		})},
		{"panic", ClassifierFunc(func(context.Context, string) (Verdict, error) {
			panic("boom")
		})},
		{"timeout honoring ctx", &Stub{Verdicts: map[string]Verdict{"x": {IsToxic: true}}, Delay: time.Second}},
		{"timeout ignoring ctx", ClassifierFunc(func(context.Context, string) (Verdict, error) {
			time.Sleep(500 * time.Millisecond)
			return Verdict{IsToxic: true}, nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.classifier, 50*time.Millisecond)

			start := time.Now()
			v := c.Check(context.Background(), "x")
			elapsed := time.Since(start)

			if v.IsToxic {
				t.Errorf("Check = %+v, want clean verdict", v)
			}
			if elapsed > 400*time.Millisecond {
				t.Errorf("Check took %v, want bounded by timeout", elapsed)
			}
		})
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient(Nop{}, 0)
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
}

// ---------------------------------------------------------------------------
// Verdict
// ---------------------------------------------------------------------------

func TestVerdictFinalText(t *testing.T) {
	tests := []struct {
		name string
		v    Verdict
		want string
	}{
		{"clean keeps original", Verdict{Rewrite: "ignored"}, "original"},
		{"toxic uses rewrite", Verdict{IsToxic: true, Rewrite: " civil "}, "civil"},
		{"toxic without rewrite", Verdict{IsToxic: true}, FallbackRewrite},
		{"toxic with blank rewrite", Verdict{IsToxic: true, Rewrite: "   "}, FallbackRewrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.FinalText("original"); got != tt.want {
				t.Errorf("FinalText = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ParseVerdict
// ---------------------------------------------------------------------------

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Verdict
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"isToxic": true, "detoxifiedText": "Please stop."}`,
			want: Verdict{IsToxic: true, Rewrite: "Please stop."},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"isToxic\": false, \"detoxifiedText\": \"hi\"}\n```",
			want: Verdict{IsToxic: false, Rewrite: "hi"},
		},
		{
			name: "toxic without rewrite",
			raw:  `{"isToxic": true}`,
			want: Verdict{IsToxic: true},
		},
		{
			name: "prose says toxic",
			raw:  "This message is toxic.",
			want: Verdict{IsToxic: true, Rewrite: FallbackRewrite},
		},
		{
			name: "prose says not toxic",
			raw:  "The message is NOT toxic.",
			want: Verdict{},
		},
		{
			name: "prose without keyword",
			raw:  "looks fine to me",
			want: Verdict{},
		},
		{
			name:    "malformed json",
			raw:     `{"isToxic": maybe}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerdict err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// LocalClassifier
// ---------------------------------------------------------------------------

func TestLocalClassifier(t *testing.T) {
	l := NewLocalClassifier(NewFilterWithTerms([]string{"idiot"}))

	tests := []struct {
		name string
		text string
		want Verdict
	}{
		{"clean", "good morning", Verdict{}},
		{"keyword is masked", "you idiot", Verdict{IsToxic: true, Rewrite: "you *****"}},
		{"leet keyword has no rewrite", "you 1d10t", Verdict{IsToxic: true}},
		{"url is redacted", "go to www.spam.net", Verdict{IsToxic: true, Rewrite: "go to [link removed]"}},
		{"flooding is allowed", "nooooooo", Verdict{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RemoteClassifier
// ---------------------------------------------------------------------------

type requesterFunc func(ctx context.Context, subject string, data []byte) ([]byte, error)

func (f requesterFunc) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	return f(ctx, subject, data)
}

func TestRemoteClassifier_RoundTrip(t *testing.T) {
	stub := NewStub()
	stub.Set("you idiot", Verdict{IsToxic: true, Rewrite: "I disagree"})
	handle := RequestHandler(context.Background(), NewClient(stub, time.Second))

	var gotSubject string
	r := NewRemoteClassifier(requesterFunc(func(_ context.Context, subject string, data []byte) ([]byte, error) {
		gotSubject = subject
		return handle(data)
	}))

	v, err := r.Classify(context.Background(), "you idiot")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gotSubject != messaging.SubjectModeration {
		t.Errorf("subject = %q, want %q", gotSubject, messaging.SubjectModeration)
	}
	if v != (Verdict{IsToxic: true, Rewrite: "I disagree"}) {
		t.Errorf("verdict = %+v", v)
	}
}

func TestRemoteClassifier_Errors(t *testing.T) {
	failing := NewRemoteClassifier(requesterFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, errors.New("no responders")
	}))
	if _, err := failing.Classify(context.Background(), "x"); err == nil {
		t.Error("expected request error")
	}

	garbled := NewRemoteClassifier(requesterFunc(func(context.Context, string, []byte) ([]byte, error) {
		return []byte("not json"), nil
	}))
	if _, err := garbled.Classify(context.Background(), "x"); err == nil {
		t.Error("expected decode error")
	}
}

func TestRequestHandler_RejectsGarbage(t *testing.T) {
	handle := RequestHandler(context.Background(), NewClient(Nop{}, time.Second))
	if _, err := handle([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}

	data, _ := json.Marshal(ModerationRequest{Text: "hello"})
	reply, err := handle(data)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var res ModerationResult
	if err := json.Unmarshal(reply, &res); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if res.IsToxic {
		t.Errorf("reply = %+v, want clean", res)
	}
}
