// Package moderation classifies chat text as toxic or clean and proposes a
// civil rewrite for toxic text. Classifiers are pluggable (Gemini, a remote
// worker over NATS, a local keyword filter, or a deterministic stub); the
// Client wraps any of them with a bounded timeout and fails open.
package moderation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FallbackRewrite replaces a toxic message when the classifier offers no
// usable rewrite.
const FallbackRewrite = "I'd like to express my thoughts more respectfully."

// Verdict is the outcome of classifying one text.
type Verdict struct {
	IsToxic bool
	Rewrite string // proposed civil version; may be empty
}

// FinalText returns the text to publish for original under v: the rewrite
// (or FallbackRewrite) when toxic, the original otherwise.
func (v Verdict) FinalText(original string) string {
	if !v.IsToxic {
		return original
	}
	if rw := strings.TrimSpace(v.Rewrite); rw != "" {
		return rw
	}
	return FallbackRewrite
}

// Classifier is a text-classification backend. Implementations may block
// and may fail; the Client turns failures into clean verdicts.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Verdict, error) {
	return f(ctx, text)
}

// Nop classifies everything as clean.
type Nop struct{}

func (Nop) Classify(context.Context, string) (Verdict, error) {
	return Verdict{}, nil
}

// Stub is a deterministic classifier for tests. Texts present in Verdicts
// get that verdict; everything else is clean. Err, when set, is returned
// for every call. Delay makes each call wait, honoring ctx.
type Stub struct {
	mu       sync.RWMutex
	Verdicts map[string]Verdict
	Err      error
	Delay    time.Duration

	calls atomic.Int64
}

// NewStub returns a Stub with an empty verdict table.
func NewStub() *Stub {
	return &Stub{Verdicts: make(map[string]Verdict)}
}

// Set registers the verdict returned for text.
func (s *Stub) Set(text string, v Verdict) {
	s.mu.Lock()
	s.Verdicts[text] = v
	s.mu.Unlock()
}

// Calls returns how many times Classify ran.
func (s *Stub) Calls() int {
	return int(s.calls.Load())
}

func (s *Stub) Classify(ctx context.Context, text string) (Verdict, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return Verdict{}, s.Err
	}
	s.mu.RLock()
	v := s.Verdicts[text]
	s.mu.RUnlock()
	return v, nil
}
