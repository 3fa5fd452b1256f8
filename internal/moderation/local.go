package moderation

import (
	"context"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
)

// LocalClassifier classifies with a keyword Filter, without any network
// call. Blocklist hits are toxic and rewritten by masking the matched
// terms. Links and phone numbers are toxic and redacted. Flooding is
// reported but allowed.
type LocalClassifier struct {
	filter *Filter
}

// NewLocalClassifier uses f, or the default blocklist when f is nil.
func NewLocalClassifier(f *Filter) *LocalClassifier {
	if f == nil {
		f = NewFilter()
	}
	return &LocalClassifier{filter: f}
}

func (l *LocalClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	res := l.filter.Check(text)
	if !res.Blocked {
		return Verdict{}, nil
	}

	logging.Ctx(ctx).Debug().
		Str("reason", res.Reason).
		Str("term", res.Term).
		Msg("local filter match")

	switch res.Reason {
	case ReasonKeyword:
		masked := l.filter.Mask(text)
		if masked == text {
			// leetspeak hit the mask cannot locate
			return Verdict{IsToxic: true}, nil
		}
		return Verdict{IsToxic: true, Rewrite: masked}, nil
	case ReasonSpam:
		if redacted, ok := redactSpam(text, res.Term); ok {
			return Verdict{IsToxic: true, Rewrite: redacted}, nil
		}
	}
	return Verdict{}, nil
}
