package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 5 * time.Second

var errClassifierPanic = errors.New("moderation: classifier panicked")

// Client runs a Classifier under a timeout and never fails: errors,
// timeouts and panics all yield a clean verdict.
type Client struct {
	classifier Classifier
	timeout    time.Duration
}

// NewClient wraps classifier. A non-positive timeout means DefaultTimeout.
func NewClient(classifier Classifier, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{classifier: classifier, timeout: timeout}
}

type classifyResult struct {
	verdict Verdict
	err     error
}

// Check classifies text. The classifier runs on its own goroutine so one
// that ignores ctx still cannot hold the caller past the timeout.
func (c *Client) Check(ctx context.Context, text string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan classifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("%w: %v", errClassifierPanic, r)}
			}
		}()
		v, err := c.classifier.Classify(ctx, text)
		done <- classifyResult{verdict: v, err: err}
	}()

	log := logging.Ctx(ctx)

	select {
	case res := <-done:
		metrics.ModerationLatency.Observe(time.Since(start).Seconds())
		if res.err != nil {
			reason := metrics.FailureError
			switch {
			case errors.Is(res.err, errClassifierPanic):
				reason = metrics.FailurePanic
			case errors.Is(res.err, context.DeadlineExceeded):
				reason = metrics.FailureTimeout
			}
			metrics.ModerationFailures.WithLabelValues(reason).Inc()
			log.Warn().Err(res.err).Str("reason", reason).Msg("moderation failed, delivering unmoderated")
			return Verdict{}
		}
		return res.verdict

	case <-ctx.Done():
		metrics.ModerationLatency.Observe(time.Since(start).Seconds())
		metrics.ModerationFailures.WithLabelValues(metrics.FailureTimeout).Inc()
		log.Warn().Err(ctx.Err()).Dur("timeout", c.timeout).Msg("moderation timed out, delivering unmoderated")
		return Verdict{}
	}
}
