package moderation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
)

// Requester sends a request and waits for one reply.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// RemoteClassifier delegates classification to moderator workers over
// NATS request/reply.
type RemoteClassifier struct {
	nc Requester
}

func NewRemoteClassifier(nc Requester) *RemoteClassifier {
	return &RemoteClassifier{nc: nc}
}

func (r *RemoteClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	data, err := json.Marshal(ModerationRequest{Text: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: encode request: %w", err)
	}

	reply, err := r.nc.Request(ctx, messaging.SubjectModeration, data)
	if err != nil {
		return Verdict{}, err
	}

	var res ModerationResult
	if err := json.Unmarshal(reply, &res); err != nil {
		return Verdict{}, fmt.Errorf("moderation: decode reply: %w", err)
	}
	return res.Verdict(), nil
}

// RequestHandler answers encoded ModerationRequests with c. It is the
// worker side of RemoteClassifier.
func RequestHandler(ctx context.Context, c *Client) func(data []byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		var req ModerationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("moderation: decode request: %w", err)
		}
		v := c.Check(ctx, req.Text)
		return json.Marshal(ResultFromVerdict(v))
	}
}
