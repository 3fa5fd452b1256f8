package moderation

// ModerationRequest is sent on moderation.check by the chat server when the
// remote backend is configured.
type ModerationRequest struct {
	Text string `json:"text"`
	Room string `json:"room,omitempty"`
}

// ModerationResult is the reply to a ModerationRequest. Its shape matches
// the JSON object the Gemini prompt asks for.
type ModerationResult struct {
	IsToxic        bool   `json:"isToxic"`
	DetoxifiedText string `json:"detoxifiedText,omitempty"`
}

// Verdict converts the wire result.
func (r ModerationResult) Verdict() Verdict {
	return Verdict{IsToxic: r.IsToxic, Rewrite: r.DetoxifiedText}
}

// ResultFromVerdict converts v for the wire.
func ResultFromVerdict(v Verdict) ModerationResult {
	return ModerationResult{IsToxic: v.IsToxic, DetoxifiedText: v.Rewrite}
}
