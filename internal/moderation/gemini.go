package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

const geminiPrompt = `You are a content moderator for a public chat room.
Decide whether the message below is toxic (insults, harassment, hate, threats, sexual content, or profanity aimed at someone).
If it is toxic, rewrite it so the speaker's point survives but the tone is civil.
Reply with a single JSON object and nothing else:
{"isToxic": true|false, "detoxifiedText": "<civil rewrite, or the original text when not toxic>"}

Message: %q`

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// GeminiClassifier classifies text with a Gemini model.
type GeminiClassifier struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClassifier dials the Gemini API with apiKey.
func NewGeminiClassifier(ctx context.Context, apiKey, modelName string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("moderation: gemini api key is empty")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("moderation: gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiClassifier{client: client, model: model}, nil
}

func (g *GeminiClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(geminiPrompt, text)))
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Verdict{}, errors.New("moderation: gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return ParseVerdict(b.String())
}

// Close releases the underlying client.
func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

// ParseVerdict extracts a verdict from a model reply. The first {...} span
// is decoded as a ModerationResult. A reply with no JSON at all is treated
// as toxic when it mentions "toxic" but not "not toxic", and gets the
// fallback rewrite. A span that does not decode is an error.
func ParseVerdict(raw string) (Verdict, error) {
	span := jsonObject.FindString(raw)
	if span == "" {
		lower := strings.ToLower(raw)
		if strings.Contains(lower, "toxic") && !strings.Contains(lower, "not toxic") {
			return Verdict{IsToxic: true, Rewrite: FallbackRewrite}, nil
		}
		return Verdict{}, nil
	}

	var res ModerationResult
	if err := json.Unmarshal([]byte(span), &res); err != nil {
		return Verdict{}, fmt.Errorf("moderation: decode verdict: %w", err)
	}
	v := res.Verdict()
	v.Rewrite = strings.TrimSpace(v.Rewrite)
	return v, nil
}
