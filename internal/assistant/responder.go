package assistant

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrMissingAPIKey   = errors.New("assistant api key missing")
	ErrEmptyCompletion = errors.New("assistant returned no text")
)

// Responder produces the assistant's reply to a prompt. apiKey may be empty,
// in which case the implementation's default credential applies.
type Responder interface {
	Complete(ctx context.Context, prompt, apiKey string) (string, error)
}

// GeminiResponder calls the Gemini API. A client is built per call because the
// key may be supplied by the requesting participant.
type GeminiResponder struct {
	model       string
	fallbackKey string
}

func NewGeminiResponder(model, fallbackKey string) *GeminiResponder {
	return &GeminiResponder{model: model, fallbackKey: fallbackKey}
}

func (g *GeminiResponder) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	if apiKey == "" {
		apiKey = g.fallbackKey
	}
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
