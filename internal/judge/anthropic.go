package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicDefaultModel = "claude-haiku-4-5-20251001"

	// extractMaxTokens bounds the structured-extraction response.
	extractMaxTokens = 512

	// classifyMaxTokens bounds a closed-set answer; tokens are single words.
	classifyMaxTokens = 8
)

// AnthropicJudge implements Judge against the Anthropic Messages API.
type AnthropicJudge struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewAnthropicJudge creates a judge backed by the Anthropic API.
// model defaults to a small fast model when empty.
func NewAnthropicJudge(apiKey, model string, logger *slog.Logger) *AnthropicJudge {
	if model == "" {
		model = anthropicDefaultModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicJudge{
		client: &c,
		model:  model,
		logger: logger,
	}
}

func (a *AnthropicJudge) Extract(ctx context.Context, prompt string) (json.RawMessage, error) {
	text, err := a.complete(ctx, prompt, extractMaxTokens,
		"You are a precise extraction system. Output only valid JSON.")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(stripFences(text)), nil
}

func (a *AnthropicJudge) Classify(ctx context.Context, prompt string) (string, error) {
	text, err := a.complete(ctx, prompt, classifyMaxTokens,
		"You are a strict classifier. Answer with exactly one of the allowed words, nothing else.")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (a *AnthropicJudge) complete(ctx context.Context, prompt string, maxTokens int64, system string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic call: %w", err)
	}

	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			return resp.Content[i].Text, nil
		}
	}

	return "", fmt.Errorf("anthropic call: no text block in response")
}
