package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"

	openAIDefaultModel   = "gpt-4o-mini"
	deepSeekDefaultModel = "deepseek-chat"

	openAIHTTPTimeout = 60 * time.Second
)

// OpenAIJudge implements Judge against any OpenAI-compatible chat completions
// endpoint. DeepSeek exposes the same API surface, so both providers share
// this client with different base URLs.
type OpenAIJudge struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIJudge creates a judge backed by the OpenAI API.
// model defaults to a small fast model when empty.
func NewOpenAIJudge(apiKey, model string, logger *slog.Logger) *OpenAIJudge {
	if model == "" {
		model = openAIDefaultModel
	}
	return newOpenAICompatibleJudge(openAIBaseURL, apiKey, model, logger)
}

// NewDeepSeekJudge creates a judge backed by the DeepSeek API.
func NewDeepSeekJudge(apiKey, model string, logger *slog.Logger) *OpenAIJudge {
	if model == "" {
		model = deepSeekDefaultModel
	}
	return newOpenAICompatibleJudge(deepSeekBaseURL, apiKey, model, logger)
}

// NewOpenAIJudgeWithURL creates a judge against a custom endpoint. Intended
// for testing with a local httptest server.
func NewOpenAIJudgeWithURL(baseURL, apiKey, model string, logger *slog.Logger) *OpenAIJudge {
	return newOpenAICompatibleJudge(baseURL, apiKey, model, logger)
}

func newOpenAICompatibleJudge(baseURL, apiKey, model string, logger *slog.Logger) *OpenAIJudge {
	return &OpenAIJudge{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: openAIHTTPTimeout},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *OpenAIJudge) Extract(ctx context.Context, prompt string) (json.RawMessage, error) {
	text, err := o.complete(ctx, chatRequest{
		Model:          o.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0,
		MaxTokens:      512,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(stripFences(text)), nil
}

func (o *OpenAIJudge) Classify(ctx context.Context, prompt string) (string, error) {
	text, err := o.complete(ctx, chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (o *OpenAIJudge) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	url := o.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	o.logger.Debug("judge completion", "model", o.model, "chars", len(result.Choices[0].Message.Content))
	return result.Choices[0].Message.Content, nil
}
