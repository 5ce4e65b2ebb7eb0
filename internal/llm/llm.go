package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/classbot/internal/llm/prompts"
	"github.com/pavelanni/classbot/internal/model"
)

// ErrUnknownLabel is returned when the model answers with something that is not an intent label.
var ErrUnknownLabel = errors.New("unknown intent label")

// chatAPI is the subset of the go-openai client used here.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   chatAPI
	model string
	level prompts.Level
}

// New creates a new LLM client. level selects the quiz difficulty.
func New(baseURL, apiKey, modelName, level string) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidLevel(level) {
		return nil, fmt.Errorf("invalid quiz level %q", level)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		level: prompts.Level(level),
	}, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateQuizText asks the model for count multiple-choice questions about subject.
// The reply is returned as raw text for the quiz parser.
func (c *Client) GenerateQuizText(ctx context.Context, subject string, count int) (string, error) {
	prompt, err := prompts.BuildQuizPrompt(c.level, subject, count, "---")
	if err != nil {
		return "", fmt.Errorf("build quiz prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return "", fmt.Errorf("LLM quiz call: %w", err)
	}
	slog.Debug("LLM quiz response", "subject", subject, "raw", raw)
	return raw, nil
}

// ClassifyIntent asks the model to label a message with one of the known intents.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (model.Intent, error) {
	prompt, err := prompts.BuildIntentPrompt(text)
	if err != nil {
		return "", fmt.Errorf("build intent prompt: %w", err)
	}

	raw, err := c.complete(ctx, prompt, 0)
	if err != nil {
		return "", fmt.Errorf("LLM intent call: %w", err)
	}
	slog.Debug("LLM intent response", "raw", raw)

	return parseLabel(raw)
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseLabel accepts the first known label found in the reply, so minor
// chatter around the label ("Label: QUIZ_REQUEST.") is tolerated.
func parseLabel(raw string) (model.Intent, error) {
	fields := strings.FieldsFunc(strings.ToUpper(raw), func(r rune) bool {
		return !(r == '_' || (r >= 'A' && r <= 'Z'))
	})
	for _, f := range fields {
		if in, ok := model.ParseIntent(f); ok {
			return in, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
}
