package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/config"
)

const defaultSystemPrompt = "You are an expert on AI topics. Answer questions precisely and concisely, without filler."

// Client generates answers through an OpenAI-compatible chat completions
// endpoint (the Ark runtime in production).
type Client struct {
	client       openai.Client
	model        string
	maxTokens    int64
	temperature  float64
	topP         float64
	systemPrompt string
}

// New creates an answer-generation client from the LLM configuration.
func New(cfg *config.LLMConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm.api_key is required or ARK_API_KEY must be set")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	return &Client{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		maxTokens:    int64(cfg.MaxTokens),
		temperature:  cfg.Temperature,
		topP:         cfg.TopP,
		systemPrompt: prompt,
	}, nil
}

// Answer generates a reply for one user query. A single attempt; errors are
// surfaced to the caller.
func (c *Client) Answer(ctx context.Context, query string) (string, error) {
	logrus.Debugf("Requesting completion for query of %d chars", len(query))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt),
			openai.UserMessage(query),
		},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
		TopP:        openai.Float(c.topP),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
