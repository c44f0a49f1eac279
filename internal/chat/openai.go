package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fpang/line-video-coach/internal/config"
)

// NewOpenAIClient builds a go-openai client from config. It does not check
// the API key; callers check it with config.Require on first use.
func NewOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(c)
}

// OpenAICompleter implements Completer with the chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	apiKey string
	model  string
}

// NewOpenAICompleter creates a completer for cfg.ChatModel.
func NewOpenAICompleter(cfg config.OpenAIConfig) *OpenAICompleter {
	model := cfg.ChatModel
	if model == "" {
		model = ModelOpenAIChat
	}
	return &OpenAICompleter{
		client: NewOpenAIClient(cfg),
		apiKey: cfg.APIKey,
		model:  model,
	}
}

// Name returns "openai/<model>".
func (c *OpenAICompleter) Name() string {
	return "openai/" + c.model
}

// Complete sends a system + user message pair and returns the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if _, err := config.Require("OPENAI_API_KEY", c.apiKey); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	log.Debug().
		Str("model", c.model).
		Int("choices", len(resp.Choices)).
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("OpenAI chat completion received")

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
