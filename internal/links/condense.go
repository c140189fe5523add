package links

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Condenser turns article text into a short search query.
type Condenser interface {
	Condense(ctx context.Context, text string) (string, error)
}

const condensePrompt = `You write search queries for news fact-checking sites.
Reply with a single headline-style query of at most eight words that captures the main claim of the article.
Reply with the query only, without quotes or punctuation at the end.`

// maxCondenseInput bounds how much article text is sent to the model.
const maxCondenseInput = 4000

// OpenAICondenser asks a chat model for a headline-style query.
type OpenAICondenser struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// OpenAIOptions configures an OpenAICondenser. BaseURL is only needed for
// OpenAI-compatible gateways.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAICondenser creates a condenser. It returns nil when no API key is
// configured so callers can treat condensation as optional.
func NewOpenAICondenser(opts OpenAIOptions) *OpenAICondenser {
	if opts.APIKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT3Dot5Turbo
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &OpenAICondenser{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
	}
}

// Condense returns the model's query for text.
func (c *OpenAICondenser) Condense(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("nothing to condense")
	}
	if runes := []rune(text); len(runes) > maxCondenseInput {
		text = string(runes[:maxCondenseInput])
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: condensePrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
		MaxTokens:   24,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	query := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"'.`)
	if query == "" {
		return "", errors.New("model returned an empty query")
	}
	return query, nil
}
