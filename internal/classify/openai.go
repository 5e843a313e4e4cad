package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/storylinehq/storyline/internal/model"
)

const systemPrompt = `You are a strict binary classifier for news triage.
Given the strategic purpose of an ongoing event storyline and a new headline,
answer YES if the headline belongs to that storyline, NO otherwise.
Answer with exactly one word: YES or NO.`

// OpenAIClassifier implements the Classifier interface via the
// Chat Completions API.
type OpenAIClassifier struct {
	client *openai.Client
	config model.ClassifierConfig
}

// NewOpenAIClassifier creates a new OpenAI-backed classifier.
func NewOpenAIClassifier(config model.ClassifierConfig) (*OpenAIClassifier, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (c *OpenAIClassifier) Name() string {
	return "openai"
}

// Ask asks the model whether candidateText fits anchorText.
func (c *OpenAIClassifier) Ask(ctx context.Context, anchorText, candidateText string) (bool, error) {
	model := c.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	timeout := time.Duration(c.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Storyline purpose: %s\n\nHeadline: %s\n\nAnswer YES or NO.",
					anchorText, candidateText),
			},
		},
		MaxTokens:   3,
		Temperature: 0, // Deterministic verdicts
	}

	resp, err := c.client.CreateChatCompletion(ctxWithTimeout, req)
	if err != nil {
		return false, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("no response from OpenAI")
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	return strings.HasPrefix(answer, "YES"), nil
}
