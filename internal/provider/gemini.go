package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/conversation"
	"github.com/lashiv/lashivgpt/internal/logging"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// GeminiClient generates chat replies through the Google AI SDK, carrying
// the trimmed conversation history so replies stay in context.
type GeminiClient struct {
	llm    llms.Model
	models *config.ModelRegistry
	logger *logging.Logger
}

// NewGeminiClient creates a client authenticated with the given API key.
func NewGeminiClient(ctx context.Context, apiKey string, models *config.ModelRegistry, logger *logging.Logger) (*GeminiClient, error) {
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}

	return &GeminiClient{
		llm:    llm,
		models: models,
		logger: logger.WithComponent("gemini"),
	}, nil
}

// Generate produces a reply for message, given the prior history.
// The system prompt leads the message list; history roles are translated
// to the SDK's chat message types.
func (c *GeminiClient) Generate(ctx context.Context, modelID string, history []conversation.Message, message string) (string, error) {
	profile := c.models.ProfileOrDefault(modelID)

	contents := make([]llms.MessageContent, 0, len(history)+2)
	contents = append(contents, llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt))
	for _, msg := range history {
		role := llms.ChatMessageTypeHuman
		if msg.Role == conversation.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		contents = append(contents, llms.TextParts(role, msg.Content))
	}
	contents = append(contents, llms.TextParts(llms.ChatMessageTypeHuman, message))

	c.logger.Debug("calling %s with %d context messages", modelID, len(history))

	resp, err := c.llm.GenerateContent(ctx, contents,
		llms.WithModel(modelID),
		llms.WithTemperature(profile.Temperature),
		llms.WithTopP(profile.TopP),
		llms.WithTopK(profile.TopK),
		llms.WithMaxTokens(profile.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed for %s: %w", modelID, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Content, nil
}
