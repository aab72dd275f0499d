package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/logging"
)

const (
	// DefaultGenAIEndpoint is the REST endpoint for the generateContent API.
	DefaultGenAIEndpoint = "https://generativelanguage.googleapis.com"

	// defaultGenAITimeout bounds a single generation request.
	defaultGenAITimeout = 60 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is read.
	maxErrorBodyBytes = 4 * 1024
)

// ErrNoCandidates is returned when a generateContent response carries no
// usable candidate text.
var ErrNoCandidates = errors.New("response contains no candidates")

// GenAIClient calls the v1beta generateContent REST endpoint directly.
// Unlike GeminiClient it sends a single flattened prompt without chat
// history; the pro model performs better on this path.
type GenAIClient struct {
	endpoint   string
	apiKey     string
	models     *config.ModelRegistry
	httpClient *http.Client
	logger     *logging.Logger
}

// NewGenAIClient creates a client against the production endpoint.
func NewGenAIClient(apiKey string, models *config.ModelRegistry, logger *logging.Logger) *GenAIClient {
	return NewGenAIClientWithConfig(DefaultGenAIEndpoint, apiKey, models, logger)
}

// NewGenAIClientWithConfig creates a client against a custom endpoint.
// Used by tests to point at a local server.
func NewGenAIClientWithConfig(endpoint, apiKey string, models *config.ModelRegistry, logger *logging.Logger) *GenAIClient {
	return &GenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		models:   models,
		httpClient: &http.Client{
			Timeout: defaultGenAITimeout,
		},
		logger: logger.WithComponent("genai"),
	}
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generateResponse is the subset of the response body we consume.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate produces a reply for message using the given model.
// The system prompt is folded into the user turn because this endpoint is
// called without chat history.
func (c *GenAIClient) Generate(ctx context.Context, modelID, message string) (string, error) {
	profile := c.models.ProfileOrDefault(modelID)

	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: SystemPrompt + "\n\n" + message}},
			},
		},
		GenerationConfig: generationConfig{
			Temperature:     profile.Temperature,
			TopP:            profile.TopP,
			TopK:            profile.TopK,
			MaxOutputTokens: profile.MaxTokens,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.endpoint, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	c.logger.Debug("calling %s:generateContent", modelID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
		}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoCandidates
	}

	text := genResp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", ErrNoCandidates
	}
	return text, nil
}
