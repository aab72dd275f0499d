// Package stability generates images through the Stability AI REST API.
package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lashiv/lashivgpt/internal/logging"
)

const (
	// DefaultEndpoint is the production Stability API endpoint.
	DefaultEndpoint = "https://api.stability.ai"

	// EngineID is the text-to-image engine used for all generations.
	EngineID = "stable-diffusion-xl-1024-v1-0"

	// Generation parameters. The engine only accepts certain resolutions;
	// 1024x1024 is its native square size.
	imageWidth  = 1024
	imageHeight = 1024
	cfgScale    = 7
	samples     = 1
	steps       = 30

	// defaultTimeout bounds a single generation request. Image generation
	// is slow; a minute is not unusual under load.
	defaultTimeout = 120 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is read.
	maxErrorBodyBytes = 4 * 1024
)

// ErrNoArtifacts is returned when a successful response contains no images.
var ErrNoArtifacts = errors.New("response contains no artifacts")

// GenerationError is a non-2xx response from the Stability API.
type GenerationError struct {
	// StatusCode is the HTTP status returned by the API.
	StatusCode int

	// Message is the API's error text, possibly truncated.
	Message string
}

// Error returns the generation error message.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed with status %d: %s", e.StatusCode, e.Message)
}

// Client calls the Stability text-to-image API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a client against the production endpoint.
func NewClient(apiKey string, logger *logging.Logger) *Client {
	return NewClientWithConfig(DefaultEndpoint, apiKey, logger)
}

// NewClientWithConfig creates a client against a custom endpoint.
// Used by tests to point at a local server.
func NewClientWithConfig(endpoint, apiKey string, logger *logging.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.WithComponent("stability"),
	}
}

// textToImageRequest is the generation request body.
type textToImageRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CfgScale    int          `json:"cfg_scale"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

type textPrompt struct {
	Text string `json:"text"`
}

// textToImageResponse is the subset of the response body we consume.
type textToImageResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

// errorResponse covers the two error body shapes the API uses.
type errorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// TextToImage generates one PNG image for the prompt.
// Returns the decoded PNG bytes and the raw base64 payload.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, string, error) {
	reqBody := textToImageRequest{
		TextPrompts: []textPrompt{{Text: prompt}},
		CfgScale:    cfgScale,
		Width:       imageWidth,
		Height:      imageHeight,
		Samples:     samples,
		Steps:       steps,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.endpoint, EngineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("generating image for prompt (%d chars)", len(prompt))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		message := string(errBody)
		var parsed errorResponse
		if err := json.Unmarshal(errBody, &parsed); err == nil && parsed.Message != "" {
			message = parsed.Message
		}

		return nil, "", &GenerationError{
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var genResp textToImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(genResp.Artifacts) == 0 || genResp.Artifacts[0].Base64 == "" {
		return nil, "", ErrNoArtifacts
	}

	b64 := genResp.Artifacts[0].Base64
	png, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image data: %w", err)
	}

	return png, b64, nil
}
