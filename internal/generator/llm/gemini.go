package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig holds Gemini client settings.
type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// GeminiClient implements Client with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClient creates a client from cfg.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key missing; provide llm.gemini.api_key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, cfg: cfg}, nil
}

// WithModel returns a copy bound to model.
func (c *GeminiClient) WithModel(model string) *GeminiClient {
	clone := *c
	if model != "" {
		clone.cfg.Model = model
	}
	return &clone
}

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if c.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(c.cfg.Temperature)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(user), config)
	if err != nil {
		te := &TransportError{Provider: "gemini", Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			te.StatusCode = apiErr.Code
		}
		return "", te
	}

	text := resp.Text()
	if text == "" {
		return "", &TransportError{Provider: "gemini", Err: errors.New("empty response")}
	}
	return text, nil
}
