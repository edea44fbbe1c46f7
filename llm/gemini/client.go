// Package gemini implements llm.Client on top of the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	// ProviderName is the vendor name used in configuration.
	ProviderName = "gemini"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Config holds what is needed to construct a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements the llm.Client interface for the Gemini API.
type Client struct {
	client  *genai.Client
	model   string
	apiKey  string
	baseURL string
	logger  zerolog.Logger
}

// NewClient creates a new Client. An API key is required.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	baseURL := DefaultBaseURL
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  client,
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Identity implements llm.Describer.
func (c *Client) Identity() llm.ClientIdentity {
	return llm.ClientIdentity{
		Provider:   ProviderName,
		Model:      c.model,
		Credential: llm.Fingerprint(c.apiKey),
		Endpoint:   c.baseURL,
	}
}

// Probe implements llm.Prober by fetching the configured model.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.client.Models.Get(ctx, c.model, nil)
	return mapError(err)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	contents, err := ToContents(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("no content to send")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		config.TopP = &p
	}
	if len(req.Tools) > 0 {
		config.Tools = ToTools(req.Tools)
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	seq := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return newGeminiStream(seq), nil
}

// mapError converts Gemini API errors to llm.Error. Context errors pass through untouched.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatus(ProviderName, apiErr.Code, apiErr.Message, err)
	}
	return err
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.Describer = (*Client)(nil)
	_ llm.Prober    = (*Client)(nil)
)
