// Package openai implements llm.Client on top of the OpenAI chat completions API.
// Any endpoint speaking that protocol can be used by setting BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// ProviderName is the vendor name used in configuration.
	ProviderName = "openai"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultBaseURL is the public OpenAI endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Config holds what is needed to construct a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
}

// Client implements the llm.Client interface for OpenAI's API.
type Client struct {
	client  *openai.Client
	model   string
	apiKey  string
	baseURL string
	logger  zerolog.Logger
}

// NewClient creates a new Client. An API key is required.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		config.OrgID = cfg.Organization
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: config.BaseURL,
		logger:  logger.With().Str("component", "openai").Logger(),
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

// Probe implements llm.Prober by listing models.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return mapError(err)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, mapError(err)
	}
	return newOpenAIStream(stream), nil
}

func (c *Client) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	msgs, err := ToOpenAIMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      msgs,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	return chatReq, nil
}

// mapError converts go-openai errors to llm.Error. Context errors pass through untouched.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatus(ProviderName, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.ErrorFromStatus(ProviderName, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return err
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.Describer = (*Client)(nil)
	_ llm.Prober    = (*Client)(nil)
)
