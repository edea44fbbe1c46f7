// Package anthropic implements llm.Client on top of the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const (
	// ProviderName is the vendor name used in configuration.
	ProviderName = "anthropic"
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-haiku-4-5"
	// DefaultBaseURL is where the SDK sends requests unless told otherwise.
	DefaultBaseURL = "https://api.anthropic.com/"
	// DefaultMaxTokens caps a response when the request does not.
	DefaultMaxTokens = 4096
)

// Config holds what is needed to construct a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements the llm.Client interface for Anthropic's API.
type Client struct {
	client  anthropic.Client
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

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	baseURL := DefaultBaseURL
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		baseURL = cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  anthropic.NewClient(opts...),
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "anthropic").Logger(),
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

// Probe implements llm.Prober by listing a single model.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	return mapError(err)
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return newAnthropicStream(stream, c.logger), nil
}

func (c *Client) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	msgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		System:    buildSystemBlocks(req.System),
		Tools:     ToToolUnionParams(req.Tools),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	return params, nil
}

// buildSystemBlocks creates the system text block with prompt caching enabled.
// Placing cache_control on the system block caches the full prefix: tools and
// system, in that order.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	if systemPrompt == "" {
		return nil
	}
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

// mapError converts SDK API errors to llm.Error. Context errors pass through untouched.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatus(ProviderName, apiErr.StatusCode, apiErr.Error(), err)
	}
	return err
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.Describer = (*Client)(nil)
	_ llm.Prober    = (*Client)(nil)
)
