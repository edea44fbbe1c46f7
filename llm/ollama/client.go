// Package ollama implements llm.Client on top of a local or remote Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// ProviderName is the vendor name used in configuration.
	ProviderName = "ollama"
	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"
	// DefaultHost is where a local Ollama server listens.
	DefaultHost = "http://localhost:11434"
)

// Config holds what is needed to construct a Client. No credential is needed.
type Config struct {
	Host  string
	Model string
}

// Client implements the llm.Client interface for Ollama's API.
type Client struct {
	client *api.Client
	model  string
	host   string
	logger zerolog.Logger
}

// NewClient creates a new Client talking to cfg.Host, or DefaultHost when empty.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		host:   strings.TrimRight(baseURL.String(), "/"),
		logger: logger.With().Str("component", "ollama").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Identity implements llm.Describer.
func (c *Client) Identity() llm.ClientIdentity {
	return llm.ClientIdentity{
		Provider: ProviderName,
		Model:    c.model,
		Endpoint: c.host,
	}
}

// Probe implements llm.Prober using the server heartbeat.
func (c *Client) Probe(ctx context.Context) error {
	return mapError(c.client.Heartbeat(ctx))
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	msgs, err := ToOllamaMessages(req.System, req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	stream := true
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  make(map[string]any),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.Options["top_p"] = *req.TopP
	}

	schemas := lo.SliceToMap(req.Tools, func(spec llm.ToolSpec) (string, llm.ToolSchema) {
		return spec.Name, spec.Schema
	})
	return newOllamaStream(ctx, c.client, chatReq, schemas, c.logger), nil
}

// mapError converts Ollama status errors to llm.Error. Context errors pass through untouched.
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llm.ErrorFromStatus(ProviderName, statusErr.StatusCode, statusErr.ErrorMessage, err)
	}
	return err
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.Describer = (*Client)(nil)
	_ llm.Prober    = (*Client)(nil)
)
