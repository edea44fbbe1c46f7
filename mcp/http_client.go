package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// protocolVersions are tried in order during the handshake.
var protocolVersions = []string{
	mcp.LATEST_PROTOCOL_VERSION,
	"2024-11-05",
}

// HTTPClient talks to an MCP server over streamable HTTP.
type HTTPClient struct {
	client  *client.Client
	baseURL string
	logger  zerolog.Logger
}

// NewHTTPClient creates a client for baseURL. headers are sent with every request.
func NewHTTPClient(logger zerolog.Logger, baseURL string, headers map[string]string) (*HTTPClient, error) {
	logger = logger.With().Str("component", "httpMCPClient").Logger()
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	mcpClient, err := client.NewStreamableHttpClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	return &HTTPClient{
		client:  mcpClient,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Start opens the transport and performs the handshake, falling back to older
// protocol versions when the server rejects the latest one.
func (c *HTTPClient) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP MCP client: %w", err)
	}

	var lastErr error
	for _, version := range protocolVersions {
		if _, err := c.client.Initialize(ctx, initializeRequest(version)); err != nil {
			lastErr = err
			c.logger.Warn().
				Str("protocol_version", version).
				Err(err).
				Msg("MCP initialize failed, trying next protocol version")
			continue
		}
		c.logger.Info().
			Str("base_url", c.baseURL).
			Str("protocol_version", version).
			Msg("MCP server initialized")
		return nil
	}
	return fmt.Errorf("failed to initialize HTTP MCP client: %w", lastErr)
}

// ListTools returns all tools available from the server.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")
	return toToolDefinitions(result.Tools), nil
}

// InvokeTool invokes a tool on the server.
func (c *HTTPClient) InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: input},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return toOutput(result), nil
}

// Close closes the transport.
func (c *HTTPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
