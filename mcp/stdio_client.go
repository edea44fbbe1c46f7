package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// StdioClient talks to an MCP server spawned as a child process.
type StdioClient struct {
	client  *client.Client
	command string
	args    []string
	logger  zerolog.Logger
}

// NewStdioClient spawns command and connects to it over stdin/stdout.
// A command containing spaces is split into the executable and leading arguments.
func NewStdioClient(logger zerolog.Logger, command string, args, env []string) (*StdioClient, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}
	logger = logger.With().Str("component", "stdioMCPClient").Logger()

	parts := strings.Fields(command)
	cmd := parts[0]
	cmdArgs := append(append([]string{}, parts[1:]...), args...)

	logger.Info().Str("command", cmd).Strs("args", cmdArgs).Msg("Starting MCP server process")
	mcpClient, err := client.NewStdioMCPClient(cmd, env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}
	return &StdioClient{
		client:  mcpClient,
		command: cmd,
		args:    cmdArgs,
		logger:  logger,
	}, nil
}

// Start performs the MCP handshake. The process is already running.
func (c *StdioClient) Start(ctx context.Context) error {
	initDone := make(chan error, 1)
	go func() {
		_, err := c.client.Initialize(ctx, initializeRequest(mcp.LATEST_PROTOCOL_VERSION))
		initDone <- err
	}()

	select {
	case err := <-initDone:
		if err != nil {
			c.logger.Error().Err(err).Str("command", c.command).Msg("MCP initialize failed")
			return fmt.Errorf("failed to initialize MCP client: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during initialize: %w", ctx.Err())
	}
	c.logger.Info().Str("command", c.command).Msg("MCP server initialized")
	return nil
}

// ListTools returns all tools available from the server.
func (c *StdioClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")
	return toToolDefinitions(result.Tools), nil
}

// InvokeTool invokes a tool on the server.
func (c *StdioClient) InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	c.logger.Debug().Str("tool_name", name).Msg("Invoking tool on MCP server")
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: input},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return toOutput(result), nil
}

// Close stops the server process.
func (c *StdioClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ Client = (*StdioClient)(nil)
