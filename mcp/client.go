// Package mcp exposes tools served by Model Context Protocol servers as
// conversation tools.
package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

const (
	clientName    = "converse"
	clientVersion = "1.0.0"
)

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Client is the interface for interacting with MCP servers.
type Client interface {
	// Start initializes the connection.
	Start(ctx context.Context) error

	// ListTools returns all tools available from the server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// InvokeTool invokes a tool on the server with the given input.
	InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error)

	// Close closes the connection to the server.
	Close() error
}

func initializeRequest(protocolVersion string) mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
}

func toToolDefinitions(tools []mcp.Tool) []ToolDefinition {
	return lo.Map(tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := map[string]any{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}
		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	})
}

// toOutput flattens a tool call result into {"text": ..., "error": bool, "error_message": ...}.
func toOutput(result *mcp.CallToolResult) map[string]any {
	output := make(map[string]any)
	if result == nil {
		return output
	}
	texts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		if textContent, ok := mcp.AsTextContent(content); ok {
			return textContent.Text, true
		}
		text := mcp.GetTextFromContent(content)
		return text, text != ""
	})
	switch len(texts) {
	case 0:
	case 1:
		output["text"] = texts[0]
	default:
		output["text"] = texts
	}

	if result.IsError {
		output["error"] = true
		if len(texts) > 0 {
			output["error_message"] = strings.Join(texts, "\n")
		}
	}
	return output
}
