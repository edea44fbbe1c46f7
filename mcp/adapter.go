package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/rs/zerolog"
)

// NameAdapter handles mapping between MCP tool names (which may contain dots)
// and safe tool names accepted by every model provider.
type NameAdapter struct {
	mu             sync.RWMutex
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a safe name by replacing dots with underscores.
// Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	return strings.ReplaceAll(original, ".", "_")
}

// ToOriginalName converts a safe name back to the original MCP tool name.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// GetSafeName returns the safe name for an original name, creating the mapping if needed.
func (a *NameAdapter) GetSafeName(original string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if safe, ok := a.originalToSafe[original]; ok {
		return safe
	}
	safe := ToSafeName(original)
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
	return safe
}

// RegisterTools lists the tools served by client and registers each one in
// registry under its safe name. It returns the registered names.
func RegisterTools(ctx context.Context, server string, client Client, registry *tools.Registry, names *NameAdapter, logger zerolog.Logger) ([]string, error) {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools from %s: %w", server, err)
	}
	registered := make([]string, 0, len(defs))
	for _, def := range defs {
		safe := names.GetSafeName(def.Name)
		registry.Register(toolDefinition(server, safe, def, client, names))
		registered = append(registered, safe)
	}
	logger.Info().
		Str("server", server).
		Strs("tools", registered).
		Msg("Registered MCP tools")
	return registered, nil
}

func toolDefinition(server, safe string, def ToolDefinition, client Client, names *NameAdapter) tools.Definition {
	return tools.Definition{
		Name:        safe,
		Description: def.Description,
		Schema:      toToolSchema(def.InputSchema),
		Context:     server,
		Execute: func(ctx context.Context, call tools.Call) (tools.Result, error) {
			original, ok := names.ToOriginalName(call.FunctionName)
			if !ok {
				original = def.Name
			}
			output, err := client.InvokeTool(ctx, original, call.FunctionArgs)
			if err != nil {
				return tools.Result{}, err
			}
			failed, _ := output["error"].(bool)
			delete(output, "error")
			return tools.Result{Success: !failed, Data: output}, nil
		},
	}
}

// toToolSchema splits a JSON schema object into the typed fields of llm.ToolSchema.
func toToolSchema(schema map[string]any) llm.ToolSchema {
	out := llm.ToolSchema{Type: "object"}
	for key, value := range schema {
		switch key {
		case "type":
			if t, ok := value.(string); ok && t != "" {
				out.Type = t
			}
		case "properties":
			if props, ok := value.(map[string]any); ok {
				out.Properties = props
			}
		case "required":
			switch req := value.(type) {
			case []string:
				out.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						out.Required = append(out.Required, s)
					}
				}
			}
		default:
			if out.ExtraFields == nil {
				out.ExtraFields = make(map[string]any)
			}
			out.ExtraFields[key] = value
		}
	}
	return out
}
