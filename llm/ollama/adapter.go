package ollama

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// coerceArguments converts argument values to the types declared in the tool
// schema. Local models often send numbers and booleans as strings. Values that
// cannot be converted are passed through unchanged for the tool to reject.
func coerceArguments(args map[string]any, schema llm.ToolSchema) map[string]any {
	result := make(map[string]any, len(args))
	for k, v := range args {
		propSchema, ok := schema.Properties[k]
		if !ok {
			result[k] = v
			continue
		}
		converted, err := convertValueToType(v, getPropertyType(propSchema))
		if err != nil {
			result[k] = v
			continue
		}
		result[k] = converted
	}
	return result
}

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema any) string {
	if propMap, ok := propSchema.(map[string]any); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return ""
}

func convertValueToType(v any, targetType string) (any, error) {
	switch targetType {
	case "integer":
		return convertToInteger(v)
	case "number":
		return convertToNumber(v)
	case "boolean":
		return convertToBoolean(v)
	case "string":
		if v == nil {
			return "", nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	default:
		return v, nil
	}
}

func convertToInteger(v any) (any, error) {
	switch val := v.(type) {
	case int, int64:
		return val, nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		return int64(val), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func convertToNumber(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	}
	return nil, fmt.Errorf("cannot convert %T to number", v)
}

func convertToBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(val))
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}

// ToOllamaMessages converts a conversation to Ollama chat messages.
// System messages in history are skipped; the request's System string is
// prepended instead. Each tool result becomes a tool-role message.
func ToOllamaMessages(system string, msgs []llm.Message) ([]api.Message, error) {
	result := make([]api.Message, 0, len(msgs)+1)
	if system != "" {
		result = append(result, api.Message{Role: "system", Content: system})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleTool:
			for _, block := range msg.Content {
				if block.Type != llm.ContentBlockTypeToolResult || block.ToolResult == nil {
					continue
				}
				result = append(result, api.Message{
					Role:     "tool",
					Content:  block.ToolResult.Content,
					ToolName: block.ToolResult.Name,
				})
			}
			continue
		}

		ollamaMsg, err := ToOllamaMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		if ollamaMsg.Content == "" && len(ollamaMsg.ToolCalls) == 0 && len(ollamaMsg.Images) == 0 {
			continue
		}
		result = append(result, ollamaMsg)
	}
	return result, nil
}

// ToOllamaMessage converts a single user or assistant message.
// Inline images travel in Images; text files are appended to the content.
func ToOllamaMessage(msg llm.Message) (api.Message, error) {
	var content strings.Builder
	out := api.Message{Role: string(msg.Role)}

	appendText := func(text string) {
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(text)
	}

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text != "" {
				appendText(block.Text)
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			for k, v := range block.ToolUse.Input {
				args[k] = v
			}
			out.ToolCalls = append(out.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeImage:
			if block.Media == nil {
				continue
			}
			if len(block.Media.Data) == 0 {
				return api.Message{}, fmt.Errorf("ollama requires inline image data, got url %q", block.Media.URL)
			}
			out.Images = append(out.Images, api.ImageData(block.Media.Data))
		case llm.ContentBlockTypeFile:
			if block.Media == nil {
				continue
			}
			if !strings.HasPrefix(block.Media.MediaType, "text/") {
				return api.Message{}, fmt.Errorf("unsupported file type %q", block.Media.MediaType)
			}
			appendText(string(block.Media.Data))
		}
	}

	out.Content = content.String()
	return out, nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function tools.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(&spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec to an Ollama function tool.
// Only the property type and description survive the conversion.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]any); ok {
			if propType, ok := propMap["type"].(string); ok {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       lo.Ternary(spec.Schema.Type == "", "object", spec.Schema.Type),
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}
