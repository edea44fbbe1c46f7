package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAIMessages converts a conversation to OpenAI chat messages.
// System messages in history are skipped; the request's System string is
// prepended as the only system message. Each tool result becomes its own
// tool-role message, which is how the chat completions API pairs results with calls.
func ToOpenAIMessages(system string, msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
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
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    block.ToolResult.Content,
					ToolCallID: block.ToolResult.ID,
				})
			}
			continue
		}

		openaiMsg, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		if openaiMsg.Content == "" && len(openaiMsg.MultiContent) == 0 && len(openaiMsg.ToolCalls) == 0 {
			continue
		}
		result = append(result, openaiMsg)
	}
	return result, nil
}

// ToOpenAIMessage converts a single user or assistant message.
// Messages with images are sent as multi-part content.
func ToOpenAIMessage(msg llm.Message) (openai.ChatCompletionMessage, error) {
	role := openai.ChatMessageRoleUser
	if msg.Role == llm.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}
	out := openai.ChatCompletionMessage{Role: role}

	var text strings.Builder
	var parts []openai.ChatMessagePart
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text == "" {
				continue
			}
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(block.Text)
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.Text})
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			argsJSON, err := json.Marshal(lo.Ternary(block.ToolUse.Input == nil, map[string]any{}, block.ToolUse.Input))
			if err != nil {
				return openai.ChatCompletionMessage{}, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   block.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: string(argsJSON),
				},
			})
		case llm.ContentBlockTypeImage:
			if block.Media == nil {
				continue
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: mediaURL(block.Media)},
			})
		case llm.ContentBlockTypeFile:
			if block.Media == nil {
				continue
			}
			if !strings.HasPrefix(block.Media.MediaType, "text/") {
				return openai.ChatCompletionMessage{}, fmt.Errorf("unsupported file type %q", block.Media.MediaType)
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: string(block.Media.Data)})
		}
	}

	if msg.HasMedia() && role == openai.ChatMessageRoleUser {
		out.MultiContent = parts
		return out, nil
	}
	out.Content = text.String()
	return out, nil
}

func mediaURL(media *llm.MediaBlock) string {
	if media.URL != "" {
		return media.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", media.MediaType, base64.StdEncoding.EncodeToString(media.Data))
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function tools.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(&spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to an OpenAI function tool.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Schema.Map(),
		},
	}
}
