package anthropic

import (
	"encoding/base64"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/samber/lo"
)

// ToContentBlockParam converts one llm.ContentBlock. ok is false for blocks
// that have no Anthropic representation, such as empty text.
func ToContentBlockParam(block llm.ContentBlock) (param anthropic.ContentBlockParamUnion, ok bool, err error) {
	switch block.Type {
	case llm.ContentBlockTypeText:
		if block.Text == "" {
			return param, false, nil
		}
		return anthropic.NewTextBlock(block.Text), true, nil
	case llm.ContentBlockTypeToolUse:
		if block.ToolUse == nil {
			return param, false, nil
		}
		input := block.ToolUse.Input
		if input == nil {
			input = map[string]any{}
		}
		return anthropic.NewToolUseBlock(block.ToolUse.ID, input, block.ToolUse.Name), true, nil
	case llm.ContentBlockTypeToolResult:
		if block.ToolResult == nil {
			return param, false, nil
		}
		return anthropic.NewToolResultBlock(block.ToolResult.ID, block.ToolResult.Content, block.ToolResult.IsError), true, nil
	case llm.ContentBlockTypeImage:
		if block.Media == nil {
			return param, false, nil
		}
		if block.Media.URL != "" {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: block.Media.URL}), true, nil
		}
		return anthropic.NewImageBlockBase64(block.Media.MediaType, base64.StdEncoding.EncodeToString(block.Media.Data)), true, nil
	case llm.ContentBlockTypeFile:
		if block.Media == nil {
			return param, false, nil
		}
		switch {
		case block.Media.MediaType == "application/pdf" && block.Media.URL != "":
			return anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: block.Media.URL}), true, nil
		case block.Media.MediaType == "application/pdf":
			return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: base64.StdEncoding.EncodeToString(block.Media.Data)}), true, nil
		case strings.HasPrefix(block.Media.MediaType, "text/"):
			return anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(block.Media.Data)}), true, nil
		}
		return param, false, fmt.Errorf("unsupported file type %q", block.Media.MediaType)
	}
	return param, false, nil
}

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// Tool-role messages become user messages carrying tool_result blocks.
func ToMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		param, ok, err := ToContentBlockParam(block)
		if err != nil {
			return anthropic.MessageParam{}, err
		}
		if ok {
			contentBlocks = append(contentBlocks, param)
		}
	}

	switch msg.Role {
	case llm.RoleAssistant:
		return anthropic.NewAssistantMessage(contentBlocks...), nil
	default:
		return anthropic.NewUserMessage(contentBlocks...), nil
	}
}

// ToMessageParams converts a conversation to Anthropic MessageParams.
// System messages are skipped (they travel in the system parameter), messages
// without any representable content are dropped, and consecutive tool results
// are merged into one user message as the API requires.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	var prevRole llm.MessageRole
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			continue
		}
		anthMsg, err := ToMessageParam(msg)
		if err != nil {
			return nil, err
		}
		if len(anthMsg.Content) == 0 {
			continue
		}
		if msg.Role == llm.RoleTool && prevRole == llm.RoleTool && len(result) > 0 {
			last := &result[len(result)-1]
			last.Content = append(last.Content, anthMsg.Content...)
			continue
		}
		result = append(result, anthMsg)
		prevRole = msg.Role
	}
	return result, nil
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties:  lo.Ternary[any](spec.Schema.Properties == nil, map[string]any{}, spec.Schema.Properties),
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}

	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}
