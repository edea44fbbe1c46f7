package llm

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message in a conversation.
// This is provider-neutral and can represent system, user, assistant or tool-result messages.
type Message struct {
	ID              string           `json:"id,omitempty"`
	Role            MessageRole      `json:"role"`
	Content         []ContentBlock   `json:"content"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// ContentBlock represents a single content block within a message.
type ContentBlock struct {
	Type       ContentBlockType `json:"type"`
	Text       string           `json:"text,omitempty"`        // For text blocks
	Media      *MediaBlock      `json:"media,omitempty"`       // For image and file blocks
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`    // For tool use blocks
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"` // For tool result blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeFile       ContentBlockType = "file"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// MediaBlock is an image or file attachment. Either Data or URL is set.
type MediaBlock struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
	Name      string `json:"name,omitempty"`
}

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"` // JSON-serializable input parameters
	// InputError is set when the streamed input could not be parsed. Input
	// then holds whatever the block started with.
	InputError string `json:"input_error,omitempty"`
}

// ToolResultBlock represents the result of a tool invocation.
type ToolResultBlock struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"` // JSON-serialized result
	IsError bool   `json:"is_error,omitempty"`
}

// InvocationState tracks a tool call from request to result.
type InvocationState string

const (
	InvocationPending InvocationState = "pending"
	InvocationResult  InvocationState = "result"
)

// ToolInvocation records one tool call made by an assistant message.
type ToolInvocation struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       map[string]any  `json:"args,omitempty"`
	State      InvocationState `json:"state"`
	Result     any             `json:"result,omitempty"`
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]any
	Required    []string
	ExtraFields map[string]any // For any additional schema fields
}

// Map renders the schema as a plain JSON-schema object.
func (s ToolSchema) Map() map[string]any {
	schemaType := s.Type
	if schemaType == "" {
		schemaType = "object"
	}
	out := map[string]any{
		"type":       schemaType,
		"properties": lo.Ternary(s.Properties == nil, map[string]any{}, s.Properties),
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	for k, v := range s.ExtraFields {
		out[k] = v
	}
	return out
}

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolSpec
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
	TopP        *float64 // Optional nucleus sampling override
}

// Response is the aggregate of one streamed model turn.
type Response struct {
	ID         string
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Text returns the concatenated text blocks of the response.
func (r *Response) Text() string {
	return joinText(r.Content)
}

// ToolCalls returns the tool use blocks of the response in the order the model emitted them.
func (r *Response) ToolCalls() []ToolUseBlock {
	return lo.FilterMap(r.Content, func(b ContentBlock, _ int) (ToolUseBlock, bool) {
		if b.Type != ContentBlockTypeToolUse || b.ToolUse == nil {
			return ToolUseBlock{}, false
		}
		return *b.ToolUse, true
	})
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Provider-specific usage fields can be added here
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type      StreamDeltaType
	Text      string        // For text deltas
	ToolUse   *ToolUseBlock // For tool use start
	ToolInput string        // For tool input JSON deltas
	ToolUseID string        // Optional owner of a tool input delta; defaults to the last started tool
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText      StreamDeltaType = "text"
	StreamDeltaTypeToolUse   StreamDeltaType = "tool_use"
	StreamDeltaTypeToolInput StreamDeltaType = "tool_input"
)

// StreamEvent represents a complete streaming event.
type StreamEvent struct {
	Type       StreamEventType
	Delta      *StreamDelta
	Usage      *Usage
	ResponseID string // Set on start events when the provider reports one
	StopReason string
	Done       bool
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentBlock StreamEventType = "content_block"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeMessageDelta StreamEventType = "message_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewToolUseMessage creates a new assistant message with tool use blocks and
// one pending invocation per block.
func NewToolUseMessage(text string, toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, 0, len(toolUses)+1)
	if text != "" {
		content = append(content, ContentBlock{Type: ContentBlockTypeText, Text: text})
	}
	for i := range toolUses {
		tu := toolUses[i]
		content = append(content, ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &tu,
		})
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
		ToolInvocations: lo.Map(toolUses, func(tu ToolUseBlock, _ int) ToolInvocation {
			return ToolInvocation{
				ToolCallID: tu.ID,
				ToolName:   tu.Name,
				Args:       tu.Input,
				State:      InvocationPending,
			}
		}),
	}
}

// NewToolResultMessage creates a tool-role message carrying a single tool result.
func NewToolResultMessage(result ToolResultBlock) Message {
	return Message{
		Role: RoleTool,
		Content: []ContentBlock{
			{
				Type:       ContentBlockTypeToolResult,
				ToolResult: &result,
			},
		},
	}
}

// Text returns the concatenated text blocks of the message.
func (m Message) Text() string {
	return joinText(m.Content)
}

// Complete reports whether every tool invocation in the message has a result.
func (m Message) Complete() bool {
	return lo.EveryBy(m.ToolInvocations, func(inv ToolInvocation) bool {
		return inv.State == InvocationResult
	})
}

// HasMedia reports whether the message carries an image or file attachment.
func (m Message) HasMedia() bool {
	return lo.SomeBy(m.Content, func(b ContentBlock) bool {
		return (b.Type == ContentBlockTypeImage || b.Type == ContentBlockTypeFile) && b.Media != nil
	})
}

// Clone returns a deep-enough copy of the message so callers can mutate
// slices without touching history.
func (m Message) Clone() Message {
	out := m
	out.Content = append([]ContentBlock(nil), m.Content...)
	out.ToolInvocations = append([]ToolInvocation(nil), m.ToolInvocations...)
	return out
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CloneMessages copies a message slice element by element.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	return lo.Map(msgs, func(m Message, _ int) Message { return m.Clone() })
}

func joinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
