// Package history keeps a conversation within its token budget.
package history

import (
	"encoding/json"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
)

// TokenCounter returns the token cost of one message.
type TokenCounter interface {
	CountTokens(msg llm.Message) int
}

// CounterFunc adapts a function to TokenCounter.
type CounterFunc func(msg llm.Message) int

// CountTokens implements TokenCounter.
func (f CounterFunc) CountTokens(msg llm.Message) int {
	return f(msg)
}

// WordCounter charges one token per whitespace-separated word.
type WordCounter struct{}

// CountTokens implements TokenCounter.
func (WordCounter) CountTokens(msg llm.Message) int {
	return len(strings.Fields(Render(msg)))
}

// EstimateCounter approximates tokens as characters divided by CharsPerToken, rounded up.
type EstimateCounter struct {
	CharsPerToken int
}

// DefaultCounter is used when a conversation is not given a counter.
var DefaultCounter TokenCounter = EstimateCounter{CharsPerToken: 4}

// CountTokens implements TokenCounter.
func (c EstimateCounter) CountTokens(msg llm.Message) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := len(Render(msg))
	return (n + per - 1) / per
}

// Render flattens a message into the text a counter charges for: text blocks,
// tool names and inputs, tool result content and attachment names.
func Render(msg llm.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		switch block.Type {
		case llm.ContentBlockTypeText:
			b.WriteString(block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				b.WriteString(block.ToolUse.Name)
				if inputBytes, err := json.Marshal(block.ToolUse.Input); err == nil {
					b.WriteByte(' ')
					b.Write(inputBytes)
				}
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				b.WriteString(block.ToolResult.Content)
			}
		case llm.ContentBlockTypeImage, llm.ContentBlockTypeFile:
			if block.Media != nil {
				b.WriteString(block.Media.MediaType)
				if block.Media.Name != "" {
					b.WriteByte(' ')
					b.WriteString(block.Media.Name)
				}
			}
		}
	}
	return b.String()
}

// SchemaMessage renders a tool schema as a system message so it can be charged like any other message.
func SchemaMessage(spec llm.ToolSpec) llm.Message {
	schemaJSON, err := json.Marshal(spec.Schema.Map())
	if err != nil {
		schemaJSON = nil
	}
	return llm.NewTextMessage(llm.RoleSystem, strings.TrimSpace(spec.Name+" "+spec.Description+" "+string(schemaJSON)))
}
