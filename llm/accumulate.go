package llm

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Accumulator folds stream events into the aggregate Response of one model turn.
// Content order follows the order in which blocks started; tool inputs streamed
// as JSON fragments are parsed when Response is called.
type Accumulator struct {
	id         string
	text       strings.Builder
	order      []string // text block sentinel "" or tool use IDs, in start order
	toolUses   map[string]*ToolUseBlock
	toolInputs map[string]*strings.Builder
	currentID  string
	usage      *Usage
	stopReason string
	done       bool
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		toolUses:   make(map[string]*ToolUseBlock),
		toolInputs: make(map[string]*strings.Builder),
	}
}

// Add applies one event. It returns the text fragment carried by the event, if any.
func (a *Accumulator) Add(event *StreamEvent) string {
	if event == nil {
		return ""
	}
	if event.ResponseID != "" {
		a.id = event.ResponseID
	}
	if event.Usage != nil {
		a.usage = event.Usage
	}
	if event.StopReason != "" {
		a.stopReason = event.StopReason
	}
	if event.Type == StreamEventTypeStop || event.Done {
		a.done = true
	}
	if event.Delta == nil {
		return ""
	}

	switch event.Delta.Type {
	case StreamDeltaTypeText:
		if event.Delta.Text == "" {
			return ""
		}
		if a.text.Len() == 0 {
			a.order = append(a.order, "")
		}
		a.text.WriteString(event.Delta.Text)
		return event.Delta.Text
	case StreamDeltaTypeToolUse:
		tu := event.Delta.ToolUse
		if tu == nil {
			return ""
		}
		id := tu.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		if _, ok := a.toolUses[id]; !ok {
			toolCopy := *tu
			toolCopy.ID = id
			if toolCopy.Input == nil {
				toolCopy.Input = make(map[string]any)
			}
			a.toolUses[id] = &toolCopy
			a.toolInputs[id] = &strings.Builder{}
			a.order = append(a.order, id)
		}
		a.currentID = id
	case StreamDeltaTypeToolInput:
		id := event.Delta.ToolUseID
		if id == "" {
			id = a.currentID
		}
		if builder, ok := a.toolInputs[id]; ok {
			builder.WriteString(event.Delta.ToolInput)
		}
	}
	return ""
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Done reports whether a stop event was seen.
func (a *Accumulator) Done() bool {
	return a.done
}

// Response builds the aggregate response. Tool inputs that are not valid JSON
// leave the input the tool use block started with and set InputError.
func (a *Accumulator) Response() *Response {
	content := make([]ContentBlock, 0, len(a.order))
	for _, key := range a.order {
		if key == "" {
			content = append(content, ContentBlock{Type: ContentBlockTypeText, Text: a.text.String()})
			continue
		}
		tu := *a.toolUses[key]
		if raw := strings.TrimSpace(a.toolInputs[key].String()); raw != "" {
			var input map[string]any
			switch err := json.Unmarshal([]byte(raw), &input); {
			case err != nil:
				tu.InputError = err.Error()
			case input != nil:
				tu.Input = input
			}
		}
		content = append(content, ContentBlock{Type: ContentBlockTypeToolUse, ToolUse: &tu})
	}
	return &Response{
		ID:         a.id,
		Content:    content,
		Usage:      a.usage,
		StopReason: a.stopReason,
	}
}
