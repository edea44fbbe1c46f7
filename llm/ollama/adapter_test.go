package ollama

import (
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
)

func TestCoerceArguments(t *testing.T) {
	schema := llm.ToolSchema{Properties: map[string]any{
		"count":   map[string]any{"type": "integer"},
		"ratio":   map[string]any{"type": "number"},
		"enabled": map[string]any{"type": "boolean"},
		"name":    map[string]any{"type": "string"},
	}}
	got := coerceArguments(map[string]any{
		"count":   "7",
		"ratio":   "0.5",
		"enabled": "true",
		"name":    42.0,
		"extra":   "kept",
		"bad":     "x",
	}, schema)

	if got["count"] != int64(7) {
		t.Errorf("count = %#v", got["count"])
	}
	if got["ratio"] != 0.5 {
		t.Errorf("ratio = %#v", got["ratio"])
	}
	if got["enabled"] != true {
		t.Errorf("enabled = %#v", got["enabled"])
	}
	if got["name"] != "42" {
		t.Errorf("name = %#v", got["name"])
	}
	if got["extra"] != "kept" {
		t.Errorf("extra = %#v", got["extra"])
	}

	unconvertible := coerceArguments(map[string]any{"count": "many"}, schema)
	if unconvertible["count"] != "many" {
		t.Errorf("Expected unconvertible value to pass through, got %#v", unconvertible["count"])
	}
}

func TestToOllamaMessages(t *testing.T) {
	msgs := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "old"),
		{
			Role: llm.RoleUser,
			Content: []llm.ContentBlock{
				{Type: llm.ContentBlockTypeText, Text: "describe"},
				{Type: llm.ContentBlockTypeImage, Media: &llm.MediaBlock{MediaType: "image/png", Data: []byte{9}}},
			},
		},
		llm.NewToolUseMessage("", []llm.ToolUseBlock{{ID: "c1", Name: "lookup", Input: map[string]any{"q": "x"}}}),
		llm.NewToolResultMessage(llm.ToolResultBlock{ID: "c1", Name: "lookup", Content: `{"success":true}`}),
	}
	out, err := ToOllamaMessages("be brief", msgs)
	if err != nil {
		t.Fatalf("ToOllamaMessages failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(out))
	}
	if out[0].Role != "system" || out[0].Content != "be brief" {
		t.Errorf("Unexpected system message %+v", out[0])
	}
	if len(out[1].Images) != 1 {
		t.Errorf("Expected image on user message, got %d", len(out[1].Images))
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].Function.Name != "lookup" {
		t.Errorf("Unexpected assistant tool calls %+v", out[2].ToolCalls)
	}
	if out[3].Role != "tool" || out[3].ToolName != "lookup" {
		t.Errorf("Unexpected tool message %+v", out[3])
	}

	if _, err := ToOllamaMessage(llm.Message{
		Role:    llm.RoleUser,
		Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeImage, Media: &llm.MediaBlock{URL: "https://example.com/a.png"}}},
	}); err == nil {
		t.Error("Expected error for remote image")
	}
}

func TestToOllamaTool(t *testing.T) {
	tool := ToOllamaTool(&llm.ToolSpec{
		Name: "lookup",
		Schema: llm.ToolSchema{
			Properties: map[string]any{"q": map[string]any{"type": "string", "description": "query"}},
			Required:   []string{"q"},
		},
	})
	if tool.Function.Parameters.Type != "object" {
		t.Errorf("Expected object parameters, got %q", tool.Function.Parameters.Type)
	}
	prop := tool.Function.Parameters.Properties["q"]
	if len(prop.Type) != 1 || prop.Type[0] != "string" || prop.Description != "query" {
		t.Errorf("Unexpected property %+v", prop)
	}
}
