package history

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestTrimDropsOldestNonSystemMessage(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "be helpful"),
		llm.NewTextMessage(llm.RoleUser, words(100)),
		llm.NewTextMessage(llm.RoleAssistant, words(100)),
	}

	trimmed := Trim(history, "", nil, 150, WordCounter{})

	if len(trimmed) != 2 {
		t.Fatalf("Expected 2 messages after trim, got %d", len(trimmed))
	}
	if trimmed[0].Role != llm.RoleSystem {
		t.Errorf("Expected system message first, got %s", trimmed[0].Role)
	}
	if trimmed[1].Role != llm.RoleAssistant {
		t.Errorf("Expected the assistant message to survive, got %s", trimmed[1].Role)
	}
	if cost := Cost(trimmed, "", nil, WordCounter{}); cost > 150 {
		t.Errorf("Expected total <= 150, got %d", cost)
	}
}

func TestTrimUnderBudgetReturnsInput(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hi"),
		llm.NewTextMessage(llm.RoleAssistant, "hello"),
	}
	trimmed := Trim(history, "sys", nil, 100, WordCounter{})
	if &trimmed[0] != &history[0] || len(trimmed) != len(history) {
		t.Error("Expected the fast path to return the input slice unchanged")
	}
}

func TestTrimDisabledWithoutBudget(t *testing.T) {
	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, words(1000))}
	if got := Trim(history, "", nil, 0, WordCounter{}); len(got) != 1 {
		t.Errorf("Expected no trimming with zero budget, got %d messages", len(got))
	}
}

func TestTrimNeverRemovesSystemMessage(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, words(500)),
		llm.NewTextMessage(llm.RoleUser, words(10)),
		llm.NewTextMessage(llm.RoleAssistant, words(10)),
	}
	trimmed := Trim(history, "", nil, 50, WordCounter{})
	if len(trimmed) != 1 || trimmed[0].Role != llm.RoleSystem {
		t.Fatalf("Expected only the system message to remain, got %+v", trimmed)
	}
	if trimmed[0].Text() != history[0].Text() {
		t.Error("Expected system message content to be untouched")
	}
}

func TestTrimRemovesOversizedSingleMessage(t *testing.T) {
	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, words(200))}
	trimmed := Trim(history, "", nil, 50, WordCounter{})
	if len(trimmed) != 0 {
		t.Errorf("Expected oversized message to be removed, got %d messages", len(trimmed))
	}
}

func TestTrimChargesInstructionsAndTools(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, words(10)),
		llm.NewTextMessage(llm.RoleAssistant, words(10)),
	}
	tools := []llm.ToolSpec{{Name: "get_temperature", Description: words(20)}}

	// 20 words of history fit in 25 on their own, but not with 10 words of
	// instructions and a 20+ word tool description on top.
	if got := Trim(history, "", nil, 25, WordCounter{}); len(got) != 2 {
		t.Fatalf("Expected no trimming without instructions/tools, got %d", len(got))
	}
	got := Trim(history, words(10), tools, 30, WordCounter{})
	if len(got) != 0 {
		t.Errorf("Expected instructions and tool schemas to push history out, got %d messages", len(got))
	}
}

func TestTrimDropsOrphanedToolResults(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, words(30)),
		llm.NewToolUseMessage("", []llm.ToolUseBlock{{ID: "c1", Name: "x", Input: map[string]any{}}}),
		llm.NewToolResultMessage(llm.ToolResultBlock{ID: "c1", Content: "ok"}),
		llm.NewTextMessage(llm.RoleAssistant, "done"),
	}
	counter := CounterFunc(func(m llm.Message) int {
		if m.Role == llm.RoleUser {
			return 30
		}
		return 5
	})

	trimmed := Trim(history, "", nil, 12, counter)

	for _, m := range trimmed {
		if m.Role == llm.RoleTool {
			t.Fatalf("Expected orphaned tool result to be dropped, got %+v", trimmed)
		}
	}
	if len(trimmed) != 1 || trimmed[0].Text() != "done" {
		t.Errorf("Expected only the final assistant message, got %+v", trimmed)
	}
}

func TestTrimIsIdempotent(t *testing.T) {
	for budget := 0; budget <= 300; budget += 25 {
		t.Run(fmt.Sprintf("budget_%d", budget), func(t *testing.T) {
			history := []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, words(20)),
				llm.NewTextMessage(llm.RoleUser, words(40)),
				llm.NewTextMessage(llm.RoleAssistant, words(60)),
				llm.NewTextMessage(llm.RoleUser, words(30)),
				llm.NewTextMessage(llm.RoleAssistant, words(80)),
			}
			once := Trim(history, "", nil, budget, WordCounter{})
			twice := Trim(once, "", nil, budget, WordCounter{})
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("Expected trim to be idempotent:\nonce:  %d messages\ntwice: %d messages", len(once), len(twice))
			}
			if budget > 0 && len(once) > 1 {
				if cost := Cost(once, "", nil, WordCounter{}); cost > budget {
					t.Errorf("Expected cost <= %d, got %d", budget, cost)
				}
			}
		})
	}
}

func TestEstimateCounter(t *testing.T) {
	msg := llm.NewTextMessage(llm.RoleUser, "abcdefghij") // 10 chars
	if got := (EstimateCounter{CharsPerToken: 4}).CountTokens(msg); got != 3 {
		t.Errorf("Expected 3 tokens, got %d", got)
	}
	if got := (EstimateCounter{}).CountTokens(msg); got != 3 {
		t.Errorf("Expected zero CharsPerToken to default to 4, got %d", got)
	}
}

func TestRenderIncludesToolTraffic(t *testing.T) {
	msg := llm.NewToolUseMessage("", []llm.ToolUseBlock{{ID: "c1", Name: "get_temperature", Input: map[string]any{"city": "Tokyo"}}})
	rendered := Render(msg)
	if !strings.Contains(rendered, "get_temperature") || !strings.Contains(rendered, "Tokyo") {
		t.Errorf("Expected tool name and input in rendering, got %q", rendered)
	}
}
