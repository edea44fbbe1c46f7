package context

import (
	stdctx "context"
	"testing"
)

func TestToolCallRoundTrip(t *testing.T) {
	ctx := WithToolCall(stdctx.Background(), ToolCall{ID: "call_1", Name: "get_temperature", Step: 2})
	call, ok := ToolCallFromContext(ctx)
	if !ok {
		t.Fatal("Expected tool call to be present")
	}
	if call.ID != "call_1" || call.Name != "get_temperature" || call.Step != 2 {
		t.Errorf("Unexpected tool call: %+v", call)
	}
	if _, ok := ToolCallFromContext(stdctx.Background()); ok {
		t.Error("Expected no tool call on a bare context")
	}
}

func TestDebugCallback(t *testing.T) {
	var got string
	ctx := WithDebugCallback(stdctx.Background(), func(s string) { got = s })
	cb, ok := GetDebugCallback(ctx)
	if !ok {
		t.Fatal("Expected debug callback to be present")
	}
	cb("hello")
	if got != "hello" {
		t.Errorf("Expected callback to receive 'hello', got %q", got)
	}
}
