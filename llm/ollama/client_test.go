package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ctxpkg "github.com/aschepis/backscratcher/converse/context"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const ndjsonBody = `{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"Checking "},"done":false}
{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"now."},"done":false}
{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_forecast","arguments":{"city":"Tokyo","days":"3"}}}]},"done":false}
{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":4}
`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{Host: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestStreamTextAndToolCalls(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, ndjsonBody)
	})

	var debugLines []string
	ctx := ctxpkg.WithDebugCallback(context.Background(), func(line string) {
		debugLines = append(debugLines, line)
	})
	temp := 0.1
	stream, err := client.Stream(ctx, &llm.Request{
		System:      "be brief",
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "forecast for Tokyo")},
		Temperature: &temp,
		MaxTokens:   100,
		Tools: []llm.ToolSpec{{
			Name: "get_forecast",
			Schema: llm.ToolSchema{Properties: map[string]any{
				"city": map[string]any{"type": "string"},
				"days": map[string]any{"type": "integer"},
			}},
		}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close() //nolint:errcheck // test

	acc := llm.NewAccumulator()
	for stream.Next() {
		acc.Add(stream.Event())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	resp := acc.Response()
	if resp.Text() != "Checking now." {
		t.Errorf("Unexpected text %q", resp.Text())
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID == "" || calls[0].Name != "get_forecast" {
		t.Errorf("Unexpected tool call %+v", calls[0])
	}
	if days, ok := calls[0].Input["days"].(int64); !ok || days != 3 {
		t.Errorf("Expected days coerced to integer 3, got %#v", calls[0].Input["days"])
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 4 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}
	if resp.StopReason != "stop" {
		t.Errorf("Expected stop reason stop, got %q", resp.StopReason)
	}
	if len(debugLines) != 1 || !strings.Contains(debugLines[0], "get_forecast") {
		t.Errorf("Expected one debug line for the tool call, got %v", debugLines)
	}

	opts, _ := body["options"].(map[string]any)
	if opts["temperature"] != 0.1 || opts["num_predict"] != float64(100) {
		t.Errorf("Unexpected options %v", opts)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("Expected system and user messages, got %d", len(msgs))
	}
}

func TestStreamMapsStatusErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	})

	stream, err := client.Stream(context.Background(), &llm.Request{
		Model:    "nope",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	for stream.Next() {
	}
	var llmErr *llm.Error
	if !errors.As(stream.Err(), &llmErr) || llmErr.Type != llm.ErrorTypeInvalidRequest {
		t.Errorf("Expected invalid request error, got %v", stream.Err())
	}
}

func TestProbeAndIdentity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	id := client.Identity()
	if id.Provider != ProviderName || id.Model != DefaultModel || id.Credential != "" {
		t.Errorf("Unexpected identity %+v", id)
	}
	if strings.HasSuffix(id.Endpoint, "/") {
		t.Errorf("Expected endpoint without trailing slash, got %q", id.Endpoint)
	}
}

func TestParseHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost:11434", "http://localhost:11434"},
		{"https://ollama.internal", "https://ollama.internal"},
	}
	for _, tt := range tests {
		u, err := parseHost(tt.host)
		if err != nil {
			t.Fatalf("parseHost(%q) failed: %v", tt.host, err)
		}
		if u.String() != tt.want {
			t.Errorf("parseHost(%q) = %q, want %q", tt.host, u.String(), tt.want)
		}
	}
}
