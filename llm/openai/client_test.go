package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const sseBody = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"check."},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"get_temperature","arguments":""}}]},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"get_temperature","arguments":""}}]},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"Tokyo\"}"}}]},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{\"city\":\"Paris\"}"}}]},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":20,"total_tokens":32}}

data: [DONE]

`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestStreamInterleavedToolCalls(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	})

	topP := 0.5
	stream, err := client.Stream(context.Background(), &llm.Request{
		System:   "be brief",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "compare Tokyo and Paris")},
		Tools:    []llm.ToolSpec{{Name: "get_temperature", Schema: llm.ToolSchema{Properties: map[string]any{"city": map[string]any{"type": "string"}}}}},
		TopP:     &topP,
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close() //nolint:errcheck // test

	acc := llm.NewAccumulator()
	var fragments []string
	for stream.Next() {
		if text := acc.Add(stream.Event()); text != "" {
			fragments = append(fragments, text)
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	if len(fragments) != 2 {
		t.Errorf("Expected 2 text fragments, got %v", fragments)
	}
	resp := acc.Response()
	if resp.ID != "chatcmpl-1" {
		t.Errorf("Expected response id chatcmpl-1, got %q", resp.ID)
	}
	if resp.Text() != "Let me check." {
		t.Errorf("Unexpected text %q", resp.Text())
	}
	calls := resp.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID != "call_a" || calls[0].Input["city"] != "Tokyo" {
		t.Errorf("Unexpected first call %+v", calls[0])
	}
	if calls[1].ID != "call_b" || calls[1].Input["city"] != "Paris" {
		t.Errorf("Unexpected second call %+v", calls[1])
	}
	if resp.StopReason != "tool_calls" {
		t.Errorf("Expected stop reason tool_calls, got %q", resp.StopReason)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 20 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}
	if !acc.Done() {
		t.Error("Expected stream to finish with a stop event")
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("Expected system message first, got %v", first["role"])
	}
	if body["tool_choice"] != "auto" {
		t.Errorf("Expected tool_choice auto, got %v", body["tool_choice"])
	}
	if opts, _ := body["stream_options"].(map[string]any); opts["include_usage"] != true {
		t.Errorf("Expected include_usage, got %v", body["stream_options"])
	}
}

func TestStreamMapsRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
	})

	_, err := client.Stream(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	if !llm.IsRateLimitError(err) {
		t.Errorf("Expected rate limit error, got %v", err)
	}
	if llm.ExtractRetryAfter(err) == nil {
		t.Error("Expected a retry-after hint")
	}
}

func TestProbeAndIdentity(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
	})
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if path != "/v1/models" {
		t.Errorf("Expected probe to list models, got %q", path)
	}
	id := client.Identity()
	if id.Provider != ProviderName || id.Model != DefaultModel || id.Credential != llm.Fingerprint("sk-test") {
		t.Errorf("Unexpected identity %+v", id)
	}
}

func TestNewClientDefaults(t *testing.T) {
	if _, err := NewClient(Config{}, zerolog.Nop()); err == nil {
		t.Error("Expected error without API key")
	}
	client, err := NewClient(Config{APIKey: "k", Model: "gpt-4.1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if id := client.Identity(); id.Endpoint != DefaultBaseURL || id.Model != "gpt-4.1" {
		t.Errorf("Unexpected identity %+v", id)
	}
}
