package llm

import (
	"context"
	"errors"
	"testing"
)

func textEvent(text string) *StreamEvent {
	return &StreamEvent{
		Type:  StreamEventTypeContentDelta,
		Delta: &StreamDelta{Type: StreamDeltaTypeText, Text: text},
	}
}

func TestAccumulatorTextAndToolCalls(t *testing.T) {
	acc := NewAccumulator()
	events := []*StreamEvent{
		{Type: StreamEventTypeStart, ResponseID: "msg_123"},
		textEvent("Checking "),
		textEvent("now."),
		{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "a", Name: "first"}}},
		{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `{"city":`}},
		{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: `"Tokyo"}`}},
		{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "b", Name: "second"}}},
		{Type: StreamEventTypeStop, Usage: &Usage{InputTokens: 10, OutputTokens: 5}, StopReason: "tool_use", Done: true},
	}

	var fragments string
	for _, ev := range events {
		fragments += acc.Add(ev)
	}
	if fragments != "Checking now." {
		t.Errorf("Expected fragments 'Checking now.', got %q", fragments)
	}
	if !acc.Done() {
		t.Error("Expected accumulator to be done after stop event")
	}

	resp := acc.Response()
	if resp.ID != "msg_123" {
		t.Errorf("Expected response id msg_123, got %q", resp.ID)
	}
	if resp.Text() != "Checking now." {
		t.Errorf("Expected text 'Checking now.', got %q", resp.Text())
	}
	calls := resp.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("Expected tool call order [first second], got [%s %s]", calls[0].Name, calls[1].Name)
	}
	if calls[0].Input["city"] != "Tokyo" {
		t.Errorf("Expected parsed input city=Tokyo, got %v", calls[0].Input)
	}
	if len(calls[1].Input) != 0 {
		t.Errorf("Expected empty input for second call, got %v", calls[1].Input)
	}
	if resp.StopReason != "tool_use" || resp.Usage == nil || resp.Usage.OutputTokens != 5 {
		t.Errorf("Unexpected stop reason/usage: %q %+v", resp.StopReason, resp.Usage)
	}
}

func TestAccumulatorToolInputByID(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "a", Name: "x"}}})
	acc.Add(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "b", Name: "y"}}})
	acc.Add(&StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolUseID: "a", ToolInput: `{"n":1}`}})

	calls := acc.Response().ToolCalls()
	if calls[0].Input["n"] != float64(1) {
		t.Errorf("Expected input routed to tool a, got %v", calls[0].Input)
	}
	if len(calls[1].Input) != 0 {
		t.Errorf("Expected tool b input to stay empty, got %v", calls[1].Input)
	}
}

func TestAccumulatorMalformedToolInput(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{ID: "a", Name: "x"}}})
	// Cut short, as after a max_tokens stop.
	acc.Add(&StreamEvent{Type: StreamEventTypeContentDelta, Delta: &StreamDelta{Type: StreamDeltaTypeToolInput, ToolUseID: "a", ToolInput: `{"city": "Tok`}})

	calls := acc.Response().ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected one tool call, got %+v", calls)
	}
	if calls[0].InputError == "" {
		t.Error("Expected InputError to be set for truncated input")
	}
	if len(calls[0].Input) != 0 {
		t.Errorf("Expected starting input to be kept, got %v", calls[0].Input)
	}
}

func TestAccumulatorMissingToolIDGetsGenerated(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(&StreamEvent{Type: StreamEventTypeContentBlock, Delta: &StreamDelta{Type: StreamDeltaTypeToolUse, ToolUse: &ToolUseBlock{Name: "x", Input: map[string]any{"k": "v"}}}})
	calls := acc.Response().ToolCalls()
	if len(calls) != 1 || calls[0].ID == "" {
		t.Fatalf("Expected one tool call with generated id, got %+v", calls)
	}
	if calls[0].Input["k"] != "v" {
		t.Errorf("Expected starting input to be kept, got %v", calls[0].Input)
	}
}

type sliceStream struct {
	events []*StreamEvent
	idx    int
	err    error
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.idx >= len(s.events) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceStream) Event() *StreamEvent { return s.events[s.idx-1] }
func (s *sliceStream) Err() error          { return s.err }
func (s *sliceStream) Close() error        { s.closed = true; return nil }

type sliceClient struct {
	stream *sliceStream
	err    error
}

func (c *sliceClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func (c *sliceClient) Identity() ClientIdentity {
	return ClientIdentity{Provider: "test", Model: "m1"}
}

func TestWrapWithMiddlewareRewritesEvents(t *testing.T) {
	base := &sliceClient{stream: &sliceStream{events: []*StreamEvent{textEvent("hello")}}}
	var seenModel string
	client := WrapWithMiddleware(base, MiddlewareFunc{
		BeforeStreamFunc: func(ctx context.Context, req *Request) (*Request, error) {
			seenModel = req.Model
			return req, nil
		},
		OnStreamEventFunc: func(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error) {
			out := *event
			out.Delta = &StreamDelta{Type: StreamDeltaTypeText, Text: event.Delta.Text + "!"}
			return &out, nil
		},
	})

	stream, err := client.Stream(context.Background(), &Request{Model: "m1"})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if seenModel != "m1" {
		t.Errorf("Expected BeforeStream to see model m1, got %q", seenModel)
	}
	if !stream.Next() {
		t.Fatal("Expected one event")
	}
	if got := stream.Event().Delta.Text; got != "hello!" {
		t.Errorf("Expected rewritten text 'hello!', got %q", got)
	}
	if stream.Next() {
		t.Error("Expected stream to end")
	}
	if err := stream.Close(); err != nil || !base.stream.closed {
		t.Error("Expected Close to reach the wrapped stream")
	}
}

func TestWrapWithMiddlewareForwardsIdentityAndErrors(t *testing.T) {
	boom := errors.New("boom")
	var observed error
	client := WrapWithMiddleware(&sliceClient{err: boom}, MiddlewareFunc{
		OnStreamErrorFunc: func(ctx context.Context, req *Request, err error) error {
			observed = err
			return nil
		},
	})

	if d, ok := client.(Describer); !ok || d.Identity().Model != "m1" {
		t.Error("Expected wrapped client to forward Identity")
	}
	_, err := client.Stream(context.Background(), &Request{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected original error to be returned, got %v", err)
	}
	if !errors.Is(observed, boom) {
		t.Errorf("Expected middleware to observe error, got %v", observed)
	}
}

func TestWrapWithMiddlewareNoMiddlewareReturnsClient(t *testing.T) {
	base := &sliceClient{}
	if WrapWithMiddleware(base) != Client(base) {
		t.Error("Expected unwrapped client when no middleware is given")
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("") != "" {
		t.Error("Expected empty fingerprint for empty secret")
	}
	a, b := Fingerprint("sk-one"), Fingerprint("sk-two")
	if a == b || len(a) != 16 {
		t.Errorf("Expected distinct 16-char fingerprints, got %q and %q", a, b)
	}
	if Fingerprint("sk-one") != a {
		t.Error("Expected fingerprint to be stable")
	}
}
