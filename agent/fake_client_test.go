package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/rs/zerolog"
)

// turn is one scripted model response.
type turn struct {
	events []llm.StreamEvent
	hang   bool  // after the events, block until the call is cancelled
	err    error // stream failure after the events
}

type fakeClient struct {
	mu       sync.Mutex
	turns    []turn
	calls    int
	requests []*llm.Request
	hanging  chan struct{}
	once     sync.Once
}

func newFakeClient(turns ...turn) *fakeClient {
	return &fakeClient{turns: turns, hanging: make(chan struct{})}
}

func (c *fakeClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.calls >= len(c.turns) {
		return nil, errors.New("unexpected model call")
	}
	t := c.turns[c.calls]
	c.calls++
	return &fakeStream{ctx: ctx, turn: t, client: c}, nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeStream struct {
	ctx    context.Context
	turn   turn
	client *fakeClient
	idx    int
	event  *llm.StreamEvent
	err    error
}

func (s *fakeStream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.idx < len(s.turn.events) {
		s.event = &s.turn.events[s.idx]
		s.idx++
		return true
	}
	if s.turn.hang {
		s.client.once.Do(func() { close(s.client.hanging) })
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	s.err = s.turn.err
	return false
}

func (s *fakeStream) Event() *llm.StreamEvent { return s.event }
func (s *fakeStream) Err() error              { return s.err }
func (s *fakeStream) Close() error            { return nil }

func textTurn(id string, parts ...string) turn {
	events := []llm.StreamEvent{{Type: llm.StreamEventTypeStart, ResponseID: id}}
	for _, p := range parts {
		events = append(events, llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: p},
		})
	}
	events = append(events, llm.StreamEvent{Type: llm.StreamEventTypeStop, StopReason: "end_turn", Done: true})
	return turn{events: events}
}

func toolTurn(id, text string, calls ...llm.ToolUseBlock) turn {
	events := []llm.StreamEvent{{Type: llm.StreamEventTypeStart, ResponseID: id}}
	if text != "" {
		events = append(events, llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: text},
		})
	}
	for i := range calls {
		call := calls[i]
		events = append(events, llm.StreamEvent{
			Type:  llm.StreamEventTypeContentBlock,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeToolUse, ToolUse: &call},
		})
	}
	events = append(events, llm.StreamEvent{Type: llm.StreamEventTypeStop, StopReason: "tool_use", Done: true})
	return turn{events: events}
}

// testVendor hands out the scripted clients in order, one per build.
type testVendor struct {
	mu      sync.Mutex
	clients []*fakeClient
	builds  int
}

func (v *testVendor) factory(ctx context.Context, cfg provider.Config, logger zerolog.Logger) (llm.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.builds >= len(v.clients) {
		return nil, errors.New("no more clients")
	}
	c := v.clients[v.builds]
	v.builds++
	return c, nil
}

func (v *testVendor) buildCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.builds
}

func newTestConversation(t *testing.T, clients []*fakeClient, cfg provider.Config, opts ...Option) (*Conversation, *testVendor) {
	t.Helper()
	v := &testVendor{clients: clients}
	session := provider.NewSession(zerolog.Nop(), provider.WithRegistry(provider.NewRegistry(provider.Vendor{
		Name: "fake",
		New:  v.factory,
	})))
	if cfg.Provider == "" {
		cfg.Provider = "fake"
	}
	if cfg.Model == "" {
		cfg.Model = "fake-model"
	}
	if err := session.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return NewConversation(session, zerolog.Nop(), opts...), v
}

// recorder collects deltas from a DeltaHandler.
type recorder struct {
	mu     sync.Mutex
	deltas []Delta
}

func (r *recorder) handle(d Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, d)
}

func (r *recorder) all() []Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delta(nil), r.deltas...)
}

func (r *recorder) completed() int {
	n := 0
	for _, d := range r.all() {
		if d.IsCompleted {
			n++
		}
	}
	return n
}

func temperatureTool(calls *[]map[string]any) tools.Definition {
	return tools.Definition{
		Name:        "get_temperature",
		Description: "Current temperature for a city",
		Schema: llm.ToolSchema{
			Properties: map[string]any{"city": map[string]any{"type": "string"}},
			Required:   []string{"city"},
		},
		Execute: func(ctx context.Context, call tools.Call) (tools.Result, error) {
			if calls != nil {
				*calls = append(*calls, call.FunctionArgs)
			}
			return tools.OK(map[string]any{"temperature": 80}), nil
		},
	}
}
