package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ctxpkg "github.com/aschepis/backscratcher/converse/context"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// ollamaStream implements the llm.Stream interface for Ollama streaming responses.
// Chat delivers chunks to a callback on its own goroutine; Next waits on the
// condition variable until an event, the end of the stream or an error arrives.
type ollamaStream struct {
	ctx     context.Context
	client  *api.Client
	req     *api.ChatRequest
	schemas map[string]llm.ToolSchema
	logger  zerolog.Logger

	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
}

func newOllamaStream(ctx context.Context, client *api.Client, req *api.ChatRequest, schemas map[string]llm.ToolSchema, logger zerolog.Logger) *ollamaStream {
	stream := &ollamaStream{
		ctx:     ctx,
		client:  client,
		req:     req,
		schemas: schemas,
		logger:  logger,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
	}
	stream.cond = sync.NewCond(&stream.mu)
	return stream
}

// Next advances to the next event in the stream.
func (s *ollamaStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		go s.run()
	}

	s.current++
	for s.current >= len(s.events) && !s.done && s.err == nil {
		s.cond.Wait()
	}
	if s.err != nil {
		return false
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *ollamaStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *ollamaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close marks the stream finished. The request itself ends when its context is cancelled.
func (s *ollamaStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	return nil
}

func (s *ollamaStream) emit(events ...*llm.StreamEvent) {
	s.events = append(s.events, events...)
	s.cond.Broadcast()
}

// run performs the chat request. Ollama sends text as incremental tokens and
// each tool call complete in a single chunk, so tool calls are emitted with
// their input already set.
func (s *ollamaStream) run() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart, ResponseID: "ollama_" + uuid.NewString()})
	s.mu.Unlock()

	err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.done {
			return context.Canceled
		}

		if resp.Message.Content != "" {
			s.emit(&llm.StreamEvent{
				Type:  llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: resp.Message.Content},
			})
		}

		for _, call := range resp.Message.ToolCalls {
			input := make(map[string]any, len(call.Function.Arguments))
			for k, v := range call.Function.Arguments {
				input[k] = v
			}
			if schema, ok := s.schemas[call.Function.Name]; ok {
				input = coerceArguments(input, schema)
			}
			s.debugArguments(call.Function.Name, input)
			s.emit(&llm.StreamEvent{
				Type: llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{
					Type:    llm.StreamDeltaTypeToolUse,
					ToolUse: &llm.ToolUseBlock{ID: "call_" + uuid.NewString(), Name: call.Function.Name, Input: input},
				},
			})
		}

		if resp.Done {
			usage := &llm.Usage{
				InputTokens:  int64(resp.PromptEvalCount),
				OutputTokens: int64(resp.EvalCount),
			}
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeMessageDelta,
				Usage:      usage,
				StopReason: resp.DoneReason,
			}, &llm.StreamEvent{
				Type:       llm.StreamEventTypeStop,
				Usage:      usage,
				StopReason: resp.DoneReason,
				Done:       true,
			})
			s.done = true
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.done {
		s.logger.Debug().Err(err).Str("model", s.req.Model).Msg("Ollama chat ended with error")
		s.err = mapError(err)
	}
	s.done = true
	s.cond.Broadcast()
}

func (s *ollamaStream) debugArguments(name string, input map[string]any) {
	cb, ok := ctxpkg.GetDebugCallback(s.ctx)
	if !ok || cb == nil {
		return
	}
	pretty, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", input))
	}
	cb(fmt.Sprintf("Tool call arguments for %s:\n%s", name, pretty))
}

var _ llm.Stream = (*ollamaStream)(nil)
