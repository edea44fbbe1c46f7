package anthropic

import (
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

// anthropicStream implements the llm.Stream interface for Anthropic streaming responses.
// A goroutine reads the SSE stream and buffers converted events; Next waits on
// the condition variable until an event, the end of the stream or an error arrives.
type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
	logger  zerolog.Logger
}

func newAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], logger zerolog.Logger) *anthropicStream {
	as := &anthropicStream{
		stream:  stream,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
		logger:  logger,
	}
	as.cond = sync.NewCond(&as.mu)
	return as
}

// Next advances to the next event in the stream.
func (s *anthropicStream) Next() bool {
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
func (s *anthropicStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *anthropicStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *anthropicStream) Close() error {
	s.mu.Lock()
	s.done = true
	s.cond.Broadcast()
	s.mu.Unlock()
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

func (s *anthropicStream) emit(event *llm.StreamEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// run reads the SSE stream until it ends, fails or the request context is cancelled.
func (s *anthropicStream) run() {
	var currentToolID string
	var usage *llm.Usage
	var stopReason string

	for s.stream.Next() {
		switch evt := s.stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage = &llm.Usage{
				InputTokens:              evt.Message.Usage.InputTokens,
				CacheCreationInputTokens: evt.Message.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     evt.Message.Usage.CacheReadInputTokens,
			}
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeStart,
				ResponseID: evt.Message.ID,
			})

		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentToolID = block.ID
				s.emit(&llm.StreamEvent{
					Type: llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{
						Type:    llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{ID: block.ID, Name: block.Name},
					},
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					s.emit(&llm.StreamEvent{
						Type:  llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: d.Text},
					})
				}
			case anthropic.InputJSONDelta:
				if currentToolID != "" && d.PartialJSON != "" {
					s.emit(&llm.StreamEvent{
						Type: llm.StreamEventTypeContentDelta,
						Delta: &llm.StreamDelta{
							Type:      llm.StreamDeltaTypeToolInput,
							ToolInput: d.PartialJSON,
							ToolUseID: currentToolID,
						},
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			currentToolID = ""

		case anthropic.MessageDeltaEvent:
			stopReason = string(evt.Delta.StopReason)
			if usage == nil {
				usage = &llm.Usage{}
			}
			usage.OutputTokens = evt.Usage.OutputTokens
			if evt.Usage.InputTokens > 0 {
				usage.InputTokens = evt.Usage.InputTokens
			}
			if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
				s.logger.Debug().
					Int64("input_tokens", usage.InputTokens).
					Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
					Int64("cache_read_tokens", usage.CacheReadInputTokens).
					Msg("Prompt cache stats (stream)")
			}
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeMessageDelta,
				Usage:      usage,
				StopReason: stopReason,
			})

		case anthropic.MessageStopEvent:
			s.mu.Lock()
			s.events = append(s.events, &llm.StreamEvent{
				Type:       llm.StreamEventTypeStop,
				Usage:      usage,
				StopReason: stopReason,
				Done:       true,
			})
			s.done = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Err(); err != nil && !s.done {
		s.err = mapError(err)
	}
	s.done = true
	s.cond.Broadcast()
}
