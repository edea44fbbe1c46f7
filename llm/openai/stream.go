package openai

import (
	"errors"
	"io"
	"sync"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// openaiStream implements the llm.Stream interface for OpenAI streaming responses.
// Each call to Next reads chunks until at least one event is available, so
// text reaches the caller as soon as the server sends it.
type openaiStream struct {
	stream  *openai.ChatCompletionStream
	pending []*llm.StreamEvent
	event   *llm.StreamEvent
	mu      sync.Mutex
	err     error
	done    bool
	started bool

	toolIDs    map[int]string // chunk tool call index -> tool call id
	stopReason string
	usage      *llm.Usage
}

func newOpenAIStream(stream *openai.ChatCompletionStream) *openaiStream {
	return &openaiStream{
		stream:  stream,
		toolIDs: make(map[int]string),
	}
}

// Next advances to the next event in the stream.
func (s *openaiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			s.event = nil
			return false
		}
		s.readChunk()
	}
	s.event = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Event returns the current event.
func (s *openaiStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources. It does not wait for a
// Next blocked in Recv; closing the body unblocks it.
func (s *openaiStream) Close() error {
	var err error
	if s.stream != nil {
		err = s.stream.Close()
	}
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return err
}

// readChunk receives one chunk and queues the events it produces. Must hold mu.
func (s *openaiStream) readChunk() {
	response, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:       llm.StreamEventTypeStop,
			Usage:      s.usage,
			StopReason: s.stopReason,
			Done:       true,
		})
		s.done = true
		return
	}
	if err != nil {
		s.err = mapError(err)
		return
	}

	if !s.started {
		s.started = true
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:       llm.StreamEventTypeStart,
			ResponseID: response.ID,
		})
	}

	if response.Usage != nil {
		s.usage = &llm.Usage{
			InputTokens:  int64(response.Usage.PromptTokens),
			OutputTokens: int64(response.Usage.CompletionTokens),
		}
		if response.Usage.PromptTokensDetails != nil {
			s.usage.CacheReadInputTokens = int64(response.Usage.PromptTokensDetails.CachedTokens)
		}
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:       llm.StreamEventTypeMessageDelta,
			Usage:      s.usage,
			StopReason: s.stopReason,
		})
	}

	if len(response.Choices) == 0 {
		return
	}
	choice := response.Choices[0]

	if choice.Delta.Content != "" {
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:  llm.StreamEventTypeContentDelta,
			Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: choice.Delta.Content},
		})
	}

	for i, call := range choice.Delta.ToolCalls {
		index := i
		if call.Index != nil {
			index = *call.Index
		}
		id, known := s.toolIDs[index]
		if !known {
			id = call.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			s.toolIDs[index] = id
			s.pending = append(s.pending, &llm.StreamEvent{
				Type: llm.StreamEventTypeContentBlock,
				Delta: &llm.StreamDelta{
					Type:    llm.StreamDeltaTypeToolUse,
					ToolUse: &llm.ToolUseBlock{ID: id, Name: call.Function.Name},
				},
			})
		}
		if call.Function.Arguments != "" {
			s.pending = append(s.pending, &llm.StreamEvent{
				Type: llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{
					Type:      llm.StreamDeltaTypeToolInput,
					ToolInput: call.Function.Arguments,
					ToolUseID: id,
				},
			})
		}
	}

	if choice.FinishReason != "" {
		s.stopReason = string(choice.FinishReason)
	}
}

var _ llm.Stream = (*openaiStream)(nil)
