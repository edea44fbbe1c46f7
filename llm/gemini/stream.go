package gemini

import (
	"iter"
	"sync"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// geminiStream implements the llm.Stream interface over the SDK's response
// iterator. Next pulls one response at a time and queues the events it yields.
// Close must be called from the goroutine that calls Next.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []*llm.StreamEvent
	event   *llm.StreamEvent
	mu      sync.Mutex
	err     error
	done    bool
	started bool

	stopReason string
	usage      *llm.Usage
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

// Next advances to the next event in the stream.
func (s *geminiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			s.event = nil
			return false
		}
		s.pull()
	}
	s.event = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Event returns the current event.
func (s *geminiStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *geminiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the underlying iterator.
func (s *geminiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.stop()
	return nil
}

// pull reads one response and queues its events. Must hold mu.
func (s *geminiStream) pull() {
	resp, err, ok := s.next()
	if !ok {
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
	if resp == nil {
		return
	}

	if !s.started {
		s.started = true
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:       llm.StreamEventTypeStart,
			ResponseID: resp.ResponseID,
		})
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		candidate := resp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				s.pending = append(s.pending, &llm.StreamEvent{
					Type:  llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: part.Text},
				})
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				input := part.FunctionCall.Args
				if input == nil {
					input = map[string]any{}
				}
				s.pending = append(s.pending, &llm.StreamEvent{
					Type: llm.StreamEventTypeContentBlock,
					Delta: &llm.StreamDelta{
						Type:    llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{ID: id, Name: part.FunctionCall.Name, Input: input},
					},
				})
			}
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		s.stopReason = string(resp.Candidates[0].FinishReason)
	}

	if resp.UsageMetadata != nil {
		s.usage = &llm.Usage{
			InputTokens:          int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:         int64(resp.UsageMetadata.CandidatesTokenCount),
			CacheReadInputTokens: int64(resp.UsageMetadata.CachedContentTokenCount),
		}
		s.pending = append(s.pending, &llm.StreamEvent{
			Type:       llm.StreamEventTypeMessageDelta,
			Usage:      s.usage,
			StopReason: s.stopReason,
		})
	}
}

var _ llm.Stream = (*geminiStream)(nil)
