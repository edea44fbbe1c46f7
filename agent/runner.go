package agent

import (
	"context"
	"fmt"
	"strings"

	ctxpkg "github.com/aschepis/backscratcher/converse/context"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/google/uuid"
)

// SendOption configures a single SendMessage call.
type SendOption func(*sendOptions)

type sendOptions struct {
	attachments []llm.ContentBlock
}

// WithAttachments sends image or file blocks along with the text.
func WithAttachments(blocks ...llm.ContentBlock) SendOption {
	return func(o *sendOptions) { o.attachments = append(o.attachments, blocks...) }
}

// SendMessage appends a user message and runs the model/tool cycle until the
// model answers without tool calls, answers with text, or the step limit is
// reached. onDelta receives the growing assistant text and, on success, one
// final Delta with IsCompleted set. A stopped call returns an aborted error
// (errors.Is(err, context.Canceled) holds) and delivers no completion.
func (c *Conversation) SendMessage(ctx context.Context, text string, onDelta DeltaHandler, opts ...SendOption) (result Result, err error) {
	var so sendOptions
	for _, opt := range opts {
		opt(&so)
	}
	userMsg, err := newUserMessage(text, so.attachments)
	if err != nil {
		return Result{}, err
	}

	runCtx, gen, err := c.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { c.finish(gen, err) }()

	client, err := c.session.Client(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return Result{}, llm.NewAbortedError()
		}
		c.logger.Error().Err(err).Msg("Model client unavailable")
		return Result{}, err
	}

	if !c.appendMessage(gen, userMsg) {
		return Result{}, llm.NewAbortedError()
	}

	cfg := c.session.Config()
	maxSteps := c.stepLimit(cfg)
	var buf strings.Builder

	for step := 0; step < maxSteps; step++ {
		result.Steps = step + 1
		req := c.buildRequest(gen, cfg)

		debugf(runCtx, fmt.Sprintf("Calling model (model: %s, messages: %d, tools: %d)",
			req.Model, len(req.Messages), len(req.Tools)))

		resp, err := c.streamTurn(runCtx, gen, client, req, &buf, onDelta)
		if err != nil {
			return result, err
		}
		result.ResponseID = resp.ID

		calls := resp.ToolCalls()
		assistant := newAssistantMessage(resp, calls)
		if !c.appendMessage(gen, assistant) {
			return result, llm.NewAbortedError()
		}
		if len(calls) == 0 {
			break
		}

		c.mu.Lock()
		c.setState(gen, StateToolExecuting)
		c.mu.Unlock()

		toolCtx := ctxpkg.WithToolCall(runCtx, ctxpkg.ToolCall{Step: step})
		var previous any
		for _, call := range calls {
			if runCtx.Err() != nil {
				return result, llm.NewAbortedError()
			}
			outcome := c.executor.Execute(toolCtx, call, previous)
			if !c.recordToolResult(gen, assistant.ID, outcome) {
				return result, llm.NewAbortedError()
			}
			previous = outcome.LLMResult
			result.UIData = outcome.UIData
		}

		// Only a turn that produced tool results and no visible text goes back to the model.
		if buf.Len() > 0 {
			break
		}
	}

	result.Text = buf.String()
	if !c.emit(gen, onDelta, Delta{Text: result.Text, IsCompleted: true, UIData: result.UIData}) {
		return result, llm.NewAbortedError()
	}
	c.logger.Info().
		Int("steps", result.Steps).
		Str("response_id", result.ResponseID).
		Msg("Message completed")
	return result, nil
}

// begin claims the conversation for one call and creates its abort handle.
func (c *Conversation) begin(ctx context.Context) (context.Context, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, 0, ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.generation++
	c.inFlight = true
	c.cancel = cancel
	c.state = StateStreaming
	return runCtx, c.generation, nil
}

// finish releases the conversation unless the call was already stopped. A
// call that ended early (caller cancellation, tool loop cut short) has its
// unanswered tool calls sealed like Stop does.
func (c *Conversation) finish(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	if sealed := c.sealPending(); sealed > 0 {
		c.logger.Info().Int("sealed_tool_calls", sealed).Msg("Sealed unanswered tool calls")
	}
	if llm.IsAbortedError(err) {
		c.setState(gen, StateAborted)
	} else {
		c.setState(gen, StateIdle)
	}
	c.inFlight = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Conversation) stepLimit(cfg provider.Config) int {
	switch {
	case c.maxSteps > 0:
		return c.maxSteps
	case cfg.MaxSteps > 0:
		return cfg.MaxSteps
	default:
		return provider.DefaultMaxSteps
	}
}

func newUserMessage(text string, attachments []llm.ContentBlock) (llm.Message, error) {
	if text == "" && len(attachments) == 0 {
		return llm.Message{}, ErrEmptyMessage
	}
	msg := llm.Message{ID: "msg_" + uuid.NewString(), Role: llm.RoleUser}
	if text != "" {
		msg.Content = append(msg.Content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: text})
	}
	msg.Content = append(msg.Content, attachments...)
	return msg, nil
}
