package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/aschepis/backscratcher/converse/history"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// buildRequest trims history to the token budget and snapshots it into a request.
func (c *Conversation) buildRequest(gen uint64, cfg provider.Config) *llm.Request {
	specs := c.registry.Specs()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(gen, StateStreaming)

	sys, rest := history.SplitSystem(c.messages)
	system := systemPrompt(cfg.Instructions, sys)

	// Trim against the effective system prompt so instructions and added
	// context are both charged.
	candidate := rest
	if system != "" {
		candidate = append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, system)}, rest...)
	}
	_, kept := history.SplitSystem(history.Trim(candidate, "", specs, cfg.MaxTokens, c.counter))
	if dropped := len(rest) - len(kept); dropped > 0 && gen == c.generation {
		c.logger.Info().
			Int("dropped", dropped).
			Int("max_tokens", cfg.MaxTokens).
			Msg("Trimmed conversation history")
		trimmed := make([]llm.Message, 0, len(kept)+1)
		if sys != nil {
			trimmed = append(trimmed, *sys)
		}
		c.messages = append(trimmed, kept...)
	}

	return &llm.Request{
		Model:       cfg.Model,
		Messages:    llm.CloneMessages(kept),
		System:      system,
		Tools:       specs,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
}

func systemPrompt(instructions string, sys *llm.Message) string {
	parts := []string{instructions}
	if sys != nil {
		parts = append(parts, sys.Text())
	}
	return strings.Join(lo.Compact(parts), "\n\n")
}

// streamTurn runs one model call, forwarding the cumulative text to onDelta.
func (c *Conversation) streamTurn(
	ctx context.Context,
	gen uint64,
	client llm.Client,
	req *llm.Request,
	buf *strings.Builder,
	onDelta DeltaHandler,
) (*llm.Response, error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		return nil, c.streamFailure(ctx, err)
	}
	defer stream.Close() //nolint:errcheck // close errors are not actionable

	acc := llm.NewAccumulator()
	for stream.Next() {
		fragment := acc.Add(stream.Event())
		if fragment == "" {
			continue
		}
		buf.WriteString(fragment)
		if !c.emit(gen, onDelta, Delta{Text: buf.String()}) {
			return nil, llm.NewAbortedError()
		}
	}
	if err := stream.Err(); err != nil {
		return nil, c.streamFailure(ctx, err)
	}
	if ctx.Err() != nil {
		return nil, llm.NewAbortedError()
	}
	return acc.Response(), nil
}

// streamFailure classifies an error from the model client. Cancellation of the
// call becomes an aborted error; anything else, including deadlines, is fatal.
func (c *Conversation) streamFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return llm.NewAbortedError()
	}
	c.logger.Error().Err(err).Msg("Model stream failed")
	return llm.NewStreamError(err)
}

// emit delivers d unless the call has been stopped.
func (c *Conversation) emit(gen uint64, onDelta DeltaHandler, d Delta) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	c.delivering = gen
	c.mu.Unlock()

	if onDelta != nil {
		onDelta(d)
	}

	c.mu.Lock()
	c.delivering = 0
	c.mu.Unlock()
	return true
}

// appendMessage adds msg to history if the call still owns the conversation.
func (c *Conversation) appendMessage(gen uint64, msg llm.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.messages = append(c.messages, msg)
	return true
}

func newAssistantMessage(resp *llm.Response, calls []llm.ToolUseBlock) llm.Message {
	id := resp.ID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}
	msg := llm.NewToolUseMessage("", calls)
	msg.ID = id
	msg.Content = resp.Content
	return msg
}

// recordToolResult resolves the invocation for outcome and appends its tool result message.
func (c *Conversation) recordToolResult(gen uint64, assistantID string, outcome tools.Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.resolveInvocation(assistantID, outcome)
	c.messages = append(c.messages, llm.NewToolResultMessage(outcome.Block))
	return true
}

func (c *Conversation) resolveInvocation(assistantID string, outcome tools.Outcome) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID != assistantID || c.messages[i].Role != llm.RoleAssistant {
			continue
		}
		msg := c.messages[i].Clone()
		for j := range msg.ToolInvocations {
			if msg.ToolInvocations[j].ToolCallID == outcome.Block.ID {
				msg.ToolInvocations[j].State = llm.InvocationResult
				msg.ToolInvocations[j].Result = outcome.LLMResult
			}
		}
		c.messages[i] = msg
		return
	}
}

// sealPending records an aborted result for every invocation still pending so
// the history stays valid for the next request. Callers hold c.mu.
func (c *Conversation) sealPending() int {
	var sealed []tools.Outcome
	for i := range c.messages {
		if c.messages[i].Complete() {
			continue
		}
		msg := c.messages[i].Clone()
		for j, inv := range msg.ToolInvocations {
			if inv.State == llm.InvocationResult {
				continue
			}
			outcome := tools.AbortedOutcome(llm.ToolUseBlock{ID: inv.ToolCallID, Name: inv.ToolName, Input: inv.Args})
			msg.ToolInvocations[j].State = llm.InvocationResult
			msg.ToolInvocations[j].Result = outcome.LLMResult
			sealed = append(sealed, outcome)
		}
		c.messages[i] = msg
	}
	for _, outcome := range sealed {
		c.messages = append(c.messages, llm.NewToolResultMessage(outcome.Block))
	}
	return len(sealed)
}
