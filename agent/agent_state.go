package agent

// State represents where a conversation is in its request cycle.
type State string

const (
	StateIdle          State = "idle"
	StateStreaming     State = "streaming"
	StateToolExecuting State = "tool_executing"
	StateAborted       State = "aborted"
)

// setState records a transition made by the call that owns gen. Transitions
// from a call that was stopped are ignored. Callers hold c.mu.
func (c *Conversation) setState(gen uint64, state State) {
	if gen != c.generation || c.state == state {
		return
	}
	c.logger.Debug().
		Str("from", string(c.state)).
		Str("to", string(state)).
		Msg("Conversation state changed")
	c.state = state
}

// State returns the current state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
