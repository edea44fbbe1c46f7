package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/aschepis/backscratcher/converse/history"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned when SendMessage is called while another call is in flight.
	ErrBusy = errors.New("conversation already has a message in flight")
	// ErrEmptyMessage is returned for a message with no text and no attachments.
	ErrEmptyMessage = errors.New("message has no text and no attachments")
)

// Delta is one update delivered to a DeltaHandler. Text is the cumulative
// assistant text for the call so far.
type Delta struct {
	Text        string
	IsCompleted bool
	UIData      any
}

// DeltaHandler receives streaming updates. Handlers run on the goroutine
// executing SendMessage and may call Stop or Restart.
type DeltaHandler func(Delta)

// Result summarizes a completed SendMessage call.
type Result struct {
	Text       string
	UIData     any
	Steps      int
	ResponseID string
}

// Conversation owns one message history and drives the model/tool cycle for it.
type Conversation struct {
	session  *provider.Session
	registry *tools.Registry
	executor *tools.Executor
	counter  history.TokenCounter
	maxSteps int

	mu       sync.Mutex
	messages []llm.Message
	state    State
	inFlight bool
	cancel   context.CancelFunc
	// generation identifies the current call; Stop and Restart bump it so an
	// unwinding call can no longer touch history or deliver callbacks.
	generation uint64

	// emitMu serializes callback delivery. delivering is the generation whose
	// callback is running, 0 when none is.
	emitMu     sync.Mutex
	delivering uint64

	logger zerolog.Logger
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithRegistry uses a shared tool registry instead of a private one.
func WithRegistry(r *tools.Registry) Option {
	return func(c *Conversation) { c.registry = r }
}

// WithTokenCounter sets the counter used for history trimming.
func WithTokenCounter(counter history.TokenCounter) Option {
	return func(c *Conversation) { c.counter = counter }
}

// WithMaxSteps overrides the session's max_steps for this conversation.
func WithMaxSteps(n int) Option {
	return func(c *Conversation) { c.maxSteps = n }
}

// NewConversation creates an idle conversation backed by session.
func NewConversation(session *provider.Session, logger zerolog.Logger, opts ...Option) *Conversation {
	c := &Conversation{
		session: session,
		counter: history.DefaultCounter,
		state:   StateIdle,
		logger:  logger.With().Str("component", "conversation").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = tools.NewRegistry(logger)
	}
	c.executor = tools.NewExecutor(c.registry, logger)
	return c
}

// Configure merges cfg into the session's provider configuration.
func (c *Conversation) Configure(cfg provider.Config) error {
	return c.session.Configure(cfg)
}

// RegisterTool adds or replaces a tool.
func (c *Conversation) RegisterTool(def tools.Definition) {
	c.registry.Register(def)
}

// Stop aborts the in-flight call, if any. It is safe to call at any time,
// including from a DeltaHandler. History is kept; tool calls that never ran
// are recorded as aborted. No callback starts after Stop returns.
func (c *Conversation) Stop() {
	c.mu.Lock()
	if !c.inFlight {
		c.mu.Unlock()
		return
	}
	// A running callback already passed its generation check and may be
	// the caller of Stop, so it is not waited for.
	callbackRunning := c.delivering == c.generation
	c.generation++
	c.inFlight = false
	c.cancel()
	c.cancel = nil
	sealed := c.sealPending()
	c.state = StateAborted
	c.mu.Unlock()

	if !callbackRunning {
		// Let an emit that holds emitMu see the new generation.
		c.emitMu.Lock()
		c.emitMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
	}
	c.logger.Info().Int("sealed_tool_calls", sealed).Msg("Conversation stopped")
}

// Restart stops any in-flight call, clears history and drops the cached model
// client so the next call rebuilds it from the current configuration.
func (c *Conversation) Restart() {
	c.Stop()
	c.mu.Lock()
	c.messages = nil
	c.state = StateIdle
	c.mu.Unlock()
	c.session.Restart()
	c.logger.Info().Msg("Conversation restarted")
}

// AddAdditionalContext appends text to the system message, creating it if needed.
// It does not call the model.
func (c *Conversation) AddAdditionalContext(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 && c.messages[0].Role == llm.RoleSystem {
		sys := c.messages[0].Clone()
		if existing := sys.Text(); existing != "" {
			text = "\n" + text
		}
		sys.Content = append(sys.Content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: text})
		c.messages[0] = sys
		return
	}
	c.messages = append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, text)}, c.messages...)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return llm.CloneMessages(c.messages)
}

// SetMessages replaces the history. It fails with ErrBusy while a call is in flight.
func (c *Conversation) SetMessages(msgs []llm.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return ErrBusy
	}
	c.messages = llm.CloneMessages(msgs)
	return nil
}
