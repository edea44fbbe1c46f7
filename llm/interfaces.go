package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"
)

// Client is the streaming model capability used by a conversation.
// Implementations handle provider-specific details internally.
type Client interface {
	// Stream sends a request and returns a stream of events.
	// Cancelling ctx aborts the underlying network call; the stream then ends
	// with Next() returning false and Err() reporting the cancellation.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream represents a streaming response from an LLM.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// ClientIdentity is what a constructed client reports about itself.
// Credential is a fingerprint, never the raw secret.
type ClientIdentity struct {
	Provider   string
	Model      string
	Credential string
	Endpoint   string
}

// Describer is implemented by clients that can report the settings the
// vendor SDK actually ended up with.
type Describer interface {
	Identity() ClientIdentity
}

// Prober is implemented by clients that can verify connectivity with a cheap request.
type Prober interface {
	Probe(ctx context.Context) error
}

// Fingerprint returns a short stable digest of a credential suitable for comparison and logging.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// Middleware provides hooks for decorating streaming calls.
// This allows adding cross-cutting concerns like logging without modifying provider implementations.
type Middleware interface {
	// BeforeStream is called before starting a stream.
	// It can modify the request or return an error to abort the request.
	BeforeStream(ctx context.Context, req *Request) (*Request, error)

	// OnStreamEvent is called for each stream event.
	// It can modify the event or return an error to abort the stream.
	OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error)

	// OnStreamError is called when a stream error occurs.
	// It can return a modified error or nil to use the original error.
	OnStreamError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeStreamFunc  func(ctx context.Context, req *Request) (*Request, error)
	OnStreamEventFunc func(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error)
	OnStreamErrorFunc func(ctx context.Context, req *Request, err error) error
}

// BeforeStream calls the BeforeStreamFunc if set.
func (f MiddlewareFunc) BeforeStream(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeStreamFunc != nil {
		return f.BeforeStreamFunc(ctx, req)
	}
	return req, nil
}

// OnStreamEvent calls the OnStreamEventFunc if set.
func (f MiddlewareFunc) OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error) {
	if f.OnStreamEventFunc != nil {
		return f.OnStreamEventFunc(ctx, req, event)
	}
	return event, nil
}

// OnStreamError calls the OnStreamErrorFunc if set.
func (f MiddlewareFunc) OnStreamError(ctx context.Context, req *Request, err error) error {
	if f.OnStreamErrorFunc != nil {
		return f.OnStreamErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// The wrapper forwards Identity and Probe when the wrapped client supports them.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Stream implements Client.Stream with middleware support.
func (c *clientWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeStream(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	stream, err := c.client.Stream(ctx, req)
	if err != nil {
		return nil, c.onError(ctx, req, err)
	}

	return &streamWithMiddleware{
		stream: stream,
		client: c,
		req:    req,
		ctx:    ctx,
	}, nil
}

// Identity implements Describer when the wrapped client does.
func (c *clientWithMiddleware) Identity() ClientIdentity {
	if d, ok := c.client.(Describer); ok {
		return d.Identity()
	}
	return ClientIdentity{}
}

// Probe implements Prober when the wrapped client does.
func (c *clientWithMiddleware) Probe(ctx context.Context) error {
	if p, ok := c.client.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

// Unwrap returns the client underneath the middleware chain.
func (c *clientWithMiddleware) Unwrap() Client {
	return c.client
}

func (c *clientWithMiddleware) onError(ctx context.Context, req *Request, err error) error {
	for _, mw := range c.middleware {
		if handled := mw.OnStreamError(ctx, req, err); handled != nil {
			err = handled
		}
	}
	return err
}

// streamWithMiddleware wraps a Stream with middleware.
type streamWithMiddleware struct {
	stream Stream
	client *clientWithMiddleware
	req    *Request
	ctx    context.Context
	event  *StreamEvent
	err    error
}

// Next implements Stream.Next with middleware support.
func (s *streamWithMiddleware) Next() bool {
	if s.err != nil || !s.stream.Next() {
		return false
	}

	event := s.stream.Event()
	if event == nil {
		return false
	}

	for _, mw := range s.client.middleware {
		var err error
		event, err = mw.OnStreamEvent(s.ctx, s.req, event)
		if err != nil {
			s.err = err
			return false
		}
		if event == nil {
			return false
		}
	}

	s.event = event
	return true
}

// Event implements Stream.Event.
func (s *streamWithMiddleware) Event() *StreamEvent {
	return s.event
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	err := s.err
	if err == nil {
		err = s.stream.Err()
	}
	if err != nil {
		return s.client.onError(s.ctx, s.req, err)
	}
	return nil
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	return s.stream.Close()
}

// NewLoggingMiddleware logs request shape, stream completion and stream failures.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "llmLogging").Logger()
	return MiddlewareFunc{
		BeforeStreamFunc: func(ctx context.Context, req *Request) (*Request, error) {
			logger.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Int("tools", len(req.Tools)).
				Msg("Starting model stream")
			return req, nil
		},
		OnStreamEventFunc: func(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error) {
			if event.Type == StreamEventTypeStop {
				ev := logger.Debug().Str("model", req.Model).Str("stop_reason", event.StopReason)
				if event.Usage != nil {
					ev = ev.Int64("input_tokens", event.Usage.InputTokens).Int64("output_tokens", event.Usage.OutputTokens)
				}
				ev.Msg("Model stream finished")
			}
			return event, nil
		},
		OnStreamErrorFunc: func(ctx context.Context, req *Request, err error) error {
			if IsAbortedError(err) || ctx.Err() != nil {
				logger.Debug().Str("model", req.Model).Msg("Model stream cancelled")
				return err
			}
			logger.Warn().Err(err).Str("model", req.Model).Msg("Model stream failed")
			return err
		},
	}
}

// Ensure streamWithMiddleware implements Stream
var _ Stream = (*streamWithMiddleware)(nil)

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)
