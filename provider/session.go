package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Session owns the provider configuration and the client built from it.
// A single Session may back any number of conversations.
type Session struct {
	mu         sync.Mutex
	cfg        Config
	entry      *cacheEntry
	registry   *Registry
	middleware []llm.Middleware
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger

	// epoch counts Restart calls; a client built across one is not cached.
	epoch uint64
}

// cacheEntry pairs a client with the configuration it was built from.
type cacheEntry struct {
	cfg    Config
	client llm.Client
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry replaces the default vendor registry.
func WithRegistry(r *Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithMiddleware wraps every client the session builds.
func WithMiddleware(mw ...llm.Middleware) Option {
	return func(s *Session) { s.middleware = append(s.middleware, mw...) }
}

// WithProbeBackOff sets the retry policy used when probing a new client.
func WithProbeBackOff(fn func() backoff.BackOff) Option {
	return func(s *Session) { s.newBackOff = fn }
}

// NewSession creates a Session starting from DefaultConfig.
func NewSession(logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		cfg:        DefaultConfig(),
		newBackOff: defaultProbeBackOff,
		logger:     logger.With().Str("component", "providerSession").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(DefaultVendors()...)
	}
	return s
}

// Registry returns the vendors this session can build clients for.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Configure merges update into the current configuration. Fields left at
// their zero value keep their current setting.
func (s *Session) Configure(update Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := s.cfg.Merge(update)
	if err != nil {
		return err
	}
	s.cfg = merged
	s.logger.Debug().
		Str("provider", merged.Provider).
		Str("model", merged.Model).
		Msg("Provider configuration updated")
	return nil
}

// Config returns a copy of the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// Validate reports whether the current configuration, after environment
// resolution, is enough to build a client.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Validate(s.registry.Resolve(s.cfg))
}

// Restart drops the cached client. The next Client call builds a fresh one.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	s.epoch++
	s.logger.Debug().Msg("Provider client cache cleared")
}

// Client returns the cached client, building a new one when nothing is cached
// or the cached client no longer matches the configuration. The build and probe
// run without holding the session lock; the result is cached only if neither
// the configuration identity nor the epoch changed meanwhile.
func (s *Session) Client(ctx context.Context) (llm.Client, error) {
	s.mu.Lock()
	cfg := s.registry.Resolve(s.cfg)
	if err := s.registry.Validate(cfg); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.entry != nil && !s.stale(cfg) {
		client := s.entry.client
		s.mu.Unlock()
		return client, nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	vendor, _ := s.registry.Get(cfg.Provider)
	client, err := vendor.New(ctx, cfg, s.logger)
	if err != nil {
		return nil, llm.NewModelUnavailableError(cfg.Provider, err)
	}
	if cfg.Probe {
		if err := s.probe(ctx, client); err != nil {
			return nil, llm.NewModelUnavailableError(cfg.Provider, err)
		}
	}
	wrapped := llm.WrapWithMiddleware(client, s.middleware...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.registry.Resolve(s.cfg).identity() != cfg.identity() {
		s.logger.Debug().Msg("Configuration changed while building client; not caching it")
		return wrapped, nil
	}
	s.entry = &cacheEntry{cfg: cfg.Clone(), client: wrapped}
	s.logger.Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("Built model client")
	return wrapped, nil
}

// stale reports whether the cached entry must be rebuilt for cfg.
func (s *Session) stale(cfg Config) bool {
	if s.entry.cfg.identity() != cfg.identity() {
		return true
	}
	d, ok := s.entry.client.(llm.Describer)
	if !ok {
		return false
	}
	id := d.Identity()
	switch {
	case id.Provider != "" && id.Provider != cfg.Provider:
		return true
	case cfg.Model != "" && id.Model != "" && id.Model != cfg.Model:
		return true
	case cfg.Credentials != "" && id.Credential != "" && id.Credential != llm.Fingerprint(cfg.Credentials):
		return true
	case cfg.Endpoint != "" && id.Endpoint != "" && normalizeEndpoint(id.Endpoint) != normalizeEndpoint(cfg.Endpoint):
		return true
	}
	return false
}

// probe checks connectivity, retrying transient failures.
func (s *Session) probe(ctx context.Context, client llm.Client) error {
	p, ok := client.(llm.Prober)
	if !ok {
		return nil
	}
	attempt := 0
	operation := func() error {
		attempt++
		err := p.Probe(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && !llmErr.Retryable {
			return backoff.Permanent(err)
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Model probe failed, retrying")
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(s.newBackOff(), ctx))
}

func defaultProbeBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2.0
	b.MaxInterval = 5 * time.Second
	b.RandomizationFactor = 0.2
	return backoff.WithMaxRetries(b, 3)
}
