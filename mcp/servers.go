package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aschepis/backscratcher/converse/tools"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultStartTimeout bounds the handshake with one server.
const DefaultStartTimeout = 30 * time.Second

// ServerConfig describes one MCP server. Command selects the stdio transport,
// URL the streamable HTTP transport.
type ServerConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Servers holds the connected MCP servers.
type Servers struct {
	clients map[string]Client
	names   *NameAdapter
	logger  zerolog.Logger
}

// Connect starts every configured server and registers its tools. A server
// that fails to start is logged and skipped so one broken server does not
// take the others down.
func Connect(ctx context.Context, configs map[string]ServerConfig, registry *tools.Registry, logger zerolog.Logger) *Servers {
	s := &Servers{
		clients: make(map[string]Client),
		names:   NewNameAdapter(),
		logger:  logger.With().Str("component", "mcpServers").Logger(),
	}
	serverNames := lo.Keys(configs)
	sort.Strings(serverNames)
	for _, name := range serverNames {
		client, err := newClient(s.logger, configs[name])
		if err != nil {
			s.logger.Warn().Err(err).Str("server", name).Msg("Skipping MCP server")
			continue
		}
		if err := s.add(ctx, name, client, registry); err != nil {
			s.logger.Warn().Err(err).Str("server", name).Msg("Skipping MCP server")
			_ = client.Close()
		}
	}
	return s
}

func (s *Servers) add(ctx context.Context, name string, client Client, registry *tools.Registry) error {
	startCtx, cancel := context.WithTimeout(ctx, DefaultStartTimeout)
	defer cancel()
	if err := client.Start(startCtx); err != nil {
		return err
	}
	if _, err := RegisterTools(startCtx, name, client, registry, s.names, s.logger); err != nil {
		return err
	}
	s.clients[name] = client
	return nil
}

func newClient(logger zerolog.Logger, cfg ServerConfig) (Client, error) {
	switch {
	case cfg.Command != "":
		env := lo.MapToSlice(cfg.Env, func(k, v string) string { return k + "=" + v })
		sort.Strings(env)
		return NewStdioClient(logger, cfg.Command, cfg.Args, env)
	case cfg.URL != "":
		return NewHTTPClient(logger, cfg.URL, cfg.Headers)
	default:
		return nil, fmt.Errorf("MCP server needs either command or url")
	}
}

// Names returns the connected server names, sorted.
func (s *Servers) Names() []string {
	names := lo.Keys(s.clients)
	sort.Strings(names)
	return names
}

// Close shuts down every server.
func (s *Servers) Close() error {
	var errs []error
	for name, client := range s.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.clients = map[string]Client{}
	return errors.Join(errs...)
}
