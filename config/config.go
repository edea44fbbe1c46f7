// Package config loads the converse configuration file and applies
// environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultProvider is used when neither the file nor the environment names one.
const DefaultProvider = "anthropic"

// ClaudeMCPConfig controls importing MCP servers from Claude's config file.
type ClaudeMCPConfig struct {
	Enabled    bool     `yaml:"enabled,omitempty"`
	Projects   []string `yaml:"projects,omitempty"`    // empty loads every project and the global servers
	ConfigPath string   `yaml:"config_path,omitempty"` // default ~/.claude.json
}

// Config is the full converse configuration.
type Config struct {
	Provider provider.Config `yaml:",inline"`

	LogFile    string                      `yaml:"log_file,omitempty"`
	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers,omitempty"`
	ClaudeMCP  ClaudeMCPConfig             `yaml:"claude_mcp,omitempty"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	cfg := Config{
		Provider:   provider.DefaultConfig(),
		MCPServers: make(map[string]mcp.ServerConfig),
		ClaudeMCP: ClaudeMCPConfig{
			ConfigPath: "~/.claude.json",
		},
	}
	cfg.Provider.Provider = DefaultProvider
	return cfg
}

// DefaultPath returns the config file path.
// Can be overridden via CONVERSE_CONFIG_PATH environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("CONVERSE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.converse/config.yaml"
	}
	return filepath.Join(homeDir, ".converse", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads path, merges it onto Defaults, then applies environment
// overrides. A missing file yields the defaults with overrides applied.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug().Str("path", expandedPath).Msg("Config file does not exist, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	default:
		if err := mergeFile(&cfg, data); err != nil {
			return nil, fmt.Errorf("config file %q: %w", expandedPath, err)
		}
	}

	applyEnv(&cfg, provider.NewRegistry(provider.DefaultVendors()...))

	if cfg.ClaudeMCP.Enabled {
		claudeCfg, err := LoadClaudeConfig(logger, cfg.ClaudeMCP.ConfigPath)
		if err != nil {
			return nil, err
		}
		for name, server := range claudeCfg.Servers(logger, cfg.ClaudeMCP.Projects) {
			if _, exists := cfg.MCPServers[name]; !exists {
				cfg.MCPServers[name] = server
			}
		}
	}
	return &cfg, nil
}

func mergeFile(cfg *Config, data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Sampling pointers go through provider.Config.Merge so they are copied, not aliased.
	merged, err := cfg.Provider.Merge(file.Provider)
	if err != nil {
		return err
	}
	cfg.Provider = merged
	file.Provider = provider.Config{}

	if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]mcp.ServerConfig)
	}
	return nil
}

// applyEnv applies CONVERSE_PROVIDER and CONVERSE_MODEL, then the selected
// vendor's own variables (ANTHROPIC_API_KEY, OPENAI_BASE_URL, OLLAMA_HOST, ...).
// Set variables win over the file. A model is filled from the vendor default last.
func applyEnv(cfg *Config, vendors *provider.Registry) {
	if p := os.Getenv("CONVERSE_PROVIDER"); p != "" {
		cfg.Provider.Provider = p
	}
	vendor, known := vendors.Get(cfg.Provider.Provider)
	if known {
		override := func(field *string, env string) {
			if env == "" {
				return
			}
			if v := os.Getenv(env); v != "" {
				*field = v
			}
		}
		override(&cfg.Provider.Credentials, vendor.CredentialEnv)
		override(&cfg.Provider.Endpoint, vendor.EndpointEnv)
		override(&cfg.Provider.Organization, vendor.OrganizationEnv)
		override(&cfg.Provider.Model, vendor.ModelEnv)
	}
	if m := os.Getenv("CONVERSE_MODEL"); m != "" {
		cfg.Provider.Model = m
	}
	if cfg.Provider.Model == "" && known {
		cfg.Provider.Model = vendor.DefaultModel
	}
}
