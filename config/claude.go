package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// globalProject selects the servers declared at the root of Claude's config.
const globalProject = "Global"

// ClaudeConfig represents the parts of Claude's configuration file that declare MCP servers.
type ClaudeConfig struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers,omitempty"`
	Projects   map[string]ClaudeProject   `json:"projects"`
}

// ClaudeProject represents a project configuration in Claude's config.
type ClaudeProject struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers"`
}

// ClaudeMCPServer represents an MCP server configuration in Claude's format.
type ClaudeMCPServer struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     json.RawMessage   `json:"env,omitempty"` // array of "K=V" strings or an object
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// EnvMap converts the Env field to a map.
func (c ClaudeMCPServer) EnvMap(logger zerolog.Logger) map[string]string {
	if len(c.Env) == 0 {
		return nil
	}

	var envMap map[string]string
	if err := json.Unmarshal(c.Env, &envMap); err == nil {
		return envMap
	}

	var envArray []string
	if err := json.Unmarshal(c.Env, &envArray); err == nil {
		return lo.SliceToMap(envArray, func(kv string) (string, string) {
			key, value, _ := strings.Cut(kv, "=")
			return key, value
		})
	}

	logger.Warn().
		Str("env", string(c.Env)).
		Msg("Failed to parse env field, expected array of strings or object")
	return nil
}

// LoadClaudeConfig loads Claude's configuration from path.
// A missing file is not an error and yields an empty config.
func LoadClaudeConfig(logger zerolog.Logger, path string) (*ClaudeConfig, error) {
	expandedPath := expandPath(path)

	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Str("path", expandedPath).Msg("Claude config does not exist, skipping")
		return &ClaudeConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read Claude config file %q: %w", expandedPath, err)
	}

	var cfg ClaudeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse Claude config file %q: %w", expandedPath, err)
	}
	logger.Info().
		Int("global_servers", len(cfg.MCPServers)).
		Int("projects", len(cfg.Projects)).
		Msg("Loaded Claude config")
	return &cfg, nil
}

// Servers returns the MCP servers selected by projects, keyed "claude_<name>".
// projects may contain "Global" for the root servers; project paths also match
// any project nested below them. An empty list selects everything.
func (c *ClaudeConfig) Servers(logger zerolog.Logger, projects []string) map[string]mcp.ServerConfig {
	includeGlobal := len(projects) == 0 || lo.Contains(projects, globalProject)
	filters := lo.FilterMap(projects, func(p string, _ int) (string, bool) {
		return filepath.Clean(expandPath(p)), p != globalProject
	})

	selected := make(map[string]ClaudeMCPServer)
	if includeGlobal {
		for name, server := range c.MCPServers {
			selected[name] = server
		}
	}
	for projectPath, project := range c.Projects {
		if len(projects) > 0 && !matchesProject(filepath.Clean(expandPath(projectPath)), filters) {
			logger.Debug().Str("project", projectPath).Msg("Skipping project (not in filter list)")
			continue
		}
		for name, server := range project.MCPServers {
			selected[name] = server
		}
	}

	out := make(map[string]mcp.ServerConfig, len(selected))
	for name, server := range selected {
		out["claude_"+name] = mcp.ServerConfig{
			Command: server.Command,
			Args:    server.Args,
			Env:     server.EnvMap(logger),
			URL:     server.URL,
			Headers: server.Headers,
		}
	}
	logger.Info().Int("server_count", len(out)).Msg("Imported MCP servers from Claude config")
	return out
}

func matchesProject(projectPath string, filters []string) bool {
	return lo.SomeBy(filters, func(filter string) bool {
		rel, err := filepath.Rel(filter, projectPath)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, "../")
	})
}
