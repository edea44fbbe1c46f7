package provider

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
)

const (
	// DefaultMaxSteps bounds the model calls made for one user message.
	DefaultMaxSteps = 5
	// DefaultMaxOutputTokens caps one model response.
	DefaultMaxOutputTokens = 4096
)

// Config is the provider configuration shared by every conversation using a Session.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Credentials  string `yaml:"credentials"`
	Endpoint     string `yaml:"endpoint"`
	Organization string `yaml:"organization"`
	Instructions string `yaml:"instructions"`

	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`

	// MaxTokens is the history budget used for trimming. Zero disables trimming.
	MaxTokens       int   `yaml:"max_tokens"`
	MaxOutputTokens int64 `yaml:"max_output_tokens"`
	MaxSteps        int   `yaml:"max_steps"`

	// Probe makes the session verify connectivity when it builds a client.
	Probe bool `yaml:"probe"`
}

// DefaultConfig returns the configuration a new Session starts from.
func DefaultConfig() Config {
	return Config{
		MaxSteps:        DefaultMaxSteps,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// Clone returns a copy that shares no pointers with c.
func (c Config) Clone() Config {
	out := c
	out.Temperature = copyFloat(c.Temperature)
	out.TopP = copyFloat(c.TopP)
	return out
}

// Merge returns c with every non-zero field of update applied. Zero fields in
// update leave the current value alone, so partial updates never clobber
// earlier ones.
func (c Config) Merge(update Config) (Config, error) {
	dst := c.Clone()
	src := update
	src.Temperature, src.TopP = nil, nil
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return c, fmt.Errorf("failed to merge provider config: %w", err)
	}
	if update.Temperature != nil {
		dst.Temperature = copyFloat(update.Temperature)
	}
	if update.TopP != nil {
		dst.TopP = copyFloat(update.TopP)
	}
	return dst, nil
}

// identity holds the fields that decide which client gets built.
type identity struct {
	provider     string
	model        string
	credentials  string
	endpoint     string
	organization string
}

func (c Config) identity() identity {
	return identity{
		provider:     c.Provider,
		model:        c.Model,
		credentials:  c.Credentials,
		endpoint:     normalizeEndpoint(c.Endpoint),
		organization: c.Organization,
	}
}

// normalizeEndpoint drops the scheme and trailing slashes so that values a
// vendor SDK rewrites still compare equal to what was configured.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return strings.TrimRight(endpoint, "/")
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
