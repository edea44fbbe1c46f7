package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Factory constructs a vendor client from a resolved configuration.
type Factory func(ctx context.Context, cfg Config, logger zerolog.Logger) (llm.Client, error)

// Vendor describes one model backend.
type Vendor struct {
	Name                string
	RequiresCredentials bool
	// Environment variables consulted when the configuration leaves a field empty.
	CredentialEnv   string
	EndpointEnv     string
	ModelEnv        string
	OrganizationEnv string
	DefaultModel    string
	New             Factory
}

// Registry manages the vendors a Session can build clients for.
type Registry struct {
	mu      sync.RWMutex
	vendors map[string]Vendor
}

// NewRegistry creates a Registry holding the given vendors.
func NewRegistry(vendors ...Vendor) *Registry {
	r := &Registry{vendors: make(map[string]Vendor, len(vendors))}
	for _, v := range vendors {
		r.Register(v)
	}
	return r
}

// Register adds or replaces a vendor.
func (r *Registry) Register(v Vendor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendors[v.Name] = v
}

// Get returns the vendor with the given name.
func (r *Registry) Get(name string) (Vendor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vendors[name]
	return v, ok
}

// Names returns the registered vendor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.vendors)
	sort.Strings(names)
	return names
}

// Resolve fills empty credential, endpoint, model and organization fields from
// the vendor's environment variables. Unknown vendors are returned unchanged.
func (r *Registry) Resolve(cfg Config) Config {
	v, ok := r.Get(cfg.Provider)
	if !ok {
		return cfg
	}
	out := cfg.Clone()
	fill := func(field *string, env string) {
		if *field == "" && env != "" {
			*field = os.Getenv(env)
		}
	}
	fill(&out.Credentials, v.CredentialEnv)
	fill(&out.Endpoint, v.EndpointEnv)
	fill(&out.Model, v.ModelEnv)
	fill(&out.Organization, v.OrganizationEnv)
	return out
}

// Validate reports a NotConfiguredError when cfg lacks what its vendor needs.
func (r *Registry) Validate(cfg Config) error {
	if cfg.Provider == "" {
		return llm.NewNotConfiguredError("provider")
	}
	v, ok := r.Get(cfg.Provider)
	if !ok {
		return &llm.Error{
			Type:    llm.ErrorTypeNotConfigured,
			Message: fmt.Sprintf("unknown model provider %q (known: %v)", cfg.Provider, r.Names()),
		}
	}
	if cfg.Model == "" {
		return llm.NewNotConfiguredError("model")
	}
	if v.RequiresCredentials && cfg.Credentials == "" {
		return llm.NewNotConfiguredError("credentials")
	}
	return nil
}
