package provider

import (
	"context"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/llm/anthropic"
	"github.com/aschepis/backscratcher/converse/llm/gemini"
	"github.com/aschepis/backscratcher/converse/llm/ollama"
	"github.com/aschepis/backscratcher/converse/llm/openai"
	"github.com/rs/zerolog"
)

// DefaultVendors returns the built-in vendors.
func DefaultVendors() []Vendor {
	return []Vendor{
		{
			Name:                anthropic.ProviderName,
			RequiresCredentials: true,
			CredentialEnv:       "ANTHROPIC_API_KEY",
			EndpointEnv:         "ANTHROPIC_BASE_URL",
			DefaultModel:        anthropic.DefaultModel,
			New: func(_ context.Context, cfg Config, logger zerolog.Logger) (llm.Client, error) {
				client, err := anthropic.NewClient(anthropic.Config{
					APIKey:  cfg.Credentials,
					BaseURL: cfg.Endpoint,
					Model:   cfg.Model,
				}, logger)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		{
			Name:                openai.ProviderName,
			RequiresCredentials: true,
			CredentialEnv:       "OPENAI_API_KEY",
			EndpointEnv:         "OPENAI_BASE_URL",
			OrganizationEnv:     "OPENAI_ORG_ID",
			DefaultModel:        openai.DefaultModel,
			New: func(_ context.Context, cfg Config, logger zerolog.Logger) (llm.Client, error) {
				client, err := openai.NewClient(openai.Config{
					APIKey:       cfg.Credentials,
					BaseURL:      cfg.Endpoint,
					Organization: cfg.Organization,
					Model:        cfg.Model,
				}, logger)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		{
			Name:         ollama.ProviderName,
			EndpointEnv:  "OLLAMA_HOST",
			ModelEnv:     "OLLAMA_MODEL",
			DefaultModel: ollama.DefaultModel,
			New: func(_ context.Context, cfg Config, logger zerolog.Logger) (llm.Client, error) {
				client, err := ollama.NewClient(ollama.Config{Host: cfg.Endpoint, Model: cfg.Model}, logger)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		{
			Name:                gemini.ProviderName,
			RequiresCredentials: true,
			CredentialEnv:       "GEMINI_API_KEY",
			DefaultModel:        gemini.DefaultModel,
			New: func(ctx context.Context, cfg Config, logger zerolog.Logger) (llm.Client, error) {
				client, err := gemini.NewClient(ctx, gemini.Config{
					APIKey:  cfg.Credentials,
					BaseURL: cfg.Endpoint,
					Model:   cfg.Model,
				}, logger)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
	}
}
