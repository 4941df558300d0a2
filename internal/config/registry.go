package config

import (
	"fmt"
	"net/http"

	"llmrace/internal/logger"
	"llmrace/internal/provider"
	"llmrace/internal/provider/anthropic"
	"llmrace/internal/provider/google"
	"llmrace/internal/provider/openai"
)

// Registry builds the adapter registry: the OpenAI-compatible presets,
// Anthropic, Google and every custom provider. Base URL overrides apply to
// built-ins only.
func (c *Config) Registry(client *http.Client, log *logger.Logger) (*provider.Registry, error) {
	common := []provider.Option{provider.WithHTTPClient(client), provider.WithLogger(log)}
	opts := func(id string) []provider.Option {
		return append(append([]provider.Option(nil), common...), provider.WithBaseURL(c.BaseURLs[id]))
	}

	reg, _ := provider.NewRegistry()
	for _, preset := range openai.Presets() {
		if err := reg.Register(openai.New(preset, opts(preset.ID)...)); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(anthropic.New(opts(anthropic.ID)...)); err != nil {
		return nil, err
	}
	if err := reg.Register(google.New(opts(google.ID)...)); err != nil {
		return nil, err
	}

	for _, spec := range c.Custom {
		a := openai.New(openai.Config{
			ID:                spec.ID,
			Name:              spec.Name,
			BaseURL:           spec.BaseURL,
			Models:            spec.Models,
			ReasoningPatterns: spec.ReasoningPatterns,
			Reasoning:         openai.ReasoningEffortField,
			ListModels:        spec.ListModels,
		}, common...)
		if err := reg.Register(a); err != nil {
			return nil, fmt.Errorf("custom provider %q (%s): %w", spec.ID, spec.Source, err)
		}
	}
	return reg, nil
}
