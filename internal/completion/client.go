// Package completion dispatches streaming completions to registered provider adapters.
package completion

import (
	"context"
	"fmt"

	"llmrace/internal/logger"
	"llmrace/internal/provider"
)

// Client is the single dispatch point between callers and adapters.
type Client struct {
	registry *provider.Registry
	log      *logger.Logger
}

// NewClient creates a client over reg. A nil logger discards output.
func NewClient(reg *provider.Registry, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{registry: reg, log: log}
}

// Adapter looks up a provider, failing with provider.ErrUnknownProvider.
func (c *Client) Adapter(providerID string) (provider.Adapter, error) {
	a, ok := c.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, providerID)
	}
	return a, nil
}

// Generate starts a completion on providerID and returns the adapter's stream unchanged.
func (c *Client) Generate(ctx context.Context, providerID string, req provider.Request) (provider.Stream, error) {
	a, err := c.Adapter(providerID)
	if err != nil {
		return nil, err
	}

	c.log.DebugWithContext(&logger.LogContext{Provider: providerID, Model: req.Model, Operation: "generate"},
		"Dispatching completion")
	return a.Generate(ctx, req)
}

// ListModels returns the models of providerID.
func (c *Client) ListModels(ctx context.Context, providerID, apiKey string) ([]string, error) {
	a, err := c.Adapter(providerID)
	if err != nil {
		return nil, err
	}
	return a.ListModels(ctx, apiKey), nil
}

// Providers returns registered adapters sorted by id.
func (c *Client) Providers() []provider.Adapter {
	return c.registry.Adapters()
}
