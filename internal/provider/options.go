package provider

import (
	"net/http"
	"time"

	"llmrace/internal/logger"
)

// Option customizes a Base when constructing an adapter.
type Option func(*Base)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Base) { b.Client = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(b *Base) {
		if u != "" {
			b.BaseURL = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Base) { b.Log = l }
}

// WithFallbackModels replaces the static model list.
func WithFallbackModels(models ...string) Option {
	return func(b *Base) {
		if len(models) > 0 {
			b.FallbackModels = append([]string(nil), models...)
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(b *Base) {
		if b.Headers == nil {
			b.Headers = map[string]string{}
		}
		b.Headers[key] = value
	}
}

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Base) { b.Now = now }
}

// Apply runs opts against b.
func (b *Base) Apply(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
}
