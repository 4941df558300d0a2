package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReasoningEffort is the optional effort hint sent to reasoning-capable models.
type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// Defaults applied when a setting is absent.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
	DefaultTopP        = 1.0
)

// ModelSettings are the sampling parameters copied into each request.
// A zero MaxTokens or TopP means "absent"; Temperature is always sent.
type ModelSettings struct {
	Temperature     float64         `json:"temperature" yaml:"temperature"`
	MaxTokens       int             `json:"maxTokens" yaml:"max-tokens"`
	TopP            float64         `json:"topP" yaml:"top-p"`
	ReasoningEffort ReasoningEffort `json:"reasoningEffort,omitempty" yaml:"reasoning-effort,omitempty"`
}

// DefaultModelSettings returns the settings used when a race specifies none.
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
	}
}

// WithDefaults fills absent values.
func (s ModelSettings) WithDefaults() ModelSettings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.TopP <= 0 {
		s.TopP = DefaultTopP
	}
	return s
}

// Validate checks the documented ranges.
func (s ModelSettings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", s.Temperature)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("maxTokens must be positive, got %d", s.MaxTokens)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("topP must be between 0 and 1, got %v", s.TopP)
	}
	switch s.ReasoningEffort {
	case "", ReasoningLow, ReasoningMedium, ReasoningHigh:
	default:
		return fmt.Errorf("reasoningEffort must be low, medium or high, got %q", s.ReasoningEffort)
	}
	return nil
}

// DefaultReasoningPatterns are substrings that mark a model as reasoning-capable.
var DefaultReasoningPatterns = []string{"thinking", "k2", "o1", "o3", "o4", "gpt-5", "reasoner", "r1"}

// IsReasoningModel reports whether model contains any of patterns (case-insensitive).
// A nil patterns slice uses DefaultReasoningPatterns.
func IsReasoningModel(model string, patterns []string) bool {
	if patterns == nil {
		patterns = DefaultReasoningPatterns
	}
	m := strings.ToLower(model)
	for _, p := range patterns {
		if p != "" && strings.Contains(m, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Request is one streaming completion call.
type Request struct {
	Prompt   string
	Model    string
	APIKey   string
	Settings ModelSettings
}

// EventKind tags a CompletionEvent.
type EventKind string

const (
	EventChunk   EventKind = "chunk"
	EventMetrics EventKind = "metrics"
)

// Event is either a text chunk or the terminal metrics of a stream.
type Event struct {
	Kind    EventKind `json:"kind"`
	Content string    `json:"content,omitempty"`
	Metrics *Metrics  `json:"metrics,omitempty"`
}

// Chunk builds a chunk event.
func Chunk(content string) Event {
	return Event{Kind: EventChunk, Content: content}
}

// MetricsEvent builds the terminal metrics event.
func MetricsEvent(m Metrics) Event {
	return Event{Kind: EventMetrics, Metrics: &m}
}

// Metrics are the timing and approximate token data of one completion.
// FirstTokenTime is zero when no token arrived.
type Metrics struct {
	StartTime      time.Time `json:"startTime"`
	FirstTokenTime time.Time `json:"firstTokenTime,omitzero"`
	FinishTime     time.Time `json:"finishTime"`
	TokenCount     int       `json:"tokenCount"`
	InputTokens    int       `json:"inputTokens"`
	OutputTokens   int       `json:"outputTokens"`
	TotalTokens    int       `json:"totalTokens"`
	Synthesized    bool      `json:"synthesized,omitempty"`
}

// TTFT is the time to first token; ok is false without a first token.
func (m Metrics) TTFT() (time.Duration, bool) {
	if m.FirstTokenTime.IsZero() || m.StartTime.IsZero() {
		return 0, false
	}
	return m.FirstTokenTime.Sub(m.StartTime), true
}

// Throughput is output tokens per second of generation, measured from the
// first token to the finish. ok is false when either timestamp is missing
// or the interval is not positive.
func (m Metrics) Throughput() (float64, bool) {
	if m.FirstTokenTime.IsZero() || m.FinishTime.IsZero() {
		return 0, false
	}
	seconds := float64(m.FinishTime.Sub(m.FirstTokenTime).Milliseconds()) / 1000
	if seconds <= 0 {
		return 0, false
	}
	return float64(m.OutputTokens) / seconds, true
}

// Ordered reports whether start <= firstToken <= finish for the timestamps present.
func (m Metrics) Ordered() bool {
	if !m.FinishTime.IsZero() && m.FinishTime.Before(m.StartTime) {
		return false
	}
	if m.FirstTokenTime.IsZero() {
		return true
	}
	if m.FirstTokenTime.Before(m.StartTime) {
		return false
	}
	return m.FinishTime.IsZero() || !m.FinishTime.Before(m.FirstTokenTime)
}

// Stream yields events until io.EOF. After a metrics event Recv only
// returns io.EOF. Close aborts the underlying request.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Adapter normalizes one provider's streaming protocol.
// Implementations hold no mutable state and are safe for concurrent use.
type Adapter interface {
	ID() string
	Name() string
	// ListModels never fails: on error it returns the static fallback list.
	ListModels(ctx context.Context, apiKey string) []string
	// Generate fails with *HTTPError on a non-2xx status before yielding anything.
	Generate(ctx context.Context, req Request) (Stream, error)
}
