package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReasoningModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o3-mini", true},
		{"o4-mini", true},
		{"gpt-5-mini", true},
		{"deepseek-reasoner", true},
		{"deepseek-r1-distill-llama-70b", true},
		{"kimi-k2-0905-preview", true},
		{"glm-4.1v-THINKING-flash", true},
		{"gpt-4o-mini", false},
		{"claude-3-5-haiku-latest", false},
		{"llama-3.3-70b", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReasoningModel(tt.model, nil))
		})
	}

	assert.True(t, IsReasoningModel("my-custom-model", []string{"custom"}))
	assert.False(t, IsReasoningModel("o3-mini", []string{}))
}

func TestModelSettings_Validate(t *testing.T) {
	require.NoError(t, DefaultModelSettings().Validate())

	bad := []ModelSettings{
		{Temperature: -0.1},
		{Temperature: 2.5},
		{Temperature: 1, TopP: 1.5},
		{Temperature: 1, MaxTokens: -3},
		{Temperature: 1, ReasoningEffort: "extreme"},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
	}

	ok := ModelSettings{Temperature: 0, ReasoningEffort: ReasoningHigh}
	require.NoError(t, ok.Validate())
	filled := ok.WithDefaults()
	assert.Equal(t, 0.0, filled.Temperature)
	assert.Equal(t, DefaultMaxTokens, filled.MaxTokens)
	assert.Equal(t, DefaultTopP, filled.TopP)
}

func TestMetrics_Throughput(t *testing.T) {
	start := time.UnixMilli(1_000)
	m := Metrics{
		StartTime:      start,
		FirstTokenTime: start.Add(500 * time.Millisecond),
		FinishTime:     start.Add(2500 * time.Millisecond),
		OutputTokens:   100,
	}

	tput, ok := m.Throughput()
	require.True(t, ok)
	assert.InDelta(t, 50.0, tput, 1e-9)

	ttft, ok := m.TTFT()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, ttft)
	assert.True(t, m.Ordered())

	m.FirstTokenTime = time.Time{}
	_, ok = m.Throughput()
	assert.False(t, ok)
	_, ok = m.TTFT()
	assert.False(t, ok)
	assert.True(t, m.Ordered())

	m.FirstTokenTime = start.Add(3 * time.Second)
	assert.False(t, m.Ordered())
}

type stubAdapter struct{ id string }

func (s stubAdapter) ID() string                                        { return s.id }
func (s stubAdapter) Name() string                                      { return s.id }
func (s stubAdapter) ListModels(context.Context, string) []string       { return nil }
func (s stubAdapter) Generate(context.Context, Request) (Stream, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(stubAdapter{"openai"}, stubAdapter{"anthropic"})
	require.NoError(t, err)

	a, ok := r.Get("openai")
	require.True(t, ok)
	assert.Equal(t, "openai", a.ID())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"anthropic", "openai"}, r.IDs())
	assert.Equal(t, 2, r.Len())

	assert.Error(t, r.Register(stubAdapter{"openai"}))
	assert.Error(t, r.Register(stubAdapter{""}))
	assert.Error(t, r.Register(nil))
}

func TestHTTPError_Message(t *testing.T) {
	err := &HTTPError{Provider: "openai", Status: 401, Body: `{"error":{"message":"Incorrect API key provided"}}`}
	assert.Equal(t, "openai: HTTP 401: Incorrect API key provided", err.Error())

	err = &HTTPError{Provider: "google", Status: 503}
	assert.Equal(t, "google: HTTP 503: Service Unavailable", err.Error())

	err = &HTTPError{Provider: "zhipu", Status: 500, Body: "upstream exploded"}
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestStreamErrorFrom(t *testing.T) {
	assert.NoError(t, StreamErrorFrom("x", []byte(`{"choices":[]}`)))

	err := StreamErrorFrom("anthropic", []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	require.Error(t, err)
	assert.Equal(t, "anthropic: stream error: Overloaded", err.Error())
}
