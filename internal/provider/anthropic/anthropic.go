// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"llmrace/internal/provider"
)

// ID is the provider id.
const ID = "anthropic"

// DefaultBaseURL has no trailing slash.
const DefaultBaseURL = "https://api.anthropic.com"

// APIVersion is sent as the anthropic-version header.
const APIVersion = "2023-06-01"

// ThinkingSuffix on a model id enables extended thinking; it is stripped
// before the request is sent.
const ThinkingSuffix = "-thinking"

// DefaultModels is the static fallback list.
var DefaultModels = []string{
	"claude-sonnet-4-5",
	"claude-opus-4-1",
	"claude-3-7-sonnet-latest",
	"claude-3-7-sonnet-latest-thinking",
	"claude-3-5-haiku-latest",
}

var thinkingBudgets = map[provider.ReasoningEffort]int{
	provider.ReasoningLow:    1024,
	provider.ReasoningMedium: 4096,
	provider.ReasoningHigh:   8192,
}

var _ provider.Adapter = (*Adapter)(nil)

// Adapter implements provider.Adapter for Anthropic.
type Adapter struct {
	provider.Base
}

// New creates an Adapter for the public Anthropic API.
func New(opts ...provider.Option) *Adapter {
	a := &Adapter{Base: provider.Base{
		ProviderID:     ID,
		DisplayName:    "Anthropic",
		BaseURL:        DefaultBaseURL,
		Auth:           provider.Auth{Header: "x-api-key"},
		Headers:        map[string]string{"anthropic-version": APIVersion},
		FallbackModels: append([]string(nil), DefaultModels...),
	}}
	a.Apply(opts...)
	return a
}

// ListModels implements provider.Adapter.
func (a *Adapter) ListModels(ctx context.Context, apiKey string) []string {
	return a.FetchModels(ctx, "/v1/models?limit=100", apiKey, func(body []byte) ([]string, error) {
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("decode models: invalid JSON")
		}
		var ids []string
		for _, id := range gjson.GetBytes(body, "data.#.id").Array() {
			ids = append(ids, id.String())
		}
		return ids, nil
	})
}

// Generate implements provider.Adapter.
func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return a.OpenStream(ctx, req, "/v1/messages", buildRequest(req), a.decode)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type apiRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Thinking    *thinking `json:"thinking,omitempty"`
	Stream      bool      `json:"stream"`
}

func buildRequest(req provider.Request) apiRequest {
	s := req.Settings.WithDefaults()
	model, think := strings.CutSuffix(req.Model, ThinkingSuffix)

	r := apiRequest{
		Model:     model,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
		MaxTokens: s.MaxTokens,
		Stream:    true,
	}

	if think {
		effort := s.ReasoningEffort
		if effort == "" {
			effort = provider.ReasoningMedium
		}
		budget := thinkingBudgets[effort]
		// max_tokens must exceed the thinking budget.
		if r.MaxTokens <= budget {
			r.MaxTokens = budget + s.MaxTokens
		}
		r.Thinking = &thinking{Type: "enabled", BudgetTokens: budget}
		return r
	}

	temp := s.Temperature
	r.Temperature = &temp
	// Newer models reject temperature and top_p together; only send an explicit narrowing.
	if s.TopP < 1 {
		topP := s.TopP
		r.TopP = &topP
	}
	return r
}

func (a *Adapter) decode(payload []byte) (provider.Delta, error) {
	switch gjson.GetBytes(payload, "type").String() {
	case "content_block_delta":
		if gjson.GetBytes(payload, "delta.type").String() != "text_delta" {
			return provider.Delta{}, nil
		}
		return provider.Delta{Text: gjson.GetBytes(payload, "delta.text").String()}, nil
	case "message_stop":
		return provider.Delta{Final: true}, nil
	case "error":
		return provider.Delta{}, provider.StreamErrorFrom(a.ID(), payload)
	default:
		return provider.Delta{}, nil
	}
}
