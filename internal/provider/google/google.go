// Package google streams completions from the Gemini generative language API.
package google

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"llmrace/internal/provider"
)

// ID is the provider id.
const ID = "google"

// DefaultBaseURL has no trailing slash.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModels is the static fallback list.
var DefaultModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
}

// ReasoningPatterns mark models that accept a thinking budget.
var ReasoningPatterns = []string{"2.5", "thinking"}

var thinkingBudgets = map[provider.ReasoningEffort]int{
	provider.ReasoningLow:    1024,
	provider.ReasoningMedium: 8192,
	provider.ReasoningHigh:   24576,
}

var _ provider.Adapter = (*Adapter)(nil)

// Adapter implements provider.Adapter for Gemini.
type Adapter struct {
	provider.Base
}

// New creates an Adapter for the public Gemini API.
func New(opts ...provider.Option) *Adapter {
	a := &Adapter{Base: provider.Base{
		ProviderID:     ID,
		DisplayName:    "Google Gemini",
		BaseURL:        DefaultBaseURL,
		Auth:           provider.Auth{Header: "x-goog-api-key"},
		FallbackModels: append([]string(nil), DefaultModels...),
	}}
	a.Apply(opts...)
	return a
}

// ListModels implements provider.Adapter. Only models supporting
// generateContent are returned, without the "models/" prefix.
func (a *Adapter) ListModels(ctx context.Context, apiKey string) []string {
	return a.FetchModels(ctx, "/v1beta/models?pageSize=200", apiKey, func(body []byte) ([]string, error) {
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("decode models: invalid JSON")
		}
		var ids []string
		gjson.GetBytes(body, "models").ForEach(func(_, m gjson.Result) bool {
			supported := false
			m.Get("supportedGenerationMethods").ForEach(func(_, method gjson.Result) bool {
				if method.String() == "generateContent" {
					supported = true
					return false
				}
				return true
			})
			if supported {
				ids = append(ids, strings.TrimPrefix(m.Get("name").String(), "models/"))
			}
			return true
		})
		return ids, nil
	})
}

// Generate implements provider.Adapter.
func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Stream, error) {
	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", url.PathEscape(req.Model))
	return a.OpenStream(ctx, req, path, buildRequest(req), a.decode)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	Temperature     float64         `json:"temperature"`
	MaxOutputTokens int             `json:"maxOutputTokens"`
	TopP            float64         `json:"topP"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type apiRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

func buildRequest(req provider.Request) apiRequest {
	s := req.Settings.WithDefaults()
	r := apiRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     s.Temperature,
			MaxOutputTokens: s.MaxTokens,
			TopP:            s.TopP,
		},
	}
	if s.ReasoningEffort != "" && provider.IsReasoningModel(req.Model, ReasoningPatterns) {
		r.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: thinkingBudgets[s.ReasoningEffort]}
	}
	return r
}

// decode joins the non-thought text parts of the first candidate. A
// finishReason ends the message.
func (a *Adapter) decode(payload []byte) (provider.Delta, error) {
	if err := provider.StreamErrorFrom(a.ID(), payload); err != nil {
		return provider.Delta{}, err
	}

	var b strings.Builder
	gjson.GetBytes(payload, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		if !p.Get("thought").Bool() {
			b.WriteString(p.Get("text").String())
		}
		return true
	})

	return provider.Delta{
		Text:  b.String(),
		Final: gjson.GetBytes(payload, "candidates.0.finishReason").String() != "",
	}, nil
}
