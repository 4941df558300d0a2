// Package openai implements the OpenAI-compatible chat completions family:
// OpenAI itself plus every provider that speaks the same streaming protocol.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"

	"llmrace/internal/provider"
)

// ReasoningStyle selects how a reasoning-effort hint is put on the wire.
type ReasoningStyle int

const (
	// ReasoningNone never sends a reasoning parameter.
	ReasoningNone ReasoningStyle = iota
	// ReasoningEffortField sends reasoning_effort.
	ReasoningEffortField
	// ReasoningThinkingField sends thinking: {"type": "enabled"}.
	ReasoningThinkingField
)

// Config describes one OpenAI-compatible provider.
type Config struct {
	ID                string
	Name              string
	BaseURL           string
	Models            []string
	ReasoningPatterns []string // nil uses provider.DefaultReasoningPatterns
	Reasoning         ReasoningStyle
	// ListModels enables GET /models; otherwise Models is returned as is.
	ListModels bool
	// CompletionTokens sends max_completion_tokens instead of max_tokens.
	CompletionTokens bool
	// ReasoningOmitsSampling drops temperature and top_p for reasoning models,
	// which reject non-default values.
	ReasoningOmitsSampling bool
	// ReasoningTemperature, when non-zero, replaces temperature for reasoning models.
	ReasoningTemperature float64
}

// Adapter streams chat completions from an OpenAI-compatible endpoint.
type Adapter struct {
	provider.Base
	cfg Config
}

// New creates an adapter from cfg.
func New(cfg Config, opts ...provider.Option) *Adapter {
	a := &Adapter{
		Base: provider.Base{
			ProviderID:     cfg.ID,
			DisplayName:    cfg.Name,
			BaseURL:        cfg.BaseURL,
			FallbackModels: append([]string(nil), cfg.Models...),
		},
		cfg: cfg,
	}
	a.Apply(opts...)
	return a
}

// ListModels implements provider.Adapter.
func (a *Adapter) ListModels(ctx context.Context, apiKey string) []string {
	if !a.cfg.ListModels {
		return a.Fallback()
	}
	return a.FetchModels(ctx, "/models", apiKey, parseModels)
}

func parseModels(body []byte) ([]string, error) {
	var list gopenai.ModelsList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Generate implements provider.Adapter.
func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Stream, error) {
	body, err := a.buildPayload(req)
	if err != nil {
		return nil, err
	}
	return a.OpenStreamRaw(ctx, req, "/chat/completions", body, a.decode)
}

// buildPayload encodes the request body. Fields go-openai cannot express
// (a literal zero temperature, the thinking switch) are merged in afterwards.
func (a *Adapter) buildPayload(req provider.Request) ([]byte, error) {
	s := req.Settings.WithDefaults()
	reasoning := provider.IsReasoningModel(req.Model, a.cfg.ReasoningPatterns)

	r := gopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Stream: true,
	}
	if a.cfg.CompletionTokens {
		r.MaxCompletionTokens = s.MaxTokens
	} else {
		r.MaxTokens = s.MaxTokens
	}

	extra := map[string]any{}

	sampling := !(reasoning && a.cfg.ReasoningOmitsSampling)
	if sampling {
		temp := s.Temperature
		if reasoning && a.cfg.ReasoningTemperature > 0 {
			temp = a.cfg.ReasoningTemperature
		}
		if temp == 0 {
			extra["temperature"] = 0
		} else {
			r.Temperature = float32(temp)
		}
		r.TopP = float32(s.TopP)
	}

	if reasoning && s.ReasoningEffort != "" {
		switch a.cfg.Reasoning {
		case ReasoningEffortField:
			r.ReasoningEffort = string(s.ReasoningEffort)
		case ReasoningThinkingField:
			extra["thinking"] = map[string]string{"type": "enabled"}
		}
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if len(extra) == 0 {
		return body, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, fmt.Errorf("merge payload: %w", err)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (a *Adapter) decode(payload []byte) (provider.Delta, error) {
	if err := provider.StreamErrorFrom(a.ID(), payload); err != nil {
		return provider.Delta{}, err
	}

	var chunk gopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		// Unknown shapes are not fatal; the decoder already validated JSON.
		return provider.Delta{}, nil
	}
	if len(chunk.Choices) == 0 {
		return provider.Delta{}, nil
	}
	return provider.Delta{Text: chunk.Choices[0].Delta.Content}, nil
}
