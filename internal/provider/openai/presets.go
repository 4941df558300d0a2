package openai

import "llmrace/internal/provider"

// Provider ids of the built-in presets.
const (
	OpenAI     = "openai"
	Together   = "together"
	Cerebras   = "cerebras"
	Moonshot   = "moonshot"
	Zhipu      = "zhipu"
	Groq       = "groq"
	DeepSeek   = "deepseek"
	Mistral    = "mistral"
	OpenRouter = "openrouter"
)

// Presets returns the built-in OpenAI-compatible provider configurations.
func Presets() []Config {
	return []Config{
		{
			ID:      OpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Models: []string{
				"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
				"o3-mini", "o4-mini", "gpt-5", "gpt-5-mini",
			},
			Reasoning:              ReasoningEffortField,
			ListModels:             true,
			CompletionTokens:       true,
			ReasoningOmitsSampling: true,
		},
		{
			ID:      Together,
			Name:    "Together AI",
			BaseURL: "https://api.together.xyz/v1",
			Models: []string{
				"meta-llama/Llama-3.3-70B-Instruct-Turbo",
				"deepseek-ai/DeepSeek-V3",
				"Qwen/Qwen2.5-72B-Instruct-Turbo",
				"openai/gpt-oss-120b",
			},
			Reasoning: ReasoningEffortField,
		},
		{
			ID:      Cerebras,
			Name:    "Cerebras",
			BaseURL: "https://api.cerebras.ai/v1",
			Models: []string{
				"llama3.1-8b", "llama-3.3-70b", "qwen-3-32b", "gpt-oss-120b",
			},
			Reasoning:  ReasoningEffortField,
			ListModels: true,
		},
		{
			ID:      Moonshot,
			Name:    "Moonshot AI",
			BaseURL: "https://api.moonshot.ai/v1",
			Models: []string{
				"kimi-k2-0905-preview", "kimi-k2-turbo-preview", "kimi-k2-thinking", "moonshot-v1-8k",
			},
			ListModels:           true,
			ReasoningTemperature: 1.0,
		},
		{
			ID:      Zhipu,
			Name:    "Zhipu AI",
			BaseURL: "https://open.bigmodel.cn/api/paas/v4",
			Models: []string{
				"glm-4.5", "glm-4.5-air", "glm-4.5-flash", "glm-4-plus",
			},
			ReasoningPatterns: []string{"glm-4.5", "thinking"},
			Reasoning:         ReasoningThinkingField,
		},
		{
			ID:      Groq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Models: []string{
				"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "openai/gpt-oss-120b",
			},
			ReasoningPatterns: []string{"gpt-oss", "qwen3", "r1"},
			Reasoning:         ReasoningEffortField,
			ListModels:        true,
		},
		{
			ID:         DeepSeek,
			Name:       "DeepSeek",
			BaseURL:    "https://api.deepseek.com/v1",
			Models:     []string{"deepseek-chat", "deepseek-reasoner"},
			ListModels: true,
		},
		{
			ID:         Mistral,
			Name:       "Mistral AI",
			BaseURL:    "https://api.mistral.ai/v1",
			Models:     []string{"mistral-large-latest", "mistral-small-latest", "codestral-latest"},
			ListModels: true,
		},
		{
			ID:      OpenRouter,
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1",
			Models: []string{
				"openai/gpt-4o-mini", "anthropic/claude-3.5-haiku", "google/gemini-2.0-flash-001",
			},
			Reasoning: ReasoningEffortField,
		},
	}
}

// Preset returns the built-in configuration for id.
func Preset(id string) (Config, bool) {
	for _, c := range Presets() {
		if c.ID == id {
			return c, true
		}
	}
	return Config{}, false
}

// NewPreset creates the adapter for a built-in provider id.
func NewPreset(id string, opts ...provider.Option) (*Adapter, bool) {
	cfg, ok := Preset(id)
	if !ok {
		return nil, false
	}
	return New(cfg, opts...), true
}
