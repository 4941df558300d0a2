package config

// KeyEnv lists the environment variables holding each built-in provider's
// key, in order of preference.
var KeyEnv = map[string][]string{
	"openai":     {"OPENAI_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"google":     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"zhipu":      {"ZHIPU_API_KEY"},
	"moonshot":   {"MOONSHOT_API_KEY"},
	"cerebras":   {"CEREBRAS_API_KEY"},
	"together":   {"TOGETHER_API_KEY"},
	"groq":       {"GROQ_API_KEY"},
	"deepseek":   {"DEEPSEEK_API_KEY"},
	"mistral":    {"MISTRAL_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// KeysFromEnv reads every built-in provider key that is set.
func KeysFromEnv(getenv Getenv) map[string]string {
	keys := map[string]string{}
	for id, names := range KeyEnv {
		for _, name := range names {
			if v := getenv(name); v != "" {
				keys[id] = v
				break
			}
		}
	}
	return keys
}
