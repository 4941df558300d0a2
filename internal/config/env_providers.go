package config

import "strings"

// envProviders reads the MODEL1_*/MODEL2_* pairs, or the generic
// BASE_URL/API_KEY/MODELS triple when neither pair is set.
func envProviders(getenv Getenv) []ProviderSpec {
	var specs []ProviderSpec
	for _, n := range []string{"1", "2"} {
		name := getenv("MODEL" + n + "_NAME")
		baseURL := getenv("MODEL" + n + "_BASE_URL")
		if name == "" || baseURL == "" {
			continue
		}
		specs = append(specs, ProviderSpec{
			ID:      "model" + n,
			Name:    "Model " + n,
			BaseURL: baseURL,
			APIKey:  getenv("MODEL" + n + "_API_KEY"),
			Models:  []string{name},
			Source:  "env",
		})
	}
	if len(specs) > 0 {
		return specs
	}

	baseURL := getenv("BASE_URL")
	if baseURL == "" {
		return nil
	}
	spec := ProviderSpec{
		ID:         "custom",
		Name:       "Custom endpoint",
		BaseURL:    baseURL,
		APIKey:     getenv("API_KEY"),
		ListModels: true,
		Source:     "env",
	}
	for _, m := range strings.Split(getenv("MODELS"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			spec.Models = append(spec.Models, m)
		}
	}
	return []ProviderSpec{spec}
}
