package config

import (
	"fmt"

	"go.yaml.in/yaml/v4"
)

// ProvidersFile is the PROVIDERS_FILE document:
//
//	providers:
//	  - id: local
//	    name: Local vLLM
//	    base_url: http://localhost:8000/v1
//	    api_key_env: LOCAL_API_KEY
//	    models: [meta-llama/Llama-3.1-8B-Instruct]
//	overrides:
//	  openai:
//	    base_url: https://gateway.internal/openai/v1
type ProvidersFile struct {
	Providers []ProviderSpec      `yaml:"providers"`
	Overrides map[string]Override `yaml:"overrides"`
}

// Override replaces settings of a built-in provider.
type Override struct {
	BaseURL string `yaml:"base_url"`
}

// ParseProvidersFile decodes and checks a providers file.
func ParseProvidersFile(data []byte) (*ProvidersFile, error) {
	var pf ProvidersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	for i, p := range pf.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("providers[%d]: id is required", i)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", p.ID)
		}
		if p.Name == "" {
			pf.Providers[i].Name = p.ID
		}
	}
	return &pf, nil
}
