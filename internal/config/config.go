// Package config loads server and provider configuration from the
// environment, an optional providers file and Cloud Foundry bindings.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config is the process configuration.
type Config struct {
	Port          string
	GinMode       string
	StaticPath    string
	CORSOrigin    string
	RaceRateLimit int // race starts per minute; 0 disables
	Countdown     int // countdown ticks before a race
	ProvidersFile string

	// Keys maps provider id to the server-side API key.
	Keys map[string]string
	// Custom are OpenAI-compatible providers from the providers file or VCAP_SERVICES.
	Custom []ProviderSpec
	// BaseURLs overrides built-in provider endpoints by id.
	BaseURLs map[string]string
}

// ProviderSpec describes an OpenAI-compatible provider that is not built in.
// Source is "env", "file" or "cloud-foundry".
type ProviderSpec struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	BaseURL           string   `yaml:"base_url"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	Models            []string `yaml:"models"`
	ReasoningPatterns []string `yaml:"reasoning_patterns"`
	ListModels        bool     `yaml:"list_models"`

	// APIKey is resolved from APIKeyEnv or a service binding.
	APIKey string `yaml:"-"`
	Source string `yaml:"-"`
}

// Getenv matches os.Getenv; tests pass a map lookup.
type Getenv func(string) string

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return FromEnv(os.Getenv, os.ReadFile)
}

// FromEnv builds a Config from getenv. readFile loads PROVIDERS_FILE.
func FromEnv(getenv Getenv, readFile func(string) ([]byte, error)) (*Config, error) {
	cfg := &Config{
		Port:          valueOr(getenv("PORT"), "8080"),
		GinMode:       getenv("GIN_MODE"),
		StaticPath:    valueOr(getenv("STATIC_PATH"), "./static"),
		CORSOrigin:    valueOr(getenv("CORS_ORIGIN"), "*"),
		RaceRateLimit: 30,
		Countdown:     3,
		ProvidersFile: getenv("PROVIDERS_FILE"),
		Keys:          KeysFromEnv(getenv),
		BaseURLs:      map[string]string{},
	}

	var err error
	if cfg.RaceRateLimit, err = intEnv(getenv, "RACE_RATE_LIMIT", cfg.RaceRateLimit); err != nil {
		return nil, err
	}
	if cfg.Countdown, err = intEnv(getenv, "RACE_COUNTDOWN", cfg.Countdown); err != nil {
		return nil, err
	}

	cfg.Custom = append(cfg.Custom, envProviders(getenv)...)

	if cfg.ProvidersFile != "" {
		data, err := readFile(cfg.ProvidersFile)
		if err != nil {
			return nil, fmt.Errorf("read providers file: %w", err)
		}
		pf, err := ParseProvidersFile(data)
		if err != nil {
			return nil, fmt.Errorf("providers file %s: %w", cfg.ProvidersFile, err)
		}
		for _, p := range pf.Providers {
			if p.APIKeyEnv != "" {
				p.APIKey = getenv(p.APIKeyEnv)
			}
			p.Source = "file"
			cfg.Custom = append(cfg.Custom, p)
		}
		for id, o := range pf.Overrides {
			if o.BaseURL != "" {
				cfg.BaseURLs[id] = o.BaseURL
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddCustom appends providers discovered after loading, such as service bindings.
func (c *Config) AddCustom(specs ...ProviderSpec) error {
	c.Custom = append(c.Custom, specs...)
	return c.Validate()
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	if c.RaceRateLimit < 0 {
		return fmt.Errorf("RACE_RATE_LIMIT must not be negative")
	}
	seen := map[string]bool{}
	for _, p := range c.Custom {
		if p.ID == "" {
			return fmt.Errorf("custom provider without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate custom provider %q", p.ID)
		}
		seen[p.ID] = true
		if !isValidURL(p.BaseURL) {
			return fmt.Errorf("custom provider %q: invalid base_url %q", p.ID, p.BaseURL)
		}
	}
	for id, u := range c.BaseURLs {
		if !isValidURL(u) {
			return fmt.Errorf("override for %q: invalid base_url %q", id, u)
		}
	}
	return nil
}

// APIKey returns the server-side key for a provider.
func (c *Config) APIKey(providerID string) string {
	if k := c.Keys[providerID]; k != "" {
		return k
	}
	for _, p := range c.Custom {
		if p.ID == providerID {
			return p.APIKey
		}
	}
	return ""
}

// ResolveKeys returns the key for each provider id: a non-empty key in
// request wins over the server-side key.
func (c *Config) ResolveKeys(request map[string]string, providerIDs []string) map[string]string {
	out := make(map[string]string, len(providerIDs))
	for _, id := range providerIDs {
		if k := strings.TrimSpace(request[id]); k != "" {
			out[id] = k
			continue
		}
		if k := c.APIKey(id); k != "" {
			out[id] = k
		}
	}
	return out
}

// isValidURL validates if a URL is properly formatted
func isValidURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return parsedURL.Scheme != "" && parsedURL.Host != ""
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intEnv(getenv Getenv, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
