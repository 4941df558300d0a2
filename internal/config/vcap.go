package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"llmrace/internal/logger"
)

// VCAPService is one Cloud Foundry service binding.
type VCAPService struct {
	InstanceGUID string          `json:"instance_guid"`
	InstanceName string          `json:"instance_name"`
	Name         string          `json:"name"`
	Plan         string          `json:"plan"`
	Credentials  json.RawMessage `json:"credentials"`
	Tags         []string        `json:"tags"`
	Label        string          `json:"label"`
}

// VCAPServices is the part of VCAP_SERVICES we read.
type VCAPServices struct {
	GenAI []VCAPService `json:"genai"`
}

// AdvertisedModel is a model listed by a multi-plan config URL.
type AdvertisedModel struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

type configResponse struct {
	AdvertisedModels []AdvertisedModel `json:"advertisedModels"`
}

// Bindings turns genai service bindings into OpenAI-compatible providers.
type Bindings struct {
	Client *http.Client
	Log    *logger.Logger
}

// Discover parses raw VCAP_SERVICES JSON. An empty string yields no
// providers. Services without credentials or a base URL are skipped.
func (b *Bindings) Discover(ctx context.Context, raw string) ([]ProviderSpec, error) {
	if raw == "" {
		return nil, nil
	}

	var services VCAPServices
	if err := json.Unmarshal([]byte(raw), &services); err != nil {
		return nil, fmt.Errorf("failed to parse VCAP_SERVICES: %w", err)
	}

	var specs []ProviderSpec
	for _, service := range services.GenAI {
		name := firstNonEmpty(service.InstanceName, service.Name, service.InstanceGUID)
		creds := gjson.ParseBytes(service.Credentials)
		if len(service.Credentials) == 0 || !creds.IsObject() {
			b.log().WarnWithFields("Service has no credentials, skipping", map[string]interface{}{
				"serviceName": name,
			})
			continue
		}

		spec, err := b.fromCredentials(ctx, name, creds)
		if err != nil {
			b.log().WarnWithFields("Skipping service binding", map[string]interface{}{
				"serviceName": name,
				"error":       err.Error(),
			})
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (b *Bindings) fromCredentials(ctx context.Context, name string, creds gjson.Result) (ProviderSpec, error) {
	spec := ProviderSpec{
		ID:     "genai-" + slug(name),
		Name:   name,
		Source: "cloud-foundry",
	}

	endpoint := creds.Get("endpoint")
	configURL := endpoint.Get("config_url").String()
	modelName := creds.Get("model_name").String()

	switch {
	case configURL != "" && modelName == "":
		// Multi-plan: models come from the config URL.
		spec.APIKey = endpoint.Get("api_key").String()
		spec.BaseURL = endpoint.Get("api_base").String()
		if spec.APIKey != "" {
			models, err := b.fetchModels(ctx, configURL, spec.APIKey)
			if err != nil {
				b.log().WarnWithFields("Failed to fetch models for service", map[string]interface{}{
					"serviceName": name,
					"error":       err.Error(),
				})
			}
			for _, m := range models {
				spec.Models = append(spec.Models, m.Name)
			}
		}
	case configURL != "":
		// Single model; a top-level api_base wins over the endpoint's.
		spec.APIKey = endpoint.Get("api_key").String()
		spec.BaseURL = firstNonEmpty(creds.Get("api_base").String(), endpoint.Get("api_base").String())
		spec.Models = []string{modelName}
	default:
		spec.APIKey = creds.Get("api_key").String()
		spec.BaseURL = firstNonEmpty(creds.Get("api_base").String(), creds.Get("base_url").String())
		if modelName != "" {
			spec.Models = append(spec.Models, modelName)
		}
		creds.Get("model_aliases").ForEach(func(_, alias gjson.Result) bool {
			if a := alias.String(); a != "" && !slices.Contains(spec.Models, a) {
				spec.Models = append(spec.Models, a)
			}
			return true
		})
	}

	if spec.BaseURL == "" {
		return ProviderSpec{}, fmt.Errorf("no api_base in credentials")
	}
	spec.BaseURL = strings.TrimRight(spec.BaseURL, "/")
	if strings.HasSuffix(spec.BaseURL, "/openai") {
		spec.BaseURL += "/v1"
	}
	return spec, nil
}

// fetchModels GETs a multi-plan config URL.
func (b *Bindings) fetchModels(ctx context.Context, configURL, apiKey string) ([]AdvertisedModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("config URL returned status %d", resp.StatusCode)
	}

	var cr configResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode config response: %w", err)
	}
	return cr.AdvertisedModels, nil
}

func (b *Bindings) log() *logger.Logger {
	if b.Log != nil {
		return b.Log
	}
	return logger.Discard()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
