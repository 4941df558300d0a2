package server

import (
	"encoding/json"
	"time"

	"llmrace/internal/race"
)

// StartRaceRequest is the POST /api/races payload.
type StartRaceRequest struct {
	Prompt     string           `json:"prompt" binding:"required,min=1"`
	Selections []race.Selection `json:"selections" binding:"required,min=1"`
	// Config is decoded over race.DefaultConfig, so omitted fields keep
	// their defaults.
	Config json.RawMessage `json:"config"`
	// APIKeys override server-side keys per provider id.
	APIKeys       map[string]string `json:"apiKeys"`
	ReducedMotion bool              `json:"reducedMotion"`
}

// StartRaceResponse is returned when a race is accepted.
type StartRaceResponse struct {
	RaceID    string     `json:"raceId"`
	Started   bool       `json:"started"`
	State     race.State `json:"state"`
	StreamURL string     `json:"streamUrl"`
	SocketURL string     `json:"socketUrl"`
}

// RaceSummary is one entry of GET /api/races.
type RaceSummary struct {
	ID        string     `json:"id"`
	State     race.State `json:"state"`
	Prompt    string     `json:"prompt"`
	Mode      race.Mode  `json:"mode"`
	Lanes     int        `json:"lanes"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RaceResponse is a full race snapshot with its leaderboard.
type RaceResponse struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"createdAt"`
	Snapshot    race.Snapshot    `json:"snapshot"`
	Leaderboard race.Leaderboard `json:"leaderboard"`
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HasAPIKey bool   `json:"hasApiKey"`
}

// ProviderModels is the model list of one provider.
type ProviderModels struct {
	ProviderID string    `json:"providerId"`
	Name       string    `json:"name"`
	Models     []string  `json:"models"`
	Cached     bool      `json:"cached"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// ModelsResponse represents the response for model discovery
type ModelsResponse struct {
	Providers []ProviderModels `json:"providers"`
	Count     int              `json:"count"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
