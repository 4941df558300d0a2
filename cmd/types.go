package main

import (
	"fmt"
	"strings"

	"llmrace/internal/race"
)

// RaceRun is one CLI invocation.
type RaceRun struct {
	Prompt     string
	Selections []race.Selection
	Config     race.Config
	APIKeys    map[string]string
	Countdown  bool
}

// RaceResult is the formatted output of a finished race.
type RaceResult struct {
	Prompt      string           `json:"prompt" yaml:"prompt"`
	Mode        race.Mode        `json:"mode" yaml:"mode"`
	State       race.State       `json:"state" yaml:"state"`
	Lanes       []race.Lane      `json:"lanes" yaml:"lanes"`
	Leaderboard race.Leaderboard `json:"leaderboard" yaml:"leaderboard"`
}

// parseSelections parses "provider:model,provider:model". Only the first
// colon separates provider from model.
func parseSelections(s string) ([]race.Selection, error) {
	var out []race.Selection
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		providerID, modelID, ok := strings.Cut(part, ":")
		if !ok || providerID == "" || modelID == "" {
			return nil, fmt.Errorf("invalid lane %q, want provider:model", part)
		}
		out = append(out, race.Selection{ProviderID: providerID, ModelID: modelID})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one lane is required")
	}
	return out, nil
}
