package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.yaml.in/yaml/v4"

	"llmrace/internal/race"
)

func (result *RaceResult) Json() (string, error) {
	prettyJSON, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	return string(prettyJSON), nil
}

func (result *RaceResult) Yaml() (string, error) {
	yamlData, err := yaml.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("error marshalling yaml: %w", err)
	}

	return string(yamlData), nil
}

func (result *RaceResult) Csv() (string, error) {
	var buf bytes.Buffer
	if err := race.WriteCSV(&buf, result.Lanes); err != nil {
		return "", fmt.Errorf("error writing csv: %w", err)
	}
	return buf.String(), nil
}
