package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrace/internal/provider"
	"llmrace/internal/provider/google"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *google.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return google.New(provider.WithBaseURL(srv.URL))
}

func chunk(w http.ResponseWriter, text, finish string) {
	c := map[string]any{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}}}
	if finish != "" {
		c["finishReason"] = finish
	}
	b, _ := json.Marshal(map[string]any{"candidates": []any{c}})
	fmt.Fprintf(w, "data: %s\r\n\r\n", b)
}

func drain(t *testing.T, s provider.Stream) (string, *provider.Metrics) {
	t.Helper()
	var text string
	var m *provider.Metrics
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return text, m
		}
		require.NoError(t, err)
		if ev.Kind == provider.EventChunk {
			text += ev.Content
		} else {
			m = ev.Metrics
		}
	}
}

func TestGenerate_StreamsCandidates(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen := body["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.7, gen["temperature"], 1e-9)
		assert.EqualValues(t, 1024, gen["maxOutputTokens"])
		assert.InDelta(t, 1.0, gen["topP"], 1e-9)
		assert.NotContains(t, gen, "thinkingConfig")

		chunk(w, "The sky", "")
		chunk(w, " is blue.", "STOP")
	})

	s, err := a.Generate(context.Background(), provider.Request{
		Prompt: "why", Model: "gemini-2.0-flash", APIKey: "g-key", Settings: provider.DefaultModelSettings(),
	})
	require.NoError(t, err)

	text, m := drain(t, s)
	assert.Equal(t, "The sky is blue.", text)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.TokenCount)
	assert.Equal(t, 4, m.OutputTokens)
}

func TestGenerate_ThinkingBudgetAndThoughtParts(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, map[string]any{"thinkingBudget": float64(1024)}, gen["thinkingConfig"])

		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"pondering","thought":true},{"text":"42"}]}}]}`+"\n\n")
		chunk(w, "", "STOP")
	})

	settings := provider.ModelSettings{Temperature: 1, ReasoningEffort: provider.ReasoningLow}
	s, err := a.Generate(context.Background(), provider.Request{Model: "gemini-2.5-flash", APIKey: "k", Settings: settings})
	require.NoError(t, err)

	text, m := drain(t, s)
	assert.Equal(t, "42", text)
	require.NotNil(t, m)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := a.Generate(context.Background(), provider.Request{Model: "gemini-2.0-flash", APIKey: "bad"})
	var httpErr *provider.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "google: HTTP 400: API key not valid", err.Error())
}

func TestListModels_FiltersGenerateContent(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		fmt.Fprint(w, `{"models":[
			{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["generateContent","countTokens"]},
			{"name":"models/text-embedding-004","supportedGenerationMethods":["embedContent"]},
			{"name":"models/gemini-exp","supportedGenerationMethods":["generateContent"]}
		]}`)
	})

	got := a.ListModels(context.Background(), "k")
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-exp"}, got[:2])
	assert.NotContains(t, got, "text-embedding-004")
	assert.Contains(t, got, "gemini-2.0-flash")
}
