package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnknownProvider is returned when no adapter is registered for an id.
var ErrUnknownProvider = errors.New("unknown provider")

// HTTPError is a non-2xx response from a provider.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	msg := errorMessage([]byte(e.Body))
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, msg)
}

// StreamError is an error object delivered inside an otherwise healthy stream.
type StreamError struct {
	Provider string
	Message  string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: stream error: %s", e.Provider, e.Message)
}

// errorMessage pulls a human message out of the common error envelopes:
// {"error":{"message":...}}, {"error":"..."} and {"message":...}.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message", "0.error.message"} {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// StreamErrorFrom reports an in-stream error envelope, if payload carries one.
func StreamErrorFrom(providerID string, payload []byte) error {
	r := gjson.GetBytes(payload, "error")
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	msg := errorMessage(payload)
	if msg == "" {
		msg = r.Raw
	}
	return &StreamError{Provider: providerID, Message: msg}
}
