package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmrace/internal/logger"
	"llmrace/internal/sse"
	"llmrace/internal/tokens"
)

// Auth holds how the API key is attached to requests.
type Auth struct {
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// Delta is the text extracted from one stream event.
type Delta struct {
	Text  string
	Final bool // provider signalled end-of-message
}

// DecodeFunc turns one SSE payload into a Delta. A non-nil error aborts the stream.
type DecodeFunc func(payload []byte) (Delta, error)

// Base holds shared state for HTTP provider adapters. Embed it in concrete
// adapters to get auth, custom headers, streaming and model listing helpers.
type Base struct {
	ProviderID     string
	DisplayName    string
	BaseURL        string            // API base URL (no trailing slash).
	Auth           Auth              // Authentication settings.
	Client         *http.Client      // HTTP client; falls back to http.DefaultClient.
	Headers        map[string]string // Extra headers applied to every request.
	FallbackModels []string          // Returned when listing fails or is unsupported.
	Log            *logger.Logger
	Now            func() time.Time
}

// ID implements Adapter.
func (b *Base) ID() string { return b.ProviderID }

// Name implements Adapter.
func (b *Base) Name() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	return b.ProviderID
}

// Fallback returns a copy of the static model list.
func (b *Base) Fallback() []string {
	return append([]string(nil), b.FallbackModels...)
}

func (b *Base) httpClient() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

func (b *Base) log() *logger.Logger {
	if b.Log != nil {
		return b.Log
	}
	return logger.Discard()
}

func (b *Base) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// NewRequest builds an *http.Request with the base URL, auth and custom
// headers already applied.
func (b *Base) NewRequest(ctx context.Context, method, path, apiKey string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}

	if apiKey != "" {
		header := b.Auth.Header
		if header == "" {
			header = "Authorization"
		}
		value := apiKey
		if header == "Authorization" {
			scheme := b.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			value = scheme + " " + value
		} else if b.Auth.Scheme != "" {
			value = b.Auth.Scheme + " " + value
		}
		req.Header.Set(header, value)
	}

	for k, v := range b.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Do sends the request using the configured HTTP client.
func (b *Base) Do(req *http.Request) (*http.Response, error) {
	return b.httpClient().Do(req)
}

// OpenStream POSTs payload to path and returns a Stream over the SSE
// response. Non-2xx statuses fail with *HTTPError before any event.
func (b *Base) OpenStream(ctx context.Context, req Request, path string, payload any, decode DecodeFunc) (Stream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b.OpenStreamRaw(ctx, req, path, body, decode)
}

// OpenStreamRaw is OpenStream with a pre-encoded JSON body.
func (b *Base) OpenStreamRaw(ctx context.Context, req Request, path string, body []byte, decode DecodeFunc) (Stream, error) {
	start := b.now()

	httpReq, err := b.NewRequest(ctx, http.MethodPost, path, req.APIKey, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	b.log().DebugWithContext(&logger.LogContext{Provider: b.ProviderID, Model: req.Model, Operation: "generate"},
		"POST %s", path)

	resp, err := b.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: do request: %w", b.ProviderID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &HTTPError{Provider: b.ProviderID, Status: resp.StatusCode, Body: string(respBody)}
	}

	var rd io.Reader
	if resp.Body != nil && resp.Body != http.NoBody {
		rd = resp.Body
	}
	dec, err := sse.NewDecoder(rd, b.log())
	if err != nil {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}

	return &eventStream{
		ctx:      ctx,
		provider: b.ProviderID,
		body:     resp.Body,
		dec:      dec,
		decode:   decode,
		prompt:   req.Prompt,
		now:      b.now,
		start:    start,
	}, nil
}

// FetchModels GETs path and parses the body with parse. Any failure, or an
// empty result, falls back to the static list. Fetched ids come first,
// followed by fallback ids not already present.
func (b *Base) FetchModels(ctx context.Context, path, apiKey string, parse func([]byte) ([]string, error)) []string {
	if apiKey == "" {
		return b.Fallback()
	}

	models, err := b.fetchModels(ctx, path, apiKey, parse)
	if err != nil {
		b.log().WarnWithContext(&logger.LogContext{Provider: b.ProviderID, Operation: "list_models"},
			"Model listing failed, using fallback: %v", err)
		return b.Fallback()
	}
	if len(models) == 0 {
		return b.Fallback()
	}
	return MergeModels(models, b.FallbackModels)
}

func (b *Base) fetchModels(ctx context.Context, path, apiKey string, parse func([]byte) ([]string, error)) ([]string, error) {
	req, err := b.NewRequest(ctx, http.MethodGet, path, apiKey, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: b.ProviderID, Status: resp.StatusCode, Body: string(body)}
	}
	return parse(body)
}

// MergeModels returns primary followed by the entries of extra it lacks.
// Empty ids are dropped.
func MergeModels(primary, extra []string) []string {
	seen := make(map[string]struct{}, len(primary)+len(extra))
	out := make([]string, 0, len(primary)+len(extra))
	for _, list := range [][]string{primary, extra} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// eventStream turns decoded SSE payloads into chunk events and a final
// metrics event.
type eventStream struct {
	ctx      context.Context
	provider string
	body     io.ReadCloser
	dec      *sse.Decoder
	decode   DecodeFunc
	prompt   string
	now      func() time.Time

	start      time.Time
	firstToken time.Time
	chunks     int
	text       strings.Builder
	final      bool
	done       bool
}

func (s *eventStream) Recv() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	if s.final {
		return s.finish(), nil
	}

	for {
		payload, err := s.dec.Next()
		if errors.Is(err, io.EOF) {
			return s.finish(), nil
		}
		if err != nil {
			s.abort()
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, fmt.Errorf("%s: read stream: %w", s.provider, err)
		}

		delta, err := s.decode(payload)
		if err != nil {
			s.abort()
			return Event{}, err
		}

		if delta.Final {
			s.final = true
		}
		if delta.Text != "" {
			if s.firstToken.IsZero() {
				s.firstToken = s.now()
			}
			s.chunks++
			s.text.WriteString(delta.Text)
			return Chunk(delta.Text), nil
		}
		if s.final {
			return s.finish(), nil
		}
	}
}

func (s *eventStream) finish() Event {
	finish := s.now()
	s.abort()

	text := s.text.String()
	counts := tokens.Count(s.prompt, text)
	return MetricsEvent(Metrics{
		StartTime:      s.start,
		FirstTokenTime: s.firstToken,
		FinishTime:     finish,
		TokenCount:     tokens.FinalTotal(s.chunks, text),
		InputTokens:    counts.Input,
		OutputTokens:   counts.Output,
		TotalTokens:    counts.Total(),
	})
}

func (s *eventStream) abort() {
	s.done = true
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
}

func (s *eventStream) Close() error {
	s.abort()
	return nil
}
