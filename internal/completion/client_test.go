package completion_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrace/internal/completion"
	"llmrace/internal/provider"
)

type sliceStream struct {
	events []provider.Event
}

func (s *sliceStream) Recv() (provider.Event, error) {
	if len(s.events) == 0 {
		return provider.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

type fakeAdapter struct {
	id      string
	lastReq provider.Request
}

func (f *fakeAdapter) ID() string   { return f.id }
func (f *fakeAdapter) Name() string { return "Fake" }

func (f *fakeAdapter) ListModels(context.Context, string) []string { return []string{"m1", "m2"} }

func (f *fakeAdapter) Generate(_ context.Context, req provider.Request) (provider.Stream, error) {
	f.lastReq = req
	return &sliceStream{events: []provider.Event{
		provider.Chunk("a"),
		provider.Chunk("b"),
		provider.MetricsEvent(provider.Metrics{TokenCount: 2}),
	}}, nil
}

func TestClient_GenerateDelegates(t *testing.T) {
	fake := &fakeAdapter{id: "fake"}
	reg, err := provider.NewRegistry(fake)
	require.NoError(t, err)
	c := completion.NewClient(reg, nil)

	s, err := c.Generate(context.Background(), "fake", provider.Request{Prompt: "p", Model: "m1", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "m1", fake.lastReq.Model)

	var kinds []provider.EventKind
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []provider.EventKind{provider.EventChunk, provider.EventChunk, provider.EventMetrics}, kinds)
}

func TestClient_UnknownProvider(t *testing.T) {
	reg, err := provider.NewRegistry()
	require.NoError(t, err)
	c := completion.NewClient(reg, nil)

	_, err = c.Generate(context.Background(), "nope", provider.Request{})
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	_, err = c.ListModels(context.Background(), "nope", "")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestClient_ListModels(t *testing.T) {
	reg, err := provider.NewRegistry(&fakeAdapter{id: "fake"})
	require.NoError(t, err)
	c := completion.NewClient(reg, nil)

	models, err := c.ListModels(context.Background(), "fake", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, models)
	assert.Len(t, c.Providers(), 1)
}
