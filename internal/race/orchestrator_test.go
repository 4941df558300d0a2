package race

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrace/internal/provider"
)

// scriptStream replays events, optionally pausing before each one and
// blocking on ctx once the script is exhausted.
type scriptStream struct {
	ctx    context.Context
	events []provider.Event
	delay  time.Duration
	hang   bool
}

func (s *scriptStream) Recv() (provider.Event, error) {
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return provider.Event{}, s.ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if len(s.events) == 0 {
		if s.hang {
			<-s.ctx.Done()
			return provider.Event{}, s.ctx.Err()
		}
		return provider.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptStream) Close() error { return nil }

type generateFunc func(ctx context.Context, req provider.Request) (provider.Stream, error)

type fakeGenerator struct {
	mu       sync.Mutex
	byID     map[string]generateFunc
	requests map[string]provider.Request
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{byID: map[string]generateFunc{}, requests: map[string]provider.Request{}}
}

func (f *fakeGenerator) on(providerID string, fn generateFunc) *fakeGenerator {
	f.byID[providerID] = fn
	return f
}

func (f *fakeGenerator) Generate(ctx context.Context, providerID string, req provider.Request) (provider.Stream, error) {
	f.mu.Lock()
	f.requests[providerID] = req
	fn := f.byID[providerID]
	f.mu.Unlock()
	if fn == nil {
		return nil, provider.ErrUnknownProvider
	}
	return fn(ctx, req)
}

func (f *fakeGenerator) request(providerID string) provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[providerID]
}

func script(events []provider.Event, opts ...func(*scriptStream)) generateFunc {
	return func(ctx context.Context, _ provider.Request) (provider.Stream, error) {
		s := &scriptStream{ctx: ctx, events: append([]provider.Event(nil), events...)}
		for _, o := range opts {
			o(s)
		}
		return s, nil
	}
}

func withDelay(d time.Duration) func(*scriptStream) { return func(s *scriptStream) { s.delay = d } }
func hanging() func(*scriptStream)                  { return func(s *scriptStream) { s.hang = true } }

func chunks(parts ...string) []provider.Event {
	out := make([]provider.Event, len(parts))
	for i, p := range parts {
		out[i] = provider.Chunk(p)
	}
	return out
}

func realMetrics() provider.Metrics {
	start := time.UnixMilli(1_700_000_000_000)
	return provider.Metrics{
		StartTime:      start,
		FirstTokenTime: start.Add(250 * time.Millisecond),
		FinishTime:     start.Add(1250 * time.Millisecond),
		TokenCount:     2,
		InputTokens:    3,
		OutputTokens:   40,
		TotalTokens:    43,
	}
}

func withMetrics(events []provider.Event, m provider.Metrics) []provider.Event {
	return append(events, provider.MetricsEvent(m))
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) listen(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, u := range r.updates {
		if u.Kind == UpdateState {
			out = append(out, u.State)
		}
	}
	return out
}

func (r *recorder) countdowns() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, u := range r.updates {
		if u.Kind == UpdateCountdown {
			out = append(out, u.Countdown)
		}
	}
	return out
}

func laneByID(t *testing.T, snap Snapshot, id string) Lane {
	t.Helper()
	for _, l := range snap.Lanes {
		if l.ID == id {
			return l
		}
	}
	t.Fatalf("lane %s not found", id)
	return Lane{}
}

func params(mode Mode, sels ...Selection) StartParams {
	cfg := DefaultConfig()
	cfg.Mode = mode
	return StartParams{
		Prompt:        "Write a haiku about latency",
		Selections:    sels,
		Config:        cfg,
		APIKeys:       map[string]string{"openai": "sk-1", "anthropic": "sk-2", "google": "g-3"},
		ReducedMotion: true,
	}
}

func TestRace_MissingKeyLaneErrorsSiblingFinishes(t *testing.T) {
	gen := newFakeGenerator().
		on("openai", script(withMetrics(chunks("a", "b"), realMetrics())))
	o := New(gen)

	p := params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"}, Selection{ProviderID: "zhipu", ModelID: "glm-4.5"})
	snap, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StateFinished, snap.State)
	missing := laneByID(t, snap, "zhipu-glm-4.5")
	assert.Equal(t, LaneError, missing.Status)
	assert.Equal(t, "API Key not set", missing.Error)
	assert.False(t, missing.Loading)

	ok := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneFinished, ok.Status)
	assert.Equal(t, "ab", ok.Text)

	gen.mu.Lock()
	_, called := gen.requests["zhipu"]
	gen.mu.Unlock()
	assert.False(t, called, "no network call without a key")
}

func TestRace_HTTPErrorIsLaneLocal(t *testing.T) {
	gen := newFakeGenerator().
		on("openai", script(withMetrics(chunks("x"), realMetrics()))).
		on("anthropic", func(context.Context, provider.Request) (provider.Stream, error) {
			return nil, &provider.HTTPError{Provider: "anthropic", Status: 401, Body: `{"error":{"message":"invalid x-api-key"}}`}
		})
	o := New(gen)

	snap, err := o.Run(context.Background(), params(ModeDrag,
		Selection{ProviderID: "openai", ModelID: "gpt-4o"},
		Selection{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"}))
	require.NoError(t, err)

	bad := laneByID(t, snap, "anthropic-claude-sonnet-4-5")
	assert.Equal(t, LaneError, bad.Status)
	assert.Contains(t, bad.Error, "401")
	assert.Equal(t, LaneFinished, laneByID(t, snap, "openai-gpt-4o").Status)
	assert.Equal(t, StateFinished, snap.State)
}

func TestRace_DragKeepsAdapterMetricsUnmodified(t *testing.T) {
	m := realMetrics()
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("hel", "lo"), m))))

	snap, err := o.Run(context.Background(), params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"}))
	require.NoError(t, err)

	lane := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneFinished, lane.Status)
	require.NotNil(t, lane.Metrics)
	assert.Equal(t, m, *lane.Metrics)
	assert.Equal(t, "hello", lane.Text)
	assert.Equal(t, 2, lane.Chunks)
}

func TestRace_FreeForAllWithoutMetricsErrors(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(chunks("a", "b", "c"))))

	snap, err := o.Run(context.Background(), params(ModeFreeForAll, Selection{ProviderID: "openai", ModelID: "gpt-4o"}))
	require.NoError(t, err)

	lane := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneError, lane.Status)
	assert.Equal(t, "Stream ended without metrics", lane.Error)
	assert.Equal(t, "abc", lane.Text)
	assert.Nil(t, lane.Metrics)
}

func TestRace_TokenLimitTruncates(t *testing.T) {
	o := New(newFakeGenerator().
		on("openai", script(withMetrics(chunks("1", "2", "3", "4", "5", "6", "7", "8"), realMetrics()))).
		on("google", script(withMetrics(chunks("a", "b"), realMetrics()))))

	p := params(ModeTokenLimit,
		Selection{ProviderID: "openai", ModelID: "gpt-4o"},
		Selection{ProviderID: "google", ModelID: "gemini-2.5-flash"})
	p.Config.TokenLimit = 5

	snap, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	long := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneFinished, long.Status)
	assert.Equal(t, "12345", long.Text)
	require.NotNil(t, long.Metrics)
	assert.Equal(t, 5, long.Metrics.OutputTokens)
	assert.Equal(t, 5, long.Metrics.TokenCount)
	assert.True(t, long.Metrics.Synthesized)
	assert.True(t, long.Metrics.Ordered())
	assert.Equal(t, snap.StartedAt, long.Metrics.StartTime)

	short := laneByID(t, snap, "google-gemini-2.5-flash")
	require.NotNil(t, short.Metrics)
	assert.Equal(t, realMetrics(), *short.Metrics, "a lane under the limit keeps its real metrics")
}

func TestRace_TimeLimitStopsStreamingLane(t *testing.T) {
	endless := make([]provider.Event, 1000)
	for i := range endless {
		endless[i] = provider.Chunk("x")
	}
	o := New(newFakeGenerator().on("openai", script(endless, withDelay(20*time.Millisecond))))

	p := params(ModeTimeLimit, Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	p.Config.TimeLimit = 0.2

	began := time.Now()
	snap, err := o.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 2*time.Second)

	lane := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneFinished, lane.Status)
	require.NotNil(t, lane.Metrics)
	assert.True(t, lane.Metrics.Synthesized)
	assert.Equal(t, lane.Chunks, lane.Metrics.OutputTokens)
	assert.Less(t, lane.Chunks, 1000)
	assert.GreaterOrEqual(t, lane.Metrics.FinishTime.Sub(snap.StartedAt), 200*time.Millisecond)
}

func TestRace_TimeLimitAbortsHungRead(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(nil, hanging())))

	p := params(ModeTimeLimit, Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	p.Config.TimeLimit = 0.1

	snap, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	lane := laneByID(t, snap, "openai-gpt-4o")
	assert.Equal(t, LaneFinished, lane.Status)
	require.NotNil(t, lane.Metrics)
	assert.Equal(t, 0, lane.Metrics.OutputTokens)
	assert.Equal(t, snap.StartedAt.Add(SyntheticFirstTokenOffset), lane.Metrics.FirstTokenTime)
	assert.True(t, lane.Metrics.Ordered())
}

func TestRace_NoKeyedSelectionIsNoop(t *testing.T) {
	o := New(newFakeGenerator())
	p := params(ModeDrag,
		Selection{ProviderID: "openai", ModelID: "gpt-4o", Disabled: true},
		Selection{ProviderID: "mistral", ModelID: "mistral-large-latest"})

	started, err := o.Start(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, StateIdle, o.State())
	assert.Empty(t, o.Snapshot().Lanes)
}

func TestRace_DisabledSelectionSkipped(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("a"), realMetrics()))))
	p := params(ModeDrag,
		Selection{ProviderID: "openai", ModelID: "gpt-4o"},
		Selection{ProviderID: "google", ModelID: "gemini-2.5-pro", Disabled: true})

	snap, err := o.Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, snap.Lanes, 1)
	assert.Equal(t, "openai-gpt-4o", snap.Lanes[0].ID)
}

func TestRace_InvalidConfig(t *testing.T) {
	o := New(newFakeGenerator())
	p := params(ModeTokenLimit, Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	_, err := o.Start(context.Background(), p)
	assert.Error(t, err)

	p.Config.Mode = "sprint"
	_, err = o.Start(context.Background(), p)
	assert.Error(t, err)
}

func TestRace_CountdownPrecedesRacing(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("a"), realMetrics()))),
		WithCountdown(3, 5*time.Millisecond))
	rec := &recorder{}
	unsubscribe := o.Subscribe(rec.listen)
	defer unsubscribe()

	p := params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	p.ReducedMotion = false
	_, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 1}, rec.countdowns())
	assert.Equal(t, []State{StateCountingDown, StateRacing, StateFinished}, rec.states())
}

func TestRace_ReducedMotionSkipsCountdown(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("a"), realMetrics()))),
		WithCountdown(3, time.Hour))
	rec := &recorder{}
	o.Subscribe(rec.listen)

	_, err := o.Run(context.Background(), params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"}))
	require.NoError(t, err)

	assert.Empty(t, rec.countdowns())
	assert.Equal(t, []State{StateRacing, StateFinished}, rec.states())
}

func TestRace_ChunkUpdatesOrderedPerLane(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("a", "b", "c"), realMetrics()))))
	rec := &recorder{}
	o.Subscribe(rec.listen)

	_, err := o.Run(context.Background(), params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"}))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var got []string
	terminalSeen := false
	for _, u := range rec.updates {
		if u.Lane == nil || u.Lane.ID != "openai-gpt-4o" {
			continue
		}
		if u.Kind == UpdateChunk {
			require.False(t, terminalSeen, "chunk after terminal update")
			got = append(got, u.Chunk)
		}
		if u.Lane.Status.Terminal() {
			terminalSeen = true
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.True(t, terminalSeen)
}

func TestRace_ResetCancelsInFlightLanes(t *testing.T) {
	o := New(newFakeGenerator().
		on("openai", script(chunks("partial"), hanging())).
		on("google", script(nil, hanging())))

	started, err := o.Start(context.Background(), params(ModeDrag,
		Selection{ProviderID: "openai", ModelID: "gpt-4o"},
		Selection{ProviderID: "google", ModelID: "gemini-2.5-flash"}))
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		return laneByID(t, o.Snapshot(), "openai-gpt-4o").Text == "partial"
	}, 2*time.Second, 5*time.Millisecond)

	_, err = o.Start(context.Background(), params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"}))
	assert.ErrorIs(t, err, ErrRaceInProgress)

	o.Reset()

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	for _, l := range snap.Lanes {
		assert.False(t, l.Loading, l.ID)
		assert.Equal(t, LaneError, l.Status, l.ID)
		assert.Equal(t, "Race cancelled", l.Error, l.ID)
	}
	assert.Equal(t, "partial", laneByID(t, snap, "openai-gpt-4o").Text)
}

func TestRace_ResetDuringCountdown(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(nil, hanging())), WithCountdown(3, time.Hour))
	p := params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"})
	p.ReducedMotion = false

	started, err := o.Start(context.Background(), p)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, StateCountingDown, o.State())

	o.Reset()
	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, LaneError, snap.Lanes[0].Status)
}

func TestRace_ReasoningExclusion(t *testing.T) {
	gen := newFakeGenerator().
		on("openai", script(withMetrics(nil, realMetrics()))).
		on("anthropic", script(withMetrics(nil, realMetrics())))
	o := New(gen)

	p := params(ModeDrag,
		Selection{ProviderID: "openai", ModelID: "o3-mini"},
		Selection{ProviderID: "anthropic", ModelID: "claude-3-7-sonnet-latest-thinking"})
	p.Config.ModelSettings.ReasoningEffort = provider.ReasoningHigh
	p.Config.ReasoningExcluded = []string{"o3-mini"}

	_, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Empty(t, gen.request("openai").Settings.ReasoningEffort)
	assert.Equal(t, provider.ReasoningHigh, gen.request("anthropic").Settings.ReasoningEffort)
	assert.Equal(t, "sk-2", gen.request("anthropic").APIKey)
	assert.Equal(t, p.Prompt, gen.request("anthropic").Prompt)
}

func TestRace_RestartAfterFinish(t *testing.T) {
	o := New(newFakeGenerator().on("openai", script(withMetrics(chunks("a"), realMetrics()))))
	p := params(ModeDrag, Selection{ProviderID: "openai", ModelID: "gpt-4o"})

	for i := 0; i < 2; i++ {
		snap, err := o.Run(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StateFinished, snap.State)
		assert.Equal(t, "a", snap.Lanes[0].Text)
	}
}

func TestSynthesizeMetrics(t *testing.T) {
	start := time.UnixMilli(5_000)

	m := synthesizeMetrics(start, time.Time{}, start.Add(time.Second), 7, "abcdefgh")
	assert.Equal(t, start, m.StartTime)
	assert.Equal(t, start.Add(SyntheticFirstTokenOffset), m.FirstTokenTime)
	assert.Equal(t, start.Add(time.Second), m.FinishTime)
	assert.Equal(t, 7, m.OutputTokens)
	assert.Equal(t, 7, m.TokenCount)
	assert.Equal(t, 2, m.InputTokens)
	assert.Equal(t, 9, m.TotalTokens)
	assert.True(t, m.Synthesized)

	first := start.Add(300 * time.Millisecond)
	m = synthesizeMetrics(start, first, start.Add(50*time.Millisecond), 1, "")
	assert.Equal(t, first, m.FirstTokenTime)
	assert.True(t, m.Ordered(), "finish is clamped to the first token")
}
