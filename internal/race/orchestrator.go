// Package race runs one prompt against many provider models concurrently and
// tracks each lane from staging to its finish.
package race

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"llmrace/internal/logger"
	"llmrace/internal/provider"
	"llmrace/internal/tokens"
)

// SyntheticFirstTokenOffset approximates the first token of a truncated
// lane that never recorded one.
const SyntheticFirstTokenOffset = 100 * time.Millisecond

// Generator starts a completion on a provider; *completion.Client implements it.
type Generator interface {
	Generate(ctx context.Context, providerID string, req provider.Request) (provider.Stream, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCountdown sets the number of countdown ticks and their interval.
func WithCountdown(ticks int, interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.countdown = ticks
		o.tick = interval
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRaceID tags log lines.
func WithRaceID(id string) Option {
	return func(o *Orchestrator) { o.raceID = id }
}

// Orchestrator owns one race's lane result set. Lanes run concurrently but
// only the orchestrator's writer goroutine mutates results.
type Orchestrator struct {
	gen       Generator
	log       *logger.Logger
	now       func() time.Time
	countdown int
	tick      time.Duration
	raceID    string

	mu        sync.RWMutex
	state     State
	prompt    string
	cfg       Config
	startedAt time.Time
	lanes     []*Lane
	index     map[string]*Lane
	cancel    context.CancelFunc
	done      chan struct{}

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an idle orchestrator.
func New(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:       gen,
		now:       time.Now,
		countdown: 3,
		tick:      time.Second,
		state:     StateIdle,
		index:     map[string]*Lane{},
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	return o
}

// Subscribe registers fn and returns a function that removes it.
func (o *Orchestrator) Subscribe(fn Listener) func() {
	o.lmu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.lmu.Unlock()

	return func() {
		o.lmu.Lock()
		delete(o.listeners, id)
		o.lmu.Unlock()
	}
}

func (o *Orchestrator) publish(u Update) {
	if u.Time.IsZero() {
		u.Time = o.now()
	}
	o.lmu.Lock()
	fns := make([]Listener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.lmu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// State returns the global race state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Snapshot copies the current race.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	lanes := make([]Lane, len(o.lanes))
	for i, l := range o.lanes {
		lanes[i] = l.clone()
	}
	return Snapshot{
		State:     o.state,
		Prompt:    o.prompt,
		Config:    o.cfg,
		StartedAt: o.startedAt,
		Lanes:     lanes,
	}
}

// Done is closed when the current race settles. It is nil before the first start.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.done
}

type laneSpec struct {
	lane   string
	sel    Selection
	apiKey string
}

// Start launches a race in the background. It returns false without error
// when no selection is enabled with an API key. Lanes whose provider has
// no key are created and fail with ErrMissingAPIKey without a network call.
// Cancelling ctx has the same effect as Reset.
func (o *Orchestrator) Start(ctx context.Context, p StartParams) (bool, error) {
	if err := p.Config.Validate(); err != nil {
		return false, err
	}

	var specs []laneSpec
	seen := map[string]bool{}
	keyed := 0
	for _, sel := range p.Selections {
		if sel.Disabled || sel.ProviderID == "" || sel.ModelID == "" {
			continue
		}
		id := LaneID(sel.ProviderID, sel.ModelID)
		if seen[id] {
			continue
		}
		seen[id] = true
		key := p.APIKeys[sel.ProviderID]
		if key != "" {
			keyed++
		}
		specs = append(specs, laneSpec{lane: id, sel: sel, apiKey: key})
	}
	if keyed == 0 {
		return false, nil
	}

	o.mu.Lock()
	if o.state == StateCountingDown || o.state == StateRacing {
		o.mu.Unlock()
		return false, ErrRaceInProgress
	}

	raceCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.prompt = p.Prompt
	o.cfg = p.Config
	o.startedAt = time.Time{}
	o.lanes = make([]*Lane, 0, len(specs))
	o.index = make(map[string]*Lane, len(specs))
	for _, s := range specs {
		l := &Lane{ID: s.lane, ProviderID: s.sel.ProviderID, ModelID: s.sel.ModelID, Status: LaneStaging}
		o.lanes = append(o.lanes, l)
		o.index[l.ID] = l
	}
	countdown := o.countdown > 0 && !p.ReducedMotion
	if countdown {
		o.state = StateCountingDown
	} else {
		o.state = StateRacing
	}
	done := o.done
	o.mu.Unlock()

	o.log.InfoWithContext(&logger.LogContext{RaceID: o.raceID, Operation: "start"},
		"Race starting: mode=%s lanes=%d", p.Config.Mode, len(specs))
	if countdown {
		o.publish(Update{Kind: UpdateState, State: StateCountingDown})
	}

	go o.run(raceCtx, cancel, done, specs, p, countdown)
	return true, nil
}

// Run starts a race and blocks until it settles.
func (o *Orchestrator) Run(ctx context.Context, p StartParams) (Snapshot, error) {
	started, err := o.Start(ctx, p)
	if err != nil {
		return Snapshot{}, err
	}
	if started {
		<-o.Done()
	}
	return o.Snapshot(), nil
}

// Reset cancels in-flight lanes, waits for them to settle and returns the
// race to idle. Partial lane output stays visible.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	o.mu.Lock()
	changed := o.state != StateIdle
	o.state = StateIdle
	o.mu.Unlock()
	if changed {
		o.publish(Update{Kind: UpdateState, State: StateIdle})
	}
}

// laneEvent is what lane goroutines send to the writer.
type laneEvent struct {
	lane    string
	chunk   string
	metrics *provider.Metrics
	err     error
}

func (e laneEvent) terminal() bool {
	return e.metrics != nil || e.err != nil
}

// run is the single writer: it counts down, dispatches lanes and applies
// their events.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, specs []laneSpec, p StartParams, countdown bool) {
	defer close(done)
	defer cancel()

	if countdown && !o.countDown(ctx) {
		o.settleCancelled()
		return
	}

	start := o.now()
	o.mu.Lock()
	o.startedAt = start
	o.state = StateRacing
	for _, l := range o.lanes {
		l.Status = LaneRacing
		l.Loading = true
	}
	lanes := o.snapshotLanes()
	o.mu.Unlock()

	o.publish(Update{Kind: UpdateState, State: StateRacing})
	for i := range lanes {
		o.publish(Update{Kind: UpdateLane, Lane: &lanes[i]})
	}

	events := make(chan laneEvent, 64)
	var wg sync.WaitGroup
	for _, s := range specs {
		wg.Add(1)
		go func(s laneSpec) {
			defer wg.Done()
			o.runLane(ctx, s, p, start, events)
		}(s)
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	for ev := range events {
		o.apply(ev)
	}

	o.mu.Lock()
	final := StateFinished
	if ctx.Err() != nil {
		final = StateIdle
	}
	o.state = final
	o.mu.Unlock()

	o.log.InfoWithContext(&logger.LogContext{RaceID: o.raceID, Operation: "finish"}, "Race %s", final)
	o.publish(Update{Kind: UpdateState, State: final})
}

// countDown publishes ticks; it reports false if ctx was cancelled.
func (o *Orchestrator) countDown(ctx context.Context) bool {
	t := time.NewTicker(o.tick)
	defer t.Stop()
	for n := o.countdown; n > 0; n-- {
		o.publish(Update{Kind: UpdateCountdown, Countdown: n})
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	return true
}

// settleCancelled ends a race cancelled during the countdown.
func (o *Orchestrator) settleCancelled() {
	o.mu.Lock()
	for _, l := range o.lanes {
		l.Loading = false
		if !l.Status.Terminal() {
			l.Status = LaneError
			l.Error = ErrCancelled.Error()
		}
	}
	o.state = StateIdle
	lanes := o.snapshotLanes()
	o.mu.Unlock()

	for i := range lanes {
		o.publish(Update{Kind: UpdateLane, Lane: &lanes[i]})
	}
	o.publish(Update{Kind: UpdateState, State: StateIdle})
}

// snapshotLanes copies lanes. Caller holds mu.
func (o *Orchestrator) snapshotLanes() []Lane {
	out := make([]Lane, len(o.lanes))
	for i, l := range o.lanes {
		out[i] = l.clone()
	}
	return out
}

// apply mutates the result set for one lane event.
func (o *Orchestrator) apply(ev laneEvent) {
	o.mu.Lock()
	l, ok := o.index[ev.lane]
	if !ok || l.Status.Terminal() {
		o.mu.Unlock()
		return
	}

	u := Update{Kind: UpdateLane}
	switch {
	case ev.metrics != nil:
		l.Metrics = ev.metrics
		l.Status = LaneFinished
		l.Loading = false
	case ev.err != nil:
		l.Status = LaneError
		l.Loading = false
		l.Error = ev.err.Error()
		if errors.Is(ev.err, context.Canceled) {
			l.Error = ErrCancelled.Error()
		}
	default:
		l.Text += ev.chunk
		l.Chunks++
		u.Kind = UpdateChunk
		u.Chunk = ev.chunk
	}
	snap := l.clone()
	u.Lane = &snap
	o.mu.Unlock()

	if ev.terminal() {
		lc := &logger.LogContext{RaceID: o.raceID, Lane: snap.ID, Provider: snap.ProviderID, Model: snap.ModelID}
		if ev.err != nil {
			o.log.WarnWithContext(lc, "Lane failed: %s", snap.Error)
		} else {
			o.log.InfoWithContext(lc, "Lane finished: chunks=%d outputTokens=%d", snap.Chunks, snap.Metrics.OutputTokens)
		}
	}
	o.publish(u)
}

// runLane consumes one adapter stream and sends its events to the writer.
// Exactly one terminal event is sent last.
func (o *Orchestrator) runLane(ctx context.Context, s laneSpec, p StartParams, raceStart time.Time, out chan<- laneEvent) {
	send := func(ev laneEvent) {
		ev.lane = s.lane
		out <- ev
	}

	if s.apiKey == "" {
		send(laneEvent{err: ErrMissingAPIKey})
		return
	}

	cfg := p.Config
	laneCtx := ctx
	if cfg.Mode == ModeTimeLimit {
		var cancel context.CancelFunc
		laneCtx, cancel = context.WithDeadline(ctx, raceStart.Add(cfg.TimeLimitDuration()))
		defer cancel()
	}

	var (
		count      int
		firstToken time.Time
	)
	truncate := func() {
		m := synthesizeMetrics(raceStart, firstToken, o.now(), count, p.Prompt)
		send(laneEvent{metrics: &m})
	}
	// deadlineHit distinguishes the time limit from an external cancel.
	deadlineHit := func() bool {
		if cfg.Mode != ModeTimeLimit || ctx.Err() != nil {
			return false
		}
		return errors.Is(laneCtx.Err(), context.DeadlineExceeded) || o.limitReached(cfg, count, raceStart)
	}

	stream, err := o.gen.Generate(laneCtx, s.sel.ProviderID, provider.Request{
		Prompt:   p.Prompt,
		Model:    s.sel.ModelID,
		APIKey:   s.apiKey,
		Settings: cfg.settingsFor(s.sel.ModelID),
	})
	if err != nil {
		if deadlineHit() {
			truncate()
			return
		}
		send(laneEvent{err: err})
		return
	}
	defer func() { _ = stream.Close() }()

	for {
		if o.limitReached(cfg, count, raceStart) {
			truncate()
			return
		}

		ev, err := stream.Recv()
		if err != nil && !errors.Is(err, io.EOF) {
			if deadlineHit() {
				truncate()
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			send(laneEvent{err: err})
			return
		}
		// A chunk that arrives after the time limit is not processed.
		if cfg.Mode == ModeTimeLimit && o.limitReached(cfg, count, raceStart) {
			truncate()
			return
		}
		if errors.Is(err, io.EOF) {
			if cfg.Mode.Limited() {
				truncate()
				return
			}
			send(laneEvent{err: ErrStreamEndedWithoutMetrics})
			return
		}

		switch ev.Kind {
		case provider.EventChunk:
			count++
			if firstToken.IsZero() {
				firstToken = o.now()
			}
			send(laneEvent{chunk: ev.Content})
		case provider.EventMetrics:
			if ev.Metrics == nil {
				send(laneEvent{err: ErrStreamEndedWithoutMetrics})
				return
			}
			send(laneEvent{metrics: ev.Metrics})
			return
		}
	}
}

// limitReached evaluates the mode's termination predicate.
func (o *Orchestrator) limitReached(cfg Config, count int, raceStart time.Time) bool {
	switch cfg.Mode {
	case ModeTokenLimit:
		return count >= cfg.TokenLimit
	case ModeTimeLimit:
		return o.now().Sub(raceStart) >= cfg.TimeLimitDuration()
	default:
		return false
	}
}

// synthesizeMetrics builds metrics for a lane cut short by a limit. The
// start is the race start; a missing first token is approximated.
func synthesizeMetrics(raceStart, firstToken, now time.Time, count int, prompt string) provider.Metrics {
	if firstToken.IsZero() {
		firstToken = raceStart.Add(SyntheticFirstTokenOffset)
	}
	finish := now
	if finish.Before(firstToken) {
		finish = firstToken
	}
	input := tokens.Estimate(prompt)
	return provider.Metrics{
		StartTime:      raceStart,
		FirstTokenTime: firstToken,
		FinishTime:     finish,
		TokenCount:     count,
		InputTokens:    input,
		OutputTokens:   count,
		TotalTokens:    tokens.Combined(input, count),
		Synthesized:    true,
	}
}
