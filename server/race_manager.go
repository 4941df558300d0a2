package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"llmrace/internal/logger"
	"llmrace/internal/race"
)

// ErrRaceNotFound is returned for unknown race ids.
var ErrRaceNotFound = errors.New("race not found")

// ErrNoRunnableLanes is returned when no enabled selection has an API key.
var ErrNoRunnableLanes = errors.New("no selected provider has an API key")

// RaceEntry is one race known to the manager.
type RaceEntry struct {
	ID        string
	CreatedAt time.Time
	orch      *race.Orchestrator
}

// Snapshot copies the race state.
func (e *RaceEntry) Snapshot() race.Snapshot { return e.orch.Snapshot() }

// Done is closed when the race settles.
func (e *RaceEntry) Done() <-chan struct{} { return e.orch.Done() }

// Settled reports whether the race is no longer running.
func (e *RaceEntry) Settled() bool {
	select {
	case <-e.orch.Done():
		return true
	default:
		return false
	}
}

// RaceManagerOptions tune a RaceManager.
type RaceManagerOptions struct {
	CountdownTicks    int
	CountdownInterval time.Duration
	MaxAge            time.Duration
}

// RaceManager owns every race started through the API. Races run on a
// context owned by the manager so they outlive the request that started them.
type RaceManager struct {
	gen  race.Generator
	log  *logger.Logger
	opts RaceManagerOptions
	now  func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mutex sync.RWMutex
	races map[string]*RaceEntry
}

// NewRaceManager creates a manager starting races through gen.
func NewRaceManager(gen race.Generator, log *logger.Logger, opts RaceManagerOptions) *RaceManager {
	if log == nil {
		log = logger.Discard()
	}
	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	base, cancel := context.WithCancel(context.Background())
	return &RaceManager{
		gen:    gen,
		log:    log,
		opts:   opts,
		now:    time.Now,
		base:   base,
		cancel: cancel,
		races:  make(map[string]*RaceEntry),
	}
}

// Create starts a new race. Races that would be a no-op are not stored.
func (m *RaceManager) Create(p race.StartParams) (*RaceEntry, error) {
	id := uuid.New().String()
	orch := race.New(m.gen,
		race.WithCountdown(m.opts.CountdownTicks, m.opts.CountdownInterval),
		race.WithLogger(m.log),
		race.WithRaceID(id),
	)

	started, err := orch.Start(m.base, p)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, ErrNoRunnableLanes
	}

	entry := &RaceEntry{ID: id, CreatedAt: m.now(), orch: orch}
	m.mutex.Lock()
	m.races[id] = entry
	count := len(m.races)
	m.mutex.Unlock()

	m.log.InfoWithFields("Race created", map[string]interface{}{
		"raceId": id,
		"races":  count,
	})
	return entry, nil
}

// Get retrieves a race by id.
func (m *RaceManager) Get(id string) (*RaceEntry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	e, ok := m.races[id]
	return e, ok
}

// List returns races, newest first.
func (m *RaceManager) List() []*RaceEntry {
	m.mutex.RLock()
	out := make([]*RaceEntry, 0, len(m.races))
	for _, e := range m.races {
		out = append(out, e)
	}
	m.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel resets a race: in-flight lanes end with "Race cancelled" and the
// race returns to idle. It blocks until every lane has settled.
func (m *RaceManager) Cancel(id string) (race.Snapshot, error) {
	e, ok := m.Get(id)
	if !ok {
		return race.Snapshot{}, ErrRaceNotFound
	}
	m.log.InfoWithContext(&logger.LogContext{RaceID: id, Operation: "cancel"}, "Cancelling race")
	e.orch.Reset()
	return e.orch.Snapshot(), nil
}

// Subscribe streams updates of a race until the returned subscription is closed.
func (m *RaceManager) Subscribe(id string) (*RaceEntry, *Subscription, error) {
	e, ok := m.Get(id)
	if !ok {
		return nil, nil, ErrRaceNotFound
	}
	return e, newSubscription(e.orch), nil
}

// CleanupOldRaces removes races older than MaxAge, cancelling any still running.
func (m *RaceManager) CleanupOldRaces() int {
	cutoff := m.now().Add(-m.opts.MaxAge)

	m.mutex.Lock()
	var stale []*RaceEntry
	for id, e := range m.races {
		if e.CreatedAt.Before(cutoff) {
			stale = append(stale, e)
			delete(m.races, id)
		}
	}
	m.mutex.Unlock()

	for _, e := range stale {
		if !e.Settled() {
			e.orch.Reset()
		}
	}
	if len(stale) > 0 {
		m.log.InfoWithFields("Removed old races", map[string]interface{}{"removed": len(stale)})
	}
	return len(stale)
}

// RunCleanup evicts old races every interval until ctx is done.
func (m *RaceManager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldRaces()
		}
	}
}

// Shutdown cancels every running race and waits for them to settle.
func (m *RaceManager) Shutdown() {
	m.cancel()
	for _, e := range m.List() {
		if done := e.Done(); done != nil {
			<-done
		}
	}
}

// Subscription buffers orchestrator updates for one stream consumer.
// The orchestrator never blocks on a slow consumer.
type Subscription struct {
	mu     sync.Mutex
	queue  []race.Update
	notify chan struct{}
	stop   func()
}

func newSubscription(o *race.Orchestrator) *Subscription {
	s := &Subscription{notify: make(chan struct{}, 1)}
	s.stop = o.Subscribe(s.push)
	return s
}

func (s *Subscription) push(u race.Update) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Ready is signalled when updates are waiting.
func (s *Subscription) Ready() <-chan struct{} { return s.notify }

// Drain returns and clears pending updates in publish order.
func (s *Subscription) Drain() []race.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// Close stops receiving updates.
func (s *Subscription) Close() { s.stop() }
