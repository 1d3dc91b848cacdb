package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/khushalp2004/eros-tracking/geometry"
)

// ErrRouteNotFound is returned when starting an animation for a route that
// has not been indexed.
var ErrRouteNotFound = errors.New("route not indexed")

// ErrBadMultiplier is returned for speed multipliers <= 0.
var ErrBadMultiplier = errors.New("speed multiplier must be > 0")

// Status is an animation lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// State is a snapshot of one route's animation.
type State struct {
	RouteID         string
	Status          Status
	Progress        float64
	SpeedMultiplier float64
	StartedAt       time.Time
	ElapsedMS       int64
}

// CompletionFunc is invoked exactly once when an animation reaches
// progress 1.
type CompletionFunc func(routeID string, final State)

// TickFunc receives a state snapshot on every tick while running.
type TickFunc func(State)

// StartOptions configures one animation.
type StartOptions struct {
	DurationMS      int64
	SpeedMultiplier float64
	OnTick          TickFunc
	OnComplete      CompletionFunc
}

type animation struct {
	state      State
	durationMS int64
	elapsedMS  float64 // effective elapsed, scaled by multiplier
	lastTick   time.Time
	onTick     TickFunc
	onComplete CompletionFunc
	stop       chan struct{} // closed on cancel/completion
	cb         sync.Mutex    // held while a callback is in flight
}

// Scheduler drives per-route progress clocks independently of live fixes.
// At most one animation exists per route at a time; starting a second one
// for an in-flight route implicitly restarts it.
type Scheduler struct {
	mu           sync.Mutex
	index        *geometry.Index
	active       map[string]*animation
	tickInterval time.Duration
	now          func() time.Time
}

// NewScheduler creates a Scheduler ticking at the given interval. A zero
// interval falls back to 250ms.
func NewScheduler(index *geometry.Index, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 250 * time.Millisecond
	}
	return &Scheduler{
		index:        index,
		active:       map[string]*animation{},
		tickInterval: tickInterval,
		now:          time.Now,
	}
}

// Start begins animating routeID. The route must already be indexed. An
// in-flight animation for the same route is cancelled and restarted.
func (s *Scheduler) Start(routeID string, opts StartOptions) error {
	if !s.index.HasRoute(routeID) {
		return ErrRouteNotFound
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1
	}
	if opts.DurationMS <= 0 {
		return errors.New("duration must be > 0")
	}

	s.mu.Lock()
	if prev, ok := s.active[routeID]; ok {
		close(prev.stop)
		delete(s.active, routeID)
	}
	a := &animation{
		state: State{
			RouteID:         routeID,
			Status:          StatusRunning,
			Progress:        0,
			SpeedMultiplier: opts.SpeedMultiplier,
			StartedAt:       s.now(),
		},
		durationMS: opts.DurationMS,
		lastTick:   s.now(),
		onTick:     opts.OnTick,
		onComplete: opts.OnComplete,
		stop:       make(chan struct{}),
	}
	s.active[routeID] = a
	s.mu.Unlock()

	go s.run(routeID, a)
	return nil
}

func (s *Scheduler) run(routeID string, a *animation) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			snapshot, completed, tick := s.advance(routeID, a)

			// Callbacks run under a.cb so Stop can wait out an in-flight
			// invocation. The stop re-check closes the window between
			// advance releasing the lock and the callback firing; a
			// completed animation already closed a.stop itself and still
			// delivers its final callbacks.
			a.cb.Lock()
			cancelled := false
			if !completed {
				select {
				case <-a.stop:
					cancelled = true
				default:
				}
			}
			if !cancelled && tick != nil {
				tick(snapshot)
			}
			if completed && a.onComplete != nil {
				a.onComplete(routeID, snapshot)
			}
			a.cb.Unlock()

			if completed || cancelled {
				return
			}
		}
	}
}

// advance moves the clock forward one tick under the scheduler lock and
// returns the resulting snapshot. The completion callback fires outside the
// lock, after the animation has already left the active set.
func (s *Scheduler) advance(routeID string, a *animation) (State, bool, TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-a.stop:
		return a.state, false, nil
	default:
	}

	now := s.now()
	delta := now.Sub(a.lastTick)
	a.lastTick = now

	if a.state.Status != StatusRunning {
		return a.state, false, nil
	}

	a.elapsedMS += float64(delta.Milliseconds()) * a.state.SpeedMultiplier
	a.state.ElapsedMS = int64(a.elapsedMS)
	p := a.elapsedMS / float64(a.durationMS)
	if p > 1 {
		p = 1
	}
	// Progress never moves backwards while running.
	if p > a.state.Progress {
		a.state.Progress = p
	}

	if a.state.Progress >= 1 {
		a.state.Status = StatusCompleted
		close(a.stop)
		delete(s.active, routeID)
		return a.state, true, a.onTick
	}
	return a.state, false, a.onTick
}

// Pause freezes the progress clock without resetting progress. No-op for
// unknown or non-running routes.
func (s *Scheduler) Pause(routeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[routeID]; ok && a.state.Status == StatusRunning {
		a.state.Status = StatusPaused
	}
}

// Resume unfreezes a paused animation.
func (s *Scheduler) Resume(routeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[routeID]; ok && a.state.Status == StatusPaused {
		a.state.Status = StatusRunning
		a.lastTick = s.now()
	}
}

// SetSpeedMultiplier rescales future tick increments. Progress already
// accumulated is untouched, so there is no discontinuity.
func (s *Scheduler) SetSpeedMultiplier(routeID string, m float64) error {
	if m <= 0 {
		return ErrBadMultiplier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[routeID]; ok {
		a.state.SpeedMultiplier = m
	}
	return nil
}

// Stop cancels the animation immediately. Idempotent; no further callbacks
// fire after Stop returns. Stop blocks until an in-flight callback settles,
// so OnTick/OnComplete must not call Stop for their own route.
func (s *Scheduler) Stop(routeID string) {
	s.mu.Lock()
	a, ok := s.active[routeID]
	if ok {
		a.state.Status = StatusCancelled
		close(a.stop)
		delete(s.active, routeID)
	}
	s.mu.Unlock()
	if ok {
		// Barrier: taking a.cb waits for a callback that was already
		// running when the stop channel closed.
		a.cb.Lock()
		a.cb.Unlock()
	}
}

// RemoveRoute is Stop under the name consumers use on route teardown.
func (s *Scheduler) RemoveRoute(routeID string) { s.Stop(routeID) }

// Status returns a snapshot for routeID. Absence is a valid query result,
// not an error.
func (s *Scheduler) Status(routeID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[routeID]; ok {
		return a.state, true
	}
	return State{}, false
}

// ActiveCount returns the number of in-flight animations.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// StatusForProgress maps a progress fraction to the displayed unit status.
func StatusForProgress(p float64) string {
	switch {
	case p >= 1.0:
		return "ARRIVED"
	case p > 0.8:
		return "ARRIVING"
	case p > 0.2:
		return "ENROUTE"
	default:
		return "DEPARTED"
	}
}
