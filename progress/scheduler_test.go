package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khushalp2004/eros-tracking/geometry"
)

func newTestScheduler(t *testing.T, tick time.Duration) *Scheduler {
	t.Helper()
	ix := geometry.NewIndex()
	polyline := []geometry.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}}
	if _, err := ix.ProcessRoute(polyline, "r1", "AMBULANCE"); err != nil {
		t.Fatalf("ProcessRoute failed: %v", err)
	}
	return NewScheduler(ix, tick)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestStartUnknownRoute(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)
	err := s.Start("missing", StartOptions{DurationMS: 1000})
	if !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestStartRejectsNonPositiveDuration(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)
	if err := s.Start("r1", StartOptions{DurationMS: 0}); err == nil {
		t.Errorf("expected error for zero duration")
	}
	if s.ActiveCount() != 0 {
		t.Errorf("rejected start left an active animation")
	}
}

func TestProgressIsMonotonicAndCompletesOnce(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)

	var mu sync.Mutex
	var progress []float64
	completions := 0
	done := make(chan struct{})

	err := s.Start("r1", StartOptions{
		DurationMS: 150,
		OnTick: func(st State) {
			mu.Lock()
			progress = append(progress, st.Progress)
			mu.Unlock()
		},
		OnComplete: func(routeID string, final State) {
			mu.Lock()
			completions++
			mu.Unlock()
			if final.Status != StatusCompleted || final.Progress != 1 {
				t.Errorf("unexpected final state %+v", final)
			}
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("animation never completed")
	}
	// Give a stray tick a chance to fire before asserting.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if completions != 1 {
		t.Errorf("completion fired %d times", completions)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards at tick %d: %f -> %f", i, progress[i-1], progress[i])
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Errorf("final tick should report progress 1, got %v", progress)
	}
	if s.ActiveCount() != 0 {
		t.Errorf("completed animation still active")
	}
}

func TestPauseFreezesProgress(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)
	if err := s.Start("r1", StartOptions{DurationMS: 60000}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		st, ok := s.Status("r1")
		return ok && st.Progress > 0
	})

	s.Pause("r1")
	st1, _ := s.Status("r1")
	if st1.Status != StatusPaused {
		t.Fatalf("expected paused, got %s", st1.Status)
	}

	time.Sleep(60 * time.Millisecond)
	st2, _ := s.Status("r1")
	if st2.Progress != st1.Progress {
		t.Errorf("progress moved while paused: %f -> %f", st1.Progress, st2.Progress)
	}

	s.Resume("r1")
	waitFor(t, time.Second, func() bool {
		st, ok := s.Status("r1")
		return ok && st.Progress > st2.Progress
	})
	s.Stop("r1")
}

func TestSpeedMultiplierScalesElapsed(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)
	// At 4x, a 400 ms duration runs down in about 100 ms of wall time.
	done := make(chan struct{})
	err := s.Start("r1", StartOptions{
		DurationMS:      400,
		SpeedMultiplier: 4,
		OnComplete:      func(string, State) { close(done) },
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("4x animation should complete well under a second")
	}
}

func TestSetSpeedMultiplierValidation(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)
	if err := s.SetSpeedMultiplier("r1", 0); !errors.Is(err, ErrBadMultiplier) {
		t.Errorf("expected ErrBadMultiplier, got %v", err)
	}
	if err := s.SetSpeedMultiplier("r1", -2); !errors.Is(err, ErrBadMultiplier) {
		t.Errorf("expected ErrBadMultiplier, got %v", err)
	}
	// Unknown route with a valid multiplier is a no-op, not an error.
	if err := s.SetSpeedMultiplier("absent", 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRestartReplacesInFlightAnimation(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)

	var mu sync.Mutex
	firstCompleted := false
	if err := s.Start("r1", StartOptions{
		DurationMS: 60000,
		OnComplete: func(string, State) {
			mu.Lock()
			firstCompleted = true
			mu.Unlock()
		},
	}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		st, ok := s.Status("r1")
		return ok && st.Progress > 0
	})

	done := make(chan struct{})
	if err := s.Start("r1", StartOptions{
		DurationMS: 100,
		OnComplete: func(string, State) { close(done) },
	}); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	st, ok := s.Status("r1")
	if !ok {
		t.Fatalf("restarted route not active")
	}
	if st.Progress != 0 {
		t.Errorf("restart should reset progress, got %f", st.Progress)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("expected one animation after restart, got %d", s.ActiveCount())
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("restarted animation never completed")
	}
	mu.Lock()
	defer mu.Unlock()
	if firstCompleted {
		t.Errorf("cancelled animation must not run to completion")
	}
}

func TestStopIsIdempotentAndSilencesCallbacks(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)

	if err := s.Start("r1", StartOptions{
		DurationMS: 100,
		OnComplete: func(string, State) {
			t.Errorf("completion fired for a stopped animation")
		},
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Stop("r1")
	s.Stop("r1") // second stop is a no-op

	if _, ok := s.Status("r1"); ok {
		t.Errorf("stopped animation still queryable as active")
	}
	if s.ActiveCount() != 0 {
		t.Errorf("stopped animation still counted as active")
	}

	// Sleep past the original duration; completion must stay silent.
	time.Sleep(200 * time.Millisecond)
}

func TestStopWaitsForInFlightCallback(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)

	var mu sync.Mutex
	started, finished := 0, 0
	entered := make(chan struct{}, 1)

	if err := s.Start("r1", StartOptions{
		DurationMS: 60000,
		OnTick: func(State) {
			mu.Lock()
			started++
			mu.Unlock()
			select {
			case entered <- struct{}{}:
			default:
			}
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			finished++
			mu.Unlock()
		},
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick fired")
	}

	// Stop lands while a callback is mid-flight and must wait it out.
	s.Stop("r1")

	mu.Lock()
	if started != finished {
		t.Errorf("callback still in flight after Stop: started %d, finished %d", started, finished)
	}
	atStop := started
	mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if started != atStop {
		t.Errorf("tick fired after Stop: %d -> %d", atStop, started)
	}
}

func TestStatusForProgress(t *testing.T) {
	tests := []struct {
		progress float64
		want     string
	}{
		{0, "DEPARTED"},
		{0.2, "DEPARTED"},
		{0.21, "ENROUTE"},
		{0.8, "ENROUTE"},
		{0.81, "ARRIVING"},
		{0.99, "ARRIVING"},
		{1.0, "ARRIVED"},
		{1.2, "ARRIVED"},
	}
	for _, tt := range tests {
		if got := StatusForProgress(tt.progress); got != tt.want {
			t.Errorf("StatusForProgress(%f) = %q, want %q", tt.progress, got, tt.want)
		}
	}
}
