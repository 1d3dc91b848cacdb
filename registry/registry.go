package registry

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

// UnitLiveState is the last known live fix for a unit. Last-writer-wins,
// overwritten by each channel delta; read-only to everything but the
// Registry.
type UnitLiveState struct {
	UnitID         string  `json:"unit_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Heading        float64 `json:"heading,omitempty"`
	TimestampMS    int64   `json:"timestamp"`
	Status         string  `json:"status,omitempty"`
	Progress       float64 `json:"progress,omitempty"`
	EmergencyID    string  `json:"emergency_id,omitempty"`
}

// RouteStats aggregates the registry's view of all dispatched routes.
type RouteStats struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	AverageProgress float64 `json:"average_progress"`
}

// Registry reconciles backend-authoritative route snapshots with live
// channel deltas and fans the merged view out to consumers. It is the only
// writer of its state maps.
type Registry struct {
	mu       sync.RWMutex
	client   *Client
	interval time.Duration

	routes      map[string]ActiveRoute
	fetchedAtMS int64
	live        map[string]UnitLiveState

	nextSubID int
	bulkSubs  map[int]func([]ActiveRoute)
	unitSubs  map[string]map[int]func(ActiveRoute)

	cancel  context.CancelFunc
	running bool
	now     func() time.Time
}

// NewRegistry creates a Registry polling client every interval. A zero
// interval defaults to 2s.
func NewRegistry(client *Client, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Registry{
		client:   client,
		interval: interval,
		routes:   map[string]ActiveRoute{},
		live:     map[string]UnitLiveState{},
		bulkSubs: map[int]func([]ActiveRoute){},
		unitSubs: map[string]map[int]func(ActiveRoute){},
		now:      time.Now,
	}
}

// Start runs the cold bootstrap once, then polls until ctx is cancelled or
// Stop is called.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	r.bootstrap(ctx)
	if err := r.Refresh(ctx); err != nil {
		log.Printf("registry: initial refresh failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					log.Printf("registry: refresh failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts polling. State stays queryable until ClearAllRoutes.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.running = false
}

// bootstrap seeds live state from the one-shot location endpoint.
func (r *Registry) bootstrap(ctx context.Context) {
	locs, err := r.client.AllUnitLocations(ctx)
	if err != nil {
		log.Printf("registry: location bootstrap failed: %v", err)
		return
	}
	nowMS := r.now().UnixMilli()
	r.mu.Lock()
	for _, l := range locs {
		if _, exists := r.live[l.UnitID]; exists {
			continue
		}
		r.live[l.UnitID] = UnitLiveState{
			UnitID:      l.UnitID,
			Latitude:    l.Location.Latitude,
			Longitude:   l.Location.Longitude,
			Status:      l.Status,
			TimestampMS: nowMS,
		}
	}
	r.mu.Unlock()
}

// Refresh pulls the authoritative snapshots, replaces the in-memory map,
// and publishes to subscribers. The publish is unconditional even when
// nothing changed.
func (r *Registry) Refresh(ctx context.Context) error {
	routes, err := r.client.ActiveUnitRoutes(ctx)
	if err != nil {
		return err
	}

	replaced := make(map[string]ActiveRoute, len(routes))
	for _, ar := range routes {
		replaced[ar.UnitID] = ar
	}

	r.mu.Lock()
	r.routes = replaced
	r.fetchedAtMS = r.now().UnixMilli()
	bulk := make([]func([]ActiveRoute), 0, len(r.bulkSubs))
	for _, fn := range r.bulkSubs {
		bulk = append(bulk, fn)
	}
	type unitNotify struct {
		fn func(ActiveRoute)
		ar ActiveRoute
	}
	var perUnit []unitNotify
	for unitID, subs := range r.unitSubs {
		if ar, ok := replaced[unitID]; ok {
			for _, fn := range subs {
				perUnit = append(perUnit, unitNotify{fn: fn, ar: ar})
			}
		}
	}
	r.mu.Unlock()

	for _, fn := range bulk {
		fn(routes)
	}
	for _, n := range perUnit {
		n.fn(n.ar)
	}
	return nil
}

// ApplyLocationUpdate merges a channel delta, last-writer-wins by
// timestamp. Stale deltas are ignored.
func (r *Registry) ApplyLocationUpdate(st UnitLiveState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.live[st.UnitID]; ok && st.TimestampMS < prev.TimestampMS {
		return
	}
	r.live[st.UnitID] = st
}

// LiveState returns the last merged live fix for a unit.
func (r *Registry) LiveState(unitID string) (UnitLiveState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.live[unitID]
	return st, ok
}

// UnitIDs lists the units with an authoritative route snapshot.
func (r *Registry) UnitIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for id := range r.routes {
		out = append(out, id)
	}
	return out
}

// ActiveRouteFor returns the authoritative snapshot for a unit.
func (r *Registry) ActiveRouteFor(unitID string) (ActiveRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ar, ok := r.routes[unitID]
	return ar, ok
}

// Progress returns the unit's route progress, preferring a live delta that
// is newer than the last snapshot poll.
func (r *Registry) Progress(unitID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ar, hasRoute := r.routes[unitID]
	if st, ok := r.live[unitID]; ok && st.TimestampMS > r.fetchedAtMS && st.Progress > 0 {
		return st.Progress
	}
	if hasRoute {
		return ar.Route.Progress
	}
	return 0
}

// CurrentPosition returns the freshest known position for a unit.
func (r *Registry) CurrentPosition(unitID string) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.live[unitID]; ok && st.TimestampMS > r.fetchedAtMS {
		return Position{Latitude: st.Latitude, Longitude: st.Longitude}, true
	}
	if ar, ok := r.routes[unitID]; ok {
		return ar.Route.CurrentPosition, true
	}
	if st, ok := r.live[unitID]; ok {
		return Position{Latitude: st.Latitude, Longitude: st.Longitude}, true
	}
	return Position{}, false
}

// RoutePositions returns the snapshot polyline for a unit's route.
func (r *Registry) RoutePositions(unitID string) []Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ar, ok := r.routes[unitID]; ok {
		return ar.Route.Positions
	}
	return nil
}

// HasActiveRoute reports whether the unit has a route still in progress.
func (r *Registry) HasActiveRoute(unitID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ar, ok := r.routes[unitID]
	return ok && ar.Route.Progress < 1.0
}

// ETA returns the remaining minutes for a unit's route, 0 once complete.
func (r *Registry) ETA(unitID string) int {
	r.mu.RLock()
	ar, ok := r.routes[unitID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return etaMinutes(ar.Route.EstimatedDuration, r.Progress(unitID))
}

func etaMinutes(estimatedDurationSec, progress float64) int {
	if progress >= 1.0 {
		return 0
	}
	return int(math.Ceil(estimatedDurationSec * (1 - progress) / 60))
}

// Stats aggregates progress over all known routes.
func (r *Registry) Stats() RouteStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RouteStats{Total: len(r.routes)}
	sum := 0.0
	for _, ar := range r.routes {
		sum += ar.Route.Progress
		if ar.Route.Progress < 1.0 {
			s.Active++
		} else {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.AverageProgress = sum / float64(s.Total)
	}
	return s
}

// Subscribe registers fn for every refresh and returns an unsubscribe
// handle.
func (r *Registry) Subscribe(fn func([]ActiveRoute)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	id := r.nextSubID
	r.bulkSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.bulkSubs, id)
	}
}

// SubscribeToUnit registers fn for one unit's refreshed snapshot.
func (r *Registry) SubscribeToUnit(unitID string, fn func(ActiveRoute)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	id := r.nextSubID
	if r.unitSubs[unitID] == nil {
		r.unitSubs[unitID] = map[int]func(ActiveRoute){}
	}
	r.unitSubs[unitID][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := r.unitSubs[unitID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(r.unitSubs, unitID)
			}
		}
	}
}

// ClearAllRoutes releases all state and subscriptions together. Used on
// teardown.
func (r *Registry) ClearAllRoutes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = map[string]ActiveRoute{}
	r.live = map[string]UnitLiveState{}
	r.bulkSubs = map[int]func([]ActiveRoute){}
	r.unitSubs = map[string]map[int]func(ActiveRoute){}
	r.fetchedAtMS = 0
}
