package erostracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/khushalp2004/eros-tracking/geometry"
	"github.com/khushalp2004/eros-tracking/progress"
	"github.com/khushalp2004/eros-tracking/registry"
	"github.com/khushalp2004/eros-tracking/session"
	"github.com/khushalp2004/eros-tracking/snap"
)

// maxHistoryPerUnit bounds the in-memory fix history kept per unit.
const maxHistoryPerUnit = 100

// liveFixWindow is how long a live fix suppresses simulated progress for
// its unit.
const liveFixWindow = 10 * time.Second

// DisplayPosition is the render-ready position shape published for every
// unit, whether it came from a live fix or the simulated clock.
type DisplayPosition struct {
	UnitID      string  `json:"unit_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Heading     float64 `json:"heading"`
	Progress    float64 `json:"progress"`
	Status      string  `json:"status"`
	Snapped     bool    `json:"snapped"`
	Source      string  `json:"source"` // "live" or "simulated"
	EmergencyID string  `json:"emergency_id,omitempty"`
	TimestampMS int64   `json:"timestamp"`
}

// Tracker wires the session, registry, geometry index, snapper and
// animation scheduler together: channel deltas become snapped display
// positions, and routes without recent live fixes advance on the simulated
// clock. Consumers subscribe for DisplayPositions and never see where a
// position came from.
type Tracker struct {
	session   *session.Manager
	registry  *registry.Registry
	index     *geometry.Index
	snapper   *snap.Snapper
	scheduler *progress.Scheduler
	snapOpts  snap.Options

	mu        sync.RWMutex
	nextSubID int
	subs      map[int]func(DisplayPosition)
	history   map[string][]registry.UnitLiveState
	lastLive  map[string]time.Time
	routeSig  map[string]string
	lastEvent time.Time

	unsubs []func()
	now    func() time.Time
}

// NewTracker builds the facade over already-constructed components.
func NewTracker(sess *session.Manager, reg *registry.Registry, index *geometry.Index,
	snapper *snap.Snapper, scheduler *progress.Scheduler, snapOpts snap.Options) *Tracker {
	return &Tracker{
		session:   sess,
		registry:  reg,
		index:     index,
		snapper:   snapper,
		scheduler: scheduler,
		snapOpts:  snapOpts,
		subs:      map[int]func(DisplayPosition){},
		history:   map[string][]registry.UnitLiveState{},
		lastLive:  map[string]time.Time{},
		routeSig:  map[string]string{},
		now:       time.Now,
	}
}

// Start subscribes to the channel and registry, starts polling, and
// connects the session.
func (t *Tracker) Start(ctx context.Context) error {
	t.unsubs = append(t.unsubs,
		t.session.Subscribe(session.TopicConnection, t.handleConnection),
		t.session.Subscribe(session.EventUnitLocationUpdate, t.handleLocationUpdate),
		t.session.Subscribe(session.EventUnitLocations, t.handleLocationsResponse),
		t.registry.Subscribe(t.reconcileRoutes),
	)
	t.registry.Start(ctx)
	return t.session.Connect(ctx)
}

// Stop tears everything down: subscriptions, animations, registry state
// and the channel.
func (t *Tracker) Stop() {
	for _, u := range t.unsubs {
		u()
	}
	t.unsubs = nil

	t.mu.Lock()
	for unitID := range t.routeSig {
		t.scheduler.RemoveRoute(unitID)
		t.index.RemoveRoute(unitID)
		t.snapper.PurgeRoute(unitID)
	}
	t.routeSig = map[string]string{}
	t.subs = map[int]func(DisplayPosition){}
	t.mu.Unlock()

	t.registry.Stop()
	t.registry.ClearAllRoutes()
	t.session.Disconnect()
}

// Subscribe registers a consumer for display positions and returns its
// unsubscribe handle.
func (t *Tracker) Subscribe(fn func(DisplayPosition)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSubID++
	id := t.nextSubID
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// HistoryFor returns the bounded fix history recorded for a unit.
func (t *Tracker) HistoryFor(unitID string) []registry.UnitLiveState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := t.history[unitID]
	out := make([]registry.UnitLiveState, len(h))
	copy(out, h)
	return out
}

// LastEventAt returns when the tracker last saw any inbound data.
func (t *Tracker) LastEventAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastEvent
}

func (t *Tracker) publish(dp DisplayPosition) {
	t.mu.RLock()
	fns := make([]func(DisplayPosition), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()
	for _, fn := range fns {
		fn(dp)
	}
}

// handleConnection requests the current unit locations after every
// successful (re)connect, mirroring the backend pushing its state to a
// fresh subscriber.
func (t *Tracker) handleConnection(raw json.RawMessage) {
	var ev session.ConnectionEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	if ev.Status == "connected" || ev.Status == "reconnected" {
		if err := t.session.Emit(session.EventGetUnitLocations, struct{}{}, session.PriorityCritical, true); err != nil {
			log.Printf("tracker: location bootstrap request failed: %v", err)
		}
	}
}

// liveStateWire tolerates numeric or string unit ids on the wire.
type liveStateWire struct {
	UnitID      json.RawMessage `json:"unit_id"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Accuracy    float64         `json:"accuracy"`
	Speed       float64         `json:"speed"`
	Heading     float64         `json:"heading"`
	TimestampMS int64           `json:"timestamp"`
	Status      string          `json:"status"`
	Progress    float64         `json:"progress"`
	EmergencyID string          `json:"emergency_id"`
}

func (w liveStateWire) toLiveState() (registry.UnitLiveState, error) {
	if len(w.UnitID) == 0 || w.Latitude == nil || w.Longitude == nil {
		return registry.UnitLiveState{}, fmt.Errorf("missing required fields")
	}
	var unitID string
	if err := json.Unmarshal(w.UnitID, &unitID); err != nil {
		var n json.Number
		if err := json.Unmarshal(w.UnitID, &n); err != nil {
			return registry.UnitLiveState{}, fmt.Errorf("bad unit_id: %s", string(w.UnitID))
		}
		unitID = n.String()
	}
	return registry.UnitLiveState{
		UnitID:         unitID,
		Latitude:       *w.Latitude,
		Longitude:      *w.Longitude,
		AccuracyMeters: w.Accuracy,
		Speed:          w.Speed,
		Heading:        w.Heading,
		TimestampMS:    w.TimestampMS,
		Status:         w.Status,
		Progress:       w.Progress,
		EmergencyID:    w.EmergencyID,
	}, nil
}

func (t *Tracker) handleLocationUpdate(raw json.RawMessage) {
	var w liveStateWire
	if err := json.Unmarshal(raw, &w); err != nil {
		log.Printf("tracker: dropping unparseable location update: %v", err)
		return
	}
	st, err := w.toLiveState()
	if err != nil {
		log.Printf("tracker: dropping location update: %v", err)
		return
	}
	if st.TimestampMS == 0 {
		st.TimestampMS = t.now().UnixMilli()
	}
	t.ingestLiveFix(st)
}

func (t *Tracker) handleLocationsResponse(raw json.RawMessage) {
	var resp struct {
		Locations map[string]liveStateWire `json:"locations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("tracker: dropping unparseable locations response: %v", err)
		return
	}
	for unitID, w := range resp.Locations {
		if w.Latitude == nil || w.Longitude == nil {
			continue
		}
		st := registry.UnitLiveState{
			UnitID:      unitID,
			Latitude:    *w.Latitude,
			Longitude:   *w.Longitude,
			TimestampMS: w.TimestampMS,
			Status:      w.Status,
			Progress:    w.Progress,
		}
		if st.TimestampMS == 0 {
			st.TimestampMS = t.now().UnixMilli()
		}
		t.ingestLiveFix(st)
	}
}

// ingestLiveFix merges the fix, snaps it against the unit's route, and
// publishes a display position sourced from live data. A live fix always
// cancels the unit's simulated clock.
func (t *Tracker) ingestLiveFix(st registry.UnitLiveState) {
	t.registry.ApplyLocationUpdate(st)
	t.recordFix(st)
	t.scheduler.Stop(st.UnitID)

	dp := DisplayPosition{
		UnitID:      st.UnitID,
		Latitude:    st.Latitude,
		Longitude:   st.Longitude,
		Heading:     st.Heading,
		Progress:    st.Progress,
		Status:      st.Status,
		Source:      "live",
		EmergencyID: st.EmergencyID,
		TimestampMS: st.TimestampMS,
	}

	if ar, ok := t.registry.ActiveRouteFor(st.UnitID); ok && len(ar.Route.Positions) >= 2 {
		t.ensureIndexed(ar)
		res := t.snapper.Snap(st.Latitude, st.Longitude, st.UnitID)
		fix := snap.Fix{
			Latitude:       st.Latitude,
			Longitude:      st.Longitude,
			AccuracyMeters: st.AccuracyMeters,
			TimestampMS:    st.TimestampMS,
		}
		advice := snap.ShouldUseSnappedPosition(fix, res, t.snapOpts)
		if advice.UseSnapped && res.Snapped {
			dp.Latitude = res.Position.Lat
			dp.Longitude = res.Position.Lng
			dp.Progress = res.ProgressAlongRoute
			dp.Snapped = true
			if route, ok := t.index.Route(st.UnitID); ok {
				if h, ok := t.index.HeadingAtDistance(st.UnitID, res.ProgressAlongRoute*route.TotalDistanceMeters); ok {
					dp.Heading = h
				}
			}
		}
	}
	if dp.Status == "" {
		dp.Status = progress.StatusForProgress(dp.Progress)
	}
	t.publish(dp)
}

func (t *Tracker) recordFix(st registry.UnitLiveState) {
	t.mu.Lock()
	h := append(t.history[st.UnitID], st)
	if len(h) > maxHistoryPerUnit {
		h = h[len(h)-maxHistoryPerUnit:]
	}
	t.history[st.UnitID] = h
	t.lastLive[st.UnitID] = t.now()
	t.lastEvent = t.now()
	t.mu.Unlock()
}

func (t *Tracker) recentlyLive(unitID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastLive[unitID]
	return ok && t.now().Sub(last) < liveFixWindow
}

// ensureIndexed (re)builds the unit's route geometry when the snapshot
// polyline changed. The route is keyed by unit id: a unit has at most one
// dispatched route.
func (t *Tracker) ensureIndexed(ar registry.ActiveRoute) {
	sig := fmt.Sprintf("%d|%.1f", len(ar.Route.Positions), ar.Route.TotalDistance)
	t.mu.Lock()
	if t.routeSig[ar.UnitID] == sig {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	polyline := make([]geometry.Coordinate, len(ar.Route.Positions))
	for i, p := range ar.Route.Positions {
		polyline[i] = geometry.Coordinate{Lat: p.Latitude, Lng: p.Longitude}
	}
	if _, err := t.index.ProcessRoute(polyline, ar.UnitID, ar.Unit.ServiceType); err != nil {
		log.Printf("tracker: route for unit %s rejected: %v", ar.UnitID, err)
		return
	}
	t.snapper.PurgeRoute(ar.UnitID)

	t.mu.Lock()
	t.routeSig[ar.UnitID] = sig
	t.mu.Unlock()
}

// reconcileRoutes runs on every registry refresh: it indexes new routes,
// starts simulated progress for units with no recent live fix, and purges
// state for routes that disappeared.
func (t *Tracker) reconcileRoutes(routes []registry.ActiveRoute) {
	t.mu.Lock()
	t.lastEvent = t.now()
	t.mu.Unlock()

	seen := map[string]bool{}
	for _, ar := range routes {
		seen[ar.UnitID] = true
		if len(ar.Route.Positions) < 2 {
			continue
		}
		t.ensureIndexed(ar)
		if ar.Route.Progress >= 1.0 {
			t.scheduler.Stop(ar.UnitID)
			continue
		}
		if t.recentlyLive(ar.UnitID) {
			continue
		}
		if _, running := t.scheduler.Status(ar.UnitID); running {
			continue
		}
		t.startSimulation(ar)
	}

	// Routes that vanished from the snapshot release all derived state.
	t.mu.Lock()
	var gone []string
	for unitID := range t.routeSig {
		if !seen[unitID] {
			gone = append(gone, unitID)
			delete(t.routeSig, unitID)
		}
	}
	t.mu.Unlock()
	for _, unitID := range gone {
		t.scheduler.RemoveRoute(unitID)
		t.index.RemoveRoute(unitID)
		t.snapper.PurgeRoute(unitID)
	}
}

// startSimulation drives the remaining fraction of the route on the
// animation clock, publishing the same DisplayPosition shape live fixes
// produce.
func (t *Tracker) startSimulation(ar registry.ActiveRoute) {
	remainingSec := ar.Route.EstimatedDuration * (1 - ar.Route.Progress)
	if remainingSec <= 0 {
		return
	}
	base := ar.Route.Progress
	err := t.scheduler.Start(ar.UnitID, progress.StartOptions{
		DurationMS:      int64(remainingSec * 1000),
		SpeedMultiplier: 1,
		OnTick: func(st progress.State) {
			t.publishSimulated(ar, base+st.Progress*(1-base))
		},
		OnComplete: func(routeID string, final progress.State) {
			t.publishSimulated(ar, 1)
		},
	})
	if err != nil {
		log.Printf("tracker: simulation for unit %s not started: %v", ar.UnitID, err)
	}
}

func (t *Tracker) publishSimulated(ar registry.ActiveRoute, overall float64) {
	route, ok := t.index.Route(ar.UnitID)
	if !ok {
		return
	}
	dist := overall * route.TotalDistanceMeters
	pos, ok := t.index.PositionAtDistance(ar.UnitID, dist)
	if !ok {
		return
	}
	heading, _ := t.index.HeadingAtDistance(ar.UnitID, dist)
	t.publish(DisplayPosition{
		UnitID:      ar.UnitID,
		Latitude:    pos.Lat,
		Longitude:   pos.Lng,
		Heading:     heading,
		Progress:    overall,
		Status:      progress.StatusForProgress(overall),
		Snapped:     true,
		Source:      "simulated",
		EmergencyID: ar.EmergencyID,
		TimestampMS: t.now().UnixMilli(),
	})
}
