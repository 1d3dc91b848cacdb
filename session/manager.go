package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khushalp2004/eros-tracking/config"
)

const maxBackoffDelay = 10 * time.Second

// ErrClosed is returned when emitting or connecting on a deliberately
// disconnected session.
var ErrClosed = errors.New("session closed")

// Stats is an observability snapshot of the Manager.
type Stats struct {
	IsConnected       bool
	IsConnecting      bool
	ConnectionError   string
	ReconnectAttempts int
	LastConnectedAt   time.Time
	SubscriberCount   int
	QueuedRequests    int
}

// Manager owns the process's single push channel: it connects, reconnects
// with exponential backoff, drains the priority-ordered outbound queue, and
// fans inbound events out to subscribers. It performs no business-logic
// transformation on payloads.
//
// A Manager is constructed once at the composition root and passed to
// consumers; consumers subscribe rather than mutate its state.
type Manager struct {
	mu   sync.Mutex
	cfg  config.ChannelConfig
	dial Dialer

	bus   *Bus
	queue *requestQueue

	ch         Channel
	gen        int // increments per dialed channel; stale read loops bail out
	connected  bool
	connecting bool
	closed     bool
	draining   bool

	connErr         string
	attempts        int
	lastConnectedAt time.Time
	reconnectTimer  *time.Timer
}

// NewManager creates a disconnected Manager. A nil dialer defaults to the
// websocket transport.
func NewManager(cfg config.ChannelConfig, dial Dialer) *Manager {
	if dial == nil {
		dial = WebsocketDialer
	}
	if cfg.BaseDelayMS <= 0 {
		cfg.BaseDelayMS = 1000
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.DrainDelayMS <= 0 {
		cfg.DrainDelayMS = 100
	}
	return &Manager{
		cfg:   cfg,
		dial:  dial,
		bus:   NewBus(),
		queue: newRequestQueue(),
	}
}

// Connect establishes the channel. A failed initial connect still schedules
// background reconnection; the returned error is informational and the
// definitive signal is the TopicConnection stream.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connected || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.mu.Unlock()

	if err := m.dialChannel(ctx); err != nil {
		m.mu.Lock()
		m.connecting = false
		m.connErr = err.Error()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.publishConnection(ConnectionEvent{Status: "connect_error", Reason: err.Error()})
		return err
	}
	m.onConnected(false)
	return nil
}

// dialChannel dials a fresh channel and installs it under a new generation.
func (m *Manager) dialChannel(ctx context.Context) error {
	ch := m.dial(m.cfg.URL)
	if err := ch.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.ch = ch
	m.gen++
	m.mu.Unlock()
	return nil
}

func (m *Manager) onConnected(isReconnect bool) {
	m.mu.Lock()
	m.connecting = false
	m.connected = true
	m.connErr = ""
	m.lastConnectedAt = time.Now()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	attempts := m.attempts
	m.attempts = 0
	ch := m.ch
	gen := m.gen
	m.mu.Unlock()

	go m.readLoop(ch, gen)

	if err := ch.Send(EventJoinTrackingRoom, struct{}{}); err != nil {
		log.Printf("session: join message failed: %v", err)
	}

	status := "connected"
	if isReconnect {
		status = "reconnected"
	}
	m.publishConnection(ConnectionEvent{Status: status, Attempts: attempts})

	go m.drainQueue()
}

// readLoop pumps inbound messages until the transport drops. A loop whose
// generation no longer matches the installed channel belongs to a torn-down
// connection and exits silently.
func (m *Manager) readLoop(ch Channel, gen int) {
	for {
		msg, err := ch.Receive()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		m.dispatch(msg)
	}
}

func (m *Manager) handleDrop(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.connErr = cause.Error()
	m.scheduleReconnectLocked()
	m.mu.Unlock()
	m.publishConnection(ConnectionEvent{Status: "disconnected", Reason: cause.Error()})
}

// scheduleReconnectLocked arms the backoff timer. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		// An attempt is already pending.
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.connErr = fmt.Sprintf("reconnect failed after %d attempts", m.attempts)
		go m.publishConnection(ConnectionEvent{Status: "reconnect_failed", Attempts: m.attempts})
		return
	}
	delay := backoffDelay(m.cfg.BaseDelayMS, m.attempts)
	m.reconnectTimer = time.AfterFunc(delay, m.attemptReconnect)
}

func (m *Manager) attemptReconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.closed || m.connected {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	m.connecting = true
	m.mu.Unlock()

	m.publishConnection(ConnectionEvent{Status: "reconnecting", Attempts: attempt})

	if err := m.dialChannel(context.Background()); err != nil {
		m.mu.Lock()
		m.connecting = false
		m.connErr = err.Error()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.publishConnection(ConnectionEvent{Status: "reconnect_error", Attempts: attempt, Reason: err.Error()})
		return
	}
	m.onConnected(true)
}

func backoffDelay(baseMS, attempts int) time.Duration {
	d := time.Duration(float64(baseMS)*math.Pow(2, float64(attempts))) * time.Millisecond
	if d > maxBackoffDelay {
		d = maxBackoffDelay
	}
	return d
}

// dispatch validates known payload shapes and republishes the event
// verbatim under its own topic name.
func (m *Manager) dispatch(msg Message) {
	if msg.Event == "" {
		log.Printf("session: dropping message without event name")
		return
	}
	if msg.Event == EventUnitLocationUpdate && !validLocationPayload(msg.Data) {
		log.Printf("session: dropping malformed %s payload", msg.Event)
		return
	}
	m.bus.Publish(msg.Event, msg.Data)
}

// validLocationPayload checks the required numeric fields of a location
// delta. Garbled updates are dropped so the fan-out stays resilient.
func validLocationPayload(data json.RawMessage) bool {
	var p struct {
		UnitID    *json.RawMessage `json:"unit_id"`
		Latitude  *float64         `json:"latitude"`
		Longitude *float64         `json:"longitude"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return false
	}
	return p.UnitID != nil && p.Latitude != nil && p.Longitude != nil
}

// Emit sends an event to the backend. With immediate set and a live
// connection the send is synchronous; otherwise the request queues by
// priority and, if connected, triggers a drain.
func (m *Manager) Emit(event string, data any, priority Priority, immediate bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	ch, connected := m.ch, m.connected
	m.mu.Unlock()

	if immediate && connected {
		return ch.Send(event, data)
	}
	m.queue.push(OutboundRequest{
		ID:         uuid.NewString(),
		Event:      event,
		Payload:    data,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	})
	if connected {
		go m.drainQueue()
	}
	return nil
}

// drainQueue delivers queued requests in priority order with a small
// inter-message delay to avoid bursts. Only one drain runs at a time.
func (m *Manager) drainQueue() {
	m.mu.Lock()
	if m.draining || !m.connected {
		m.mu.Unlock()
		return
	}
	m.draining = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		ch, connected := m.ch, m.connected
		m.mu.Unlock()
		if !connected {
			return
		}
		req, ok := m.queue.pop()
		if !ok {
			return
		}
		if err := ch.Send(req.Event, req.Payload); err != nil {
			// Requeue in place and let the reconnect cycle retry the drain.
			m.queue.requeue(req)
			return
		}
		time.Sleep(time.Duration(m.cfg.DrainDelayMS) * time.Millisecond)
	}
}

// Subscribe registers a handler for a topic and returns its unsubscribe
// handle.
func (m *Manager) Subscribe(topic string, fn Handler) func() {
	return m.bus.Subscribe(topic, fn)
}

// Disconnect tears the session down deliberately. No reconnection is
// attempted afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.connected = false
	m.connecting = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	ch := m.ch
	m.ch = nil
	m.gen++
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	m.publishConnection(ConnectionEvent{Status: "disconnected", Reason: "client disconnect"})
}

// Reconnect forces a manual reconnect: pending timers are cancelled, the
// attempt counter and error state reset, and the channel is recreated.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.attempts = 0
	m.connErr = ""
	m.closed = false
	m.connected = false
	m.connecting = false
	ch := m.ch
	m.ch = nil
	m.gen++
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	return m.Connect(ctx)
}

// Stats returns a point-in-time snapshot for observability and tests.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		IsConnected:       m.connected,
		IsConnecting:      m.connecting,
		ConnectionError:   m.connErr,
		ReconnectAttempts: m.attempts,
		LastConnectedAt:   m.lastConnectedAt,
		SubscriberCount:   m.bus.SubscriberCount(),
		QueuedRequests:    m.queue.len(),
	}
}

func (m *Manager) publishConnection(ev ConnectionEvent) {
	raw, _ := json.Marshal(ev)
	m.bus.Publish(TopicConnection, raw)
}
