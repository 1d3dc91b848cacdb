package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khushalp2004/eros-tracking/config"
)

// newWebsocketEcho serves a websocket endpoint that forwards every framed
// Message it reads onto the returned channel.
func newWebsocketEcho(t *testing.T) (*httptest.Server, <-chan Message) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	received := make(chan Message, 512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collectFrames(t *testing.T, received <-chan Message, want int) map[string]int {
	t.Helper()
	counts := map[string]int{}
	for n := 0; n < want; n++ {
		select {
		case msg := <-received:
			counts[msg.Event]++
		case <-time.After(3 * time.Second):
			t.Fatalf("only %d of %d frames arrived intact", n, want)
		}
	}
	return counts
}

func TestWebsocketConcurrentSends(t *testing.T) {
	srv, received := newWebsocketEcho(t)

	ch := WebsocketDialer(wsURL(srv))
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Close()

	const senders = 4
	const perSender = 25
	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if err := ch.Send("stress", map[string]int{"sender": g, "n": i}); err != nil {
					t.Errorf("send failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	counts := collectFrames(t, received, senders*perSender)
	if counts["stress"] != senders*perSender {
		t.Errorf("frame counts by event: %v", counts)
	}
}

func TestManagerConcurrentEmitsOverWebsocket(t *testing.T) {
	srv, received := newWebsocketEcho(t)

	m := NewManager(config.ChannelConfig{
		URL:                  wsURL(srv),
		BaseDelayMS:          1,
		MaxReconnectAttempts: 5,
		DrainDelayMS:         1,
	}, nil)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	// Immediate emits race the drain goroutine for the connection.
	const emitters = 4
	const perEmitter = 10
	var wg sync.WaitGroup
	for g := 0; g < emitters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perEmitter; i++ {
				immediate := i%2 == 0
				if err := m.Emit("stress", map[string]int{"emitter": g, "n": i}, PriorityNormal, immediate); err != nil {
					t.Errorf("emit failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	// join_tracking_room plus every emitted frame.
	counts := collectFrames(t, received, emitters*perEmitter+1)
	if counts[EventJoinTrackingRoom] != 1 {
		t.Errorf("join frames = %d, want 1", counts[EventJoinTrackingRoom])
	}
	if counts["stress"] != emitters*perEmitter {
		t.Errorf("stress frames = %d, want %d", counts["stress"], emitters*perEmitter)
	}
}
