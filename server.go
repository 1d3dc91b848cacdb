package erostracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khushalp2004/eros-tracking/registry"
	"github.com/khushalp2004/eros-tracking/session"
)

// Server exposes read-only views of the tracker for the rendering layer.
type Server struct {
	httpServer *http.Server
	tracker    *Tracker
	registry   *registry.Registry
	session    *session.Manager
}

// NewServer builds the HTTP surface on the given port.
func NewServer(port int, t *Tracker, reg *registry.Registry, sess *session.Manager) *Server {
	s := &Server{tracker: t, registry: reg, session: sess}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/units", s.handleUnits)
	mux.HandleFunc("/api/units/stats", s.handleStats)
	mux.HandleFunc("/api/units/{id}/history", s.handleHistory)
	mux.HandleFunc("/api/connection", s.handleConnectionStats)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", s.httpServer.Addr)
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HandleGracefulShutdown blocks until SIGINT/SIGTERM, then drains the
// server and tears the tracker down.
func (s *Server) HandleGracefulShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	} else {
		log.Printf("server shut down successfully")
	}
	s.tracker.Stop()
}

type unitEntry struct {
	State    registry.UnitLiveState `json:"state"`
	Progress float64                `json:"progress"`
	ETA      int                    `json:"eta_minutes"`
	Active   bool                   `json:"active"`
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	units := map[string]unitEntry{}
	for _, ar := range s.registrySnapshot() {
		st, _ := s.registry.LiveState(ar.UnitID)
		units[ar.UnitID] = unitEntry{
			State:    st,
			Progress: s.registry.Progress(ar.UnitID),
			ETA:      s.registry.ETA(ar.UnitID),
			Active:   s.registry.HasActiveRoute(ar.UnitID),
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"units": units,
		"count": len(units),
	})
}

// registrySnapshot lists the units the registry currently tracks.
func (s *Server) registrySnapshot() []registry.ActiveRoute {
	var out []registry.ActiveRoute
	for _, unitID := range s.registry.UnitIDs() {
		if ar, ok := s.registry.ActiveRouteFor(unitID); ok {
			out = append(out, ar)
		}
	}
	return out
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Stats())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	unitID := r.PathValue("id")
	history := s.tracker.HistoryFor(unitID)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"unit_id": unitID,
		"history": history,
		"count":   len(history),
	})
}

func (s *Server) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	st := s.session.Stats()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"is_connected":       st.IsConnected,
		"is_connecting":      st.IsConnecting,
		"connection_error":   st.ConnectionError,
		"reconnect_attempts": st.ReconnectAttempts,
		"last_connected_at":  st.LastConnectedAt,
		"subscriber_count":   st.SubscriberCount,
		"queued_requests":    st.QueuedRequests,
	})
}
