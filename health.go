package erostracking

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status            string `json:"status"`
	Connected         bool   `json:"connected"`
	LastUpdateEpochMS int64  `json:"last_update_epoch_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stats := s.session.Stats()
	resp := healthResponse{
		Status:            "ok",
		Connected:         stats.IsConnected,
		LastUpdateEpochMS: s.tracker.LastEventAt().UnixMilli(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}
