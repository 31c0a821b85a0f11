package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
)

type ingestEventRequest struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq"`
	Ts      string          `json:"ts"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// ingestEvent accepts stage events posted by the durable worker and hands
// them to whoever is streaming the run.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "event type required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Type, "_") {
		http.Error(w, "event type must use dot notation", http.StatusBadRequest)
		return
	}

	timestamp := req.Ts
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.broker.Publish(events.RunEvent{
		RunID:   runID,
		Seq:     req.Seq,
		Type:    events.NormalizeType(req.Type),
		Ts:      timestamp,
		Source:  req.Source,
		Payload: req.Payload,
	})
	w.WriteHeader(http.StatusAccepted)
}
