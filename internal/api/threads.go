package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type messageResponse struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sequence  int64          `json:"sequence"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type threadResponse struct {
	ThreadID  string            `json:"thread_id"`
	CreatedAt string            `json:"created_at"`
	Messages  []messageResponse `json:"messages"`
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	thread, err := s.store.GetThread(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if thread == nil {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}
	messages, err := s.store.ListMessages(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := threadResponse{
		ThreadID:  thread.ID,
		CreatedAt: thread.CreatedAt,
		Messages:  make([]messageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		response.Messages = append(response.Messages, messageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Sequence:  msg.Sequence,
			CreatedAt: msg.CreatedAt,
			Metadata:  msg.Metadata,
		})
	}
	writeJSONStatus(w, response, http.StatusOK)
}
