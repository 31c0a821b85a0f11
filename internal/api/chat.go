package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/stream"
)

const (
	errEmptyMessage = "Message cannot be empty"
	persistTimeout  = 5 * time.Second
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

func (req chatRequest) normalized() chatRequest {
	return chatRequest{
		Message:  strings.TrimSpace(req.Message),
		ThreadID: strings.TrimSpace(req.ThreadID),
	}
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req = req.normalized()
	if req.Message == "" {
		http.Error(w, errEmptyMessage, http.StatusBadRequest)
		return
	}
	sink, err := stream.NewSSESink(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.runChat(r.Context(), sink, req)
}

func (s *Server) chatWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sink := stream.NewWebSocketSink(conn)
	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = sink.Send(stream.Event{Name: stream.EventError, Data: stream.ErrorPayload{Message: "invalid request"}})
		return
	}
	req = req.normalized()
	if req.Message == "" {
		_ = sink.Send(stream.Event{Name: stream.EventError, Data: stream.ErrorPayload{Message: errEmptyMessage}})
		return
	}

	// The client sends nothing after the first frame; a read error means it
	// went away, which cancels the run.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.runChat(ctx, sink, req)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// runChat records the user's message in its thread, streams one research run
// to sink and stores the finished report as the assistant's reply.
func (s *Server) runChat(ctx context.Context, sink stream.Sink, req chatRequest) {
	mode := s.executionMode()
	metrics.RunsStarted.WithLabelValues(mode).Inc()

	thread, err := s.store.EnsureThread(ctx, req.ThreadID)
	if err != nil {
		s.rejectRun(sink, mode, req.ThreadID, "failed to open thread", err)
		return
	}
	if _, err := s.store.AppendMessage(ctx, store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleUser,
		Content:  req.Message,
	}); err != nil {
		s.rejectRun(sink, mode, thread.ID, "failed to record message", err)
		return
	}

	response, err := s.emitter.Run(ctx, thread.ID, req.Message, s.source, sink)
	if err != nil {
		metrics.RunsCompleted.WithLabelValues(mode, "error").Inc()
		s.logger.Warn("research run ended with error", zap.String("run_id", thread.ID), zap.Error(err))
		return
	}
	metrics.RunsCompleted.WithLabelValues(mode, "done").Inc()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if _, err := s.store.AppendMessage(persistCtx, store.Message{
		ThreadID: thread.ID,
		Role:     store.RoleAssistant,
		Content:  response.Report,
		Metadata: map[string]any{
			"executive_summary":    response.ExecutiveSummary,
			"key_takeaways":        response.KeyTakeaways,
			"citations":            response.Citations,
			"limitations":          response.Limitations,
			"sub_question_count":   response.Metadata.SubQuestionCount,
			"sources_analyzed":     response.Metadata.SourcesAnalyzed,
			"completion_timestamp": response.Metadata.CompletionTimestamp,
		},
	}); err != nil {
		s.logger.Error("failed to store report", zap.String("run_id", thread.ID), zap.Error(err))
	}
}

// rejectRun ends a run that failed before it reached the emitter. The stream
// still opens with run_id; a blank id gets a fresh one.
func (s *Server) rejectRun(sink stream.Sink, mode string, runID string, message string, err error) {
	metrics.RunsCompleted.WithLabelValues(mode, "error").Inc()
	if runID == "" {
		runID = uuid.NewString()
	}
	s.logger.Error(message, zap.String("run_id", runID), zap.Error(err))
	if sendErr := sink.Send(stream.Event{Name: stream.EventRunID, Data: stream.RunIDPayload{RunID: runID}}); sendErr != nil {
		s.logger.Warn("failed to send run id", zap.Error(sendErr))
		return
	}
	if sendErr := sink.Send(stream.Event{
		Name: stream.EventError,
		Data: stream.ErrorPayload{Message: message + ": " + err.Error(), RunID: runID},
	}); sendErr != nil {
		s.logger.Warn("failed to send error event", zap.Error(sendErr))
	}
}

func (s *Server) executionMode() string {
	if s.cfg.ExecutionMode == "" {
		return config.ExecutionInline
	}
	return s.cfg.ExecutionMode
}
