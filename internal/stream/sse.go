package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSESink writes events as text/event-stream frames:
//
//	event: <name>
//	data: <json>
type SSESink struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSESink sets the event-stream headers on w. It fails when w cannot be
// flushed incrementally.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(event Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Name, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
