package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

type websocketFrame struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

// WebSocketSink writes each event as one JSON text frame
// {"event": <name>, "data": <payload>} and answers keep-alives with pings.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: defaultWriteTimeout}
}

func (s *WebSocketSink) Send(event Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(websocketFrame{Event: event.Name, Data: event.Data})
}

func (s *WebSocketSink) KeepAlive() error {
	return s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.writeTimeout))
}
