package socket

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"
)

// Subprotocol is the WebSocket subprotocol of the AMQP 1.0 WebSocket
// binding. Dial offers it; servers are expected to select it.
const Subprotocol = "amqp"

// WebSocket adapts a websocket connection to the Socket interface. AMQP
// frames travel in binary messages; one message becomes one inbound chunk.
type WebSocket struct {
	conn    *websocket.Conn
	log     zerolog.Logger
	tmb     tomb.Tomb
	gate    pauseGate
	inbound chan []byte
}

var _ Socket = (*WebSocket)(nil)

// DialWebSocket connects to url and negotiates the amqp subprotocol.
func DialWebSocket(ctx context.Context, url string, headers http.Header, log zerolog.Logger) (*WebSocket, error) {
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket failed")
	}
	return NewWebSocket(conn, log), nil
}

// NewWebSocket wraps an established websocket connection, e.g. one accepted
// by an HTTP server and upgraded.
func NewWebSocket(conn *websocket.Conn, log zerolog.Logger) *WebSocket {
	s := &WebSocket{
		conn:    conn,
		log:     log,
		gate:    newPauseGate(),
		inbound: make(chan []byte, 8),
	}
	s.tmb.Go(s.pump)
	return s
}

func (s *WebSocket) Inbound() <-chan []byte {
	return s.inbound
}

func (s *WebSocket) Write(p []byte) error {
	err := s.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return errors.Wrap(err, "write message failed")
	}
	return nil
}

func (s *WebSocket) Pause() {
	s.gate.Pause()
}

func (s *WebSocket) Resume() {
	s.gate.Resume()
}

func (s *WebSocket) Close() error {
	s.tmb.Kill(nil)
	err := s.conn.Close()
	s.tmb.Wait()
	if err != nil {
		return err
	}
	return nil
}

func (s *WebSocket) Done() <-chan struct{} {
	return s.tmb.Dead()
}

func (s *WebSocket) Err() error {
	return s.tmb.Err()
}

func (s *WebSocket) pump() error {
	defer close(s.inbound)

	for {
		if !s.gate.wait(s.tmb.Dying()) {
			return nil
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.tmb.Dying():
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return io.EOF
			}
			s.log.Debug().Err(err).Msg("websocket read failed")
			return err
		}
		if messageType != websocket.BinaryMessage {
			// the AMQP binding carries frames in binary messages only
			return errors.Errorf("unexpected message type %d", messageType)
		}

		select {
		case s.inbound <- data:
		case <-s.tmb.Dying():
			return nil
		}
	}
}
