package socket

import (
	"io"
	"net"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"ferrite.io/amqp/util"
)

const (
	initialReadBuffer = 4 * 1024
	maxReadBuffer     = 64 * 1024
)

// NetSocket adapts a net.Conn to the Socket interface. A single reader
// goroutine pumps the connection into the inbound channel; Pause parks it
// between reads, so backpressure propagates to the peer through the kernel
// receive buffer.
type NetSocket struct {
	conn    net.Conn
	log     zerolog.Logger
	tmb     tomb.Tomb
	gate    pauseGate
	inbound chan []byte
}

var _ Socket = (*NetSocket)(nil)

func NewNetSocket(conn net.Conn, log zerolog.Logger) *NetSocket {
	s := &NetSocket{
		conn:    conn,
		log:     log,
		gate:    newPauseGate(),
		inbound: make(chan []byte, 8),
	}
	s.tmb.Go(s.pump)
	return s
}

func (s *NetSocket) Inbound() <-chan []byte {
	return s.inbound
}

func (s *NetSocket) Write(p []byte) error {
	_, err := s.conn.Write(p)
	if err != nil {
		return err
	}
	return nil
}

func (s *NetSocket) Pause() {
	s.gate.Pause()
}

func (s *NetSocket) Resume() {
	s.gate.Resume()
}

func (s *NetSocket) Close() error {
	s.tmb.Kill(nil)
	err := s.conn.Close()
	s.tmb.Wait()
	if err != nil {
		return err
	}
	return nil
}

func (s *NetSocket) Done() <-chan struct{} {
	return s.tmb.Dead()
}

func (s *NetSocket) Err() error {
	return s.tmb.Err()
}

func (s *NetSocket) pump() error {
	defer close(s.inbound)

	buf := make([]byte, initialReadBuffer)
	for {
		if !s.gate.wait(s.tmb.Dying()) {
			return nil
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.inbound <- chunk:
			case <-s.tmb.Dying():
				return nil
			}
			if n == len(buf) && len(buf) < maxReadBuffer {
				buf = make([]byte, util.NextPowerOfTwo32(uint32(len(buf)+1)))
			}
		}
		if err != nil {
			select {
			case <-s.tmb.Dying():
				// local close, the read error is expected
				return nil
			default:
			}
			if err != io.EOF {
				s.log.Debug().Err(err).Msg("socket read failed")
			}
			return err
		}
	}
}
