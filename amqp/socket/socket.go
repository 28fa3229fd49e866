// Package socket provides the byte-stream abstraction the transport bridge
// pumps. A Socket delivers inbound chunks over a channel, accepts outbound
// writes, and can pause further reads so that no bytes from the peer reach
// the consumer while authentication negotiation is outstanding. Adapters
// over net.Conn and over websocket connections are included.
package socket

import (
	"sync/atomic"
)

// Socket is a bidirectional byte stream with read-side flow control.
type Socket interface {
	// Inbound returns the channel of received chunks. The channel is
	// closed, after all received data has been delivered, when the stream
	// ends: peer EOF, a read error, or a local Close.
	Inbound() <-chan []byte

	// Write sends bytes to the peer.
	Write(p []byte) error

	// Pause stops further reads from the underlying connection. Chunks
	// already read stay queued on the inbound channel. Resume re-enables
	// reading. Both are safe to call at any time, from one goroutine.
	Pause()
	Resume()

	// Close tears the socket down. Idempotent.
	Close() error

	// Done is closed once the read side has fully stopped.
	Done() <-chan struct{}
	// Err reports why the stream ended: io.EOF for a clean peer close,
	// nil after a local Close, the read error otherwise. Valid after the
	// inbound channel is closed.
	Err() error
}

// pauseGate coordinates Pause/Resume with a reader goroutine. The reader
// calls wait before each read; Pause parks it there until Resume.
type pauseGate struct {
	paused  int32
	resumeC chan struct{}
}

func newPauseGate() pauseGate {
	return pauseGate{resumeC: make(chan struct{}, 1)}
}

func (g *pauseGate) Pause() {
	atomic.StoreInt32(&g.paused, 1)
}

func (g *pauseGate) Resume() {
	atomic.StoreInt32(&g.paused, 0)
	select {
	case g.resumeC <- struct{}{}:
	default:
	}
}

// wait blocks while the gate is paused. It returns false if dying fired
// first, true once reading may proceed.
func (g *pauseGate) wait(dying <-chan struct{}) bool {
	for atomic.LoadInt32(&g.paused) == 1 {
		select {
		case <-g.resumeC:
			// re-check, the token may predate a later Pause
		case <-dying:
			return false
		}
	}
	return true
}
