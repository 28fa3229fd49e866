// Package engine defines the contract between the transport bridge and an
// AMQP 1.0 protocol engine: the frame codec plus endpoint state machine that
// owns connection/session/link/delivery state. The bridge drives an engine
// exclusively through these interfaces; it never inspects frames itself.
package engine

import "time"

// State is the lifecycle state of an endpoint (connection, session or link),
// tracked separately for the local and the remote end.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the byte-level side of the engine. Exactly one Transport is
// bound to exactly one Connection for its whole lifetime, and it is owned
// exclusively by the bridge: no method may be called concurrently.
type Transport interface {
	// SetMaxFrameSize configures the max-frame-size the engine advertises.
	SetMaxFrameSize(size uint32)
	// SetEmitFlowEventOnSend controls whether sends emit link-flow events.
	SetEmitFlowEventOnSend(emit bool)
	// SetIdleTimeout configures the idle-timeout the engine advertises to
	// the peer. Zero disables liveness checking.
	SetIdleTimeout(timeout time.Duration)

	// Bind attaches the transport to its connection endpoint. Must be
	// called exactly once, before any input is processed.
	Bind(conn Connection) error

	// InputWindow returns the writable region of the engine's current
	// input window. An empty window means the engine cannot accept more
	// bytes right now.
	InputWindow() []byte
	// ProcessInput tells the engine that n bytes were copied into the
	// window returned by the last InputWindow call. A non-nil error is a
	// decode or protocol violation; the connection is then unusable.
	ProcessInput(n int) error

	// OutputWindow returns pending outbound bytes, or an empty slice if
	// there is nothing to send. The window stays valid until
	// OutputConsumed is called.
	OutputWindow() []byte
	// OutputConsumed marks the last OutputWindow as written to the wire.
	OutputConsumed()

	// Tick advances the engine's idle-timeout bookkeeping to now and
	// returns the next deadline at which Tick must be called again. A zero
	// time means no deadline is pending.
	Tick(now time.Time) time.Time
	// IsClosed reports whether the engine shut the transport down, e.g.
	// because the peer exceeded the requested idle-timeout.
	IsClosed() bool

	// Unbind detaches the transport from its connection.
	Unbind()
	// Close releases the transport. No calls may follow.
	Close()
}

// Collector is the engine-owned event queue. Events accumulate as a side
// effect of ProcessInput and Tick and must be consumed strictly in order:
// Peek the head, handle it, then Pop it.
type Collector interface {
	// Peek returns the queue head without removing it, or nil when empty.
	Peek() Event
	// Pop removes the queue head.
	Pop()
}

// Connection is the engine-level connection endpoint. Implementations must
// be comparable so the bridge can key side tables by entity identity.
type Connection interface {
	LocalState() State
	RemoteState() State
	// Collect routes the connection's events into the given collector.
	Collect(c Collector)
}

// Session is an engine-level session endpoint, child of a Connection.
type Session interface {
	Connection() Connection
}

// Link is an engine-level link endpoint, child of a Session. A link is
// either the sending or the receiving half of an AMQP link.
type Link interface {
	Session() Session
	Name() string
	IsSender() bool
}

// Delivery is one message transfer on a Link.
type Delivery interface {
	Link() Link
}
