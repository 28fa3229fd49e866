package amqp

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ferrite.io/amqp/engine"
	"ferrite.io/amqp/socket"
)

// DefaultMaxFrameSize is advertised to the peer when Options leaves
// MaxFrameSize zero.
const DefaultMaxFrameSize = 32 * 1024

// Options configures a Bridge. Connection, Transport, Collector, Socket and
// Handler are required; everything else has a usable zero value.
type Options struct {
	// Connection is the engine endpoint the bridge serves.
	Connection engine.Connection
	// Transport is the engine's byte-level half. The bridge configures and
	// binds it; it must not be bound yet.
	Transport engine.Transport
	// Collector receives engine events; the bridge registers it on the
	// connection and drains it after every input cycle.
	Collector engine.Collector
	// Socket carries the raw bytes.
	Socket socket.Socket
	// Connector, when set, owns the socket: disconnecting closes the
	// connector instead of the socket. Client wrappers pass the dialer here.
	Connector io.Closer
	// Handler is the connection wrapper.
	Handler ConnectionHandler
	// Authenticator, when set, intercepts the byte stream until negotiation
	// completes. Nil skips authentication entirely.
	Authenticator Authenticator
	// Heartbeat is the local keepalive interval; the peer is asked to stay
	// quiet no longer than twice this. Zero disables idle timeout handling.
	Heartbeat time.Duration
	// MaxFrameSize is advertised to the peer. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32
	// EmitFlowOnSend makes the engine raise a flow event for every transfer
	// sent. Off by default; senders poll credit instead.
	EmitFlowOnSend bool
	// Clock drives idle timeout scheduling. Nil means the wall clock.
	Clock clock.Clock
	// Logger, when nil, disables logging.
	Logger *zerolog.Logger
}

func (o *Options) init() error {
	if o.Connection == nil {
		return errors.New("connection not set")
	}
	if o.Transport == nil {
		return errors.New("transport not set")
	}
	if o.Collector == nil {
		return errors.New("collector not set")
	}
	if o.Socket == nil {
		return errors.New("socket not set")
	}
	if o.Handler == nil {
		return errors.New("handler not set")
	}
	if o.Heartbeat < 0 {
		return errors.New("heartbeat negative")
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return nil
}
