// Package amqp couples byte-stream sockets to an AMQP 1.0 protocol engine.
// The central type is Bridge: it pumps inbound bytes into the engine and
// dispatches the engine's events to wrapper handlers. It also gates the
// stream through an authenticator until negotiation completes, runs the
// idle-timeout checks and writes pending engine output back to the socket.
package amqp

import (
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"ferrite.io/amqp/engine"
	"ferrite.io/amqp/socket"
)

// Bridge drives one engine connection over one socket. All engine access
// happens on a single loop goroutine: handler callbacks run there, timer and
// authentication completions are marshaled onto it, and external goroutines
// reach engine state only through Inject.
type Bridge struct {
	log       zerolog.Logger
	conn      engine.Connection
	transport engine.Transport
	collector engine.Collector
	sock      socket.Socket
	connector io.Closer
	handler   ConnectionHandler
	reg       *registry
	clk       clock.Clock

	gate  *authGate
	authC chan bool

	idleTimer *clock.Timer
	idleC     chan struct{}

	failed       bool
	disconnected bool

	injectC chan func()
	tmb     tomb.Tomb
}

// New configures the engine transport, binds it to the connection and starts
// the bridge loop. The engine is live once New returns: opening the local
// end and calling Flush from an injected function puts frames on the wire.
func New(opts Options) (*Bridge, error) {
	if err := opts.init(); err != nil {
		return nil, errors.Wrap(err, "options invalid")
	}

	b := &Bridge{
		log:       *opts.Logger,
		conn:      opts.Connection,
		transport: opts.Transport,
		collector: opts.Collector,
		sock:      opts.Socket,
		connector: opts.Connector,
		handler:   opts.Handler,
		reg:       newRegistry(),
		clk:       opts.Clock,
		gate:      newAuthGate(opts.Authenticator),
		authC:     make(chan bool, 1),
		idleC:     make(chan struct{}, 1),
		injectC:   make(chan func()),
	}

	b.transport.SetMaxFrameSize(opts.MaxFrameSize)
	b.transport.SetEmitFlowEventOnSend(opts.EmitFlowOnSend)
	if opts.Heartbeat > 0 {
		b.transport.SetIdleTimeout(2 * opts.Heartbeat)
	}
	if opts.Authenticator != nil {
		opts.Authenticator.Init(b.sock, b.handler, b.transport)
	}
	if err := b.transport.Bind(b.conn); err != nil {
		return nil, errors.Wrap(err, "bind failed")
	}
	b.conn.Collect(b.collector)

	b.tmb.Go(b.run)
	return b, nil
}

func (b *Bridge) run() error {
	for {
		inbound := b.sock.Inbound()
		if b.gate.pending() {
			// reads are paused; leave queued chunks alone until the
			// authenticator reports back
			inbound = nil
		}

		select {
		case chunk, ok := <-inbound:
			if !ok {
				b.handleSocketEnd()
				return b.sock.Err()
			}
			b.handleChunk(chunk)
		case complete := <-b.authC:
			b.finishAuthentication(complete)
		case <-b.idleC:
			b.handleIdleTimeoutCheck()
		case fn := <-b.injectC:
			fn()
		}
	}
}

// handleChunk is one full input cycle: pump the bytes in, drain the
// collector, hand the stream to the authenticator while one is attached,
// push any resulting output and tear the connection down if the engine
// reported a protocol failure.
func (b *Bridge) handleChunk(chunk []byte) {
	b.pump(chunk)
	b.dispatch()
	if !b.failed && b.gate.attached() {
		b.processAuthentication()
	}
	b.flush()
	if b.failed {
		b.disconnect()
	}
}

// pump copies chunk into the engine's input window, processing after every
// copy. A processing error marks the bridge failed and drops the rest of the
// chunk; once failed, later chunks are dropped outright.
func (b *Bridge) pump(chunk []byte) {
	if b.failed {
		b.log.Trace().Int("bytes", len(chunk)).Msg("dropping data received after transport failure")
		return
	}
	for len(chunk) > 0 {
		window := b.transport.InputWindow()
		if len(window) == 0 {
			b.log.Warn().Int("bytes", len(chunk)).Msg("engine input window exhausted, dropping rest of chunk")
			return
		}
		n := copy(window, chunk)
		chunk = chunk[n:]
		if err := b.transport.ProcessInput(n); err != nil {
			b.failed = true
			b.log.Trace().Err(err).Msg("engine rejected input")
			return
		}
	}
}

// dispatch drains the collector: peek the head event, run its handler, then
// pop it, until the queue is empty. Events a handler causes while running
// are therefore dispatched in the same drain.
func (b *Bridge) dispatch() {
	for {
		ev := b.collector.Peek()
		if ev == nil {
			return
		}
		b.dispatchEvent(ev)
		b.collector.Pop()
	}
}

func (b *Bridge) dispatchEvent(ev engine.Event) {
	b.log.Trace().Type("event", ev).Msg("engine event")

	switch ev := ev.(type) {
	case *engine.ConnectionRemoteOpen:
		b.handler.OnRemoteOpen()
		b.startIdleTimeoutCheck()

	case *engine.ConnectionRemoteClose:
		b.handler.OnRemoteClose()

	case *engine.SessionRemoteOpen:
		if h := b.reg.session(ev.Session); h != nil {
			h.OnRemoteOpen()
		} else {
			b.handler.OnSessionOpen(ev.Session)
		}

	case *engine.SessionRemoteClose:
		if h := b.reg.session(ev.Session); h != nil {
			h.OnRemoteClose()
		} else {
			b.log.Warn().Msg("remote close for unbound session")
		}

	case *engine.LinkRemoteOpen:
		if h := b.reg.link(ev.Link); h != nil {
			h.OnRemoteOpen()
		} else {
			b.handler.OnLinkOpen(ev.Link)
		}

	case *engine.LinkRemoteDetach:
		if h := b.reg.link(ev.Link); h != nil {
			h.OnRemoteDetach()
		} else {
			b.log.Warn().Str("link", ev.Link.Name()).Msg("remote detach for unbound link")
		}

	case *engine.LinkRemoteClose:
		if h := b.reg.link(ev.Link); h != nil {
			h.OnRemoteClose()
		} else {
			b.log.Warn().Str("link", ev.Link.Name()).Msg("remote close for unbound link")
		}

	case *engine.LinkFlow:
		if h := b.reg.link(ev.Link); h != nil {
			h.OnFlow()
		} else {
			b.log.Warn().Str("link", ev.Link.Name()).Msg("flow for unbound link")
		}

	case *engine.DeliveryUpdated:
		if h := b.reg.delivery(ev.Delivery); h != nil {
			h.OnUpdate()
		} else if r, ok := b.reg.link(ev.Delivery.Link()).(ReceiverHandler); ok {
			r.OnDelivery(ev.Delivery)
		} else {
			b.log.Warn().Str("link", ev.Delivery.Link().Name()).Msg("delivery on link without receiver handler")
		}

	case *engine.TransportError:
		b.failed = true
		b.log.Trace().Str("condition", ev.Condition).Msg("transport failed")

	case *engine.SessionFinal:
		b.reg.unbindSession(ev.Session)

	case *engine.LinkFinal:
		b.reg.unbindLink(ev.Link)

	case *engine.ConnectionInit, *engine.ConnectionBound, *engine.ConnectionUnbound,
		*engine.ConnectionLocalOpen, *engine.ConnectionLocalClose, *engine.ConnectionFinal,
		*engine.SessionInit, *engine.SessionLocalOpen, *engine.SessionLocalClose,
		*engine.LinkInit, *engine.LinkLocalOpen, *engine.LinkLocalDetach, *engine.LinkLocalClose:
		// local endpoint changes and lifecycle bookkeeping need no wrapper
		// notification
	}
}

// processAuthentication hands the stream to the authenticator for one
// negotiation step. Reads stay paused, and queued chunks stay unconsumed,
// until the step reports back through the loop.
func (b *Bridge) processAuthentication() {
	b.sock.Pause()
	b.gate.begin().Process(func(complete bool) {
		select {
		case b.authC <- complete:
		case <-b.tmb.Dying():
		}
	})
}

func (b *Bridge) finishAuthentication(complete bool) {
	if b.gate.finish(complete) {
		b.log.Trace().Msg("authentication negotiation complete")
	}
	b.sock.Resume()
}

// startIdleTimeoutCheck arms the idle-timeout timer when the remote end
// opens. The engine decides the first deadline; a zero deadline means idle
// timeout handling is off for this connection.
func (b *Bridge) startIdleTimeoutCheck() {
	if b.idleTimer != nil || b.disconnected {
		return
	}
	now := b.clk.Now()
	deadline := b.transport.Tick(now)
	if deadline.IsZero() {
		return
	}
	b.log.Trace().Dur("delay", deadline.Sub(now)).Msg("idle timeout checks starting")
	b.idleTimer = b.clk.AfterFunc(deadline.Sub(now), b.queueIdleTimeoutCheck)
}

// queueIdleTimeoutCheck runs on the clock's goroutine and marshals the
// expiry onto the loop. The buffer coalesces a fire that races teardown.
func (b *Bridge) queueIdleTimeoutCheck() {
	select {
	case b.idleC <- struct{}{}:
	default:
	}
}

func (b *Bridge) handleIdleTimeoutCheck() {
	b.idleTimer = nil
	if b.disconnected {
		return
	}
	if b.conn.LocalState() != engine.StateActive {
		b.log.Trace().Msg("idle timeout checks stopped, connection no longer active")
		return
	}

	now := b.clk.Now()
	deadline := b.transport.Tick(now)
	b.flush()
	if b.transport.IsClosed() {
		b.log.Info().Msg("peer exceeded requested idle timeout, disconnecting")
		b.disconnect()
	} else if !deadline.IsZero() {
		b.idleTimer = b.clk.AfterFunc(deadline.Sub(now), b.queueIdleTimeoutCheck)
	}
}

func (b *Bridge) stopIdleTimeoutCheck() {
	if b.idleTimer != nil {
		b.idleTimer.Stop()
		b.idleTimer = nil
	}
	select {
	case <-b.idleC:
	default:
	}
}

// Flush writes pending engine output to the socket. Wrappers call it after
// mutating engine state; it runs on the loop, so reach it from a handler
// callback or an injected function.
func (b *Bridge) Flush() {
	b.flush()
}

func (b *Bridge) flush() {
	for {
		window := b.transport.OutputWindow()
		if len(window) == 0 {
			return
		}
		buf := make([]byte, len(window))
		copy(buf, window)
		if err := b.sock.Write(buf); err != nil {
			b.log.Warn().Err(err).Msg("socket write failed")
			return
		}
		b.transport.OutputConsumed()
	}
}

// Disconnect drops the network connection: the connector when one owns the
// socket, the socket itself otherwise. Idempotent. Runs on the loop; reach
// it from a handler callback or an injected function. The bridge keeps
// running until the socket's inbound stream ends.
func (b *Bridge) Disconnect() {
	b.disconnect()
}

func (b *Bridge) disconnect() {
	if b.disconnected {
		return
	}
	b.disconnected = true
	b.stopIdleTimeoutCheck()
	if b.connector != nil {
		if err := b.connector.Close(); err != nil {
			b.log.Debug().Err(err).Msg("connector close failed")
		}
	} else {
		if err := b.sock.Close(); err != nil {
			b.log.Debug().Err(err).Msg("socket close failed")
		}
	}
}

// handleSocketEnd runs once the inbound stream is exhausted: release the
// engine, drop the network resources and tell the connection wrapper.
func (b *Bridge) handleSocketEnd() {
	b.stopIdleTimeoutCheck()
	b.transport.Unbind()
	b.transport.Close()
	b.disconnect()
	b.handler.OnDisconnect()
}

// Inject runs fn on the bridge loop, serialized with event dispatch and
// timer callbacks. It is the only safe way for an external goroutine to
// touch engine state. Returns an error once the bridge has stopped.
func (b *Bridge) Inject(fn func()) error {
	select {
	case b.injectC <- fn:
		return nil
	case <-b.tmb.Dying():
		return errors.New("bridge stopped")
	}
}

// BindSession attaches a wrapper to a session endpoint. Later session events
// for it go to the wrapper instead of the connection handler. Runs on the
// loop.
func (b *Bridge) BindSession(s engine.Session, h SessionHandler) {
	b.reg.bindSession(s, h)
}

// UnbindSession detaches a session wrapper. Sessions are also unbound
// automatically when the engine finalizes them.
func (b *Bridge) UnbindSession(s engine.Session) {
	b.reg.unbindSession(s)
}

// BindLink attaches a wrapper to a link endpoint. Receivers should bind a
// ReceiverHandler so incoming deliveries have somewhere to go.
func (b *Bridge) BindLink(l engine.Link, h LinkHandler) {
	b.reg.bindLink(l, h)
}

// UnbindLink detaches a link wrapper. Links are also unbound automatically
// when the engine finalizes them.
func (b *Bridge) UnbindLink(l engine.Link) {
	b.reg.unbindLink(l)
}

// BindDelivery attaches a wrapper to an in-flight delivery, claiming its
// updates away from the receiver's OnDelivery.
func (b *Bridge) BindDelivery(d engine.Delivery, h DeliveryHandler) {
	b.reg.bindDelivery(d, h)
}

// UnbindDelivery detaches a delivery wrapper, typically once the delivery is
// settled.
func (b *Bridge) UnbindDelivery(d engine.Delivery) {
	b.reg.unbindDelivery(d)
}

// Done is closed once the bridge loop has stopped.
func (b *Bridge) Done() <-chan struct{} {
	return b.tmb.Dead()
}

// Err reports why the bridge stopped: the socket's terminal error, io.EOF
// for a clean peer close, or nil after a local teardown. Meaningful once
// Done is closed.
func (b *Bridge) Err() error {
	return b.tmb.Err()
}
