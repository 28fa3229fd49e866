package amqp

import (
	"sync"
	"time"

	"ferrite.io/amqp/engine"
	"ferrite.io/amqp/socket"
)

// recorder collects callback and socket activity so tests can assert exact
// ordering across objects. Safe for use from the bridge loop and the test
// goroutine at once.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) record(entry string) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// processStep scripts one ProcessInput call of the fake transport: events
// pushed to the collector, output windows queued, and the returned error.
type processStep struct {
	events []engine.Event
	out    [][]byte
	err    error
}

type fakeTransport struct {
	rec       *recorder
	collector *fakeCollector

	maxFrameSize    uint32
	emitFlow        bool
	idleTimeout     time.Duration
	idleTimeoutSets int

	bound   engine.Connection
	bindErr error
	unbound bool
	closed  bool

	// windowSize is the capacity handed out per InputWindow call; zero
	// simulates an exhausted engine.
	windowSize int
	window     []byte
	consumed   [][]byte
	steps      []processStep

	outputs [][]byte

	tickFn   func(now time.Time) time.Time
	ticks    []time.Time
	isClosed bool
}

func (t *fakeTransport) SetMaxFrameSize(size uint32) { t.maxFrameSize = size }
func (t *fakeTransport) SetEmitFlowEventOnSend(emit bool) {
	t.emitFlow = emit
}
func (t *fakeTransport) SetIdleTimeout(timeout time.Duration) {
	t.idleTimeout = timeout
	t.idleTimeoutSets++
}

func (t *fakeTransport) Bind(conn engine.Connection) error {
	if t.bindErr != nil {
		return t.bindErr
	}
	t.bound = conn
	return nil
}

func (t *fakeTransport) InputWindow() []byte {
	if t.windowSize == 0 {
		return nil
	}
	t.window = make([]byte, t.windowSize)
	return t.window
}

func (t *fakeTransport) ProcessInput(n int) error {
	t.consumed = append(t.consumed, append([]byte(nil), t.window[:n]...))
	if len(t.steps) == 0 {
		return nil
	}
	step := t.steps[0]
	t.steps = t.steps[1:]
	for _, ev := range step.events {
		t.collector.push(ev)
	}
	t.outputs = append(t.outputs, step.out...)
	return step.err
}

func (t *fakeTransport) OutputWindow() []byte {
	if len(t.outputs) == 0 {
		return nil
	}
	return t.outputs[0]
}

func (t *fakeTransport) OutputConsumed() {
	t.outputs = t.outputs[1:]
}

func (t *fakeTransport) Tick(now time.Time) time.Time {
	t.ticks = append(t.ticks, now)
	if t.tickFn == nil {
		return time.Time{}
	}
	return t.tickFn(now)
}

func (t *fakeTransport) IsClosed() bool { return t.isClosed }

func (t *fakeTransport) Unbind() {
	t.unbound = true
	t.rec.record("transport unbind")
}

func (t *fakeTransport) Close() {
	t.closed = true
	t.rec.record("transport close")
}

// consumedBytes flattens every slice accepted by ProcessInput.
func (t *fakeTransport) consumedBytes() []byte {
	var all []byte
	for _, c := range t.consumed {
		all = append(all, c...)
	}
	return all
}

type fakeCollector struct {
	queue []engine.Event
}

func (c *fakeCollector) push(ev engine.Event) { c.queue = append(c.queue, ev) }

func (c *fakeCollector) Peek() engine.Event {
	if len(c.queue) == 0 {
		return nil
	}
	return c.queue[0]
}

func (c *fakeCollector) Pop() { c.queue = c.queue[1:] }

type fakeConn struct {
	local     engine.State
	remote    engine.State
	collected engine.Collector
}

func (c *fakeConn) LocalState() engine.State  { return c.local }
func (c *fakeConn) RemoteState() engine.State { return c.remote }
func (c *fakeConn) Collect(col engine.Collector) {
	c.collected = col
}

type fakeSession struct {
	conn engine.Connection
}

func (s *fakeSession) Connection() engine.Connection { return s.conn }

type fakeLink struct {
	sess   engine.Session
	name   string
	sender bool
}

func (l *fakeLink) Session() engine.Session { return l.sess }
func (l *fakeLink) Name() string            { return l.name }
func (l *fakeLink) IsSender() bool          { return l.sender }

type fakeDelivery struct {
	link engine.Link
}

func (d *fakeDelivery) Link() engine.Link { return d.link }

// fakeSocket feeds the bridge from the test goroutine. Inbound is unbuffered
// so a send returns exactly when the loop has accepted the chunk.
type fakeSocket struct {
	rec     *recorder
	inbound chan []byte

	mu         sync.Mutex
	writes     [][]byte
	writeErr   error
	closeCalls int
	ended      bool
	err        error
	done       chan struct{}
}

func newFakeSocket(rec *recorder) *fakeSocket {
	return &fakeSocket{
		rec:     rec,
		inbound: make(chan []byte),
		done:    make(chan struct{}),
	}
}

func (s *fakeSocket) Inbound() <-chan []byte { return s.inbound }

func (s *fakeSocket) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, p)
	return nil
}

func (s *fakeSocket) Pause()  { s.rec.record("pause") }
func (s *fakeSocket) Resume() { s.rec.record("resume") }

func (s *fakeSocket) Close() error {
	s.rec.record("socket close")
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.end(nil)
	return nil
}

func (s *fakeSocket) Done() <-chan struct{} { return s.done }

func (s *fakeSocket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// send hands a chunk to the bridge and returns once the loop picked it up.
func (s *fakeSocket) send(chunk []byte) { s.inbound <- chunk }

// end closes the inbound stream the way a peer EOF or read error would.
func (s *fakeSocket) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.inbound)
	close(s.done)
}

func (s *fakeSocket) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func (s *fakeSocket) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

// fakeCloser stands in for a client connector owning the socket.
type fakeCloser struct {
	rec   *recorder
	mu    sync.Mutex
	calls int
}

func (c *fakeCloser) Close() error {
	c.rec.record("connector close")
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func (c *fakeCloser) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeAuthenticator captures every Process callback so tests drive
// negotiation step by step.
type fakeAuthenticator struct {
	rec *recorder

	mu    sync.Mutex
	dones []func(complete bool)

	initSock      socket.Socket
	initHandler   ConnectionHandler
	initTransport engine.Transport
}

func (a *fakeAuthenticator) Init(sock socket.Socket, handler ConnectionHandler, transport engine.Transport) {
	a.initSock = sock
	a.initHandler = handler
	a.initTransport = transport
}

func (a *fakeAuthenticator) Process(done func(complete bool)) {
	a.rec.record("process")
	a.mu.Lock()
	a.dones = append(a.dones, done)
	a.mu.Unlock()
}

func (a *fakeAuthenticator) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dones)
}

// complete fires the i-th captured callback.
func (a *fakeAuthenticator) complete(i int, v bool) {
	a.mu.Lock()
	done := a.dones[i]
	a.mu.Unlock()
	done(v)
}

type connHandler struct {
	rec           *recorder
	onSessionOpen func(s engine.Session)
	onLinkOpen    func(l engine.Link)
}

func (h *connHandler) OnRemoteOpen()  { h.rec.record("connection remote open") }
func (h *connHandler) OnRemoteClose() { h.rec.record("connection remote close") }

func (h *connHandler) OnSessionOpen(s engine.Session) {
	h.rec.record("connection session open")
	if h.onSessionOpen != nil {
		h.onSessionOpen(s)
	}
}

func (h *connHandler) OnLinkOpen(l engine.Link) {
	h.rec.record("connection link open")
	if h.onLinkOpen != nil {
		h.onLinkOpen(l)
	}
}

func (h *connHandler) OnDisconnect() { h.rec.record("connection disconnect") }

type sessionHandler struct {
	rec *recorder
	id  string
}

func (h *sessionHandler) OnRemoteOpen()  { h.rec.record(h.id + " remote open") }
func (h *sessionHandler) OnRemoteClose() { h.rec.record(h.id + " remote close") }

type linkHandler struct {
	rec *recorder
	id  string
}

func (h *linkHandler) OnRemoteOpen()   { h.rec.record(h.id + " remote open") }
func (h *linkHandler) OnRemoteDetach() { h.rec.record(h.id + " remote detach") }
func (h *linkHandler) OnRemoteClose()  { h.rec.record(h.id + " remote close") }
func (h *linkHandler) OnFlow()         { h.rec.record(h.id + " flow") }

type receiverHandler struct {
	linkHandler
	onDelivery func(d engine.Delivery)
}

func (h *receiverHandler) OnDelivery(d engine.Delivery) {
	h.rec.record(h.id + " delivery")
	if h.onDelivery != nil {
		h.onDelivery(d)
	}
}

type deliveryHandler struct {
	rec *recorder
	id  string
}

func (h *deliveryHandler) OnUpdate() { h.rec.record(h.id + " update") }
