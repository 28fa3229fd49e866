package amqp

import (
	"ferrite.io/amqp/engine"
	"ferrite.io/amqp/socket"
)

// ConnectionHandler is the high-level wrapper of the bridge's connection.
// The bridge invokes it from its loop goroutine, so implementations may
// touch engine state and call Flush or the Bind methods without locking.
//
// OnSessionOpen and OnLinkOpen fire for remote-initiated endpoints that have
// no wrapper yet; the handler is expected to attach one via BindSession or
// BindLink if it accepts the endpoint.
type ConnectionHandler interface {
	OnRemoteOpen()
	OnRemoteClose()
	OnSessionOpen(s engine.Session)
	OnLinkOpen(l engine.Link)
	// OnDisconnect fires once the underlying byte stream has ended, after
	// the engine transport has been unbound and closed.
	OnDisconnect()
}

// SessionHandler is the wrapper of one session endpoint.
type SessionHandler interface {
	OnRemoteOpen()
	OnRemoteClose()
}

// LinkHandler is the wrapper of one link endpoint, sender or receiver.
type LinkHandler interface {
	OnRemoteOpen()
	OnRemoteDetach()
	OnRemoteClose()
	// OnFlow reports a credit update from the peer.
	OnFlow()
}

// ReceiverHandler is a LinkHandler that accepts incoming transfers.
// OnDelivery fires for a delivery that has no DeliveryHandler bound yet,
// i.e. a delivery the peer just started.
type ReceiverHandler interface {
	LinkHandler
	OnDelivery(d engine.Delivery)
}

// DeliveryHandler is the wrapper of one in-flight delivery.
type DeliveryHandler interface {
	// OnUpdate reports more transfer bytes or a disposition change.
	OnUpdate()
}

// Authenticator drives authentication negotiation over the socket before
// protocol bytes may reach the engine. The bridge pauses socket reads around
// every Process call; done must be invoked exactly once per call, with
// complete=true once negotiation finished (successfully or not), after which
// the bridge never consults the authenticator again.
type Authenticator interface {
	Init(sock socket.Socket, handler ConnectionHandler, transport engine.Transport)
	Process(done func(complete bool))
}
