package engine

// Event is a notification produced by the engine. Each event kind is its own
// type carrying only the entity it concerns; consumers dispatch with a type
// switch. The interface is sealed: engines reuse the kinds defined here.
type Event interface {
	event()
}

// Remote endpoint activity. These are the events the bridge routes to the
// high-level wrappers.

type ConnectionRemoteOpen struct{ Connection Connection }

type ConnectionRemoteClose struct{ Connection Connection }

type SessionRemoteOpen struct{ Session Session }

type SessionRemoteClose struct{ Session Session }

type LinkRemoteOpen struct{ Link Link }

type LinkRemoteDetach struct{ Link Link }

type LinkRemoteClose struct{ Link Link }

// LinkFlow reports a credit update on a link.
type LinkFlow struct{ Link Link }

// DeliveryUpdated reports new transfer bytes or a changed disposition for a
// delivery. For a delivery the bridge has never seen, this is the delivery's
// birth event.
type DeliveryUpdated struct{ Delivery Delivery }

// TransportError reports that input processing hit a protocol violation.
// After this event the engine accepts no further input.
type TransportError struct{ Condition string }

// Local endpoint lifecycle. The engine emits these as endpoints move through
// their own state machine; the bridge ignores them (the side acting locally
// already knows), but they are part of the contract so engines can emit the
// full sequence.

type ConnectionInit struct{ Connection Connection }

type ConnectionBound struct{ Connection Connection }

type ConnectionUnbound struct{ Connection Connection }

type ConnectionLocalOpen struct{ Connection Connection }

type ConnectionLocalClose struct{ Connection Connection }

type ConnectionFinal struct{ Connection Connection }

type SessionInit struct{ Session Session }

type SessionLocalOpen struct{ Session Session }

type SessionLocalClose struct{ Session Session }

type SessionFinal struct{ Session Session }

type LinkInit struct{ Link Link }

type LinkLocalOpen struct{ Link Link }

type LinkLocalDetach struct{ Link Link }

type LinkLocalClose struct{ Link Link }

type LinkFinal struct{ Link Link }

func (*ConnectionRemoteOpen) event()  {}
func (*ConnectionRemoteClose) event() {}
func (*SessionRemoteOpen) event()     {}
func (*SessionRemoteClose) event()    {}
func (*LinkRemoteOpen) event()        {}
func (*LinkRemoteDetach) event()      {}
func (*LinkRemoteClose) event()       {}
func (*LinkFlow) event()              {}
func (*DeliveryUpdated) event()       {}
func (*TransportError) event()        {}
func (*ConnectionInit) event()        {}
func (*ConnectionBound) event()       {}
func (*ConnectionUnbound) event()     {}
func (*ConnectionLocalOpen) event()   {}
func (*ConnectionLocalClose) event()  {}
func (*ConnectionFinal) event()       {}
func (*SessionInit) event()           {}
func (*SessionLocalOpen) event()      {}
func (*SessionLocalClose) event()     {}
func (*SessionFinal) event()          {}
func (*LinkInit) event()              {}
func (*LinkLocalOpen) event()         {}
func (*LinkLocalDetach) event()       {}
func (*LinkLocalClose) event()        {}
func (*LinkFinal) event()             {}
