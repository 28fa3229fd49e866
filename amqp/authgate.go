package amqp

// authGate tracks which stage of its life the inbound byte stream is in.
// A bridge constructed with an authenticator starts out authenticating:
// every pump cycle routes through the authenticator with socket reads
// paused. The gate becomes transparent exactly once, on the negotiation
// step that reports completion, and stays transparent for good.
type authGate struct {
	auth        Authenticator
	outstanding bool
}

func newAuthGate(auth Authenticator) *authGate {
	return &authGate{auth: auth}
}

// attached reports whether an authenticator still intercepts inbound data.
func (g *authGate) attached() bool {
	return g.auth != nil
}

// begin marks a negotiation step in flight and returns the authenticator
// that drives it.
func (g *authGate) begin() Authenticator {
	g.outstanding = true
	return g.auth
}

// pending reports whether a negotiation step is waiting for its result.
func (g *authGate) pending() bool {
	return g.outstanding
}

// finish records the result of a negotiation step. It returns true exactly
// once, on the step that reported completion; that step detaches the
// authenticator and no later call can re-attach it.
func (g *authGate) finish(complete bool) bool {
	g.outstanding = false
	if !complete || g.auth == nil {
		return false
	}
	g.auth = nil
	return true
}
