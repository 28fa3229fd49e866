package amqp

import "ferrite.io/amqp/engine"

// registry maps engine endpoints to their wrappers. Entries are absent until
// a wrapper binds itself: a remote-initiated session, for example, has no
// entry until the connection handler accepts it. Only the bridge loop
// goroutine touches the registry.
type registry struct {
	sessions   map[engine.Session]SessionHandler
	links      map[engine.Link]LinkHandler
	deliveries map[engine.Delivery]DeliveryHandler
}

func newRegistry() *registry {
	return &registry{
		sessions:   make(map[engine.Session]SessionHandler),
		links:      make(map[engine.Link]LinkHandler),
		deliveries: make(map[engine.Delivery]DeliveryHandler),
	}
}

func (r *registry) session(s engine.Session) SessionHandler {
	return r.sessions[s]
}

func (r *registry) bindSession(s engine.Session, h SessionHandler) {
	r.sessions[s] = h
}

func (r *registry) unbindSession(s engine.Session) {
	delete(r.sessions, s)
}

func (r *registry) link(l engine.Link) LinkHandler {
	return r.links[l]
}

func (r *registry) bindLink(l engine.Link, h LinkHandler) {
	r.links[l] = h
}

func (r *registry) unbindLink(l engine.Link) {
	delete(r.links, l)
}

func (r *registry) delivery(d engine.Delivery) DeliveryHandler {
	return r.deliveries[d]
}

func (r *registry) bindDelivery(d engine.Delivery, h DeliveryHandler) {
	r.deliveries[d] = h
}

func (r *registry) unbindDelivery(d engine.Delivery) {
	delete(r.deliveries, d)
}
