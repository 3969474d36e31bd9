package events

// Subscriber is an interface for event consumers.
// Implementations adapt the event stream to a specific transport.
type Subscriber interface {
	// Send delivers an event to the subscriber. It must not block on slow
	// clients; the broker calls it from its event loop.
	Send(Event) error

	// Close cleanly shuts down the subscriber.
	Close() error
}
