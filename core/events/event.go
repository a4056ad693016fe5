package events

// Event is anything the host can broadcast to downstream observers.
type Event interface {
	EventType() string
}

// Emitter forwards events to subscribers (indexers, webhooks, test probes).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards everything. Engines default to it so event wiring
// stays optional.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
