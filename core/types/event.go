package types

// Event is a typed state-change notification with flat string attributes,
// suitable for indexers and log sinks.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
