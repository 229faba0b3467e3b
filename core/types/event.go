package types

// Event is the wire form of a typed state change. Attributes are flat string
// pairs so downstream consumers (RPC subscribers, auditors) need no schema.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
