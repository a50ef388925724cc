package types

// Event represents a structured audit entry emitted by a mutating operation.
// Attributes carry the affected identities, amounts and timestamps as strings
// so downstream consumers never need module-specific decoding.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
