package bus

import "time"

// Event is the value handed to every listener of a single Fire call.
//
// Payload and Source come from the caller. Timestamp is stamped by Fire
// just before the first listener runs; a Source left empty is filled with
// the bus default (see WithSource).
type Event struct {
	Payload   any    `json:"payload,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// NewEvent returns an Event carrying payload, fired from source.
func NewEvent(source string, payload any) *Event {
	return &Event{Payload: payload, Source: source}
}

// Time returns Timestamp as a time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
