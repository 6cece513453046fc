// Package events carries queue lifecycle transitions to any interested
// subscriber — currently the admin WebSocket stream of §6.1.
package events

import "time"

// Kind enumerates the lifecycle transitions a QueueEntry can emit.
type Kind string

const (
	Enqueued   Kind = "enqueued"
	Dispatched Kind = "dispatched"
	Matched    Kind = "matched"
	EarlyIV    Kind = "early_iv"
	TimedOut   Kind = "timed_out"
	Expired    Kind = "expired"
)

// Event is a single published transition.
type Event struct {
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"`
	SpeciesID int       `json:"species_id"`
	SeenType  string    `json:"seen_type"`
	ListType  string    `json:"list_type"`
	Priority  int       `json:"priority"`
	At        time.Time `json:"at"`
}

// Sink receives published events. Implementations must not block.
type Sink interface {
	Publish(e Event)
}

// Func adapts a plain function to Sink.
type Func func(Event)

func (f Func) Publish(e Event) { f(e) }

// Noop discards every event; it is a PriorityQueue's sink until
// SetEventSink attaches another one.
var Noop Sink = Func(func(Event) {})
