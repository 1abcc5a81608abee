// Package queue defines message payloads exchanged over the message broker.
package queue

// SeatQueueName is the durable queue seat events are published to.
const SeatQueueName = "seat.events"

// SeatEvent is published after every committed seat transition.  It carries
// the resulting seat so downstream consumers can log, notify, or build
// usage statistics without calling back into the service.
type SeatEvent struct {
    ID         string `json:"id"`
    Seat       string `json:"seat"`
    Action     string `json:"action"`   // login, logout, break, end_break, sensor, expire, reset
    Source     string `json:"source"`   // human, sensor, timer, admin
    State      string `json:"state"`    // resulting state
    Occupant   string `json:"occupant,omitempty"`
    BreakUntil string `json:"break_until,omitempty"` // RFC3339
    At         string `json:"at"`                    // RFC3339
}
