package model

import (
    "encoding/json"
    "sort"
    "time"
)

// State is the occupancy state of a seat.  The string values are the
// ones written to the seat data file and returned by the status API.
type State string

const (
    StateVacant   State = "vacant"
    StateOccupied State = "occupied"
    StateBreak    State = "break"
)

// DeviceOccupant is the occupant recorded when a sensor detected someone
// at the seat but no user has logged in yet.
const DeviceOccupant = "device"

// Seat describes one tracked workstation.  Seats are fixed at startup and
// only ever transition between states; they are never created or removed
// while the service is running.
//
// Fields:
//  ID         – stable seat identifier (e.g. seat1).
//  State      – vacant, occupied or break.
//  Occupant   – logged-in user, DeviceOccupant, or empty when vacant.
//  BreakUntil – end of the current break; nil unless State is break.
type Seat struct {
    ID         string
    State      State
    Occupant   string
    BreakUntil *time.Time
}

// HasHuman reports whether a user (not just a sensor) is bound to the seat.
func (s Seat) HasHuman() bool {
    return s.Occupant != "" && s.Occupant != DeviceOccupant
}

// Vacant returns an empty seat with the given id.
func Vacant(id string) Seat {
    return Seat{ID: id, State: StateVacant}
}

// Clone returns a copy that shares no memory with s.
func (s Seat) Clone() Seat {
    if s.BreakUntil != nil {
        t := *s.BreakUntil
        s.BreakUntil = &t
    }
    return s
}

// seatWire is the on-disk and over-the-wire layout of a seat.  The break
// end is stored as Unix milliseconds to stay compatible with existing
// data files.
type seatWire struct {
    Status     State   `json:"status"`
    User       *string `json:"user"`
    BreakUntil *int64  `json:"break_until"`
}

// MarshalJSON encodes the seat without its id; ids are the keys of a Mapping.
func (s Seat) MarshalJSON() ([]byte, error) {
    w := seatWire{Status: s.State}
    if s.Occupant != "" {
        u := s.Occupant
        w.User = &u
    }
    if s.BreakUntil != nil {
        ms := s.BreakUntil.UnixMilli()
        w.BreakUntil = &ms
    }
    return json.Marshal(w)
}

// UnmarshalJSON decodes the wire layout.  The ID is filled in by Mapping.
func (s *Seat) UnmarshalJSON(b []byte) error {
    var w seatWire
    if err := json.Unmarshal(b, &w); err != nil {
        return err
    }
    s.State = w.Status
    s.Occupant = ""
    if w.User != nil {
        s.Occupant = *w.User
    }
    s.BreakUntil = nil
    if w.BreakUntil != nil {
        t := time.UnixMilli(*w.BreakUntil).UTC()
        s.BreakUntil = &t
    }
    return nil
}

// Mapping is the full set of seats keyed by seat id.
type Mapping map[string]Seat

// NewMapping returns an all-vacant mapping for the given seat ids.
func NewMapping(ids []string) Mapping {
    m := make(Mapping, len(ids))
    for _, id := range ids {
        m[id] = Vacant(id)
    }
    return m
}

// Clone deep-copies the mapping.
func (m Mapping) Clone() Mapping {
    out := make(Mapping, len(m))
    for id, s := range m {
        out[id] = s.Clone()
    }
    return out
}

// IDs returns the seat ids in sorted order.
func (m Mapping) IDs() []string {
    ids := make([]string, 0, len(m))
    for id := range m {
        ids = append(ids, id)
    }
    sort.Strings(ids)
    return ids
}

// UnmarshalJSON decodes a mapping and copies each key into the seat ID.
func (m *Mapping) UnmarshalJSON(b []byte) error {
    raw := map[string]Seat{}
    if err := json.Unmarshal(b, &raw); err != nil {
        return err
    }
    out := make(Mapping, len(raw))
    for id, s := range raw {
        s.ID = id
        out[id] = s
    }
    *m = out
    return nil
}
