package seat

import (
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/seat-tracker/internal/model"
)

// LoginPolicy selects the precondition for a human login.
type LoginPolicy int

const (
    // PolicyDetectFirst requires a sensor to have reported the seat
    // occupied before a user can bind to it.
    PolicyDetectFirst LoginPolicy = iota
    // PolicyWalkUp lets a user log in at a vacant seat directly.
    PolicyWalkUp
)

// ParseLoginPolicy accepts "detect" or "walkup".
func ParseLoginPolicy(s string) (LoginPolicy, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "detect", "detect_first":
        return PolicyDetectFirst, nil
    case "walkup", "walk_up":
        return PolicyWalkUp, nil
    }
    return 0, fmt.Errorf("unknown login policy %q", s)
}

func (p LoginPolicy) String() string {
    if p == PolicyWalkUp {
        return "walkup"
    }
    return "detect"
}

// Machine holds the tunables of the seat state machine.  Apply is pure:
// it never reads the clock and never touches shared state.
type Machine struct {
    Policy      LoginPolicy
    MaxBreak    time.Duration // zero means unbounded
    SensorBreak time.Duration // break length when a sensor reports a break
}

// Apply computes the seat that results from ev at time now.  On error the
// returned seat is s unchanged.  Transitions that do not change the seat
// (repeated logout, repeated sensor report, early expiry) return s and nil.
func (m Machine) Apply(s model.Seat, ev Event, now time.Time) (model.Seat, error) {
    var (
        next model.Seat
        err  error
    )
    switch ev.Action {
    case ActionLogin:
        next, err = m.login(s, ev.User)
    case ActionLogout:
        next = model.Vacant(s.ID)
    case ActionBreak:
        next, err = m.startBreak(s, ev.Duration, now)
    case ActionEndBreak:
        next, err = endBreak(s)
    case ActionSensor:
        next, err = m.sensor(s, ev.Observed, now)
    case ActionExpire:
        next = expire(s, now)
    default:
        err = fmt.Errorf("unsupported seat action %q", ev.Action)
    }
    if err != nil {
        return s, err
    }
    return next, nil
}

func (m Machine) login(s model.Seat, user string) (model.Seat, error) {
    if user == "" || user == model.DeviceOccupant {
        return s, ErrInvalidCredentials
    }
    if m.Policy == PolicyWalkUp {
        switch {
        case s.State == model.StateVacant:
            return model.Seat{ID: s.ID, State: model.StateOccupied, Occupant: user}, nil
        case s.Occupant == user:
            return s, nil
        }
        return s, ErrSeatNotVacant
    }

    switch s.State {
    case model.StateVacant:
        return s, ErrSeatVacant
    case model.StateBreak:
        if s.HasHuman() && s.Occupant != user {
            return s, ErrSeatOccupiedByOther
        }
        return s, ErrSeatAlreadyOnBreak
    }
    if s.Occupant == user {
        return s, nil
    }
    if s.HasHuman() {
        return s, ErrSeatOccupiedByOther
    }
    s.Occupant = user
    return s, nil
}

func (m Machine) startBreak(s model.Seat, d time.Duration, now time.Time) (model.Seat, error) {
    if d <= 0 || (m.MaxBreak > 0 && d > m.MaxBreak) {
        return s, ErrInvalidDuration
    }
    if s.State == model.StateBreak {
        return s, ErrSeatAlreadyOnBreak
    }
    if s.State != model.StateOccupied || !s.HasHuman() {
        return s, ErrNotLoggedIn
    }
    return onBreak(s, now.Add(d)), nil
}

func endBreak(s model.Seat) (model.Seat, error) {
    if s.State != model.StateBreak {
        return s, ErrSeatNotOnBreak
    }
    return resume(s), nil
}

func (m Machine) sensor(s model.Seat, observed model.State, now time.Time) (model.Seat, error) {
    switch observed {
    case model.StateVacant:
        return model.Vacant(s.ID), nil
    case model.StateOccupied:
        switch s.State {
        case model.StateVacant:
            return model.Seat{ID: s.ID, State: model.StateOccupied, Occupant: model.DeviceOccupant}, nil
        case model.StateBreak:
            return resume(s), nil
        }
        return s, nil
    case model.StateBreak:
        if s.State == model.StateBreak {
            return s, nil
        }
        d := m.SensorBreak
        if d <= 0 {
            return s, ErrInvalidDuration
        }
        if s.State == model.StateVacant {
            s.Occupant = model.DeviceOccupant
        }
        return onBreak(s, now.Add(d)), nil
    }
    return s, ErrInvalidSensorState
}

// expire ends a break whose time has passed.  Anything else is left as is:
// the break may already have been ended or replaced by another event.
func expire(s model.Seat, now time.Time) model.Seat {
    if s.State != model.StateBreak || s.BreakUntil == nil || now.Before(*s.BreakUntil) {
        return s
    }
    return resume(s)
}

func onBreak(s model.Seat, until time.Time) model.Seat {
    u := until.UTC()
    return model.Seat{ID: s.ID, State: model.StateBreak, Occupant: s.Occupant, BreakUntil: &u}
}

// resume leaves a break: occupied if anyone is bound to the seat.
func resume(s model.Seat) model.Seat {
    if s.Occupant == "" {
        return model.Vacant(s.ID)
    }
    return model.Seat{ID: s.ID, State: model.StateOccupied, Occupant: s.Occupant}
}

// Normalize repairs a seat read from storage so that it satisfies the
// seat invariants: a break always has an end, only a break has an end,
// and a vacant seat has no occupant.  Unknown states become vacant.
func Normalize(s model.Seat) model.Seat {
    switch s.State {
    case model.StateVacant:
        return model.Vacant(s.ID)
    case model.StateOccupied:
        s.BreakUntil = nil
        return s
    case model.StateBreak:
        if s.BreakUntil == nil {
            return resume(s)
        }
        return s
    }
    return model.Vacant(s.ID)
}

// CheckInvariants returns an error describing the first seat invariant
// that s violates, or nil.
func CheckInvariants(s model.Seat) error {
    if (s.BreakUntil != nil) != (s.State == model.StateBreak) {
        return fmt.Errorf("%s: break_until set=%t with state %s", s.ID, s.BreakUntil != nil, s.State)
    }
    if s.State == model.StateVacant && s.Occupant != "" {
        return fmt.Errorf("%s: vacant seat has occupant %q", s.ID, s.Occupant)
    }
    return nil
}
