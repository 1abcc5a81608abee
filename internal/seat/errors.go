// Package seat defines error values returned by the seat state machine and
// the service built on it.  Each error belongs to a Kind so that callers
// (HTTP handlers, the MQTT subscriber) can decide how to report it without
// matching on every sentinel.
package seat

import (
    "errors"
    "fmt"
)

// Kind classifies an error returned by a seat operation.
type Kind int

const (
    KindNone Kind = iota
    // KindValidation covers malformed input: unknown seat, bad duration.
    KindValidation
    // KindPolicy covers well-formed requests the current state rejects.
    KindPolicy
    // KindInfrastructure covers persistence failures; these are retryable.
    KindInfrastructure
)

func (k Kind) String() string {
    switch k {
    case KindValidation:
        return "validation"
    case KindPolicy:
        return "policy"
    case KindInfrastructure:
        return "infrastructure"
    }
    return "none"
}

// Validation errors.
var (
    ErrUnknownSeat        = errors.New("unknown seat")
    ErrInvalidDuration    = errors.New("invalid break duration")
    ErrInvalidSensorState = errors.New("invalid sensor state")
)

// Policy rejections.
var (
    ErrInvalidCredentials   = errors.New("invalid credentials")
    ErrSeatVacant           = errors.New("seat vacant, must be detected occupied first")
    ErrSeatNotVacant        = errors.New("seat already occupied")
    ErrSeatOccupiedByOther  = errors.New("seat occupied by another user")
    ErrUserAlreadyElsewhere = errors.New("user already logged in on another seat")
    ErrSeatAlreadyOnBreak   = errors.New("seat already on break")
    ErrSeatNotOnBreak       = errors.New("seat not on break")
    ErrNotLoggedIn          = errors.New("no user logged in at seat")
)

// ErrStoreUnavailable is returned when a computed transition could not be
// persisted.  The seat state is left as it was before the request.
var ErrStoreUnavailable = errors.New("seat store unavailable")

// ElsewhereError names the seat a user already occupies.  It matches
// ErrUserAlreadyElsewhere with errors.Is.
type ElsewhereError struct {
    User string
    Seat string
}

func (e *ElsewhereError) Error() string {
    return fmt.Sprintf("user %s already logged in on %s", e.User, e.Seat)
}

func (e *ElsewhereError) Unwrap() error { return ErrUserAlreadyElsewhere }

// KindOf reports the Kind of err, or KindNone for nil and unknown errors.
func KindOf(err error) Kind {
    switch {
    case err == nil:
        return KindNone
    case errors.Is(err, ErrUnknownSeat),
        errors.Is(err, ErrInvalidDuration),
        errors.Is(err, ErrInvalidSensorState):
        return KindValidation
    case errors.Is(err, ErrInvalidCredentials),
        errors.Is(err, ErrSeatVacant),
        errors.Is(err, ErrSeatNotVacant),
        errors.Is(err, ErrSeatOccupiedByOther),
        errors.Is(err, ErrUserAlreadyElsewhere),
        errors.Is(err, ErrSeatAlreadyOnBreak),
        errors.Is(err, ErrSeatNotOnBreak),
        errors.Is(err, ErrNotLoggedIn):
        return KindPolicy
    case errors.Is(err, ErrStoreUnavailable):
        return KindInfrastructure
    }
    return KindNone
}
