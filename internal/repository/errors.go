// Package repository defines error types that are reused across the seat
// persisters and the credential store.  These sentinel values allow the
// store and handlers to tell "nothing saved yet" apart from real failures.
package repository

import "errors"

// ErrNoSeatState is returned by Load when no seat mapping has been saved
// yet.  The store answers it by synthesizing an all-vacant mapping.
var ErrNoSeatState = errors.New("no saved seat state")

// ErrUnknownUser is returned when a credential lookup names a user that
// is not configured.
var ErrUnknownUser = errors.New("unknown user")
