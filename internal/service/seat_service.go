// Package service runs the seat state machine against the seat store.
// Every state change, whether it comes from a request, a sensor or an
// expiring break, goes through one critical section: read the snapshot,
// compute the transition, commit, then adjust the break timer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/seat-tracker/internal/clock"
	"github.com/iliyamo/seat-tracker/internal/model"
	"github.com/iliyamo/seat-tracker/internal/queue"
	"github.com/iliyamo/seat-tracker/internal/seat"
	"github.com/iliyamo/seat-tracker/internal/store"
	"github.com/iliyamo/seat-tracker/internal/timer"
)

// Verifier checks a credential proof for an identity.
type Verifier interface {
	Verify(identity, proof string) bool
}

// EventSink receives an event for every committed transition.  Enqueue
// must not block.
type EventSink interface {
	Enqueue(ev queue.SeatEvent) bool
}

// Options tune a SeatService.  Zero values select the defaults noted on
// each field.
type Options struct {
	Machine       seat.Machine
	Clock         clock.Clock   // clock.Real()
	Grace         time.Duration // timer.DefaultGrace; negative means none
	StoreRetries  int           // 3 attempts per commit
	RetryInterval time.Duration // 50ms initial backoff between attempts
	StoreTimeout  time.Duration // 2s per attempt
	ExpiryRetry   time.Duration // 5s before re-running a failed expiry
	Events        EventSink     // nil disables events
}

// SeatService is the seat engine.  It is safe for concurrent use.
type SeatService struct {
	mu sync.Mutex

	store    *store.SeatStore
	verifier Verifier
	machine  seat.Machine
	clock    clock.Clock
	timers   *timer.Registry
	events   EventSink

	retries       int
	retryInterval time.Duration
	storeTimeout  time.Duration
	expiryRetry   time.Duration
}

// New builds a service over st and re-arms expiry timers for seats that
// were already on break when the mapping was loaded.
func New(st *store.SeatStore, v Verifier, opts Options) *SeatService {
	if st == nil || v == nil {
		panic("nil dependency passed to service.New")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	switch {
	case opts.Grace == 0:
		opts.Grace = timer.DefaultGrace
	case opts.Grace < 0:
		opts.Grace = 0
	}
	if opts.StoreRetries < 1 {
		opts.StoreRetries = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	if opts.ExpiryRetry <= 0 {
		opts.ExpiryRetry = 5 * time.Second
	}
	s := &SeatService{
		store:         st,
		verifier:      v,
		machine:       opts.Machine,
		clock:         opts.Clock,
		timers:        timer.NewRegistry(opts.Clock, opts.Grace),
		events:        opts.Events,
		retries:       opts.StoreRetries,
		retryInterval: opts.RetryInterval,
		storeTimeout:  opts.StoreTimeout,
		expiryRetry:   opts.ExpiryRetry,
	}

	s.mu.Lock()
	for _, cur := range s.store.Snapshot() {
		s.syncTimer(cur)
	}
	s.mu.Unlock()
	return s
}

// Login binds user to seatID.  The seat must exist, the credentials must
// verify, and the user must not occupy any other seat.
func (s *SeatService) Login(ctx context.Context, seatID, user, proof string) (model.Seat, error) {
	if _, ok := s.store.Get(seatID); !ok {
		return model.Seat{}, seat.ErrUnknownSeat
	}
	if !s.verifier.Verify(user, proof) {
		return model.Seat{}, seat.ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if other, ok := FindOccupant(s.store.Snapshot(), user); ok && other != seatID {
		return model.Seat{}, &seat.ElsewhereError{User: user, Seat: other}
	}
	return s.apply(ctx, seatID, seat.Login(user))
}

// Logout frees seatID.  Logging out of a vacant seat succeeds.
func (s *SeatService) Logout(ctx context.Context, seatID string) (model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, seatID, seat.Logout())
}

// StartBreak puts the logged-in user at seatID on a break of the given
// number of minutes.
func (s *SeatService) StartBreak(ctx context.Context, seatID string, minutes int) (model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, seatID, seat.StartBreak(time.Duration(minutes)*time.Minute))
}

// EndBreak returns seatID from a break before it expires.
func (s *SeatService) EndBreak(ctx context.Context, seatID string) (model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, seatID, seat.EndBreak())
}

// ReportSensor applies a raw sensor reading (a color or state name).
func (s *SeatService) ReportSensor(ctx context.Context, seatID, observed string) (model.Seat, error) {
	if _, ok := s.store.Get(seatID); !ok {
		return model.Seat{}, seat.ErrUnknownSeat
	}
	st, err := seat.ParseObserved(observed)
	if err != nil {
		return model.Seat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, seatID, seat.Sensor(st))
}

// Status returns a copy of every seat.
func (s *SeatService) Status() model.Mapping {
	return s.store.Snapshot()
}

// ResetAll makes every seat vacant and cancels all pending breaks.
func (s *SeatService) ResetAll(ctx context.Context) (model.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.NewMapping(s.store.IDs())
	if err := s.commit(ctx, next); err != nil {
		log.Printf("seat: reset failed: %v", err)
		return nil, err
	}
	s.timers.Stop()
	for _, id := range next.IDs() {
		s.emit(seat.ActionReset, seat.SourceAdmin, next[id])
	}
	log.Printf("seat: all %d seats reset to vacant", len(next))
	return next.Clone(), nil
}

// PendingBreak reports the break deadline armed for seatID, if any.
func (s *SeatService) PendingBreak(seatID string) (time.Time, bool) {
	return s.timers.Pending(seatID)
}

// Close cancels every pending break timer.
func (s *SeatService) Close() {
	s.timers.Stop()
}

// apply runs one event against one seat.  The caller must hold s.mu.
func (s *SeatService) apply(ctx context.Context, seatID string, ev seat.Event) (model.Seat, error) {
	snap := s.store.Snapshot()
	cur, ok := snap[seatID]
	if !ok {
		return model.Seat{}, seat.ErrUnknownSeat
	}
	next, err := s.machine.Apply(cur, ev, s.clock.Now())
	if err != nil {
		return cur, err
	}
	if sameSeat(cur, next) {
		s.syncTimer(next)
		return next, nil
	}

	snap[seatID] = next
	if err := s.commit(ctx, snap); err != nil {
		log.Printf("seat: %s %s not committed: %v", seatID, ev.Action, err)
		return cur, err
	}
	s.syncTimer(next)
	s.emit(ev.Action, ev.Source(), next)
	return next, nil
}

// commit saves m, retrying infrastructure failures with exponential
// backoff up to s.retries attempts.
func (s *SeatService) commit(ctx context.Context, m model.Mapping) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxInterval = 10 * s.retryInterval

	op := func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		err := s.store.Commit(attemptCtx, m)
		if err != nil && !errors.Is(err, seat.ErrStoreUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.retries)))
	if err != nil && !errors.Is(err, seat.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", seat.ErrStoreUnavailable, err)
	}
	return err
}

// syncTimer makes the timer registry agree with cur: exactly one pending
// expiry at BreakUntil while on break, none otherwise.  The caller must
// hold s.mu.
func (s *SeatService) syncTimer(cur model.Seat) {
	if cur.State != model.StateBreak || cur.BreakUntil == nil {
		s.timers.Cancel(cur.ID)
		return
	}
	if at, ok := s.timers.Pending(cur.ID); ok && at.Equal(*cur.BreakUntil) {
		return
	}
	id := cur.ID
	s.timers.Schedule(id, *cur.BreakUntil, func() { s.expire(id) })
}

// expire is the timer callback.  It re-reads the seat and only ends the
// break if the seat is still on break and the deadline has passed; any
// other state means a later event already took over.
func (s *SeatService) expire(seatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.store.Get(seatID)
	if !ok || cur.State != model.StateBreak {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout*time.Duration(s.retries))
	defer cancel()
	if _, err := s.apply(ctx, seatID, seat.Expire()); err != nil {
		log.Printf("seat: break expiry for %s failed, retrying in %s: %v", seatID, s.expiryRetry, err)
		s.timers.Schedule(seatID, s.clock.Now().Add(s.expiryRetry), func() { s.expire(seatID) })
	}
}

func (s *SeatService) emit(action seat.Action, source seat.Source, cur model.Seat) {
	if s.events == nil {
		return
	}
	ev := queue.SeatEvent{
		ID:       uuid.NewString(),
		Seat:     cur.ID,
		Action:   string(action),
		Source:   string(source),
		State:    string(cur.State),
		Occupant: cur.Occupant,
		At:       s.clock.Now().UTC().Format(time.RFC3339),
	}
	if cur.BreakUntil != nil {
		ev.BreakUntil = cur.BreakUntil.UTC().Format(time.RFC3339)
	}
	s.events.Enqueue(ev)
}

func sameSeat(a, b model.Seat) bool {
	if a.ID != b.ID || a.State != b.State || a.Occupant != b.Occupant {
		return false
	}
	if a.BreakUntil == nil || b.BreakUntil == nil {
		return a.BreakUntil == nil && b.BreakUntil == nil
	}
	return a.BreakUntil.Equal(*b.BreakUntil)
}
