// Package timer keeps at most one pending break-expiry callback per seat.
package timer

import (
	"sync"
	"time"

	"github.com/iliyamo/seat-tracker/internal/clock"
)

// DefaultGrace is added to every deadline so that a callback never fires
// a moment before the deadline it was scheduled for.
const DefaultGrace = time.Second

// Registry schedules and cancels deferred callbacks keyed by seat id.
// Scheduling a seat that already has a pending callback replaces it.
type Registry struct {
	clock clock.Clock
	grace time.Duration

	mu      sync.Mutex
	gen     uint64
	pending map[string]entry
}

type entry struct {
	gen   uint64
	at    time.Time
	timer clock.Timer
}

// NewRegistry returns an empty registry.  A negative grace is treated as zero.
func NewRegistry(c clock.Clock, grace time.Duration) *Registry {
	if grace < 0 {
		grace = 0
	}
	return &Registry{clock: c, grace: grace, pending: make(map[string]entry)}
}

// Schedule arranges for fn to run once at at+grace, cancelling any
// callback already pending for seatID.  fn runs without the registry lock
// held.  A callback that was superseded after its timer fired is dropped.
func (r *Registry) Schedule(seatID string, at time.Time, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked(seatID)
	r.gen++
	gen := r.gen
	d := at.Sub(r.clock.Now()) + r.grace
	t := r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		cur, ok := r.pending[seatID]
		if !ok || cur.gen != gen {
			r.mu.Unlock()
			return
		}
		delete(r.pending, seatID)
		r.mu.Unlock()
		fn()
	})
	r.pending[seatID] = entry{gen: gen, at: at, timer: t}
}

// Cancel stops the pending callback for seatID.  It reports whether one
// was pending.
func (r *Registry) Cancel(seatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelLocked(seatID)
}

func (r *Registry) cancelLocked(seatID string) bool {
	e, ok := r.pending[seatID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.pending, seatID)
	return true
}

// Pending reports whether seatID has a scheduled callback and its deadline
// (without grace).
func (r *Registry) Pending(seatID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[seatID]
	return e.at, ok
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop cancels every pending callback.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.pending {
		r.cancelLocked(id)
	}
}
