// Package store holds the authoritative seat mapping.  The in-memory copy
// only changes after the persister has accepted the new mapping, so a
// failed save never leaves memory and storage disagreeing.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/iliyamo/seat-tracker/internal/model"
	"github.com/iliyamo/seat-tracker/internal/repository"
	"github.com/iliyamo/seat-tracker/internal/seat"
)

// Persister loads and saves the complete seat mapping.
type Persister interface {
	Load(ctx context.Context) (model.Mapping, error)
	Save(ctx context.Context, m model.Mapping) error
}

// SeatStore owns the current mapping for a fixed set of seat ids.
type SeatStore struct {
	persister Persister
	ids       []string

	mu      sync.RWMutex
	current model.Mapping
}

// Open loads the mapping from p.  When nothing has been saved yet an
// all-vacant mapping is synthesized.  The loaded mapping is reduced to
// exactly ids, each seat is normalized, and the result is saved back.
func Open(ctx context.Context, p Persister, ids []string) (*SeatStore, error) {
	if len(ids) == 0 {
		return nil, errors.New("store: no seat ids configured")
	}
	loaded, err := p.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrNoSeatState):
		log.Printf("store: no saved state, starting with %d vacant seats", len(ids))
		loaded = model.Mapping{}
	case err != nil:
		return nil, fmt.Errorf("store: load: %w", err)
	}

	m := make(model.Mapping, len(ids))
	for _, id := range ids {
		s, ok := loaded[id]
		if !ok {
			m[id] = model.Vacant(id)
			continue
		}
		s.ID = id
		m[id] = seat.Normalize(s)
	}
	for id := range loaded {
		if _, ok := m[id]; !ok {
			log.Printf("store: dropping unconfigured seat %q", id)
		}
	}

	st := &SeatStore{persister: p, ids: append([]string(nil), ids...)}
	if err := p.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("store: initial save: %w", err)
	}
	st.current = m
	return st, nil
}

// IDs returns the configured seat ids.
func (s *SeatStore) IDs() []string { return append([]string(nil), s.ids...) }

// Snapshot returns a deep copy of the current mapping.
func (s *SeatStore) Snapshot() model.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Get returns one seat and whether it exists.
func (s *SeatStore) Get(id string) (model.Seat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.current[id]
	return st.Clone(), ok
}

// Commit persists m and then makes it current.  m must contain exactly the
// configured seats.  On failure the current mapping is unchanged and the
// error wraps seat.ErrStoreUnavailable.
func (s *SeatStore) Commit(ctx context.Context, m model.Mapping) error {
	if len(m) != len(s.ids) {
		return fmt.Errorf("store: commit has %d seats, want %d", len(m), len(s.ids))
	}
	for _, id := range s.ids {
		if _, ok := m[id]; !ok {
			return fmt.Errorf("store: commit missing seat %q", id)
		}
	}
	next := m.Clone()
	if err := s.persister.Save(ctx, next); err != nil {
		return fmt.Errorf("%w: %v", seat.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}
