package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/seat-tracker/internal/model"
	"github.com/iliyamo/seat-tracker/internal/repository"
	"github.com/iliyamo/seat-tracker/internal/seat"
)

// memPersister is an in-memory Persister whose Save can be made to fail.
type memPersister struct {
	saved   model.Mapping
	saves   int
	loadErr error
	saveErr error
}

func (p *memPersister) Load(context.Context) (model.Mapping, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.saved == nil {
		return nil, repository.ErrNoSeatState
	}
	return p.saved.Clone(), nil
}

func (p *memPersister) Save(_ context.Context, m model.Mapping) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	p.saved = m.Clone()
	return nil
}

var ids = []string{"seat1", "seat2"}

func TestOpenSynthesizesVacantMapping(t *testing.T) {
	p := &memPersister{}
	st, err := Open(context.Background(), p, ids)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap := st.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d seats, want 2", len(snap))
	}
	for _, id := range ids {
		if s := snap[id]; s.ID != id || s.State != model.StateVacant {
			t.Errorf("%s = %+v", id, s)
		}
	}
	if p.saves != 1 {
		t.Errorf("saves = %d, want 1 (initial mapping persisted)", p.saves)
	}
}

func TestOpenNormalizesLoadedMapping(t *testing.T) {
	p := &memPersister{saved: model.Mapping{
		"seat1": {ID: "seat1", State: model.StateBreak, Occupant: "student"},
		"old":   {ID: "old", State: model.StateOccupied, Occupant: "x"},
	}}
	st, err := Open(context.Background(), p, ids)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap := st.Snapshot()
	if _, ok := snap["old"]; ok {
		t.Error("unconfigured seat kept")
	}
	if s := snap["seat1"]; s.State != model.StateOccupied || s.Occupant != "student" {
		t.Errorf("seat1 = %+v, want occupied by student", s)
	}
	if s := snap["seat2"]; s.State != model.StateVacant {
		t.Errorf("seat2 = %+v, want vacant", s)
	}
}

func TestOpenLoadError(t *testing.T) {
	p := &memPersister{loadErr: errors.New("disk on fire")}
	if _, err := Open(context.Background(), p, ids); err == nil {
		t.Fatal("Open succeeded despite load error")
	}
}

func TestOpenRequiresSeats(t *testing.T) {
	if _, err := Open(context.Background(), &memPersister{}, nil); err == nil {
		t.Fatal("Open succeeded with no seat ids")
	}
}

func TestCommitFailureKeepsState(t *testing.T) {
	p := &memPersister{}
	st, err := Open(context.Background(), p, ids)
	if err != nil {
		t.Fatal(err)
	}
	next := st.Snapshot()
	next["seat1"] = model.Seat{ID: "seat1", State: model.StateOccupied, Occupant: model.DeviceOccupant}

	p.saveErr = errors.New("write failed")
	err = st.Commit(context.Background(), next)
	if !errors.Is(err, seat.ErrStoreUnavailable) {
		t.Fatalf("Commit error = %v, want ErrStoreUnavailable", err)
	}
	if s, _ := st.Get("seat1"); s.State != model.StateVacant {
		t.Errorf("seat1 changed despite failed commit: %+v", s)
	}

	p.saveErr = nil
	if err := st.Commit(context.Background(), next); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if s, _ := st.Get("seat1"); s.State != model.StateOccupied {
		t.Errorf("seat1 = %+v after commit", s)
	}
	if p.saved["seat1"].State != model.StateOccupied {
		t.Errorf("persisted seat1 = %+v", p.saved["seat1"])
	}
}

func TestCommitRejectsWrongSeatSet(t *testing.T) {
	st, err := Open(context.Background(), &memPersister{}, ids)
	if err != nil {
		t.Fatal(err)
	}
	bad := model.Mapping{"seat1": model.Vacant("seat1"), "seat3": model.Vacant("seat3")}
	if err := st.Commit(context.Background(), bad); err == nil {
		t.Fatal("Commit accepted a mapping with an unknown seat")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	st, err := Open(context.Background(), &memPersister{}, ids)
	if err != nil {
		t.Fatal(err)
	}
	until := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next := st.Snapshot()
	next["seat1"] = model.Seat{ID: "seat1", State: model.StateBreak, Occupant: "student", BreakUntil: &until}
	if err := st.Commit(context.Background(), next); err != nil {
		t.Fatal(err)
	}

	*next["seat1"].BreakUntil = until.Add(time.Hour)
	snap := st.Snapshot()
	snap["seat2"] = model.Seat{ID: "seat2", State: model.StateOccupied}

	got := st.Snapshot()
	if !got["seat1"].BreakUntil.Equal(until) {
		t.Error("caller mutation leaked into committed state")
	}
	if got["seat2"].State != model.StateVacant {
		t.Error("snapshot mutation leaked into store")
	}
}
