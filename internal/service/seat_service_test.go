package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/seat-tracker/internal/clock"
	"github.com/iliyamo/seat-tracker/internal/model"
	"github.com/iliyamo/seat-tracker/internal/queue"
	"github.com/iliyamo/seat-tracker/internal/repository"
	"github.com/iliyamo/seat-tracker/internal/seat"
	"github.com/iliyamo/seat-tracker/internal/store"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// fakePersister keeps the saved mapping in memory and fails the next
// failNext saves.
type fakePersister struct {
	mu       sync.Mutex
	saved    model.Mapping
	saves    int
	failNext int
}

func (p *fakePersister) Load(context.Context) (model.Mapping, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		return nil, repository.ErrNoSeatState
	}
	return p.saved.Clone(), nil
}

func (p *fakePersister) Save(_ context.Context, m model.Mapping) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("disk unavailable")
	}
	p.saves++
	p.saved = m.Clone()
	return nil
}

func (p *fakePersister) fail(n int) {
	p.mu.Lock()
	p.failNext = n
	p.mu.Unlock()
}

type fakeVerifier map[string]string

func (v fakeVerifier) Verify(identity, proof string) bool {
	want, ok := v[identity]
	return ok && proof != "" && want == proof
}

type recordingEvents struct {
	mu     sync.Mutex
	events []queue.SeatEvent
}

func (r *recordingEvents) Enqueue(ev queue.SeatEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingEvents) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Seat + ":" + ev.Action
	}
	return out
}

type harness struct {
	svc       *SeatService
	clock     *clock.FakeClock
	persister *fakePersister
	events    *recordingEvents
}

var users = fakeVerifier{"student": "1234", "admin": "5678", "guest": "abcd"}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, &fakePersister{}, seat.PolicyDetectFirst)
}

func newHarnessWith(t *testing.T, p *fakePersister, policy seat.LoginPolicy) *harness {
	t.Helper()
	c := clock.Fake(epoch)
	st, err := store.Open(context.Background(), p, []string{"seat1", "seat2"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	ev := &recordingEvents{}
	svc := New(st, users, Options{
		Machine:       seat.Machine{Policy: policy, MaxBreak: 4 * time.Hour, SensorBreak: 15 * time.Minute},
		Clock:         c,
		RetryInterval: time.Millisecond,
		ExpiryRetry:   5 * time.Second,
		Events:        ev,
	})
	t.Cleanup(svc.Close)
	return &harness{svc: svc, clock: c, persister: p, events: ev}
}

func (h *harness) seat(t *testing.T, id string) model.Seat {
	t.Helper()
	s, ok := h.svc.Status()[id]
	if !ok {
		t.Fatalf("seat %s missing from status", id)
	}
	return s
}

func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()
	seen := map[string]string{}
	for id, s := range h.svc.Status() {
		if err := seat.CheckInvariants(s); err != nil {
			t.Errorf("invariant: %v", err)
		}
		if s.HasHuman() && s.State != model.StateVacant {
			if other, dup := seen[s.Occupant]; dup {
				t.Errorf("user %s occupies both %s and %s", s.Occupant, other, id)
			}
			seen[s.Occupant] = id
		}
		_, pending := h.svc.PendingBreak(id)
		if pending != (s.State == model.StateBreak) {
			t.Errorf("%s: timer pending=%t with state %s", id, pending, s.State)
		}
	}
}

// mustOK returns a checker for a (seat, error) result.
func mustOK(t *testing.T) func(model.Seat, error) {
	t.Helper()
	return func(_ model.Seat, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func expectState(t *testing.T, s model.Seat, state model.State, occupant string) {
	t.Helper()
	if s.State != state || s.Occupant != occupant {
		t.Fatalf("%s = {%s %q}, want {%s %q}", s.ID, s.State, s.Occupant, state, occupant)
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")

	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, model.DeviceOccupant)

	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")

	s, err := h.svc.StartBreak(ctx, "seat1", 5)
	if err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	expectState(t, s, model.StateBreak, "student")
	if want := epoch.Add(5 * time.Minute); s.BreakUntil == nil || !s.BreakUntil.Equal(want) {
		t.Fatalf("break_until = %v, want %v", s.BreakUntil, want)
	}
	h.checkInvariants(t)

	h.clock.Advance(5*time.Minute + time.Second)
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	h.checkInvariants(t)

	mustOK(t)(h.svc.Logout(ctx, "seat1"))
	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")
	h.checkInvariants(t)

	want := []string{"seat1:sensor", "seat1:login", "seat1:break", "seat1:expire", "seat1:logout"}
	got := h.events.actions()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if p := h.persister.saved["seat1"]; p.State != model.StateVacant {
		t.Errorf("persisted seat1 = %+v, want vacant", p)
	}
}

func TestBreakExpiryTiming(t *testing.T) {
	tests := []struct {
		name     string
		login    bool
		wantBack model.State
		wantOcc  string
	}{
		{"human occupant returns to occupied", true, model.StateOccupied, "student"},
		{"sensor-only break returns to occupied by device", false, model.StateOccupied, model.DeviceOccupant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "occupied"))
			var until time.Duration
			if tt.login {
				mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
				mustOK(t)(h.svc.StartBreak(ctx, "seat1", 1))
				until = time.Minute
			} else {
				mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "yellow"))
				until = 15 * time.Minute
			}

			h.clock.Advance(until - time.Second)
			if s := h.seat(t, "seat1"); s.State != model.StateBreak {
				t.Fatalf("left break early: %+v", s)
			}
			h.clock.Advance(2 * time.Second)
			expectState(t, h.seat(t, "seat1"), tt.wantBack, tt.wantOcc)
			h.checkInvariants(t)
		})
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))

	for i := 0; i < 2; i++ {
		s, err := h.svc.Logout(ctx, "seat1")
		if err != nil {
			t.Fatalf("logout %d: %v", i+1, err)
		}
		expectState(t, s, model.StateVacant, "")
	}
	if got := h.events.actions(); got[len(got)-1] != "seat1:logout" || len(got) != 3 {
		t.Errorf("events = %v, want exactly one logout event", got)
	}
}

func TestSensorVacantIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 10))

	for i := 0; i < 2; i++ {
		s, err := h.svc.ReportSensor(ctx, "seat1", "green")
		if err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
		expectState(t, s, model.StateVacant, "")
		if _, pending := h.svc.PendingBreak("seat1"); pending {
			t.Fatalf("timer still pending after report %d", i+1)
		}
	}
	if n := h.clock.PendingCount(); n != 0 {
		t.Errorf("clock has %d live timers, want 0", n)
	}
	h.checkInvariants(t)
}

func TestUserCannotOccupyTwoSeats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.ReportSensor(ctx, "seat2", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))

	_, err := h.svc.Login(ctx, "seat2", "student", "1234")
	if !errors.Is(err, seat.ErrUserAlreadyElsewhere) {
		t.Fatalf("second login: got %v, want ErrUserAlreadyElsewhere", err)
	}
	var ee *seat.ElsewhereError
	if !errors.As(err, &ee) || ee.Seat != "seat1" {
		t.Fatalf("error does not name seat1: %v", err)
	}
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	expectState(t, h.seat(t, "seat2"), model.StateOccupied, model.DeviceOccupant)

	// Still blocked while on break at seat1.
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 5))
	if _, err := h.svc.Login(ctx, "seat2", "student", "1234"); !errors.Is(err, seat.ErrUserAlreadyElsewhere) {
		t.Fatalf("login during break: got %v", err)
	}

	// Free after logout.
	mustOK(t)(h.svc.Logout(ctx, "seat1"))
	mustOK(t)(h.svc.Login(ctx, "seat2", "student", "1234"))
	h.checkInvariants(t)
}

func TestConcurrentLoginsAdmitOneSeat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.ReportSensor(ctx, "seat2", "red"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"seat1", "seat2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.svc.Login(ctx, id, "student", "1234")
		}(i, id)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, seat.ErrUserAlreadyElsewhere):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d logins succeeded, want 1", ok)
	}
	h.checkInvariants(t)
}

func TestTimerSupersededByLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 10))

	h.clock.Advance(time.Second)
	mustOK(t)(h.svc.Logout(ctx, "seat1"))

	h.clock.Advance(10 * time.Minute)
	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")
	for _, a := range h.events.actions() {
		if a == "seat1:expire" {
			t.Fatal("stale timer produced an expire event")
		}
	}
}

func TestSensorOverridesBreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 10))

	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "green"))
	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")
	if _, pending := h.svc.PendingBreak("seat1"); pending {
		t.Fatal("timer still pending after sensor vacancy")
	}

	// A late firing of the old break is a no-op even if it somehow runs.
	h.svc.expire("seat1")
	h.clock.Advance(time.Hour)
	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")
	h.checkInvariants(t)
}

func TestRestartedBreakReplacesTimer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 2))
	mustOK(t)(h.svc.EndBreak(ctx, "seat1"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 10))

	if n := h.clock.PendingCount(); n != 1 {
		t.Fatalf("clock has %d live timers, want 1", n)
	}
	h.clock.Advance(3 * time.Minute)
	if s := h.seat(t, "seat1"); s.State != model.StateBreak {
		t.Fatalf("first break's timer ended the second break: %+v", s)
	}
	h.clock.Advance(8 * time.Minute)
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
}

func TestEarlyReturnBySensor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 10))

	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	h.checkInvariants(t)
}

func TestPolicyRejectionsLeaveStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Login(ctx, "seat1", "student", "1234"); !errors.Is(err, seat.ErrSeatVacant) {
		t.Errorf("login on vacant: got %v, want ErrSeatVacant", err)
	}
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	if _, err := h.svc.Login(ctx, "seat1", "student", "wrong"); !errors.Is(err, seat.ErrInvalidCredentials) {
		t.Errorf("bad password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := h.svc.StartBreak(ctx, "seat1", 5); !errors.Is(err, seat.ErrNotLoggedIn) {
		t.Errorf("break without login: got %v, want ErrNotLoggedIn", err)
	}
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	if _, err := h.svc.Login(ctx, "seat1", "admin", "5678"); !errors.Is(err, seat.ErrSeatOccupiedByOther) {
		t.Errorf("second user: got %v, want ErrSeatOccupiedByOther", err)
	}
	if _, err := h.svc.StartBreak(ctx, "seat1", 0); !errors.Is(err, seat.ErrInvalidDuration) {
		t.Errorf("zero break: got %v, want ErrInvalidDuration", err)
	}
	if _, err := h.svc.EndBreak(ctx, "seat1"); !errors.Is(err, seat.ErrSeatNotOnBreak) {
		t.Errorf("end break: got %v, want ErrSeatNotOnBreak", err)
	}
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 5))
	if _, err := h.svc.StartBreak(ctx, "seat1", 5); !errors.Is(err, seat.ErrSeatAlreadyOnBreak) {
		t.Errorf("double break: got %v, want ErrSeatAlreadyOnBreak", err)
	}
	if _, err := h.svc.Logout(ctx, "seat9"); !errors.Is(err, seat.ErrUnknownSeat) {
		t.Errorf("unknown seat logout: got %v, want ErrUnknownSeat", err)
	}
	if _, err := h.svc.Login(ctx, "seat9", "student", "1234"); !errors.Is(err, seat.ErrUnknownSeat) {
		t.Errorf("unknown seat login: got %v, want ErrUnknownSeat", err)
	}
	if _, err := h.svc.ReportSensor(ctx, "seat1", "purple"); !errors.Is(err, seat.ErrInvalidSensorState) {
		t.Errorf("bad sensor: got %v, want ErrInvalidSensorState", err)
	}
	expectState(t, h.seat(t, "seat1"), model.StateBreak, "student")
	h.checkInvariants(t)
}

func TestWalkUpPolicy(t *testing.T) {
	h := newHarnessWith(t, &fakePersister{}, seat.PolicyWalkUp)
	ctx := context.Background()
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	if _, err := h.svc.Login(ctx, "seat1", "admin", "5678"); !errors.Is(err, seat.ErrSeatNotVacant) {
		t.Fatalf("got %v, want ErrSeatNotVacant", err)
	}
}

func TestCommitRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.persister.fail(2)

	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, model.DeviceOccupant)
	if p := h.persister.saved["seat1"]; p.State != model.StateOccupied {
		t.Errorf("persisted seat1 = %+v", p)
	}
}

func TestCommitFailureIsReportedAndNothingChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	before := len(h.events.actions())

	h.persister.fail(100)
	_, err := h.svc.StartBreak(ctx, "seat1", 5)
	if !errors.Is(err, seat.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if seat.KindOf(err) != seat.KindInfrastructure {
		t.Errorf("KindOf = %s", seat.KindOf(err))
	}
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	if _, pending := h.svc.PendingBreak("seat1"); pending {
		t.Error("timer armed for an uncommitted break")
	}
	if len(h.events.actions()) != before {
		t.Error("event emitted for an uncommitted transition")
	}
	h.checkInvariants(t)
}

func TestExpiryRetriesAfterStoreFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 1))

	h.persister.fail(3)
	h.clock.Advance(time.Minute + time.Second)
	if s := h.seat(t, "seat1"); s.State != model.StateBreak {
		t.Fatalf("seat left break without a commit: %+v", s)
	}
	if _, pending := h.svc.PendingBreak("seat1"); !pending {
		t.Fatal("no retry armed after failed expiry")
	}

	h.clock.Advance(5*time.Second + time.Second)
	expectState(t, h.seat(t, "seat1"), model.StateOccupied, "student")
	h.checkInvariants(t)
}

func TestResetAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 5))
	mustOK(t)(h.svc.ReportSensor(ctx, "seat2", "red"))

	m, err := h.svc.ResetAll(ctx)
	if err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	for _, id := range []string{"seat1", "seat2"} {
		expectState(t, m[id], model.StateVacant, "")
		expectState(t, h.seat(t, id), model.StateVacant, "")
	}
	if n := h.clock.PendingCount(); n != 0 {
		t.Errorf("clock has %d live timers after reset", n)
	}
	h.clock.Advance(time.Hour)
	expectState(t, h.seat(t, "seat1"), model.StateVacant, "")
	h.checkInvariants(t)
}

func TestBreakResumedAfterRestart(t *testing.T) {
	p := &fakePersister{}
	h := newHarnessWith(t, p, seat.PolicyDetectFirst)
	ctx := context.Background()
	mustOK(t)(h.svc.ReportSensor(ctx, "seat1", "red"))
	mustOK(t)(h.svc.Login(ctx, "seat1", "student", "1234"))
	mustOK(t)(h.svc.StartBreak(ctx, "seat1", 3))
	h.svc.Close()

	// A new process loads the same state and must re-arm the break.
	restarted := newHarnessWith(t, p, seat.PolicyDetectFirst)
	if at, pending := restarted.svc.PendingBreak("seat1"); !pending || !at.Equal(epoch.Add(3*time.Minute)) {
		t.Fatalf("PendingBreak = %v, %t", at, pending)
	}
	restarted.clock.Advance(3*time.Minute + time.Second)
	expectState(t, restarted.seat(t, "seat1"), model.StateOccupied, "student")
}

func TestFindOccupant(t *testing.T) {
	m := model.Mapping{
		"seat1": {ID: "seat1", State: model.StateOccupied, Occupant: model.DeviceOccupant},
		"seat2": {ID: "seat2", State: model.StateOccupied, Occupant: "student"},
		"seat3": model.Vacant("seat3"),
	}
	if id, ok := FindOccupant(m, "student"); !ok || id != "seat2" {
		t.Errorf("FindOccupant(student) = %q, %t", id, ok)
	}
	if _, ok := FindOccupant(m, model.DeviceOccupant); ok {
		t.Error("device sentinel matched")
	}
	if _, ok := FindOccupant(m, "admin"); ok {
		t.Error("absent user matched")
	}
	if _, ok := FindOccupant(m, ""); ok {
		t.Error("empty user matched")
	}
}
