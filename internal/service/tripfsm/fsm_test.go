package tripfsm

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

var allStatuses = []types.TripStatus{
	types.StatusPending,
	types.StatusAccepted,
	types.StatusArrived,
	types.StatusInProgress,
	types.StatusCompleted,
	types.StatusCancelled,
	types.StatusNoFulfillerAvailable,
}

func TestNext(t *testing.T) {
	tests := []struct {
		from    types.TripStatus
		event   Event
		want    types.TripStatus
		wantErr error
	}{
		{types.StatusPending, EventAccept, types.StatusAccepted, nil},
		{types.StatusPending, EventMatchingExhausted, types.StatusNoFulfillerAvailable, nil},
		{types.StatusPending, EventCancel, types.StatusCancelled, nil},
		{types.StatusAccepted, EventConfirmArrival, types.StatusArrived, nil},
		{types.StatusAccepted, EventCancel, types.StatusCancelled, nil},
		{types.StatusArrived, EventStart, types.StatusInProgress, nil},
		{types.StatusArrived, EventCancel, types.StatusCancelled, nil},
		{types.StatusInProgress, EventComplete, types.StatusCompleted, nil},
		{types.StatusInProgress, EventCancel, types.StatusCancelled, nil},

		{types.StatusPending, EventStart, types.StatusPending, types.ErrInvalidTransition},
		{types.StatusAccepted, EventComplete, types.StatusAccepted, types.ErrInvalidTransition},
		{types.StatusArrived, EventAccept, types.StatusArrived, types.ErrInvalidTransition},
		{types.StatusInProgress, EventMatchingExhausted, types.StatusInProgress, types.ErrInvalidTransition},

		{types.StatusCompleted, EventCancel, types.StatusCompleted, types.ErrTerminal},
		{types.StatusCancelled, EventCancel, types.StatusCancelled, types.ErrTerminal},
		{types.StatusNoFulfillerAvailable, EventAccept, types.StatusNoFulfillerAvailable, types.ErrTerminal},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanAdvance_NoSkipping(t *testing.T) {
	if !CanAdvance(types.StatusAccepted, types.StatusArrived) {
		t.Fatalf("accepted -> arrived must be allowed")
	}
	if CanAdvance(types.StatusAccepted, types.StatusInProgress) {
		t.Fatalf("accepted -> in_progress skips arrived")
	}
	if CanAdvance(types.StatusPending, types.StatusCompleted) {
		t.Fatalf("pending -> completed skips states")
	}
	if CanAdvance(types.StatusCompleted, types.StatusCancelled) {
		t.Fatalf("terminal status must not advance")
	}
}

func TestEventForMatchesTable(t *testing.T) {
	for from, edges := range transitions {
		for event, to := range edges {
			got, ok := EventFor(to)
			if !ok || got != event {
				t.Fatalf("EventFor(%s) = %s, want %s (from %s)", to, got, event, from)
			}
		}
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		current, candidate types.TripStatus
		want               types.TripStatus
		changed            bool
	}{
		{types.StatusPending, types.StatusAccepted, types.StatusAccepted, true},
		{types.StatusPending, types.StatusInProgress, types.StatusInProgress, true},
		{types.StatusAccepted, types.StatusPending, types.StatusAccepted, false},
		{types.StatusInProgress, types.StatusAccepted, types.StatusInProgress, false},
		{types.StatusInProgress, types.StatusInProgress, types.StatusInProgress, false},
		{types.StatusArrived, types.StatusCancelled, types.StatusCancelled, true},
		{types.StatusPending, types.StatusNoFulfillerAvailable, types.StatusNoFulfillerAvailable, true},
		{types.StatusAccepted, types.StatusNoFulfillerAvailable, types.StatusAccepted, false},
		{types.StatusCompleted, types.StatusInProgress, types.StatusCompleted, false},
		{types.StatusCompleted, types.StatusCancelled, types.StatusCompleted, false},
		{types.StatusCancelled, types.StatusCompleted, types.StatusCancelled, false},
		{types.StatusPending, types.TripStatus("bogus"), types.StatusPending, false},
	}

	for _, tt := range tests {
		got, changed := Reconcile(tt.current, tt.candidate)
		if got != tt.want || changed != tt.changed {
			t.Fatalf("Reconcile(%s, %s) = (%s, %v), want (%s, %v)",
				tt.current, tt.candidate, got, changed, tt.want, tt.changed)
		}
	}
}

// Any sequence of candidates never moves status backwards along the lifecycle,
// and once terminal the status is frozen.
func TestReconcile_MonotonicRandomSequences(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for range 2000 {
		status := types.StatusPending
		for range 30 {
			candidate := allStatuses[r.IntN(len(allStatuses))]
			next, changed := Reconcile(status, candidate)

			if status.IsTerminal() && (changed || next != status) {
				t.Fatalf("terminal %s changed to %s", status, next)
			}
			if !next.IsTerminal() && !status.IsTerminal() && rank[next] < rank[status] {
				t.Fatalf("regression %s -> %s", status, next)
			}
			if next == types.StatusNoFulfillerAvailable && changed && status != types.StatusPending {
				t.Fatalf("no fulfillers reached from %s", status)
			}
			status = next
		}
	}
}

func TestReconcile_TerminalTwiceIsIdempotent(t *testing.T) {
	for _, terminal := range []types.TripStatus{types.StatusCompleted, types.StatusCancelled} {
		once, _ := Reconcile(types.StatusInProgress, terminal)
		twice, changed := Reconcile(once, terminal)
		if once != terminal || twice != once || changed {
			t.Fatalf("%s applied twice: once=%s twice=%s changed=%v", terminal, once, twice, changed)
		}
	}
}

// Channel says completed, a late poll still says in_progress.
func TestReconcile_LatePollDiscarded(t *testing.T) {
	status, _ := Reconcile(types.StatusInProgress, types.StatusCompleted)
	status, changed := Reconcile(status, types.StatusInProgress)
	if status != types.StatusCompleted || changed {
		t.Fatalf("late poll must be discarded, got %s (changed=%v)", status, changed)
	}
}

func TestCheckCancel(t *testing.T) {
	for _, s := range []types.TripStatus{types.StatusPending, types.StatusAccepted, types.StatusArrived} {
		if err := CheckCancel(s, false); err != nil {
			t.Fatalf("cancel from %s must be free: %v", s, err)
		}
	}

	if err := CheckCancel(types.StatusInProgress, false); !errors.Is(err, types.ErrCancelNeedsConfirmation) {
		t.Fatalf("in_progress without confirmation: %v", err)
	}
	if err := CheckCancel(types.StatusInProgress, true); err != nil {
		t.Fatalf("in_progress with confirmation: %v", err)
	}
	if err := CheckCancel(types.StatusCompleted, true); !errors.Is(err, types.ErrTerminal) {
		t.Fatalf("terminal: %v", err)
	}
}

func TestActiveLeg(t *testing.T) {
	tests := map[types.TripStatus]Leg{
		types.StatusPending:    LegNone,
		types.StatusAccepted:   LegPickup,
		types.StatusArrived:    LegDropoff,
		types.StatusInProgress: LegDropoff,
		types.StatusCompleted:  LegNone,
		types.StatusCancelled:  LegNone,
	}
	for status, want := range tests {
		if got := ActiveLeg(status); got != want {
			t.Fatalf("ActiveLeg(%s) = %s, want %s", status, got, want)
		}
	}
}
