// Package tripfsm is the trip lifecycle state machine shared by both clients and the server.
// It does no I/O.
package tripfsm

import (
	"fmt"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

type Event string

func (e Event) String() string {
	return string(e)
}

const (
	EventAccept            Event = "accept"
	EventMatchingExhausted Event = "matching_exhausted"
	EventCancel            Event = "cancel"
	EventConfirmArrival    Event = "confirm_arrival"
	EventStart             Event = "start"
	EventComplete          Event = "complete"
)

var transitions = map[types.TripStatus]map[Event]types.TripStatus{
	types.StatusPending: {
		EventAccept:            types.StatusAccepted,
		EventMatchingExhausted: types.StatusNoFulfillerAvailable,
		EventCancel:            types.StatusCancelled,
	},
	types.StatusAccepted: {
		EventConfirmArrival: types.StatusArrived,
		EventCancel:         types.StatusCancelled,
	},
	types.StatusArrived: {
		EventStart:  types.StatusInProgress,
		EventCancel: types.StatusCancelled,
	},
	types.StatusInProgress: {
		EventComplete: types.StatusCompleted,
		EventCancel:   types.StatusCancelled,
	},
}

// rank orders the main line of the lifecycle. Terminal short-circuits are not ranked.
var rank = map[types.TripStatus]int{
	types.StatusPending:    0,
	types.StatusAccepted:   1,
	types.StatusArrived:    2,
	types.StatusInProgress: 3,
	types.StatusCompleted:  4,
}

// Next returns the status reached from `from` on event.
// A terminal `from` yields ErrTerminal, callers treat it as a no-op.
func Next(from types.TripStatus, event Event) (types.TripStatus, error) {
	if from.IsTerminal() {
		return from, types.ErrTerminal
	}

	to, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", types.ErrInvalidTransition, event, from)
	}
	return to, nil
}

// CanAdvance reports whether to is exactly one legal step from from.
func CanAdvance(from, to types.TripStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventFor returns the event that leads into target.
func EventFor(target types.TripStatus) (Event, bool) {
	switch target {
	case types.StatusAccepted:
		return EventAccept, true
	case types.StatusArrived:
		return EventConfirmArrival, true
	case types.StatusInProgress:
		return EventStart, true
	case types.StatusCompleted:
		return EventComplete, true
	case types.StatusCancelled:
		return EventCancel, true
	case types.StatusNoFulfillerAvailable:
		return EventMatchingExhausted, true
	}
	return "", false
}

// Reconcile decides whether a candidate status reported by the channel or a poll
// replaces current. It returns the status to keep and whether it changed.
//
// Forward moves along the main line are accepted even if they skip states,
// since the candidate reflects canonical state the client may have missed events for.
// Regressions, repeats and anything after a terminal status are discarded.
func Reconcile(current, candidate types.TripStatus) (types.TripStatus, bool) {
	if !candidate.Valid() || candidate == current || current.IsTerminal() {
		return current, false
	}

	switch candidate {
	case types.StatusCancelled:
		return candidate, true
	case types.StatusNoFulfillerAvailable:
		// матчинг заканчивается только пока поездка ждет водителя
		if current == types.StatusPending {
			return candidate, true
		}
		return current, false
	}

	if rank[candidate] > rank[current] {
		return candidate, true
	}
	return current, false
}

// CheckCancel validates the cancellation policy before any network call.
func CheckCancel(status types.TripStatus, confirmed bool) error {
	if status.IsTerminal() {
		return types.ErrTerminal
	}
	if status == types.StatusInProgress && !confirmed {
		return types.ErrCancelNeedsConfirmation
	}
	return nil
}

// NeedsCancelConfirmation reports whether cancelling at status must be confirmed by a human.
func NeedsCancelConfirmation(status types.TripStatus) bool {
	return status == types.StatusInProgress
}

type Leg int

const (
	LegNone Leg = iota
	LegPickup
	LegDropoff
)

func (l Leg) String() string {
	switch l {
	case LegPickup:
		return "pickup"
	case LegDropoff:
		return "dropoff"
	}
	return "none"
}

// ActiveLeg returns the leg whose destination the fulfiller is heading to.
func ActiveLeg(status types.TripStatus) Leg {
	switch status {
	case types.StatusAccepted:
		return LegPickup
	case types.StatusArrived, types.StatusInProgress:
		return LegDropoff
	}
	return LegNone
}
