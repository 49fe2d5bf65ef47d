package types

import "errors"

// Tracking core taxonomy
var (
	ErrRouteUnavailable    = errors.New("route unavailable")
	ErrOfferConflict       = errors.New("offer already taken")
	ErrTransitionRejected  = errors.New("status transition rejected")
	ErrChannelDisconnected = errors.New("tracking channel disconnected")
	ErrPositionUnavailable = errors.New("position unavailable")
)

// State machine
var (
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrTerminal                = errors.New("trip is in a terminal state")
	ErrCancelNeedsConfirmation = errors.New("cancelling an in-progress trip requires confirmation")
	ErrRetryNotAllowed         = errors.New("trip can be retried only after no fulfillers were found")
)

// Offers
var (
	ErrNoActiveOffer = errors.New("no active offer")
	ErrOfferLocked   = errors.New("offer is being processed")
	ErrOfferExpired  = errors.New("offer expired")
)

// Storage and matching
var (
	ErrTripNotFound       = errors.New("trip not found")
	ErrNotFound           = errors.New("requested item not found")
	ErrNoFulfillersNearby = errors.New("no fulfillers nearby")
	ErrFulfillerBusy      = errors.New("fulfiller is busy")
	ErrForbidden          = errors.New("forbidden")
	ErrNoActiveTrip       = errors.New("no active trip")
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	ErrDatabaseFailed           = errors.New("database failed")
	ErrFailedToPublishTripEvent = errors.New("failed to publish trip event")
)
