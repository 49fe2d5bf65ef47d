package types

type ServiceMode string

// Server - coordinating server: Trip CRUD API, matching broadcaster, tracking channel relay
// Fulfiller - headless driver/courier client running the trip session controller
// Requester - headless rider/sender client running the trip session controller
const (
	ServerMode    ServiceMode = "server"
	FulfillerMode ServiceMode = "fulfiller"
	RequesterMode ServiceMode = "requester"
)

// TripStatus is a state of the trip state machine.
type TripStatus string

func (s TripStatus) String() string {
	return string(s)
}

const (
	StatusPending              TripStatus = "pending"
	StatusAccepted             TripStatus = "accepted"
	StatusArrived              TripStatus = "arrived"
	StatusInProgress           TripStatus = "in_progress"
	StatusCompleted            TripStatus = "completed"
	StatusCancelled            TripStatus = "cancelled"
	StatusNoFulfillerAvailable TripStatus = "no_fulfillers_available"
)

// IsTerminal reports whether no further transitions are possible.
func (s TripStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoFulfillerAvailable:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusArrived, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoFulfillerAvailable:
		return true
	}
	return false
}

// ServiceType discriminates rides from deliveries. Both share one trip shape.
type ServiceType string

func (t ServiceType) String() string {
	return string(t)
}

const (
	ServiceRide     ServiceType = "ride"
	ServiceDelivery ServiceType = "delivery"
)

// UserRole of the authenticated actor
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleRequester UserRole = "REQUESTER"
	RoleFulfiller UserRole = "FULFILLER"
	RoleAdmin     UserRole = "ADMIN"
)

// FulfillerStatus is the availability of a driver/courier in the matching pool.
type FulfillerStatus string

const (
	FulfillerOffline   FulfillerStatus = "OFFLINE"
	FulfillerAvailable FulfillerStatus = "AVAILABLE"
	FulfillerBusy      FulfillerStatus = "BUSY"
)
