package tripfsm

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

// fallbackSpeedMps is used for ETA when no route is known (50 km/h)
const fallbackSpeedMps = 50.0 * 1000 / 3600

// Unknown marks a distance that cannot be computed yet.
const Unknown = -1.0

type Action string

const (
	ActionConfirmArrival Action = "confirm_arrival"
	ActionStartTrip      Action = "start_trip"
	ActionCompleteTrip   Action = "complete_trip"
	ActionCancel         Action = "cancel"
	ActionRetry          Action = "retry"
)

// TripState is everything the session controller owns for one trip.
type TripState struct {
	TripID  uuid.UUID
	Role    types.UserRole
	Status  types.TripStatus
	Pickup  models.Coordinates
	Dropoff models.Coordinates

	Position        *models.FulfillerPosition
	PositionUnknown bool

	Route            *models.LiveRoute
	RouteUnavailable bool
	StepIndex        int

	ArrivalRadiusM float64
}

// View is the (status, derived values) tuple read by presenters.
type View struct {
	TripID uuid.UUID
	Status types.TripStatus
	Leg    Leg

	Position *models.FulfillerPosition
	Route    *models.LiveRoute

	ETA     time.Duration
	ETAText string

	DistanceToDestinationM float64
	DistanceToNextStepM    float64
	CurrentStep            *models.Step
	StepIndex              int

	ArrivalAvailable        bool
	Actions                 []Action
	CancelNeedsConfirmation bool
	RetryAvailable          bool

	// soft warnings
	PositionUnknown  bool
	RouteUnavailable bool
}

// Can reports whether action is currently offered.
func (v View) Can(action Action) bool {
	return slices.Contains(v.Actions, action)
}

// Derive computes the view of s. It is pure.
func Derive(s TripState) View {
	v := View{
		TripID:                 s.TripID,
		Status:                 s.Status,
		Leg:                    ActiveLeg(s.Status),
		Position:               s.Position,
		Route:                  s.Route,
		DistanceToDestinationM: Unknown,
		DistanceToNextStepM:    Unknown,
		StepIndex:              s.StepIndex,
		PositionUnknown:        s.PositionUnknown,
		RouteUnavailable:       s.RouteUnavailable,
	}

	radius := s.ArrivalRadiusM
	if radius <= 0 {
		radius = geo.DefaultArrivalRadiusM
	}

	var destination models.Coordinates
	switch v.Leg {
	case LegPickup:
		destination = s.Pickup
	case LegDropoff:
		destination = s.Dropoff
	}

	if s.Position != nil && v.Leg != LegNone {
		pos := s.Position.Coordinates
		v.DistanceToDestinationM = geo.HaversineM(pos, destination)

		// в статусе arrived водитель уже на месте посадки, прибытие к dropoff не показываем
		if s.Status == types.StatusAccepted || s.Status == types.StatusInProgress {
			v.ArrivalAvailable = geo.WithinRadius(pos, destination, radius)
		}
	}

	if s.Route != nil && s.StepIndex >= 0 && s.StepIndex < len(s.Route.Steps) {
		step := s.Route.Steps[s.StepIndex]
		v.CurrentStep = &step
		if s.Position != nil {
			v.DistanceToNextStepM = geo.HaversineM(s.Position.Coordinates, step.End)
		}
	}

	if v.Leg != LegNone {
		if eta, ok := estimate(v.DistanceToDestinationM, s.Route); ok {
			v.ETA = eta
			v.ETAText = FormatETA(eta)
		}
	}

	v.Actions = actions(s.Role, s.Status, v.ArrivalAvailable)
	v.CancelNeedsConfirmation = NeedsCancelConfirmation(s.Status)
	v.RetryAvailable = slices.Contains(v.Actions, ActionRetry)

	return v
}

func estimate(distanceM float64, route *models.LiveRoute) (time.Duration, bool) {
	hasRoute := route != nil && route.TotalDistanceM > 0 && route.TotalDurationS > 0

	switch {
	case distanceM >= 0 && hasRoute:
		speed := route.TotalDistanceM / route.TotalDurationS
		return seconds(distanceM / speed), true
	case distanceM >= 0:
		return seconds(distanceM / fallbackSpeedMps), true
	case hasRoute:
		return seconds(route.TotalDurationS), true
	}
	return 0, false
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s)) * time.Second
}

// FormatETA renders d the way trip screens show it.
func FormatETA(d time.Duration) string {
	if d < time.Minute {
		return "< 1 min"
	}

	minutes := int(math.Ceil(d.Minutes()))
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%d h %d min", minutes/60, minutes%60)
}

func actions(role types.UserRole, status types.TripStatus, arrival bool) []Action {
	var out []Action

	if role == types.RoleFulfiller {
		switch {
		case status == types.StatusAccepted && arrival:
			out = append(out, ActionConfirmArrival)
		case status == types.StatusArrived:
			out = append(out, ActionStartTrip)
		case status == types.StatusInProgress && arrival:
			out = append(out, ActionCompleteTrip)
		}
	}

	if !status.IsTerminal() {
		out = append(out, ActionCancel)
	}

	if role != types.RoleFulfiller && status == types.StatusNoFulfillerAvailable {
		out = append(out, ActionRetry)
	}
	return out
}
