package tripfsm

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

var (
	pickup  = models.Coordinates{Lat: 14.7005, Lng: -17.4507}
	dropoff = models.Coordinates{Lat: 14.73, Lng: -17.47}
)

func position(lat, lng float64) *models.FulfillerPosition {
	return &models.FulfillerPosition{
		Coordinates: models.Coordinates{Lat: lat, Lng: lng},
		Timestamp:   time.Now(),
	}
}

func TestDerive_ArrivalSurfacedNotApplied(t *testing.T) {
	state := TripState{
		TripID:  uuid.New(),
		Role:    types.RoleFulfiller,
		Status:  types.StatusAccepted,
		Pickup:  pickup,
		Dropoff: dropoff,
	}

	state.Position = position(14.700, -17.450)
	far := Derive(state)
	if far.ArrivalAvailable || far.Can(ActionConfirmArrival) {
		t.Fatalf("93 m away must not offer arrival: %+v", far)
	}
	if far.DistanceToDestinationM < 90 || far.DistanceToDestinationM > 97 {
		t.Fatalf("distance to pickup = %v", far.DistanceToDestinationM)
	}

	state.Position = position(14.7003, -17.4505)
	near := Derive(state)
	if !near.ArrivalAvailable || !near.Can(ActionConfirmArrival) {
		t.Fatalf("31 m away must offer arrival: %+v", near)
	}
	if near.Status != types.StatusAccepted {
		t.Fatalf("status must stay accepted, got %s", near.Status)
	}
}

func TestDerive_RequesterNeverGetsFulfillerActions(t *testing.T) {
	v := Derive(TripState{
		Role:     types.RoleRequester,
		Status:   types.StatusAccepted,
		Pickup:   pickup,
		Position: position(pickup.Lat, pickup.Lng),
	})
	if !v.ArrivalAvailable {
		t.Fatalf("arrival should be visible to the requester")
	}
	if v.Can(ActionConfirmArrival) {
		t.Fatalf("requester cannot confirm arrival")
	}
	if !v.Can(ActionCancel) {
		t.Fatalf("requester can cancel an accepted trip")
	}
}

func TestDerive_UnknownPosition(t *testing.T) {
	v := Derive(TripState{Status: types.StatusAccepted, Pickup: pickup, PositionUnknown: true})
	if v.DistanceToDestinationM != Unknown || v.DistanceToNextStepM != Unknown {
		t.Fatalf("distances must be unknown: %+v", v)
	}
	if v.ETAText != "" {
		t.Fatalf("no ETA without position or route, got %q", v.ETAText)
	}
	if !v.PositionUnknown {
		t.Fatalf("warning must be carried into the view")
	}
}

func TestDerive_CurrentStepAndETA(t *testing.T) {
	route := &models.LiveRoute{
		TotalDistanceM: 1000,
		TotalDurationS: 100,
		Steps: []models.Step{
			{Instruction: "Head north", End: models.Coordinates{Lat: 14.701, Lng: -17.450}},
			{Instruction: "Turn left", End: pickup},
		},
	}

	v := Derive(TripState{
		Role:      types.RoleFulfiller,
		Status:    types.StatusAccepted,
		Pickup:    pickup,
		Position:  position(14.700, -17.450),
		Route:     route,
		StepIndex: 1,
	})

	if v.CurrentStep == nil || v.CurrentStep.Instruction != "Turn left" {
		t.Fatalf("current step = %+v", v.CurrentStep)
	}
	if v.DistanceToNextStepM != v.DistanceToDestinationM {
		t.Fatalf("last step ends at pickup: %v vs %v", v.DistanceToNextStepM, v.DistanceToDestinationM)
	}
	// 10 m/s over ~93.6 m
	if v.ETA < 9*time.Second || v.ETA > 10*time.Second {
		t.Fatalf("eta = %v", v.ETA)
	}
	if v.ETAText != "< 1 min" {
		t.Fatalf("eta text = %q", v.ETAText)
	}
}

func TestDerive_RetryAndConfirmation(t *testing.T) {
	nf := Derive(TripState{Role: types.RoleRequester, Status: types.StatusNoFulfillerAvailable})
	if !nf.RetryAvailable || nf.Can(ActionCancel) {
		t.Fatalf("no fulfillers: %+v", nf)
	}

	ip := Derive(TripState{Role: types.RoleRequester, Status: types.StatusInProgress})
	if !ip.CancelNeedsConfirmation || !ip.Can(ActionCancel) {
		t.Fatalf("in progress cancel must be permitted with confirmation: %+v", ip)
	}

	done := Derive(TripState{Role: types.RoleFulfiller, Status: types.StatusCompleted})
	if len(done.Actions) != 0 {
		t.Fatalf("completed trip has no actions, got %v", done.Actions)
	}
}

func TestFormatETA(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Second:             "< 1 min",
		time.Minute:                  "1 min",
		90 * time.Second:             "2 min",
		59 * time.Minute:             "59 min",
		time.Hour + 5*time.Minute:    "1 h 5 min",
		2*time.Hour + 30*time.Second: "2 h 1 min",
	}
	for d, want := range tests {
		if got := FormatETA(d); got != want {
			t.Fatalf("FormatETA(%v) = %q, want %q", d, got, want)
		}
	}
}
