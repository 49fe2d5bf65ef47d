package calculator

import (
	"testing"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

func TestFareFixedForScenarioTrip(t *testing.T) {
	c := New()
	pickup := models.Coordinates{Lat: 14.70, Lng: -17.45}
	dropoff := models.Coordinates{Lat: 14.73, Lng: -17.47}

	dist := c.Distance(pickup, dropoff)
	if dist < 3.96 || dist > 3.98 {
		t.Fatalf("distance = %v", dist)
	}

	dur := c.Duration(types.ServiceRide, dist)
	if dur != 5 {
		t.Fatalf("duration = %d, want 5", dur)
	}

	// 500 + 3.969*100 + 5*50 = 1146.9
	if fare := c.Fare(types.ServiceRide, dist, dur); fare != 1147 {
		t.Fatalf("fare = %v, want 1147", fare)
	}
}

func TestFareByServiceType(t *testing.T) {
	c := New()
	ride := c.Fare(types.ServiceRide, 10, 20)
	delivery := c.Fare(types.ServiceDelivery, 10, 20)
	if ride == delivery {
		t.Fatalf("ride and delivery must be priced differently")
	}
	if unknown := c.Fare(types.ServiceType("boat"), 10, 20); unknown != ride {
		t.Fatalf("unknown service must fall back to ride pricing: %v", unknown)
	}
}

func TestDuration(t *testing.T) {
	c := New()
	if d := c.Duration(types.ServiceRide, 0); d != 0 {
		t.Fatalf("zero distance: %d", d)
	}
	if d := c.Duration(types.ServiceRide, 50); d != 60 {
		t.Fatalf("50 km at 50 km/h: %d", d)
	}
	if d := c.Duration(types.ServiceDelivery, 35); d != 60 {
		t.Fatalf("35 km at 35 km/h: %d", d)
	}
}

func TestSecurityCode(t *testing.T) {
	c := New()
	for range 50 {
		code, err := c.SecurityCode()
		if err != nil {
			t.Fatalf("SecurityCode: %v", err)
		}
		if len(code) != securityCodeDigits {
			t.Fatalf("code %q has wrong length", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q is not numeric", code)
			}
		}
	}
}
