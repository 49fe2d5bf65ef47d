// Package calculator holds trip pricing and estimates fixed at trip creation.
package calculator

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/geo"
)

const (
	averageSpeedKmh = 50 // средняя скорость
	// курьер едет медленнее из-за остановок
	deliverySpeedKmh = 35

	securityCodeDigits = 4
)

type tariff struct {
	base, perKm, perMin float64
}

var tariffs = map[types.ServiceType]tariff{
	types.ServiceRide:     {base: 500, perKm: 100, perMin: 50},
	types.ServiceDelivery: {base: 700, perKm: 80, perMin: 30},
}

type Calculator interface {
	Distance(a, b models.Coordinates) float64
	Duration(service types.ServiceType, distanceKm float64) int
	Fare(service types.ServiceType, distanceKm float64, durationMin int) float64
	EstimatedArrival(from, to models.Coordinates, service types.ServiceType) time.Time
	SecurityCode() (string, error)
}

type CalculatorImpl struct{}

func New() *CalculatorImpl {
	return &CalculatorImpl{}
}

// Distance in kilometers
func (c *CalculatorImpl) Distance(a, b models.Coordinates) float64 {
	return geo.HaversineKm(a, b)
}

// примерное время в минутах (целое число).
func (c *CalculatorImpl) Duration(service types.ServiceType, distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}

	speed := float64(averageSpeedKmh)
	if service == types.ServiceDelivery {
		speed = deliverySpeedKmh
	}

	// Время (в минутах) = (Расстояние / Скорость) * 60
	return int(math.Ceil(distanceKm / speed * 60))
}

// Fare = base + distance * perKm + duration * perMin, rounded to whole units.
// Unknown service types are priced as rides.
func (c *CalculatorImpl) Fare(service types.ServiceType, distanceKm float64, durationMin int) float64 {
	t, ok := tariffs[service]
	if !ok {
		t = tariffs[types.ServiceRide]
	}

	fare := t.base + distanceKm*t.perKm + float64(durationMin)*t.perMin
	return math.Round(fare)
}

func (c *CalculatorImpl) EstimatedArrival(from, to models.Coordinates, service types.ServiceType) time.Time {
	minutes := c.Duration(service, c.Distance(from, to))
	return time.Now().Add(time.Duration(minutes) * time.Minute)
}

// SecurityCode returns a short numeric PIN for handoff confirmation.
func (c *CalculatorImpl) SecurityCode() (string, error) {
	limit := big.NewInt(int64(math.Pow10(securityCodeDigits)))
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate security code: %w", err)
	}
	return fmt.Sprintf("%0*d", securityCodeDigits, n.Int64()), nil
}
