package directions

import (
	"context"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
)

// Provider is an external routing service.
type Provider interface {
	Route(ctx context.Context, origin, destination models.Coordinates) (models.DirectionsResult, error)
}
