package offer

import (
	"context"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
)

// OfferAPI is the part of the trip API a fulfiller uses to answer offers.
type OfferAPI interface {
	AcceptOffer(ctx context.Context, tripID uuid.UUID) (*models.Trip, error)
	RejectOffer(ctx context.Context, tripID uuid.UUID, reason string) error
}
