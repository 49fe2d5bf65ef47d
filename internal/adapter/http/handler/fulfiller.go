package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

type FleetService interface {
	GoOnline(ctx context.Context, actor *models.User, service types.ServiceType, pos models.FulfillerPosition) error
	GoOffline(ctx context.Context, actor *models.User) error
	UpdatePosition(ctx context.Context, actor *models.User, tripID uuid.UUID, pos models.FulfillerPosition) error
	LastPosition(ctx context.Context, actor *models.User, tripID uuid.UUID) (models.FulfillerPosition, error)
}

type Fulfiller struct {
	service FleetService
	l       logger.Logger
}

func NewFulfiller(service FleetService, l logger.Logger) *Fulfiller {
	return &Fulfiller{
		service: service,
		l:       l,
	}
}

// GoOnline godoc
// @Summary      Fulfiller goes online
// @Tags         Fulfillers
// @Accept       json
// @Produce      json
// @Param        request  body  dto.GoOnlineRequest  true  "position"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /fulfillers/online [post]
func (h *Fulfiller) GoOnline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "fulfiller_online")
	user := models.UserFromContext(ctx)

	var req dto.GoOnlineRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	if req.Validate(v); !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.service.GoOnline(ctx, user, types.ServiceType(req.ServiceType), req.ToModel()); err != nil {
		fail(ctx, h.l, w, "failed to go online", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{
		"status":  types.FulfillerAvailable,
		"message": "You are now online and ready to accept trips",
	})
}

// GoOffline godoc
// @Summary      Fulfiller goes offline
// @Tags         Fulfillers
// @Produce      json
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /fulfillers/offline [post]
func (h *Fulfiller) GoOffline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "fulfiller_offline")
	user := models.UserFromContext(ctx)

	if err := h.service.GoOffline(ctx, user); err != nil {
		fail(ctx, h.l, w, "failed to go offline", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{
		"status":  types.FulfillerOffline,
		"message": "You are now offline",
	})
}

// UpdateLocation godoc
// @Summary      Report fulfiller position
// @Description  With trip_id the position is also delivered to the trip participants
// @Tags         Fulfillers
// @Accept       json
// @Produce      json
// @Param        request  body  dto.LocationUpdateRequest  true  "position"
// @Success      202  {object}  map[string]any
// @Security     BearerAuth
// @Router       /fulfillers/location [post]
func (h *Fulfiller) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "fulfiller_location")
	user := models.UserFromContext(ctx)

	var req dto.LocationUpdateRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	if req.Validate(v); !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.service.UpdatePosition(ctx, user, req.Trip(), req.ToModel()); err != nil {
		fail(ctx, h.l, w, "failed to update location", err)
		return
	}

	respond(ctx, h.l, w, http.StatusAccepted, envelope{"status": "accepted"})
}

// TripPosition godoc
// @Summary      Last known fulfiller position of a trip
// @Tags         Trips
// @Produce      json
// @Param        trip_id  path  string  true  "trip id"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id}/position [get]
func (h *Fulfiller) TripPosition(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "trip_position")
	if !ok {
		return
	}

	pos, err := h.service.LastPosition(ctx, user, tripID)
	if err != nil {
		fail(ctx, h.l, w, "failed to get trip position", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"position": pos})
}
