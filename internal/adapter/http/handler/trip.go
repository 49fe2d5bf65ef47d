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

type TripService interface {
	Create(ctx context.Context, actor *models.User, req models.CreateTripRequest) (*models.Trip, error)
	Get(ctx context.Context, actor *models.User, tripID uuid.UUID) (*models.Trip, error)
	List(ctx context.Context, actor *models.User, filter models.TripFilter) ([]models.Trip, models.Metadata, error)
	History(ctx context.Context, actor *models.User, tripID uuid.UUID) ([]models.TripEvent, error)
	Advance(ctx context.Context, actor *models.User, tripID uuid.UUID, target types.TripStatus) (*models.Trip, error)
	Cancel(ctx context.Context, actor *models.User, tripID uuid.UUID, reason string) (*models.Trip, error)
	AcceptOffer(ctx context.Context, actor *models.User, tripID uuid.UUID) (*models.Trip, error)
	RejectOffer(ctx context.Context, actor *models.User, tripID uuid.UUID, reason string) error
}

type Trip struct {
	service TripService
	l       logger.Logger
}

func NewTrip(service TripService, l logger.Logger) *Trip {
	return &Trip{
		service: service,
		l:       l,
	}
}

// tripRequest resolves actor and trip id shared by every /trips/{trip_id} route.
func tripRequest(l logger.Logger, w http.ResponseWriter, r *http.Request, action string) (context.Context, *models.User, uuid.UUID, bool) {
	ctx := wrap.WithAction(r.Context(), action)

	user := models.UserFromContext(ctx)
	if user.IsAnonymous() {
		unauthorizedResponse(w)
		return ctx, nil, uuid.Nil, false
	}

	tripID, err := readTripID(r)
	if err != nil {
		l.Warn(ctx, "invalid trip uuid format")
		badRequestResponse(w, err.Error())
		return ctx, nil, uuid.Nil, false
	}

	return wrap.WithTripID(ctx, tripID.String()), user, tripID, true
}

func fail(ctx context.Context, l logger.Logger, w http.ResponseWriter, msg string, err error) {
	code := GetCode(err)
	if code >= http.StatusInternalServerError {
		l.Error(wrap.ErrorCtx(ctx, err), msg, err)
	} else {
		l.Warn(ctx, msg, "error", err.Error())
	}
	errorResponse(w, code, messageFor(code, err))
}

func respond(ctx context.Context, l logger.Logger, w http.ResponseWriter, status int, data envelope) {
	if err := writeJSON(w, status, data, nil); err != nil {
		l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// CreateTrip godoc
// @Summary      Create a trip
// @Description  Prices a ride or delivery and starts looking for a fulfiller
// @Tags         Trips
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CreateTripRequest  true  "trip"
// @Success      201      {object}  map[string]any
// @Failure      401,403,422  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips [post]
func (h *Trip) CreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_trip")
	user := models.UserFromContext(ctx)

	var req dto.CreateTripRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	trip, err := h.service.Create(ctx, user, req.ToModel())
	if err != nil {
		fail(ctx, h.l, w, "failed to create trip", err)
		return
	}

	respond(ctx, h.l, w, http.StatusCreated, envelope{"trip": trip})
	h.l.Info(wrap.WithTripID(ctx, trip.ID.String()), "trip created", "service_type", trip.ServiceType.String())
}

// ListTrips godoc
// @Summary      List trips
// @Description  Trips of the caller, all trips for admins
// @Tags         Trips
// @Produce      json
// @Param        status     query  string  false  "comma separated statuses"
// @Param        page       query  int     false  "page"
// @Param        page_size  query  int     false  "page size"
// @Param        sort       query  string  false  "sort key"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips [get]
func (h *Trip) ListTrips(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "list_trips")
	user := models.UserFromContext(ctx)

	qs := r.URL.Query()
	v := validator.New()

	var filter models.TripFilter
	for _, s := range readCSV(qs, "status") {
		status := types.TripStatus(s)
		v.Check(status.Valid(), "status", "unknown status "+s)
		filter.Statuses = append(filter.Statuses, status)
	}

	filter.Filters = models.Filters{
		Page:         readInt(qs, "page", 1, v),
		PageSize:     readInt(qs, "page_size", 20, v),
		Sort:         readString(qs, "sort", models.DefaultTripSort),
		SortSafelist: models.TripSortSafelist,
	}
	if filter.Filters.Validate(v); !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	trips, meta, err := h.service.List(ctx, user, filter)
	if err != nil {
		fail(ctx, h.l, w, "failed to list trips", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"trips": trips, "metadata": meta})
}

// GetTrip godoc
// @Summary      Get a trip
// @Tags         Trips
// @Produce      json
// @Param        trip_id  path  string  true  "trip id"
// @Success      200  {object}  map[string]any
// @Failure      403,404  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id} [get]
func (h *Trip) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "get_trip")
	if !ok {
		return
	}

	trip, err := h.service.Get(ctx, user, tripID)
	if err != nil {
		fail(ctx, h.l, w, "failed to get trip", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"trip": trip})
}

// TripHistory godoc
// @Summary      Trip event history
// @Tags         Trips
// @Produce      json
// @Param        trip_id  path  string  true  "trip id"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id}/events [get]
func (h *Trip) TripHistory(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "trip_history")
	if !ok {
		return
	}

	events, err := h.service.History(ctx, user, tripID)
	if err != nil {
		fail(ctx, h.l, w, "failed to load trip history", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"events": events})
}

// AdvanceStatus godoc
// @Summary      Move the trip forward
// @Description  Fulfiller only: arrived, in_progress, completed
// @Tags         Trips
// @Accept       json
// @Produce      json
// @Param        trip_id  path  string                    true  "trip id"
// @Param        request  body  dto.AdvanceStatusRequest  true  "target status"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id}/status [post]
func (h *Trip) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "advance_trip_status")
	if !ok {
		return
	}

	var req dto.AdvanceStatusRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	if req.Validate(v); !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	trip, err := h.service.Advance(ctx, user, tripID, types.TripStatus(req.Status))
	if err != nil {
		fail(ctx, h.l, w, "failed to advance trip", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"trip": trip})
	h.l.Info(ctx, "trip status changed", "status", trip.Status.String())
}

// CancelTrip godoc
// @Summary      Cancel a trip
// @Tags         Trips
// @Accept       json
// @Produce      json
// @Param        trip_id  path  string             true   "trip id"
// @Param        request  body  dto.ReasonRequest  false  "reason"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id}/cancel [post]
func (h *Trip) CancelTrip(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "cancel_trip")
	if !ok {
		return
	}

	var req dto.ReasonRequest
	if err := readOptionalJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	if req.Validate(v); !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	trip, err := h.service.Cancel(ctx, user, tripID, req.Reason)
	if err != nil {
		fail(ctx, h.l, w, "failed to cancel trip", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"trip": trip})
	h.l.Info(ctx, "trip cancelled")
}

// AcceptOffer godoc
// @Summary      Accept an offer
// @Tags         Offers
// @Produce      json
// @Param        trip_id  path  string  true  "trip id"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  map[string]any  "offer already taken"
// @Security     BearerAuth
// @Router       /trips/{trip_id}/accept [post]
func (h *Trip) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "accept_offer")
	if !ok {
		return
	}
	ctx = wrap.WithFulfillerID(ctx, user.ID.String())

	trip, err := h.service.AcceptOffer(ctx, user, tripID)
	if err != nil {
		fail(ctx, h.l, w, "failed to accept offer", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"trip": trip})
}

// RejectOffer godoc
// @Summary      Reject an offer
// @Tags         Offers
// @Accept       json
// @Produce      json
// @Param        trip_id  path  string             true   "trip id"
// @Param        request  body  dto.ReasonRequest  false  "reason"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /trips/{trip_id}/reject [post]
func (h *Trip) RejectOffer(w http.ResponseWriter, r *http.Request) {
	ctx, user, tripID, ok := tripRequest(h.l, w, r, "reject_offer")
	if !ok {
		return
	}
	ctx = wrap.WithFulfillerID(ctx, user.ID.String())

	var req dto.ReasonRequest
	if err := readOptionalJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if err := h.service.RejectOffer(ctx, user, tripID, req.Reason); err != nil {
		fail(ctx, h.l, w, "failed to reject offer", err)
		return
	}

	respond(ctx, h.l, w, http.StatusOK, envelope{"status": "rejected"})
}
