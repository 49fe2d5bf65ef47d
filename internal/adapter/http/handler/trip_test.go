package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

type fakeTrips struct {
	created  models.CreateTripRequest
	filter   models.TripFilter
	advanced types.TripStatus
	reason   string
	err      error
}

func (f *fakeTrips) trip(id uuid.UUID, status types.TripStatus) *models.Trip {
	return &models.Trip{ID: id, Status: status, ServiceType: types.ServiceRide}
}

func (f *fakeTrips) Create(_ context.Context, _ *models.User, req models.CreateTripRequest) (*models.Trip, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return f.trip(uuid.New(), types.StatusPending), nil
}

func (f *fakeTrips) Get(_ context.Context, _ *models.User, id uuid.UUID) (*models.Trip, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trip(id, types.StatusPending), nil
}

func (f *fakeTrips) List(_ context.Context, _ *models.User, filter models.TripFilter) ([]models.Trip, models.Metadata, error) {
	f.filter = filter
	return []models.Trip{}, models.CalculateMetadata(0, filter.Filters.Page, filter.Filters.PageSize), f.err
}

func (f *fakeTrips) History(context.Context, *models.User, uuid.UUID) ([]models.TripEvent, error) {
	return []models.TripEvent{{ID: 1, EventType: types.TripEventCreated}}, f.err
}

func (f *fakeTrips) Advance(_ context.Context, _ *models.User, id uuid.UUID, target types.TripStatus) (*models.Trip, error) {
	f.advanced = target
	if f.err != nil {
		return nil, f.err
	}
	return f.trip(id, target), nil
}

func (f *fakeTrips) Cancel(_ context.Context, _ *models.User, id uuid.UUID, reason string) (*models.Trip, error) {
	f.reason = reason
	if f.err != nil {
		return nil, f.err
	}
	return f.trip(id, types.StatusCancelled), nil
}

func (f *fakeTrips) AcceptOffer(_ context.Context, _ *models.User, id uuid.UUID) (*models.Trip, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trip(id, types.StatusAccepted), nil
}

func (f *fakeTrips) RejectOffer(_ context.Context, _ *models.User, _ uuid.UUID, reason string) error {
	f.reason = reason
	return f.err
}

func newTripMux(svc TripService, user *models.User) http.Handler {
	h := NewTrip(svc, logger.New(io.Discard, "test", logger.LevelError))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /trips", h.CreateTrip)
	mux.HandleFunc("GET /trips", h.ListTrips)
	mux.HandleFunc("GET /trips/{trip_id}", h.GetTrip)
	mux.HandleFunc("GET /trips/{trip_id}/events", h.TripHistory)
	mux.HandleFunc("POST /trips/{trip_id}/status", h.AdvanceStatus)
	mux.HandleFunc("POST /trips/{trip_id}/cancel", h.CancelTrip)
	mux.HandleFunc("POST /trips/{trip_id}/accept", h.AcceptOffer)
	mux.HandleFunc("POST /trips/{trip_id}/reject", h.RejectOffer)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(models.WithUser(r.Context(), user)))
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

var requester = &models.User{ID: uuid.New(), Role: types.RoleRequester}

const validTrip = `{
	"service_type": "delivery",
	"pickup": {"address": "Plateau", "latitude": 14.67, "longitude": -17.43, "contact_name": "Awa", "contact_phone": "+221"},
	"dropoff": {"address": "Almadies", "latitude": 14.74, "longitude": -17.51}
}`

func TestCreateTrip(t *testing.T) {
	svc := &fakeTrips{}
	rec := do(t, newTripMux(svc, requester), http.MethodPost, "/trips", validTrip)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := decodeBody(t, rec)["trip"]; !ok {
		t.Fatalf("response must contain trip")
	}
	if svc.created.ServiceType != types.ServiceDelivery || svc.created.Pickup.Contact == nil || svc.created.Pickup.Contact.Name != "Awa" {
		t.Fatalf("request not mapped: %+v", svc.created)
	}
	if svc.created.Dropoff.Contact != nil {
		t.Fatalf("dropoff without contact must stay nil")
	}
}

func TestCreateTrip_Validation(t *testing.T) {
	cases := map[string]string{
		"bad json":        `{`,
		"unknown field":   `{"foo": 1}`,
		"missing pickup":  `{"dropoff": {"address": "x", "latitude": 1, "longitude": 1}}`,
		"bad latitude":    `{"pickup": {"address": "x", "latitude": 91, "longitude": 1}, "dropoff": {"address": "y", "latitude": 1, "longitude": 1}}`,
		"unknown service": `{"service_type": "boat", "pickup": {"address": "x", "latitude": 1, "longitude": 1}, "dropoff": {"address": "y", "latitude": 2, "longitude": 2}}`,
		"same point":      `{"pickup": {"address": "x", "latitude": 1, "longitude": 1}, "dropoff": {"address": "y", "latitude": 1, "longitude": 1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, newTripMux(&fakeTrips{}, requester), http.MethodPost, "/trips", body)
			if rec.Code != http.StatusBadRequest && rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 400/422, got %d", rec.Code)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("op: %w", types.ErrOfferConflict), http.StatusConflict},
		{fmt.Errorf("op: %w: %w", types.ErrTransitionRejected, types.ErrTerminal), http.StatusConflict},
		{types.ErrTripNotFound, http.StatusNotFound},
		{types.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := do(t, newTripMux(&fakeTrips{err: tc.err}, requester), http.MethodPost, "/trips/"+uuid.NewString()+"/accept", "")
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}

	rec := do(t, newTripMux(&fakeTrips{err: fmt.Errorf("pg: connection refused")}, requester), http.MethodGet, "/trips/"+uuid.NewString(), "")
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error details must not leak: %s", rec.Body.String())
	}
}

func TestAdvanceStatus(t *testing.T) {
	svc := &fakeTrips{}
	h := newTripMux(svc, requester)

	rec := do(t, h, http.MethodPost, "/trips/"+uuid.NewString()+"/status", `{"status": "arrived"}`)
	if rec.Code != http.StatusOK || svc.advanced != types.StatusArrived {
		t.Fatalf("status %d, advanced %q", rec.Code, svc.advanced)
	}

	rec = do(t, h, http.MethodPost, "/trips/"+uuid.NewString()+"/status", `{"status": "accepted"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("accepted is not reachable via status endpoint, got %d", rec.Code)
	}
}

func TestCancelAndReject_OptionalBody(t *testing.T) {
	svc := &fakeTrips{}
	h := newTripMux(svc, requester)

	if rec := do(t, h, http.MethodPost, "/trips/"+uuid.NewString()+"/cancel", ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel without body: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/trips/"+uuid.NewString()+"/reject", `{"reason": "too far"}`); rec.Code != http.StatusOK {
		t.Fatalf("reject: %d", rec.Code)
	}
	if svc.reason != "too far" {
		t.Fatalf("reason not passed: %q", svc.reason)
	}
}

func TestListTrips_Query(t *testing.T) {
	svc := &fakeTrips{}
	h := newTripMux(svc, requester)

	rec := do(t, h, http.MethodGet, "/trips?status=pending,accepted&page=2&page_size=5&sort=-fare", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.filter.Statuses) != 2 || svc.filter.Filters.Page != 2 || svc.filter.Filters.SortColumn() != "fare" {
		t.Fatalf("filter not parsed: %+v", svc.filter)
	}

	if rec := do(t, h, http.MethodGet, "/trips?status=flying", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown status must be rejected, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/trips?sort=password", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown sort must be rejected, got %d", rec.Code)
	}
}

func TestTripRoutes_RequireUserAndID(t *testing.T) {
	if rec := do(t, newTripMux(&fakeTrips{}, models.AnonymousUser()), http.MethodGet, "/trips/"+uuid.NewString(), ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous must get 401, got %d", rec.Code)
	}
	if rec := do(t, newTripMux(&fakeTrips{}, requester), http.MethodGet, "/trips/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id must get 400, got %d", rec.Code)
	}
}
