package trip

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/calculator"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

var (
	testPickup  = models.Coordinates{Lat: 14.7005, Lng: -17.4507}
	testDropoff = models.Coordinates{Lat: 14.73, Lng: -17.47}
)

// memRepo keeps the conditional update semantics of the postgres repo.
type memRepo struct {
	mu    sync.Mutex
	trips map[uuid.UUID]models.Trip
}

func newMemRepo() *memRepo {
	return &memRepo{trips: make(map[uuid.UUID]models.Trip)}
}

func (r *memRepo) Create(_ context.Context, trip *models.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[trip.ID] = *trip
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	return &t, nil
}

func (r *memRepo) List(_ context.Context, userID uuid.UUID, _ models.TripFilter) ([]models.Trip, models.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Trip
	for _, t := range r.trips {
		if userID == uuid.Nil || t.RequesterID == userID || (t.FulfillerID != nil && *t.FulfillerID == userID) {
			out = append(out, t)
		}
	}
	return out, models.Metadata{TotalRecords: len(out)}, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to types.TripStatus, at time.Time) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	if t.Status != from {
		return nil, types.ErrTransitionRejected
	}
	t.Status = to
	t.UpdatedAt = at
	r.trips[id] = t
	return &t, nil
}

func (r *memRepo) AssignFulfiller(_ context.Context, id, fulfillerID uuid.UUID, at time.Time) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok || t.Status != types.StatusPending || t.FulfillerID != nil {
		return nil, types.ErrOfferConflict
	}
	t.Status = types.StatusAccepted
	t.FulfillerID = &fulfillerID
	t.AcceptedAt = &at
	t.UpdatedAt = at
	r.trips[id] = t
	return &t, nil
}

func (r *memRepo) Cancel(_ context.Context, id uuid.UUID, reason string, at time.Time) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[id]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	if t.Status.IsTerminal() {
		return nil, types.ErrTransitionRejected
	}
	t.Status = types.StatusCancelled
	t.CancellationReason = &reason
	t.CancelledAt = &at
	t.UpdatedAt = at
	r.trips[id] = t
	return &t, nil
}

func (r *memRepo) status(id uuid.UUID) types.TripStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trips[id].Status
}

type eventsRepo struct {
	mu     sync.Mutex
	events []types.TripEventType
}

func (e *eventsRepo) CreateEvent(_ context.Context, _ uuid.UUID, eventType types.TripEventType, _ json.RawMessage) error {
	e.mu.Lock()
	e.events = append(e.events, eventType)
	e.mu.Unlock()
	return nil
}

func (e *eventsRepo) History(_ context.Context, tripID uuid.UUID) ([]models.TripEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.TripEvent, 0, len(e.events))
	for i, ev := range e.events {
		out = append(out, models.TripEvent{ID: int64(i + 1), EventType: ev})
	}
	return out, nil
}

func (e *eventsRepo) count(t types.TripEventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == t {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []models.TripEventMessage
}

func (p *fakePublisher) PublishTripEvent(_ context.Context, msg models.TripEventMessage) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) find(event types.ChannelEvent) (models.TripEventMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.msgs {
		if m.Event == event {
			return m, true
		}
	}
	return models.TripEventMessage{}, false
}

type fakeIndex struct {
	mu       sync.Mutex
	nearby   []models.NearbyFulfiller
	statuses map[uuid.UUID]types.FulfillerStatus
}

func (f *fakeIndex) Nearby(context.Context, types.ServiceType, models.Coordinates, float64, int) ([]models.NearbyFulfiller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NearbyFulfiller(nil), f.nearby...), nil
}

func (f *fakeIndex) SetStatus(_ context.Context, id uuid.UUID, status types.FulfillerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[uuid.UUID]types.FulfillerStatus)
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeIndex) status(id uuid.UUID) types.FulfillerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

type sentOffer struct {
	fulfillerID uuid.UUID
	offer       models.Offer
}

type fakeSender struct {
	offers chan sentOffer

	mu      sync.Mutex
	revoked []uuid.UUID
}

func newFakeSender() *fakeSender {
	return &fakeSender{offers: make(chan sentOffer, 16)}
}

func (f *fakeSender) SendOffer(_ context.Context, id uuid.UUID, offer models.Offer) error {
	f.offers <- sentOffer{fulfillerID: id, offer: offer}
	return nil
}

func (f *fakeSender) RevokeOffer(_ context.Context, id, _ uuid.UUID) error {
	f.mu.Lock()
	f.revoked = append(f.revoked, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) wasRevoked(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.revoked {
		if r == id {
			return true
		}
	}
	return false
}

type noTx struct{}

func (noTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type harness struct {
	svc       *Service
	repo      *memRepo
	events    *eventsRepo
	publisher *fakePublisher
	index     *fakeIndex
	sender    *fakeSender
	requester *models.User
}

func newHarness(t *testing.T, cfg Config, nearby ...models.NearbyFulfiller) *harness {
	t.Helper()
	h := &harness{
		repo:      newMemRepo(),
		events:    &eventsRepo{},
		publisher: &fakePublisher{},
		index:     &fakeIndex{nearby: nearby},
		sender:    newFakeSender(),
		requester: &models.User{ID: uuid.New(), Role: types.RoleRequester},
	}
	h.svc = NewService(
		Repos{Trips: h.repo, Events: h.events},
		Infra{Trm: noTx{}, Publisher: h.publisher, Index: h.index, Sender: h.sender},
		calculator.New(),
		cfg,
		logger.New(io.Discard, "test", logger.LevelError),
	)
	t.Cleanup(h.svc.Close)
	return h
}

func fastConfig() Config {
	return Config{
		MatchTimeout:         2 * time.Second,
		MatchInterval:        20 * time.Millisecond,
		RideOfferTimeout:     time.Second,
		DeliveryOfferTimeout: time.Second,
	}
}

func candidate(km float64) models.NearbyFulfiller {
	return models.NearbyFulfiller{ID: uuid.New(), DistanceKm: km}
}

func fulfiller(id uuid.UUID) *models.User {
	return &models.User{ID: id, Role: types.RoleFulfiller}
}

func (h *harness) create(t *testing.T) *models.Trip {
	t.Helper()
	trip, err := h.svc.Create(context.Background(), h.requester, models.CreateTripRequest{
		ServiceType: types.ServiceRide,
		Pickup:      models.Place{Address: "Pickup", Coordinates: testPickup},
		Dropoff:     models.Place{Address: "Dropoff", Coordinates: testDropoff},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return trip
}

func (h *harness) nextOffer(t *testing.T) sentOffer {
	t.Helper()
	select {
	case o := <-h.sender.offers:
		return o
	case <-time.After(3 * time.Second):
		t.Fatalf("no offer sent")
	}
	return sentOffer{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
