package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-polyline"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/directions"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
)

var (
	testPickup  = models.Coordinates{Lat: 14.7005, Lng: -17.4507}
	testDropoff = models.Coordinates{Lat: 14.73, Lng: -17.47}
)

func testLogger() logger.Logger {
	return logger.New(io.Discard, "test", logger.LevelError)
}

func newTrip(status types.TripStatus) *models.Trip {
	t := &models.Trip{
		ID:          uuid.New(),
		ServiceType: types.ServiceRide,
		Status:      status,
		Pickup:      models.Place{Address: "Pickup", Coordinates: testPickup},
		Dropoff:     models.Place{Address: "Dropoff", Coordinates: testDropoff},
		Fare:        1147,
		RequesterID: uuid.New(),
	}
	if status != types.StatusPending {
		id := uuid.New()
		t.FulfillerID = &id
	}
	return t
}

// fakeAPI

type advanceCall struct {
	tripID uuid.UUID
	target types.TripStatus
}

type fakeAPI struct {
	mu sync.Mutex

	getTrip    func(id uuid.UUID) (*models.Trip, error)
	getCalls   atomic.Int32
	advanceErr error
	advanced   []advanceCall
	cancelErr  error
	cancelled  []string
	created    []models.CreateTripRequest
}

func (a *fakeAPI) CreateTrip(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, req)
	return &models.Trip{
		ID:          uuid.New(),
		ServiceType: req.ServiceType,
		Status:      types.StatusPending,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		RequesterID: req.RequesterID,
		Fare:        1200,
	}, nil
}

func (a *fakeAPI) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	a.getCalls.Add(1)
	a.mu.Lock()
	fn := a.getTrip
	a.mu.Unlock()
	if fn == nil {
		return nil, errors.New("not configured")
	}
	return fn(id)
}

func (a *fakeAPI) AdvanceStatus(ctx context.Context, id uuid.UUID, target types.TripStatus) (*models.Trip, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanced = append(a.advanced, advanceCall{tripID: id, target: target})
	if a.advanceErr != nil {
		return nil, a.advanceErr
	}
	return &models.Trip{ID: id, Status: target}, nil
}

func (a *fakeAPI) CancelTrip(ctx context.Context, id uuid.UUID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, reason)
	return a.cancelErr
}

func (a *fakeAPI) setGetTrip(fn func(id uuid.UUID) (*models.Trip, error)) {
	a.mu.Lock()
	a.getTrip = fn
	a.mu.Unlock()
}

// fakeChannel delivers events synchronously to registered handlers.

type emitted struct {
	event   types.ChannelEvent
	tripID  string
	payload any
}

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	handlers  map[types.ChannelEvent]map[int]func(models.Envelope)
	onConnect map[int]func()
	onDisconn map[int]func(error)
	emits     []emitted
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{
		connected: connected,
		handlers:  make(map[types.ChannelEvent]map[int]func(models.Envelope)),
		onConnect: make(map[int]func()),
		onDisconn: make(map[int]func(error)),
	}
}

func (f *fakeChannel) Emit(ctx context.Context, event types.ChannelEvent, tripID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return types.ErrChannelDisconnected
	}
	f.emits = append(f.emits, emitted{event: event, tripID: tripID, payload: payload})
	return nil
}

func (f *fakeChannel) On(event types.ChannelEvent, handler func(models.Envelope)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]func(models.Envelope))
	}
	f.handlers[event][id] = handler
	return func() {
		f.mu.Lock()
		delete(f.handlers[event], id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) OnConnect(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.onConnect[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.onConnect, id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) OnDisconnect(fn func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.onDisconn[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.onDisconn, id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) deliver(t *testing.T, event types.ChannelEvent, tripID uuid.UUID, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(event, tripID.String(), payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	f.mu.Lock()
	var hs []func(models.Envelope)
	for _, h := range f.handlers[event] {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(env)
	}
}

func (f *fakeChannel) drop() {
	f.mu.Lock()
	f.connected = false
	var fns []func(error)
	for _, fn := range f.onDisconn {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(errors.New("network down"))
	}
}

func (f *fakeChannel) reconnect() {
	f.mu.Lock()
	f.connected = true
	var fns []func()
	for _, fn := range f.onConnect {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeChannel) countEmitted(event types.ChannelEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

// fakeProvider answers with a two-step straight route.

type fakeProvider struct {
	mu      sync.Mutex
	status  string
	calls   int
	origins []models.Coordinates

	// when set, every call waits for it to be closed
	gate chan struct{}
}

func (p *fakeProvider) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *fakeProvider) Route(ctx context.Context, origin, destination models.Coordinates) (models.DirectionsResult, error) {
	p.mu.Lock()
	p.calls++
	p.origins = append(p.origins, origin)
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.DirectionsResult{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	if status == "" {
		status = directions.StatusOK
	}
	mid := models.Coordinates{Lat: origin.Lat, Lng: destination.Lng}
	line := polyline.EncodeCoords([][]float64{
		{origin.Lat, origin.Lng}, {mid.Lat, mid.Lng}, {destination.Lat, destination.Lng},
	})
	return models.DirectionsResult{
		Status:          status,
		EncodedPolyline: string(line),
		Legs: []models.DirectionsLeg{{
			DistanceM: 500,
			DurationS: 60,
			Steps: []models.DirectionsStep{
				{HTMLInstruction: "Head <b>west</b>", Start: origin, End: mid},
				{HTMLInstruction: "Turn <b>right</b>", Maneuver: "turn-right", Start: mid, End: destination},
			},
		}},
	}, nil
}

func (p *fakeProvider) originsSeen() []models.Coordinates {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Coordinates(nil), p.origins...)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type chanSource struct {
	ch chan models.PositionSample
}

func (s *chanSource) Samples(ctx context.Context, interval time.Duration) <-chan models.PositionSample {
	return s.ch
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	steps []models.Step
}

func (a *recordingAnnouncer) Announce(ctx context.Context, step models.Step) {
	a.mu.Lock()
	a.steps = append(a.steps, step)
	a.mu.Unlock()
}

func (a *recordingAnnouncer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.steps)
}

type harness struct {
	ctrl      *Controller
	api       *fakeAPI
	channel   *fakeChannel
	provider  *fakeProvider
	positions *chanSource
	announcer *recordingAnnouncer
	trip      *models.Trip
}

func newHarness(t *testing.T, role types.UserRole, status types.TripStatus, connected bool) *harness {
	t.Helper()

	h := &harness{
		api:       &fakeAPI{},
		channel:   newFakeChannel(connected),
		provider:  &fakeProvider{},
		announcer: &recordingAnnouncer{},
		trip:      newTrip(status),
	}

	deps := Deps{
		API:       h.api,
		Channel:   h.channel,
		Routes:    directions.NewResolver(h.provider, 0, testLogger()),
		Announcer: h.announcer,
		Logger:    testLogger(),
	}
	if role == types.RoleFulfiller {
		h.positions = &chanSource{ch: make(chan models.PositionSample, 8)}
		deps.Positions = h.positions
	}

	h.ctrl = New(deps, Config{
		Role:                 role,
		PendingPollInterval:  20 * time.Millisecond,
		AttachedPollInterval: 20 * time.Millisecond,
	})

	if err := h.ctrl.Start(context.Background(), h.trip); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.ctrl.Stop(context.Background()) })
	return h
}

func (h *harness) sample(lat, lng float64, at time.Time) {
	h.positions.ch <- models.PositionSample{Position: models.FulfillerPosition{
		Coordinates: models.Coordinates{Lat: lat, Lng: lng},
		Timestamp:   at,
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
