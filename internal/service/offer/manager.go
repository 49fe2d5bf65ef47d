// Package offer is the fulfiller side of offer matching: one current offer with a countdown,
// at most one queued offer, accept / reject / timeout.
package offer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const (
	ReasonUnavailable = "unavailable" // timeout and default explicit reject
	ReasonCapacity    = "capacity"    // queue already holds an offer
	ReasonBusy        = "busy"        // heading to or waiting at another pickup

	DefaultRideTimeout     = 15 * time.Second
	DefaultDeliveryTimeout = 60 * time.Second

	backgroundCallTimeout = 10 * time.Second
)

type Config struct {
	RideTimeout     time.Duration
	DeliveryTimeout time.Duration
}

type Manager struct {
	api    OfferAPI
	cfg    Config
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *held
	queued  *models.Offer
	gen     uint64

	// trip the fulfiller is working on
	active       *models.Trip
	activeStatus types.TripStatus

	onAccepted  func(*models.Trip)
	onPresented func(models.Offer)
	onCleared   func(tripID uuid.UUID, reason string)
}

type held struct {
	offer  models.Offer
	gen    uint64
	timer  *time.Timer
	locked bool
}

func NewManager(api OfferAPI, cfg Config, logger logger.Logger) *Manager {
	if cfg.RideTimeout <= 0 {
		cfg.RideTimeout = DefaultRideTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return &Manager{
		api:    api,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OnAccepted is called after the server confirmed an accept.
func (m *Manager) OnAccepted(fn func(*models.Trip)) {
	m.mu.Lock()
	m.onAccepted = fn
	m.mu.Unlock()
}

// OnPresented is called whenever an offer becomes current.
func (m *Manager) OnPresented(fn func(models.Offer)) {
	m.mu.Lock()
	m.onPresented = fn
	m.mu.Unlock()
}

// OnCleared is called when the current offer goes away without being accepted.
func (m *Manager) OnCleared(fn func(tripID uuid.UUID, reason string)) {
	m.mu.Lock()
	m.onCleared = fn
	m.mu.Unlock()
}

func (m *Manager) timeoutFor(service types.ServiceType) time.Duration {
	if service == types.ServiceDelivery {
		return m.cfg.DeliveryTimeout
	}
	return m.cfg.RideTimeout
}

// Receive handles an incoming offer. It never blocks on the network.
func (m *Manager) Receive(ctx context.Context, offer models.Offer) {
	ctx = wrap.WithTripID(ctx, offer.TripID.String())

	m.mu.Lock()

	if m.isKnown(offer.TripID) {
		m.mu.Unlock()
		m.logger.Debug(ctx, "duplicate offer ignored")
		return
	}

	offer.ReceivedAt = m.now()

	switch {
	case m.current == nil && !m.busy():
		m.present(offer, false)
		m.mu.Unlock()
		m.notifyPresented(offer.TripID)
		m.logger.Info(ctx, "offer presented", "expires_at", m.expiresOf(offer.TripID))
		return

	case m.queued == nil && (m.current != nil || m.activeStatus == types.StatusInProgress):
		m.queued = &offer
		m.mu.Unlock()
		m.logger.Info(ctx, "offer queued")
		return
	}

	reason := ReasonCapacity
	if m.queued == nil {
		reason = ReasonBusy
	}
	m.mu.Unlock()

	m.logger.Info(ctx, "offer auto-rejected", "reason", reason)
	go m.rejectInBackground(offer.TripID, reason)
}

func (m *Manager) isKnown(tripID uuid.UUID) bool {
	if m.current != nil && m.current.offer.TripID == tripID {
		return true
	}
	if m.queued != nil && m.queued.TripID == tripID {
		return true
	}
	return m.active != nil && m.active.ID == tripID
}

func (m *Manager) busy() bool {
	return m.active != nil && !m.activeStatus.IsTerminal()
}

// present makes offer current and starts its countdown. Called with mu held.
// fresh ignores the server expiry, used for offers released from the queue.
func (m *Manager) present(offer models.Offer, fresh bool) {
	now := m.now()
	if fresh || offer.ExpiresAt.IsZero() {
		offer.ExpiresAt = now.Add(m.timeoutFor(offer.ServiceType))
	}

	m.gen++
	h := &held{offer: offer, gen: m.gen}
	m.current = h
	m.startTimer(h, offer.ExpiresAt.Sub(now))
}

func (m *Manager) startTimer(h *held, d time.Duration) {
	gen := h.gen
	if d < 0 {
		d = 0
	}
	h.timer = time.AfterFunc(d, func() { m.expire(gen) })
}

func (m *Manager) expiresOf(tripID uuid.UUID) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.offer.TripID == tripID {
		return m.current.offer.ExpiresAt
	}
	return time.Time{}
}

// expire runs when a countdown reaches zero. A timer from an older offer is a no-op.
func (m *Manager) expire(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundCallTimeout)
	defer cancel()

	if err := m.decline(ctx, gen, ReasonUnavailable); err != nil {
		if errors.Is(err, types.ErrNoActiveOffer) || errors.Is(err, types.ErrOfferLocked) {
			return
		}
		m.logger.Warn(ctx, "reject on timeout failed, offer cleared locally", "error", err.Error())
	}
}

// Reject declines the current offer. Local state is cleared even if the server call fails.
func (m *Manager) Reject(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return types.ErrNoActiveOffer
	}
	gen := m.current.gen
	m.mu.Unlock()

	if reason == "" {
		reason = ReasonUnavailable
	}
	return m.decline(ctx, gen, reason)
}

// decline is the single path shared by explicit reject and timeout.
func (m *Manager) decline(ctx context.Context, gen uint64, reason string) error {
	const op = "Manager.decline"

	m.mu.Lock()
	h := m.current
	if h == nil || h.gen != gen {
		m.mu.Unlock()
		return types.ErrNoActiveOffer
	}
	if h.locked {
		m.mu.Unlock()
		return types.ErrOfferLocked
	}

	h.timer.Stop()
	m.current = nil
	promoted := m.promote()
	onCleared := m.onCleared
	m.mu.Unlock()

	tripID := h.offer.TripID
	ctx = wrap.WithTripID(ctx, tripID.String())

	if onCleared != nil {
		onCleared(tripID, reason)
	}
	if promoted {
		m.notifyPresented(m.currentTripID())
	}

	m.logger.Info(ctx, "offer rejected", "reason", reason)

	if err := m.api.RejectOffer(ctx, tripID, reason); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// promote moves the queued offer to current if nothing blocks it. Called with mu held.
func (m *Manager) promote() bool {
	if m.current != nil || m.queued == nil || m.busy() {
		return false
	}
	next := *m.queued
	m.queued = nil
	m.present(next, true)
	return true
}

// Accept locks the current offer and asks the server for it.
// On conflict the offer is dropped; on other errors it is unlocked for a manual retry.
func (m *Manager) Accept(ctx context.Context) (*models.Trip, error) {
	const op = "Manager.Accept"

	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return nil, types.ErrNoActiveOffer
	}
	if h.locked {
		m.mu.Unlock()
		return nil, types.ErrOfferLocked
	}
	if h.offer.IsExpired(m.now()) {
		m.mu.Unlock()
		return nil, types.ErrOfferExpired
	}
	h.locked = true
	h.timer.Stop()
	m.mu.Unlock()

	tripID := h.offer.TripID
	ctx = wrap.WithTripID(ctx, tripID.String())

	trip, err := m.api.AcceptOffer(ctx, tripID)

	// h is locked, so neither decline nor revoke could have replaced it
	m.mu.Lock()
	switch {
	case err == nil:
		m.current = nil
		m.queued = nil
		m.active = trip
		m.activeStatus = trip.Status
		onAccepted := m.onAccepted
		m.mu.Unlock()

		m.logger.Info(ctx, "offer accepted")
		if onAccepted != nil {
			onAccepted(trip)
		}
		return trip, nil

	case errors.Is(err, types.ErrOfferConflict):
		m.current = nil
		promoted := m.promote()
		onCleared := m.onCleared
		m.mu.Unlock()

		m.logger.Info(ctx, "offer already taken")
		if onCleared != nil {
			onCleared(tripID, "conflict")
		}
		if promoted {
			m.notifyPresented(m.currentTripID())
		}
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	// unlock and keep counting down, the human decides whether to retry
	h.locked = false
	m.startTimer(h, h.offer.ExpiresAt.Sub(m.now()))
	m.mu.Unlock()

	return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
}

// Revoke drops an offer the server withdrew. No reject is sent.
func (m *Manager) Revoke(ctx context.Context, tripID uuid.UUID) {
	m.mu.Lock()
	if m.queued != nil && m.queued.TripID == tripID {
		m.queued = nil
		m.mu.Unlock()
		return
	}

	h := m.current
	if h == nil || h.offer.TripID != tripID || h.locked {
		m.mu.Unlock()
		return
	}
	h.timer.Stop()
	m.current = nil
	promoted := m.promote()
	onCleared := m.onCleared
	m.mu.Unlock()

	m.logger.Info(wrap.WithTripID(ctx, tripID.String()), "offer revoked")
	if onCleared != nil {
		onCleared(tripID, "revoked")
	}
	if promoted {
		m.notifyPresented(m.currentTripID())
	}
}

// TripProgressed tells the manager about the active trip. When it ends, the queued offer
// becomes current with a fresh countdown.
func (m *Manager) TripProgressed(tripID uuid.UUID, status types.TripStatus) {
	m.mu.Lock()
	if m.active == nil || m.active.ID != tripID {
		m.mu.Unlock()
		return
	}

	m.activeStatus = status
	if status.IsTerminal() {
		m.active = nil
	}
	promoted := m.promote()
	m.mu.Unlock()

	if promoted {
		m.notifyPresented(m.currentTripID())
	}
}

// Current returns the displayed offer.
func (m *Manager) Current() (models.Offer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return models.Offer{}, false
	}
	return m.current.offer, true
}

// Queued returns the offer waiting behind the current trip.
func (m *Manager) Queued() (models.Offer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queued == nil {
		return models.Offer{}, false
	}
	return *m.queued, true
}

// Locked reports whether an accept is in flight.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.locked
}

// ActiveTrip returns the accepted trip, nil when idle.
func (m *Manager) ActiveTrip() *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) currentTripID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return uuid.Nil
	}
	return m.current.offer.TripID
}

func (m *Manager) notifyPresented(tripID uuid.UUID) {
	m.mu.Lock()
	fn := m.onPresented
	var offer models.Offer
	ok := m.current != nil && m.current.offer.TripID == tripID
	if ok {
		offer = m.current.offer
	}
	m.mu.Unlock()

	if fn != nil && ok {
		fn(offer)
	}
}

func (m *Manager) rejectInBackground(tripID uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundCallTimeout)
	defer cancel()
	ctx = wrap.WithTripID(ctx, tripID.String())

	if err := m.api.RejectOffer(ctx, tripID, reason); err != nil {
		m.logger.Warn(ctx, "auto-reject failed", "reason", reason, "error", err.Error())
	}
}
