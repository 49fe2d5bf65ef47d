package trip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
	"github.com/Temutjin2k/ride-tracking-system/pkg/metrics"
)

var errMatchTimeout = errors.New("matching timed out")

// match is the state of one running fulfiller search.
// At most one fulfiller holds the offer at a time.
type match struct {
	cancel    context.CancelFunc
	decisions chan models.OfferDecision

	mu        sync.Mutex
	holder    uuid.UUID
	expiresAt time.Time
	accepted  bool
}

func newMatch(cancel context.CancelFunc) *match {
	return &match{
		cancel:    cancel,
		decisions: make(chan models.OfferDecision, 1),
	}
}

func (m *match) offeredTo(id uuid.UUID, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder == id && now.Before(m.expiresAt)
}

func (m *match) hold(id uuid.UUID, expiresAt time.Time) {
	m.mu.Lock()
	m.holder, m.expiresAt = id, expiresAt
	m.mu.Unlock()
}

// release clears the holder if it is still id and reports whether it was.
func (m *match) release(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != id || id == uuid.Nil {
		return false
	}
	m.holder = uuid.Nil
	return true
}

// finish marks the match as won and returns whoever held the offer.
func (m *match) finish() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = true
	holder := m.holder
	m.holder = uuid.Nil
	return holder
}

func (m *match) isAccepted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

func (s *Service) getMatch(tripID uuid.UUID) *match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[tripID]
}

func (s *Service) dropMatch(tripID uuid.UUID, m *match) {
	s.mu.Lock()
	if s.matches[tripID] == m {
		delete(s.matches, tripID)
	}
	s.mu.Unlock()
}

// startMatching runs the fulfiller search for a pending trip in the background.
func (s *Service) startMatching(trip *models.Trip) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: "match_trip",
		TripID: trip.ID.String(),
	})

	m := newMatch(cancel)
	s.mu.Lock()
	s.matches[trip.ID] = m
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.dropMatch(trip.ID, m)
		defer cancel()

		err := s.waitForAcceptance(ctx, trip, m)
		switch {
		case err == nil:
			s.l.Info(ctx, "fulfiller found")
		case errors.Is(err, errMatchTimeout):
			s.exhaust(ctx, trip)
		case errors.Is(err, context.Canceled):
			s.l.Debug(ctx, "matching stopped")
		default:
			s.l.Error(ctx, "matching failed", err)
		}
	}()
}

// stopMatching ends the search (trip cancelled) and takes the offer back from its holder.
func (s *Service) stopMatching(ctx context.Context, tripID uuid.UUID) {
	m := s.getMatch(tripID)
	if m == nil {
		return
	}
	s.dropMatch(tripID, m)
	m.cancel()

	m.mu.Lock()
	holder := m.holder
	m.holder = uuid.Nil
	m.mu.Unlock()

	if holder != uuid.Nil {
		s.revoke(ctx, holder, tripID)
	}
}

// decide routes a fulfiller's answer to the running match.
// An acceptance always ends the match; a rejection counts only from the current holder.
func (s *Service) decide(tripID uuid.UUID, d models.OfferDecision) bool {
	m := s.getMatch(tripID)
	if m == nil {
		return false
	}

	if d.Accepted {
		holder := m.finish()
		m.cancel()
		if holder != uuid.Nil && holder != d.FulfillerID {
			s.revoke(context.Background(), holder, tripID)
		}
		return true
	}

	if !m.release(d.FulfillerID) {
		return false
	}
	select {
	case m.decisions <- d:
	default:
	}
	return true
}

// Основной цикл поиска исполнителя с таймером и интервалом между попытками
func (s *Service) waitForAcceptance(ctx context.Context, trip *models.Trip, m *match) error {
	deadline := s.now().Add(s.cfg.MatchTimeout)

	timeout := time.NewTimer(s.cfg.MatchTimeout)
	defer timeout.Stop()

	tick := time.NewTimer(s.cfg.MatchInterval)
	defer tick.Stop()

	// исполнители, которые уже отказались или не ответили
	tried := make(map[uuid.UUID]struct{})

	trySearch := func() (bool, error) {
		candidates, err := s.infra.Index.Nearby(ctx, trip.ServiceType, trip.Pickup.Coordinates, s.cfg.SearchRadiusKm, s.cfg.MaxCandidates)
		if err != nil {
			return false, fmt.Errorf("failed to find fulfillers: %w", err)
		}

		offered := false
		for _, candidate := range candidates {
			if _, ok := tried[candidate.ID]; ok {
				continue
			}
			tried[candidate.ID] = struct{}{}
			offered = true

			accepted, err := s.offerTo(ctx, trip, m, candidate, deadline)
			if err != nil {
				return false, err
			}
			if accepted {
				return true, nil
			}
		}
		if !offered {
			return false, types.ErrNoFulfillersNearby
		}
		return false, nil
	}

	resetTick := func() {
		if !tick.Stop() {
			select {
			case <-tick.C:
			default:
			}
		}
		tick.Reset(s.cfg.MatchInterval)
	}

	// Первая попытка сразу
	accepted, err := trySearch()
	if done, err := s.searchOutcome(ctx, m, accepted, err, deadline); done {
		return err
	}
	resetTick()

	for {
		select {
		case <-ctx.Done():
			if m.isAccepted() {
				return nil
			}
			return ctx.Err()
		case <-timeout.C:
			return errMatchTimeout
		case <-tick.C:
			accepted, err := trySearch()
			if done, err := s.searchOutcome(ctx, m, accepted, err, deadline); done {
				return err
			}
			resetTick()
		}
	}
}

// searchOutcome decides whether one search attempt ended the loop.
func (s *Service) searchOutcome(ctx context.Context, m *match, accepted bool, err error, deadline time.Time) (bool, error) {
	if accepted || m.isAccepted() {
		return true, nil
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return true, err
	case errors.Is(err, types.ErrNoFulfillersNearby):
		s.l.Debug(ctx, "no new fulfillers nearby")
	default:
		// просто продолжаем искать
		s.l.Warn(ctx, "fulfiller search attempt failed", "error", err.Error())
	}
	if !s.now().Before(deadline) {
		return true, errMatchTimeout
	}
	return false, nil
}

// offerTo shows the trip to one fulfiller and waits for the answer, the expiry or the overall deadline.
func (s *Service) offerTo(ctx context.Context, trip *models.Trip, m *match, candidate models.NearbyFulfiller, deadline time.Time) (bool, error) {
	ctx = wrap.WithFulfillerID(ctx, candidate.ID.String())

	wait := s.cfg.offerTimeout(trip.ServiceType)
	if left := deadline.Sub(s.now()); left < wait {
		wait = left
	}
	if wait <= 0 {
		return false, nil
	}

	offer := models.Offer{
		TripID:               trip.ID,
		ServiceType:          trip.ServiceType,
		Pickup:               trip.Pickup,
		Dropoff:              trip.Dropoff,
		Fare:                 trip.Fare,
		DistanceToPickupKm:   candidate.DistanceKm,
		EstimatedDurationMin: trip.DurationMin,
		ExpiresAt:            s.now().Add(wait),
	}

	// stale answers from a previous holder
	select {
	case <-m.decisions:
	default:
	}

	m.hold(candidate.ID, offer.ExpiresAt)

	s.l.Info(ctx, "sending offer to fulfiller", "distance_km", candidate.DistanceKm)
	if err := s.infra.Sender.SendOffer(ctx, candidate.ID, offer); err != nil {
		m.release(candidate.ID)
		metrics.RecordOffer("undelivered")
		s.l.Debug(ctx, "failed to send offer", "error", err.Error())
		return false, nil // игнорируем ошибки отправки, ищем других
	}

	if err := s.recordEvent(ctx, trip.ID, types.TripEventOffered, map[string]any{
		"fulfiller_id": candidate.ID.String(),
		"expires_at":   offer.ExpiresAt,
	}); err != nil {
		s.l.Warn(ctx, "failed to record offer", "error", err.Error())
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if m.isAccepted() {
				return true, nil
			}
			return false, ctx.Err()
		case d := <-m.decisions:
			if d.FulfillerID != candidate.ID {
				continue
			}
			s.l.Info(ctx, "fulfiller declined", "reason", d.Reason)
			return false, nil
		case <-timer.C:
			if m.release(candidate.ID) {
				metrics.RecordOffer("expired")
				s.l.Info(ctx, "offer expired")
				s.revoke(ctx, candidate.ID, trip.ID)
			}
			return false, nil
		}
	}
}

// exhaust moves a still-pending trip to no_fulfillers_available.
func (s *Service) exhaust(ctx context.Context, trip *models.Trip) {
	var updated *models.Trip
	err := s.infra.Trm.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repos.Trips.UpdateStatus(ctx, trip.ID, types.StatusPending, types.StatusNoFulfillerAvailable, s.now())
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, trip.ID, types.TripEventNoFulfillers, map[string]string{
			"timeout": s.cfg.MatchTimeout.String(),
		})
	})
	if err != nil {
		if errors.Is(err, types.ErrTransitionRejected) {
			// поездку уже приняли или отменили
			s.l.Debug(ctx, "trip left pending before matching timed out")
			return
		}
		s.l.Error(ctx, "failed to mark trip as unmatched", err)
		return
	}

	s.publish(ctx, types.EventNoFulfillers, trip.ID, &trip.RequesterID, models.NoFulfillersPayload{
		TripID:    trip.ID,
		Timestamp: updated.UpdatedAt,
	})
	s.publish(ctx, types.EventTripStatus, trip.ID, nil, models.TripStatusPayload{
		TripID:    trip.ID,
		Status:    updated.Status,
		Timestamp: updated.UpdatedAt,
	})

	metrics.RecordTripStatus(trip.ServiceType.String(), updated.Status.String())
	s.l.Info(ctx, "no fulfillers accepted the trip")
}

func (s *Service) revoke(ctx context.Context, fulfillerID, tripID uuid.UUID) {
	if err := s.infra.Sender.RevokeOffer(ctx, fulfillerID, tripID); err != nil {
		s.l.Debug(ctx, "failed to revoke offer", "fulfiller_id", fulfillerID.String(), "error", err.Error())
	}
}
