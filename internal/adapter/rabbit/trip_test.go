package rabbit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

func TestRoutingKey(t *testing.T) {
	got := routingKey(models.TripEventMessage{Event: types.EventTripStatus})
	if got != "trip.trip-status" {
		t.Fatalf("unexpected routing key %q", got)
	}
}

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("save: %w", types.ErrDatabaseFailed), true},
		{types.ErrFailedToPublishTripEvent, true},
		{types.ErrTripNotFound, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isRecoverableError(tt.err); got != tt.want {
			t.Fatalf("isRecoverableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	if err := retry(2, time.Millisecond, func() error { calls++; return errors.New("never") }); err == nil || calls != 2 {
		t.Fatalf("expected last error after 2 calls, got err=%v calls=%d", err, calls)
	}
}
