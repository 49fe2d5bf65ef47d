package locationIQ

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
)

func TestReverseGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v1/reverse" || q.Get("key") != "k" || q.Get("lat") != "43.238949" || q.Get("lon") != "76.889709" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"display_name":"Abay Ave 10, Almaty"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	addr, err := c.ReverseGeocode(context.Background(), models.Coordinates{Lat: 43.238949, Lng: 76.889709})
	if err != nil {
		t.Fatalf("ReverseGeocode: %v", err)
	}
	if addr != "Abay Ave 10, Almaty" {
		t.Fatalf("unexpected address %q", addr)
	}
}

func TestReverseGeocodeNotFound(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"error":"Unable to geocode"}`},
		{"empty address", http.StatusOK, `{}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "k", 0).ReverseGeocode(context.Background(), models.Coordinates{Lat: 1, Lng: 1})
			if !errors.Is(err, ErrLocationNotFound) {
				t.Fatalf("expected ErrLocationNotFound, got %v", err)
			}
		})
	}
}

func TestReverseGeocodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", 0).ReverseGeocode(context.Background(), models.Coordinates{Lat: 1, Lng: 1})
	if err == nil || errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected a generic error, got %v", err)
	}
}
