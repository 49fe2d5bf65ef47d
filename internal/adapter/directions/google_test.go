package directions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
)

const okBody = `{
  "status": "OK",
  "routes": [{
    "overview_polyline": {"points": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"},
    "legs": [{
      "distance": {"value": 4100, "text": "4.1 km"},
      "duration": {"value": 540, "text": "9 mins"},
      "steps": [{
        "html_instructions": "Head <b>north</b>",
        "distance": {"value": 300},
        "duration": {"value": 40},
        "start_location": {"lat": 14.70, "lng": -17.45},
        "end_location": {"lat": 14.7027, "lng": -17.45}
      }, {
        "html_instructions": "Turn <b>left</b>",
        "maneuver": "turn-left",
        "distance": {"value": 3800},
        "duration": {"value": 500},
        "start_location": {"lat": 14.7027, "lng": -17.45},
        "end_location": {"lat": 14.73, "lng": -17.47}
      }]
    }]
  }]
}`

func TestGoogleRoute(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"origin":      q.Get("origin"),
			"destination": q.Get("destination"),
			"key":         q.Get("key"),
			"mode":        q.Get("mode"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := NewGoogle(srv.URL, "secret", "", 0)
	res, err := c.Route(context.Background(), models.Coordinates{Lat: 14.70, Lng: -17.45}, models.Coordinates{Lat: 14.73, Lng: -17.47})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if gotQuery["origin"] != "14.700000,-17.450000" || gotQuery["destination"] != "14.730000,-17.470000" {
		t.Fatalf("query = %v", gotQuery)
	}
	if gotQuery["key"] != "secret" || gotQuery["mode"] != "driving" {
		t.Fatalf("query = %v", gotQuery)
	}

	if res.Status != "OK" || res.EncodedPolyline == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Legs) != 1 || len(res.Legs[0].Steps) != 2 {
		t.Fatalf("legs = %+v", res.Legs)
	}
	leg := res.Legs[0]
	if leg.DistanceM != 4100 || leg.DurationS != 540 {
		t.Fatalf("leg totals = %v / %v", leg.DistanceM, leg.DurationS)
	}
	if s := leg.Steps[1]; s.Maneuver != "turn-left" || s.HTMLInstruction != "Turn <b>left</b>" || s.End.Lat != 14.73 {
		t.Fatalf("step = %+v", s)
	}
}

func TestGoogleRoute_NonOKStatusPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid.","routes":[]}`))
	}))
	defer srv.Close()

	res, err := NewGoogle(srv.URL, "bad", "", 0).Route(context.Background(), models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2})
	if err != nil {
		t.Fatalf("non-OK status is not a transport error: %v", err)
	}
	if res.Status != "REQUEST_DENIED" || res.ErrorMessage == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGoogleRoute_OKWithoutRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","routes":[]}`))
	}))
	defer srv.Close()

	res, err := NewGoogle(srv.URL, "k", "", 0).Route(context.Background(), models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2})
	if err != nil || res.Status == "OK" {
		t.Fatalf("empty routes must not look OK: %+v %v", res, err)
	}
}

func TestGoogleRoute_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewGoogle(srv.URL, "k", "", 0).Route(context.Background(), models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2}); err == nil {
		t.Fatalf("expected error on 502")
	}
}
