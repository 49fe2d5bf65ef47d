package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/directions/json"
	defaultTimeout = 10 * time.Second
)

// GoogleClient talks to the Google Directions API.
type GoogleClient struct {
	baseURL string
	apiKey  string
	mode    string
	client  *http.Client
}

func NewGoogle(baseURL, apiKey, mode string, timeout time.Duration) *GoogleClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if mode == "" {
		mode = "driving"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GoogleClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		mode:    mode,
		client:  &http.Client{Timeout: timeout},
	}
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleValue struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

type googleStep struct {
	HTMLInstructions string       `json:"html_instructions"`
	Distance         googleValue  `json:"distance"`
	Duration         googleValue  `json:"duration"`
	Maneuver         string       `json:"maneuver"`
	StartLocation    googleLatLng `json:"start_location"`
	EndLocation      googleLatLng `json:"end_location"`
}

type googleLeg struct {
	Distance googleValue  `json:"distance"`
	Duration googleValue  `json:"duration"`
	Steps    []googleStep `json:"steps"`
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []googleLeg `json:"legs"`
	} `json:"routes"`
}

// Route returns the provider answer as is. A non-OK status is not an error here,
// the resolver decides what to do with it.
func (c *GoogleClient) Route(ctx context.Context, origin, destination models.Coordinates) (models.DirectionsResult, error) {
	const op = "GoogleClient.Route"

	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))
	q.Set("mode", c.mode)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.DirectionsResult{}, fmt.Errorf("%s: build request: %w", op, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.DirectionsResult{}, wrap.Error(ctx, fmt.Errorf("%s: failed to make request to directions provider: %w", op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.DirectionsResult{}, wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d", op, resp.StatusCode))
	}

	var payload googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		ctx = wrap.WithAction(ctx, "decode_directions_payload")
		return models.DirectionsResult{}, wrap.Error(ctx, fmt.Errorf("%s: failed to decode directions response: %w", op, err))
	}

	result := models.DirectionsResult{
		Status:       payload.Status,
		ErrorMessage: payload.ErrorMessage,
	}
	if payload.Status != "OK" {
		return result, nil
	}
	if len(payload.Routes) == 0 {
		result.Status = "ZERO_RESULTS"
		return result, nil
	}

	route := payload.Routes[0]
	result.EncodedPolyline = route.OverviewPolyline.Points
	for _, leg := range route.Legs {
		l := models.DirectionsLeg{
			DistanceM: leg.Distance.Value,
			DurationS: leg.Duration.Value,
			Steps:     make([]models.DirectionsStep, 0, len(leg.Steps)),
		}
		for _, s := range leg.Steps {
			l.Steps = append(l.Steps, models.DirectionsStep{
				HTMLInstruction: s.HTMLInstructions,
				DistanceM:       s.Distance.Value,
				DurationS:       s.Duration.Value,
				Maneuver:        s.Maneuver,
				Start:           models.Coordinates{Lat: s.StartLocation.Lat, Lng: s.StartLocation.Lng},
				End:             models.Coordinates{Lat: s.EndLocation.Lat, Lng: s.EndLocation.Lng},
			})
		}
		result.Legs = append(result.Legs, l)
	}

	return result, nil
}
