// Package locationIQ fills in human readable addresses for trip places.
package locationIQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

var ErrLocationNotFound = errors.New("location not found")

const DefaultBaseURL = "https://us1.locationiq.com"

type LocationIQClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *LocationIQClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocationIQClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type addressPayload struct {
	Address string `json:"display_name"`
	Error   string `json:"error"`
}

// ReverseGeocode returns the display address of a point.
func (c *LocationIQClient) ReverseGeocode(ctx context.Context, point models.Coordinates) (string, error) {
	const op = "LocationIQClient.ReverseGeocode"

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(point.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(point.Lng, 'f', 6, 64))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: failed to make request to LocationIQ: %w", op, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%s: %w", op, ErrLocationNotFound)
	case resp.StatusCode != http.StatusOK:
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d", op, resp.StatusCode))
	}

	var payload addressPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		ctx = wrap.WithAction(ctx, "decode_address_payload")
		return "", wrap.Error(ctx, fmt.Errorf("%s: failed to decode data from LocationIQ response: %w", op, err))
	}
	if payload.Address == "" {
		return "", fmt.Errorf("%s: %w", op, ErrLocationNotFound)
	}

	return payload.Address, nil
}
