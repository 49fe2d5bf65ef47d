// Package tripapi is the REST client of the coordinating server used by the client agents.
package tripapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const defaultTimeout = 10 * time.Second

// ErrBadRequest is returned when the server refused the request body.
var ErrBadRequest = errors.New("request rejected by server")

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// call describes one request, conflictAs is what a 409 means for it.
type call struct {
	op         string
	method     string
	path       string
	body       any
	conflictAs error
}

type errorBody struct {
	Error any `json:"error"`
}

func (c *Client) do(ctx context.Context, cl call, dst any) error {
	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if id := wrap.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: failed to make request to trip api: %w", cl.op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(ctx, cl, resp)
	}

	if dst == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", cl.op, err)
	}
	return nil
}

func (c *Client) statusError(ctx context.Context, cl call, resp *http.Response) error {
	var eb errorBody
	// тело ошибки может быть пустым
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	msg := fmt.Sprint(eb.Error)
	if eb.Error == nil {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = types.ErrForbidden
	case http.StatusNotFound:
		sentinel = types.ErrTripNotFound
		if cl.conflictAs == types.ErrOfferConflict {
			sentinel = types.ErrNoActiveOffer
		}
	case http.StatusConflict:
		sentinel = cl.conflictAs
		if sentinel == nil {
			sentinel = types.ErrTransitionRejected
		}
	case http.StatusUnprocessableEntity:
		sentinel = ErrBadRequest
		if cl.conflictAs == types.ErrTransitionRejected {
			sentinel = types.ErrTransitionRejected
		}
	case http.StatusBadRequest:
		sentinel = ErrBadRequest
	default:
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d: %s", cl.op, resp.StatusCode, msg))
	}
	return fmt.Errorf("%s: %w: %s", cl.op, sentinel, msg)
}

type tripResponse struct {
	Trip *models.Trip `json:"trip"`
}

func (c *Client) tripCall(ctx context.Context, cl call) (*models.Trip, error) {
	var out tripResponse
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	if out.Trip == nil {
		return nil, fmt.Errorf("%s: response without trip", cl.op)
	}
	return out.Trip, nil
}

func toPlace(p models.Place) dto.Place {
	lat, lng := p.Coordinates.Lat, p.Coordinates.Lng
	place := dto.Place{Address: p.Address, Latitude: &lat, Longitude: &lng}
	if p.Contact != nil {
		place.ContactName = p.Contact.Name
		place.ContactPhone = p.Contact.Phone
	}
	return place
}

func (c *Client) CreateTrip(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error) {
	body := dto.CreateTripRequest{
		ServiceType: req.ServiceType.String(),
		Pickup:      toPlace(req.Pickup),
		Dropoff:     toPlace(req.Dropoff),
		RequirePIN:  req.RequirePIN,
	}
	return c.tripCall(ctx, call{op: "TripAPI.CreateTrip", method: http.MethodPost, path: "/trips", body: body})
}

func (c *Client) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return c.tripCall(ctx, call{op: "TripAPI.GetTrip", method: http.MethodGet, path: "/trips/" + tripID.String()})
}

func (c *Client) AdvanceStatus(ctx context.Context, tripID uuid.UUID, target types.TripStatus) (*models.Trip, error) {
	return c.tripCall(ctx, call{
		op:         "TripAPI.AdvanceStatus",
		method:     http.MethodPost,
		path:       "/trips/" + tripID.String() + "/status",
		body:       dto.AdvanceStatusRequest{Status: target.String()},
		conflictAs: types.ErrTransitionRejected,
	})
}

func (c *Client) CancelTrip(ctx context.Context, tripID uuid.UUID, reason string) error {
	return c.do(ctx, call{
		op:         "TripAPI.CancelTrip",
		method:     http.MethodPost,
		path:       "/trips/" + tripID.String() + "/cancel",
		body:       dto.ReasonRequest{Reason: reason},
		conflictAs: types.ErrTransitionRejected,
	}, nil)
}

func (c *Client) AcceptOffer(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return c.tripCall(ctx, call{
		op:         "TripAPI.AcceptOffer",
		method:     http.MethodPost,
		path:       "/trips/" + tripID.String() + "/accept",
		conflictAs: types.ErrOfferConflict,
	})
}

func (c *Client) RejectOffer(ctx context.Context, tripID uuid.UUID, reason string) error {
	return c.do(ctx, call{
		op:         "TripAPI.RejectOffer",
		method:     http.MethodPost,
		path:       "/trips/" + tripID.String() + "/reject",
		body:       dto.ReasonRequest{Reason: reason},
		conflictAs: types.ErrOfferConflict,
	}, nil)
}

func location(pos models.FulfillerPosition) dto.Location {
	lat, lng := pos.Coordinates.Lat, pos.Coordinates.Lng
	loc := dto.Location{Latitude: &lat, Longitude: &lng, Heading: pos.Heading}
	if !pos.Timestamp.IsZero() {
		ts := pos.Timestamp
		loc.Timestamp = &ts
	}
	return loc
}

func (c *Client) GoOnline(ctx context.Context, service types.ServiceType, pos models.FulfillerPosition) error {
	return c.do(ctx, call{
		op:     "TripAPI.GoOnline",
		method: http.MethodPost,
		path:   "/fulfillers/online",
		body:   dto.GoOnlineRequest{ServiceType: service.String(), Location: location(pos)},
	}, nil)
}

func (c *Client) GoOffline(ctx context.Context) error {
	return c.do(ctx, call{op: "TripAPI.GoOffline", method: http.MethodPost, path: "/fulfillers/offline"}, nil)
}

// UpdateLocation reports a position outside of an active trip.
func (c *Client) UpdateLocation(ctx context.Context, tripID uuid.UUID, pos models.FulfillerPosition) error {
	req := dto.LocationUpdateRequest{Location: location(pos)}
	if tripID != uuid.Nil {
		req.TripID = &tripID
	}
	return c.do(ctx, call{op: "TripAPI.UpdateLocation", method: http.MethodPost, path: "/fulfillers/location", body: req}, nil)
}
