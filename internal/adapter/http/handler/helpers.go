package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	t "github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/internal/service/auth"
	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return errors.New("failed to encode json")
	}

	js = append(js, '\n')

	maps.Copy(w.Header(), headers)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)

	return nil
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	// 1MB
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")

		// https://github.com/golang/go/issues/29035
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)

		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		case errors.As(err, &invalidUnmarshalError):
			return fmt.Errorf("invalid unmarshal error: %w", err)
		default:
			return err
		}
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// readOptionalJSON is readJSON for endpoints whose body may be omitted entirely.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := readJSON(w, r, dst)
	if err != nil && err.Error() == "body must not be empty" {
		return nil
	}
	return err
}

func readTripID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("trip_id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("invalid trip uuid format")
	}
	return id, nil
}

func readString(qs url.Values, key string, defaultValue string) string {
	s := qs.Get(key)
	if s == "" {
		return defaultValue
	}
	return s
}

func readCSV(qs url.Values, key string) []string {
	csv := qs.Get(key)
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func readInt(qs url.Values, key string, defaultValue int, v *validator.Validator) int {
	s := qs.Get(key)
	if s == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(s)
	if err != nil {
		v.AddError(key, "must be an integer value")
		return defaultValue
	}
	return i
}

func GetCode(err error) int {
	switch {
	case IsOneOf(err, t.ErrInvalidCoordinates, t.ErrInvalidTransition):
		return http.StatusBadRequest
	case IsOneOf(err, auth.ErrInvalidToken, auth.ErrExpToken):
		return http.StatusUnauthorized
	case IsOneOf(err, t.ErrForbidden):
		return http.StatusForbidden
	case IsOneOf(err, t.ErrTripNotFound, t.ErrNotFound, t.ErrPositionUnavailable, t.ErrNoActiveOffer):
		return http.StatusNotFound
	case IsOneOf(err, t.ErrOfferConflict, t.ErrTransitionRejected, t.ErrFulfillerBusy):
		return http.StatusConflict
	case IsOneOf(err, t.ErrNoActiveTrip, t.ErrTerminal):
		return http.StatusUnprocessableEntity
	case IsOneOf(err, t.ErrRouteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// messageFor hides internals of unexpected failures.
func messageFor(code int, err error) string {
	if code == http.StatusInternalServerError {
		return "the server encountered a problem and could not process your request"
	}
	return err.Error()
}
