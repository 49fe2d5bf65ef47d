package wrap

import (
	"context"
)

type (
	// LogCtx holds contextual information for logging
	LogCtx struct {
		Action      string
		UserID      string
		RequestID   string
		TripID      string
		OfferID     string
		FulfillerID string
	}

	// logCtxKeyStruct is an unexported type for context keys defined in this package.
	logCtxKeyStruct struct{}
)

// LogCtxKey is the key for log context values
var LogCtxKey = &logCtxKeyStruct{}

// WithLogCtx returns a new context with the provided LogCtx.
// Empty fields of newLc are filled from the LogCtx already stored in ctx.
func WithLogCtx(ctx context.Context, newLc LogCtx) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		if newLc.Action == "" {
			newLc.Action = lc.Action
		}
		if newLc.UserID == "" {
			newLc.UserID = lc.UserID
		}
		if newLc.RequestID == "" {
			newLc.RequestID = lc.RequestID
		}
		if newLc.TripID == "" {
			newLc.TripID = lc.TripID
		}
		if newLc.OfferID == "" {
			newLc.OfferID = lc.OfferID
		}
		if newLc.FulfillerID == "" {
			newLc.FulfillerID = lc.FulfillerID
		}
	}
	return context.WithValue(ctx, LogCtxKey, newLc)
}

func update(ctx context.Context, fn func(lc *LogCtx)) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	fn(&lc)
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithUserID adds or updates the UserID in the LogCtx within the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.UserID = userID })
}

// WithRequestID adds or updates the RequestID in the LogCtx within the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.RequestID = requestID })
}

// WithTripID adds or updates the TripID in the LogCtx within the context
func WithTripID(ctx context.Context, tripID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.TripID = tripID })
}

// WithOfferID adds or updates the OfferID in the LogCtx within the context
func WithOfferID(ctx context.Context, offerID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.OfferID = offerID })
}

// WithFulfillerID adds or updates the FulfillerID in the LogCtx within the context
func WithFulfillerID(ctx context.Context, fulfillerID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.FulfillerID = fulfillerID })
}

// WithAction adds or updates the Action in the LogCtx within the context
func WithAction(ctx context.Context, action string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.Action = action })
}

// GetRequestID returns request id stored in the context or empty string.
func GetRequestID(ctx context.Context) string {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc.RequestID
	}
	return ""
}

// GetTripID returns trip id stored in the context or empty string.
func GetTripID(ctx context.Context) string {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc.TripID
	}
	return ""
}
