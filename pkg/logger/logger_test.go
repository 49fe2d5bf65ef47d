package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	return rec
}

func TestLogger_InjectsLogCtx(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test-service", LevelDebug)

	ctx := wrap.WithTripID(wrap.WithAction(context.Background(), "advance_status"), "trip-1")
	l.Info(ctx, "status changed")

	rec := decodeLine(t, &buf)
	if rec["message"] != "status changed" {
		t.Fatalf("unexpected message: %v", rec["message"])
	}
	if rec["action"] != "advance_status" || rec["trip_id"] != "trip-1" {
		t.Fatalf("log ctx not injected: %v", rec)
	}
	if rec["service"] != "test-service" {
		t.Fatalf("service attr missing: %v", rec)
	}
}

func TestLogger_ErrorCtxRestoresContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test-service", LevelDebug)

	inner := wrap.WithOfferID(wrap.WithAction(context.Background(), "accept_offer"), "offer-9")
	err := wrap.Error(inner, errors.New("boom"))

	l.Error(wrap.ErrorCtx(context.Background(), err), "failed", err)

	rec := decodeLine(t, &buf)
	if rec["action"] != "accept_offer" || rec["offer_id"] != "offer-9" {
		t.Fatalf("error log ctx not restored: %v", rec)
	}
	if err.Error() != "boom" {
		t.Fatalf("wrapped error lost its message: %v", err)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "svc", LevelWarn)

	l.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at WARN level, got %q", buf.String())
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, lvl := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if !ValidateLogLevel(lvl) {
			t.Fatalf("%s must be valid", lvl)
		}
	}
	if ValidateLogLevel("TRACE") {
		t.Fatalf("TRACE must be invalid")
	}
}

func TestWithLogCtx_MergesExisting(t *testing.T) {
	ctx := wrap.WithTripID(context.Background(), "trip-1")
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: "poll"})

	if got := wrap.GetTripID(ctx); got != "trip-1" {
		t.Fatalf("trip id lost on merge: %q", got)
	}
}
