package wrap

import (
	"context"
	"errors"
)

// ctxError carries the LogCtx that was current where the error was wrapped.
type ctxError struct {
	err    error
	logCtx LogCtx
}

func (e *ctxError) Error() string {
	return e.err.Error()
}

func (e *ctxError) Unwrap() error {
	return e.err
}

// ErrorCtx returns ctx with the LogCtx of the outermost wrapped error merged in.
// Fields set on the error win, empty ones keep the values of ctx,
// so a request id of the log site survives an error wrapped deep in a service.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *ctxError
	if errors.As(err, &e) && e != nil {
		return WithLogCtx(ctx, e.logCtx)
	}
	return ctx
}
