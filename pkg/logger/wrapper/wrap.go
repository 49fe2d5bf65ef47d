package wrap

import (
	"context"
)

// Error wraps an error with the current LogCtx from the context.
// An already wrapped error gets a new outer layer, so ErrorCtx sees the latest context.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	c, _ := ctx.Value(LogCtxKey).(LogCtx)
	return &ctxError{
		err:    err,
		logCtx: c,
	}
}
