package scan

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted reports a user-requested stop. Callers should surface it as
// "aborted" rather than as a failure.
var ErrInterrupted = errors.New("scan interrupted")

// Interrupter is polled before every table and periodically while reading
// rows. A non-nil error stops the scan.
type Interrupter interface {
	CheckWasInterrupted() error
}

// InterrupterFunc adapts a function to Interrupter.
type InterrupterFunc func() error

func (f InterrupterFunc) CheckWasInterrupted() error { return f() }

type ctxInterrupter struct{ ctx context.Context }

// ContextInterrupter reports an interruption once ctx is done.
func ContextInterrupter(ctx context.Context) Interrupter {
	return ctxInterrupter{ctx: ctx}
}

func (c ctxInterrupter) CheckWasInterrupted() error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

// asInterrupted makes sure err matches ErrInterrupted.
func asInterrupted(err error) error {
	if err == nil || errors.Is(err, ErrInterrupted) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInterrupted, err)
}
