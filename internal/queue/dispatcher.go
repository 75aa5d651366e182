package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Handler executes one operation kind. A nil return means the item is done.
type Handler func(ctx context.Context, item Item) error

// PermanentError marks a dispatch failure that retrying cannot fix. The
// processor sends these straight to the terminal failed state instead of
// consuming the retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Dispatcher routes a queue item to the handler registered for its operation.
type Dispatcher struct {
	handlers map[Operation]Handler
	logger   *zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Operation]Handler),
		logger:   logger,
	}
}

// Register binds an operation kind to its handler. Later registrations for
// the same operation replace earlier ones.
func (d *Dispatcher) Register(op Operation, handler Handler) {
	d.handlers[op] = handler
}

// Dispatch runs the handler for the item's operation. An operation with no
// registered handler can never succeed, so it fails permanently rather than
// burning through the retry budget. A handler panic is converted into an
// ordinary retryable error so one bad item cannot take down a pass.
func (d *Dispatcher) Dispatch(ctx context.Context, item Item) (err error) {
	handler, ok := d.handlers[item.Operation]
	if !ok {
		d.logger.Warn().
			Str("item_id", item.ID).
			Str("operation", string(item.Operation)).
			Msg("No handler registered for operation")
		return Permanent(fmt.Errorf("no handler registered for operation %q", item.Operation))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("item_id", item.ID).
				Str("operation", string(item.Operation)).
				Interface("panic", r).
				Msg("Handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(ctx, item)
}
