package cli

import (
	"context"
	"errors"

	"rd3/internal/core"
	"rd3/internal/gateway"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitValidation = 1
	ExitTransport  = 2
	ExitCancelled  = 3
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var reqErr *gateway.RequestError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, core.ErrCancelled), errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, core.ErrIncomplete),
		errors.Is(err, gateway.ErrTransport),
		errors.Is(err, gateway.ErrUnauthenticated),
		errors.As(err, &reqErr):
		return ExitTransport
	default:
		return ExitValidation
	}
}
