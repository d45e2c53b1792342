package core

import "errors"

var (
	// ErrValidation aborts a run on input the engine refuses to interpret.
	ErrValidation = errors.New("validation failed")
	// ErrCancelled is returned when the stop file appears during a run.
	ErrCancelled = errors.New("cancelled by stop file")
	// ErrIncomplete is returned after a run in which catalog writes failed.
	ErrIncomplete = errors.New("run incomplete")
)
