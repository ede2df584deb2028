package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCurrentHandler reports dispatch on a flow without a bound handler
	ErrNoCurrentHandler = errors.New("current handler is nil")
	// ErrInvalidEvent reports a nil or empty event
	ErrInvalidEvent = errors.New("invalid event")
)

// NewPanicError converts a recovered panic value into an error
func NewPanicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}
