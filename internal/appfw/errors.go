package appfw

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistration is returned when a request is issued with a callback
	// that cannot be registered, e.g. a list request without a callback.
	ErrRegistration = errors.New("appfw: invalid callback registration")
	// ErrTarget matches every *TargetError.
	ErrTarget = errors.New("appfw: invalid target")
	// ErrNoTarget means no selector field was set.
	ErrNoTarget = errors.New("no target selected")
	// ErrInvalidEvent is returned for an empty event name.
	ErrInvalidEvent = errors.New("appfw: invalid event name")
	// ErrClosed is returned by operations on a closed App.
	ErrClosed = errors.New("appfw: application closed")
)

// TargetError reports a target selector that cannot be encoded.
type TargetError struct {
	Field string
	Err   error
}

func (e *TargetError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("appfw: invalid target: %v", e.Err)
	}
	return fmt.Sprintf("appfw: invalid target %s: %v", e.Field, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTarget) hold for any TargetError.
func (e *TargetError) Is(target error) bool { return target == ErrTarget }
