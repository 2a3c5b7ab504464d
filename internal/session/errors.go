package session

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Match them with errors.Is.
var (
	ErrJoinFailed             = errors.New("join failed")
	ErrMediaAcquisitionFailed = errors.New("media acquisition failed")
	ErrPublishFailed          = errors.New("publish failed")
	ErrDeviceSwitchFailed     = errors.New("device switch failed")
	ErrDisconnected           = errors.New("disconnected")

	ErrAlreadyJoined = errors.New("session already started")
	ErrJoinCancelled = errors.New("join cancelled")
	ErrNotActive     = errors.New("session not active")
)

var (
	errMissingAddress    = errors.New("transport address is empty")
	errMissingCredential = errors.New("credential is empty")
)

// Error carries a failure kind, the operation that failed and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func newError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
