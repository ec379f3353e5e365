package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// SetupError marks missing or invalid credentials/configuration. It is the only
// error class that aborts a command with a non-zero exit code.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func NewSetupError(op string, err error) error {
	return &SetupError{Op: op, Err: err}
}

// TransportError marks a failed call to an external system (cloud API, store, notifier).
type TransportError struct {
	System string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.System, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(system, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{System: system, Op: op, Err: err}
}

func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
