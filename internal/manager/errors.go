package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a sequence is already running.
	ErrBusy = errors.New("manager: operation already in progress")
	// ErrTimeout means the device did not answer within the operation timeout.
	ErrTimeout = errors.New("manager: no response from device")
	// ErrDisconnected aborts a sequence when the transport goes away.
	ErrDisconnected = errors.New("manager: transport disconnected")
)

// SequenceError reports where a sequence stopped.
type SequenceError struct {
	Op          Kind
	Address     uint16
	Description string
	Attempts    int
	Cause       error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s failed at 0x%04X (%s) after %d attempt(s): %v",
		e.Op, e.Address, e.Description, e.Attempts, e.Cause)
}

func (e *SequenceError) Unwrap() error {
	return e.Cause
}
