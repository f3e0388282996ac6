package ble

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport layer. None of them is retried
// here; retry policy belongs to the caller, since re-sending a
// partially transmitted receipt can print duplicates.
var (
	// ErrPermissionDenied means the radio permission precondition
	// failed; no scan was started.
	ErrPermissionDenied = errors.New("ble: radio permission denied")
	// ErrConnectTimeout means the connect phase exceeded its deadline.
	ErrConnectTimeout = errors.New("ble: connect timed out")
	// ErrWriteTimeout means a single chunk write exceeded its deadline.
	ErrWriteTimeout = errors.New("ble: write timed out")
	// ErrNoWritableCharacteristic means the connected peer exposes no
	// usable write path. Not retryable without different hardware.
	ErrNoWritableCharacteristic = errors.New("ble: peripheral exposes no writable characteristic")
	// ErrSessionActive means a transmission to the same address is
	// already in flight.
	ErrSessionActive = errors.New("ble: session already active for this address")
)

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a chunk write that failed mid-transmission.
// LastChunk is the index of the last chunk written successfully, or -1
// if none was. Partial payload may have reached the printer; the job
// is not resumable.
type WriteError struct {
	LastChunk int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ble: write failed after chunk %d: %v", e.LastChunk, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
