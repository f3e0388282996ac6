// Package ble drives the Bluetooth Low Energy link to a thermal
// receipt printer: time-bounded device discovery and the
// connect/discover/write/disconnect session one print job runs
// through.
package ble

import "context"

// Device is a peripheral observed during one scan window. Devices are
// ephemeral; only the address of the chosen printer is persisted.
type Device struct {
	Address string
	Name    string // advertised local name; may be empty
	RSSI    int
}

// Characteristic is an addressable write endpoint exposed by a
// connected peripheral.
type Characteristic interface {
	// UUID returns the characteristic UUID string.
	UUID() string
	// SupportsWrite reports whether acknowledged writes are available.
	SupportsWrite() bool
	// SupportsWriteWithoutResponse reports whether unacknowledged
	// writes are available.
	SupportsWriteWithoutResponse() bool
	// Write sends data and waits for the peripheral's acknowledgement.
	Write(data []byte) error
	// WriteWithoutResponse queues data without acknowledgement.
	WriteWithoutResponse(data []byte) error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Characteristics enumerates every characteristic of every service
	// on the peer, in discovery order.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE radio for testing. The radio is
// process-wide singleton state: callers must not run a scan and a
// connection attempt concurrently.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan streams advertisement events to found until ctx is done.
	// The same peripheral may be reported more than once.
	Scan(ctx context.Context, found func(Device)) error
	// Connect establishes a connection to the peripheral with the
	// given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
