package ble

import (
	"context"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"
)

// BluetoothAdapter wraps tinygo-org/bluetooth over the platform stack
// (BlueZ on Linux, CoreBluetooth on macOS, WinRT on Windows). On
// macOS, device addresses are CoreBluetooth UUIDs rather than MAC
// addresses; the Address fields carry whichever form the platform
// reports, and the registry stores them verbatim.
type BluetoothAdapter struct {
	adapter *bluetooth.Adapter
}

// NewBluetoothAdapter creates an adapter over the default platform
// radio.
func NewBluetoothAdapter() *BluetoothAdapter {
	return &BluetoothAdapter{adapter: bluetooth.DefaultAdapter}
}

func (a *BluetoothAdapter) Enable() error {
	return a.adapter.Enable()
}

func (a *BluetoothAdapter) Scan(ctx context.Context, found func(Device)) error {
	if ctx.Err() != nil {
		// Window already closed before the radio started.
		return nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// StopScan is a no-op until the scan is running, so keep
			// nudging it until Scan returns.
			for {
				a.adapter.StopScan()
				select {
				case <-done:
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
		case <-done:
		}
	}()

	// Blocks until StopScan. No service filter: receipt printers
	// advertise all sorts of vendor services, so every advertisement
	// is reported and selection is left to the operator.
	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(Device{
			Address: result.Address.String(),
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *BluetoothAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	return connectWithContext(ctx, func() (Connection, error) {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			return nil, err
		}
		return &bluetoothConnection{device: device}, nil
	})
}

// connectWithContext runs dial, which blocks with the library's own
// internal timeout, while also honoring ctx. Dial cannot be cancelled
// from here; if it succeeds after ctx expired, the connection has no
// owner and is torn down in the background so the printer does not
// stay paired against the operator's retry.
func connectWithContext(ctx context.Context, dial func() (Connection, error)) (Connection, error) {
	type dialResult struct {
		conn Connection
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := dial()
		ch <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.conn != nil {
				_ = r.conn.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

type bluetoothConnection struct {
	device bluetooth.Device
}

func (c *bluetoothConnection) Characteristics() ([]Characteristic, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var chars []Characteristic
	for _, svc := range svcs {
		discovered, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for i := range discovered {
			chars = append(chars, &bluetoothCharacteristic{char: discovered[i]})
		}
	}
	return chars, nil
}

func (c *bluetoothConnection) Disconnect() error {
	return c.device.Disconnect()
}

// bluetoothCharacteristic adapts a tinygo DeviceCharacteristic. The
// central API does not expose GATT property flags, and the library
// only offers unacknowledged writes, so that is what this backend
// reports; a write to a non-writable characteristic surfaces as a
// write error instead of being filtered out up front.
type bluetoothCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *bluetoothCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *bluetoothCharacteristic) SupportsWrite() bool { return false }

func (c *bluetoothCharacteristic) SupportsWriteWithoutResponse() bool { return true }

func (c *bluetoothCharacteristic) Write(data []byte) error {
	return c.WriteWithoutResponse(data)
}

func (c *bluetoothCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
