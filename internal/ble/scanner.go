package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Scanner runs one time-bounded discovery window and returns the set
// of peripherals seen, deduplicated by address.
type Scanner struct {
	adapter Adapter

	// CheckPermissions is the radio permission precondition. It runs
	// before the scan starts; a non-nil return aborts the scan with
	// ErrPermissionDenied. Nil means no extra check beyond enabling
	// the adapter. Injectable so platform policy stays out of the
	// protocol code.
	CheckPermissions func() error
}

// NewScanner creates a scanner over the given adapter.
func NewScanner(adapter Adapter) *Scanner {
	return &Scanner{adapter: adapter}
}

// Scan discovers nearby peripherals for the given duration. The first
// advertisement per address wins; later sightings of the same address
// are dropped. Zero devices found is a valid outcome, not an error.
// The underlying radio scan is halted before Scan returns, on every
// exit path. Caller may cancel early through ctx.
func (s *Scanner) Scan(ctx context.Context, duration time.Duration) ([]Device, error) {
	if s.CheckPermissions != nil {
		if err := s.CheckPermissions(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	// Advertisement callbacks may arrive from a backend thread.
	var mu sync.Mutex
	seen := make(map[string]Device)
	var order []string

	slog.Info("[BLE] scanning", "duration", duration)
	err := s.adapter.Scan(scanCtx, func(d Device) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[d.Address]; ok {
			return
		}
		seen[d.Address] = d
		order = append(order, d.Address)
		slog.Debug("[BLE] discovered", "address", d.Address, "name", d.Name, "rssi", d.RSSI)
	})
	if err != nil && ctx.Err() == nil && scanCtx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	devices := make([]Device, 0, len(order))
	for _, addr := range order {
		devices = append(devices, seen[addr])
	}
	// Strongest signal first; that is almost always the printer on the
	// counter.
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].RSSI > devices[j].RSSI
	})
	slog.Info("[BLE] scan complete", "devices", len(devices))
	return devices, nil
}
