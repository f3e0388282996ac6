package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testScanWindow = 50 * time.Millisecond

func TestScanDeduplicatesByAddress(t *testing.T) {
	adapter := newMockAdapter()
	adapter.devices = []Device{
		{Address: "AA:AA", Name: "MTP-II", RSSI: -40},
		{Address: "BB:BB", Name: "", RSSI: -70},
		{Address: "AA:AA", Name: "MTP-II (dup)", RSSI: -41},
		{Address: "BB:BB", Name: "LatecomerName", RSSI: -69},
	}

	devices, err := NewScanner(adapter).Scan(context.Background(), testScanWindow)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2 (deduplicated)", len(devices))
	}

	byAddr := make(map[string]Device)
	for _, d := range devices {
		byAddr[d.Address] = d
	}
	if byAddr["AA:AA"].Name != "MTP-II" {
		t.Errorf("AA:AA name = %q, want first-seen %q", byAddr["AA:AA"].Name, "MTP-II")
	}
	if byAddr["BB:BB"].Name != "" {
		t.Errorf("BB:BB name = %q, want first-seen empty name", byAddr["BB:BB"].Name)
	}
}

func TestScanZeroDevicesIsNotAnError(t *testing.T) {
	adapter := newMockAdapter()

	devices, err := NewScanner(adapter).Scan(context.Background(), testScanWindow)
	if err != nil {
		t.Fatalf("Scan() with no advertisements error = %v, want nil", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestScanPermissionDeniedFailsFast(t *testing.T) {
	adapter := newMockAdapter()
	scanner := NewScanner(adapter)
	scanner.CheckPermissions = func() error {
		return errors.New("bluetooth permission not granted")
	}

	_, err := scanner.Scan(context.Background(), testScanWindow)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Scan() error = %v, want ErrPermissionDenied", err)
	}
	if adapter.scanCount() != 0 {
		t.Error("scan was started despite the failed permission check")
	}
}

func TestScanSortsByStrongestSignal(t *testing.T) {
	adapter := newMockAdapter()
	adapter.devices = []Device{
		{Address: "CC:CC", RSSI: -90},
		{Address: "AA:AA", RSSI: -30},
		{Address: "BB:BB", RSSI: -60},
	}

	devices, err := NewScanner(adapter).Scan(context.Background(), testScanWindow)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	for i := 1; i < len(devices); i++ {
		if devices[i-1].RSSI < devices[i].RSSI {
			t.Fatalf("devices not ordered by descending RSSI: %v", devices)
		}
	}
}

func TestScanHonorsCallerCancel(t *testing.T) {
	adapter := newMockAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := NewScanner(adapter).Scan(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("Scan() after cancel error = %v, want nil (stopped scan, empty result)", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Scan() took %v after cancel, expected prompt return", elapsed)
	}
}
