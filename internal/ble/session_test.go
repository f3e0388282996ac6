package ble

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InterChunkDelay = 0 // keep tests fast
	return cfg
}

func TestTransmitWritesAllChunksInOrder(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	adapter.connection.chars = []Characteristic{char}

	payload := []byte(strings.Repeat("receipt bytes ", 10)) // 140 bytes, 7 chunks
	transport := NewTransport(adapter, testConfig())

	if err := transport.Transmit(context.Background(), "AA:BB", payload); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}

	writes := char.written()
	if want := 7; len(writes) != want {
		t.Fatalf("got %d writes, want %d", len(writes), want)
	}
	var reassembled []byte
	for i, w := range writes {
		if len(w) > DefaultChunkSize {
			t.Errorf("write %d carries %d bytes, exceeds chunk size %d", i, len(w), DefaultChunkSize)
		}
		reassembled = append(reassembled, w...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Error("concatenated writes do not reproduce the payload")
	}
	if got := adapter.connection.disconnectCount(); got != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", got)
	}
}

func TestTransmitPrefersAcknowledgedWrites(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", true, true)
	adapter.connection.chars = []Characteristic{char}

	transport := NewTransport(adapter, testConfig())
	if err := transport.Transmit(context.Background(), "AA:BB", []byte("hello")); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}

	if char.ackWrites == 0 {
		t.Error("acknowledged write supported but never used")
	}
	if char.noRespWrites != 0 {
		t.Error("unacknowledged write used despite acknowledged support")
	}
}

func TestTransmitPicksFirstWritableCharacteristic(t *testing.T) {
	adapter := newMockAdapter()
	readOnly := newMockCharacteristic("2a00", false, false)
	writable := newMockCharacteristic("ae01", false, true)
	other := newMockCharacteristic("ae03", false, true)
	adapter.connection.chars = []Characteristic{readOnly, writable, other}

	transport := NewTransport(adapter, testConfig())
	if err := transport.Transmit(context.Background(), "AA:BB", []byte("x")); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}

	if len(writable.written()) == 0 {
		t.Error("first writable characteristic received no writes")
	}
	if len(other.written()) != 0 || len(readOnly.written()) != 0 {
		t.Error("writes reached a characteristic other than the first writable one")
	}
}

func TestTransmitNoWritableCharacteristic(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connection.chars = []Characteristic{
		newMockCharacteristic("2a00", false, false),
	}

	transport := NewTransport(adapter, testConfig())
	err := transport.Transmit(context.Background(), "AA:BB", []byte("x"))
	if !errors.Is(err, ErrNoWritableCharacteristic) {
		t.Fatalf("Transmit() error = %v, want ErrNoWritableCharacteristic", err)
	}
	if got := adapter.connection.disconnectCount(); got != 1 {
		t.Errorf("disconnect called %d times, want exactly 1 even on failure", got)
	}
}

func TestTransmitConnectError(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connectErr = errors.New("peripheral refused")

	transport := NewTransport(adapter, testConfig())
	err := transport.Transmit(context.Background(), "AA:BB", []byte("x"))

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Transmit() error = %v, want *ConnectError", err)
	}
	if connErr.Address != "AA:BB" {
		t.Errorf("ConnectError.Address = %q, want %q", connErr.Address, "AA:BB")
	}
}

func TestTransmitConnectTimeout(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connectDelay = 200 * time.Millisecond

	cfg := testConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	transport := NewTransport(adapter, cfg)

	err := transport.Transmit(context.Background(), "AA:BB", []byte("x"))
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Transmit() error = %v, want ErrConnectTimeout", err)
	}
}

func TestTransmitWriteFailureAbortsRemainingChunks(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	char.failAt = 2 // third chunk write fails
	adapter.connection.chars = []Characteristic{char}

	payload := bytes.Repeat([]byte{0x42}, DefaultChunkSize*5)
	transport := NewTransport(adapter, testConfig())
	err := transport.Transmit(context.Background(), "AA:BB", payload)

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Transmit() error = %v, want *WriteError", err)
	}
	if writeErr.LastChunk != 1 {
		t.Errorf("WriteError.LastChunk = %d, want 1 (last successful chunk)", writeErr.LastChunk)
	}
	if got := len(char.written()); got != 2 {
		t.Errorf("%d chunks written after mid-sequence failure, want 2 (no pipelining past the failure)", got)
	}
	if got := adapter.connection.disconnectCount(); got != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", got)
	}
}

func TestTransmitWriteTimeout(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	char.writeDelay = 200 * time.Millisecond
	adapter.connection.chars = []Characteristic{char}

	cfg := testConfig()
	cfg.WriteTimeout = 20 * time.Millisecond
	transport := NewTransport(adapter, cfg)

	err := transport.Transmit(context.Background(), "AA:BB", []byte("x"))
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Transmit() error = %v, want *WriteError", err)
	}
	if !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Transmit() error = %v, want chain to include ErrWriteTimeout", err)
	}
	if writeErr.LastChunk != -1 {
		t.Errorf("WriteError.LastChunk = %d, want -1 (nothing written)", writeErr.LastChunk)
	}
}

func TestTransmitCancelDuringInterChunkDelay(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	adapter.connection.chars = []Characteristic{char}

	cfg := testConfig()
	cfg.InterChunkDelay = time.Second
	transport := NewTransport(adapter, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond) // land inside the pacing gap
		cancel()
	}()

	start := time.Now()
	payload := bytes.Repeat([]byte{0x42}, DefaultChunkSize*3)
	err := transport.Transmit(ctx, "AA:BB", payload)

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Transmit() error = %v, want *WriteError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Transmit() error = %v, want chain to include context.Canceled", err)
	}
	if writeErr.LastChunk != 0 {
		t.Errorf("WriteError.LastChunk = %d, want 0 (first chunk landed)", writeErr.LastChunk)
	}
	if got := len(char.written()); got != 1 {
		t.Errorf("%d chunks written after cancellation, want 1", got)
	}
	if elapsed := time.Since(start); elapsed >= cfg.InterChunkDelay {
		t.Errorf("Transmit() returned after %v, want prompt return on cancellation", elapsed)
	}
	if got := adapter.connection.disconnectCount(); got != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", got)
	}
}

func TestTransmitRejectsConcurrentSessionSameAddress(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	char.writeDelay = 100 * time.Millisecond
	adapter.connection.chars = []Characteristic{char}

	transport := NewTransport(adapter, testConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = transport.Transmit(context.Background(), "AA:BB", []byte("slow job"))
	}()

	time.Sleep(20 * time.Millisecond) // let the first session reach the write phase
	err := transport.Transmit(context.Background(), "AA:BB", []byte("second job"))
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Transmit() error = %v, want ErrSessionActive", err)
	}
	wg.Wait()
}

func TestTransmitSessionsAreIndependent(t *testing.T) {
	adapter := newMockAdapter()
	char := newMockCharacteristic("ae01", false, true)
	adapter.connection.chars = []Characteristic{char}

	transport := NewTransport(adapter, testConfig())
	if err := transport.Transmit(context.Background(), "AA:BB", []byte("first")); err != nil {
		t.Fatalf("first Transmit() error = %v", err)
	}
	if err := transport.Transmit(context.Background(), "AA:BB", []byte("second")); err != nil {
		t.Fatalf("second Transmit() error = %v", err)
	}

	// Two complete sessions, each with its own disconnect.
	if got := adapter.connection.disconnectCount(); got != 2 {
		t.Errorf("disconnect called %d times across two sessions, want 2", got)
	}
}
