package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the phase a transmission session is in. Sessions move
// strictly forward: Idle, Connecting, DiscoveringCapabilities,
// Transmitting, Disconnecting, Closed, with Failed reachable from any
// non-Closed state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateDiscoveringCapabilities
	StateTransmitting
	StateDisconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringCapabilities:
		return "discovering"
	case StateTransmitting:
		return "transmitting"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the transport tuning knobs. Everything that used to be
// a literal in the protocol code is injected from here.
type Config struct {
	ChunkSize       int           // max bytes per write (unnegotiated-MTU bound)
	ConnectTimeout  time.Duration // bound on the connect phase
	WriteTimeout    time.Duration // bound on each chunk write
	InterChunkDelay time.Duration // pause between writes so slow firmware keeps up
}

// DefaultConfig returns conservative defaults that work with cheap
// thermal printers that never negotiate an MTU.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       DefaultChunkSize,
		ConnectTimeout:  10 * time.Second,
		WriteTimeout:    5 * time.Second,
		InterChunkDelay: 20 * time.Millisecond,
	}
}

// Transport runs print transmissions. Each Transmit call is one
// exclusive, single-attempt session with its own connect/disconnect
// cycle; there is no connection pooling or reuse.
type Transport struct {
	adapter Adapter
	cfg     Config

	mu     sync.Mutex
	active map[string]bool // addresses with a session in flight
}

// NewTransport creates a transport over the given adapter. Zero
// values in cfg fall back to DefaultConfig.
func NewTransport(adapter Adapter, cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = def.InterChunkDelay
	}
	return &Transport{
		adapter: adapter,
		cfg:     cfg,
		active:  make(map[string]bool),
	}
}

// Transmit connects to address, finds a writable characteristic,
// writes payload in order as chunked fragments, and disconnects.
// Disconnect is attempted exactly once per session regardless of
// outcome; its own failure is logged, never propagated over the
// transmission result. At most one session per address may be active.
func (t *Transport) Transmit(ctx context.Context, address string, payload []byte) error {
	if err := t.acquire(address); err != nil {
		return err
	}
	defer t.release(address)

	s := &session{
		transport: t,
		address:   address,
		state:     StateIdle,
	}
	return s.run(ctx, payload)
}

func (t *Transport) acquire(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[address] {
		return fmt.Errorf("%w: %s", ErrSessionActive, address)
	}
	t.active[address] = true
	return nil
}

func (t *Transport) release(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, address)
}

// session is the per-attempt state machine. All connection state lives
// here, never in package globals, so one job's disconnect cannot
// invalidate another's assumed connection.
type session struct {
	transport *Transport
	address   string

	state        State
	conn         Connection
	disconnected bool
}

func (s *session) setState(next State) {
	slog.Debug("[BLE] session state", "address", s.address, "from", s.state, "to", next)
	s.state = next
}

// fail transitions to Failed, attempts the session's one disconnect,
// and returns err.
func (s *session) fail(err error) error {
	s.setState(StateFailed)
	s.disconnect()
	return err
}

// disconnect runs the cleanup disconnect at most once. Best-effort:
// failure is logged and swallowed.
func (s *session) disconnect() {
	if s.disconnected || s.conn == nil {
		return
	}
	s.disconnected = true
	if err := s.conn.Disconnect(); err != nil {
		slog.Warn("[BLE] disconnect failed", "address", s.address, "error", err)
	}
}

func (s *session) run(ctx context.Context, payload []byte) error {
	cfg := s.transport.cfg

	// Connect.
	s.setState(StateConnecting)
	if err := s.transport.adapter.Enable(); err != nil {
		return s.fail(&ConnectError{Address: s.address, Err: fmt.Errorf("enable adapter: %w", err)})
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	conn, err := s.transport.adapter.Connect(connectCtx, s.address)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.fail(&ConnectError{Address: s.address, Err: ErrConnectTimeout})
		}
		return s.fail(&ConnectError{Address: s.address, Err: err})
	}
	s.conn = conn
	slog.Info("[BLE] connected", "address", s.address)

	// Capability discovery: first writable characteristic wins.
	s.setState(StateDiscoveringCapabilities)
	char, err := s.findWritable()
	if err != nil {
		return s.fail(err)
	}

	// Sequential chunked writes, strictly in order. The printer
	// reassembles by arrival order alone; the protocol carries no
	// sequence numbers.
	s.setState(StateTransmitting)
	chunks := Chunk(payload, cfg.ChunkSize)
	slog.Info("[BLE] transmitting", "address", s.address, "bytes", len(payload), "chunks", len(chunks))
	for i, chunk := range chunks {
		if err := s.writeChunk(ctx, char, chunk); err != nil {
			return s.fail(&WriteError{LastChunk: i - 1, Err: err})
		}
		if cfg.InterChunkDelay > 0 && i < len(chunks)-1 {
			select {
			case <-time.After(cfg.InterChunkDelay):
			case <-ctx.Done():
				return s.fail(&WriteError{LastChunk: i, Err: ctx.Err()})
			}
		}
	}

	s.setState(StateDisconnecting)
	s.disconnect()
	s.setState(StateClosed)
	slog.Info("[BLE] transmission complete", "address", s.address, "chunks", len(chunks))
	return nil
}

// findWritable enumerates the peer's characteristic tree and returns
// the first one flagged writable, with or without acknowledgement.
func (s *session) findWritable() (Characteristic, error) {
	chars, err := s.conn.Characteristics()
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	for _, c := range chars {
		if c.SupportsWrite() || c.SupportsWriteWithoutResponse() {
			slog.Debug("[BLE] writable characteristic", "uuid", c.UUID(), "acknowledged", c.SupportsWrite())
			return c, nil
		}
	}
	return nil, ErrNoWritableCharacteristic
}

// writeChunk writes one chunk, preferring the acknowledged variant
// when the characteristic supports it, bounded by the write timeout.
func (s *session) writeChunk(ctx context.Context, char Characteristic, chunk []byte) error {
	write := char.WriteWithoutResponse
	if char.SupportsWrite() {
		write = char.Write
	}

	errCh := make(chan error, 1)
	go func() { errCh <- write(chunk) }()

	timer := time.NewTimer(s.transport.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
