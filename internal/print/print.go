// Package print is the entry point the POS business code calls: it
// ties the printer registry, the receipt encoder, and the BLE
// transport into one printSale flow, and exposes the scan/register
// facade the settings screen uses.
package print

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tozzoburger/posprint/internal/ble"
	"github.com/tozzoburger/posprint/internal/receipt"
	"github.com/tozzoburger/posprint/internal/registry"
)

// ErrNoPrinterRegistered means printing was requested before any
// printer was registered. No radio work happens in that case.
var ErrNoPrinterRegistered = errors.New("print: no printer registered")

// PrintError wraps every failure of a print attempt in a single
// user-facing category. The cause stays reachable through errors.Is
// and errors.As so the UI can pick a message per kind. The service
// never retries; a retried partial transmission can print the receipt
// twice, so retry is the caller's decision.
type PrintError struct {
	Op  string
	Err error
}

func (e *PrintError) Error() string {
	return fmt.Sprintf("print: %s: %v", e.Op, e.Err)
}

func (e *PrintError) Unwrap() error { return e.Err }

// Service drives print jobs against the registered default printer.
// The radio is process-wide singleton state, so Service serializes
// scans and prints: a print cannot start while a scan runs and vice
// versa.
type Service struct {
	store     *registry.Store
	scanner   *ble.Scanner
	transport *ble.Transport
	opts      receipt.Options

	radioMu sync.Mutex
}

// NewService wires the orchestrator.
func NewService(store *registry.Store, scanner *ble.Scanner, transport *ble.Transport, opts receipt.Options) *Service {
	return &Service{
		store:     store,
		scanner:   scanner,
		transport: transport,
		opts:      opts,
	}
}

// ScanForPrinters runs one discovery window and returns the devices
// seen, strongest signal first.
func (s *Service) ScanForPrinters(ctx context.Context, timeout time.Duration) ([]ble.Device, error) {
	s.radioMu.Lock()
	defer s.radioMu.Unlock()
	return s.scanner.Scan(ctx, timeout)
}

// RegisterPrinter stores device as the default printer, replacing any
// previous registration.
func (s *Service) RegisterPrinter(ctx context.Context, address, name string) error {
	return s.store.Register(ctx, address, name)
}

// RegisteredPrinter returns the default printer, or nil when none is
// registered.
func (s *Service) RegisteredPrinter(ctx context.Context) (*registry.Printer, error) {
	return s.store.Default(ctx)
}

// RemovePrinter clears the default printer slot.
func (s *Service) RemovePrinter(ctx context.Context) error {
	return s.store.Remove(ctx)
}

// PrintSale renders sale into a receipt and transmits it to the
// registered printer. Every failure comes back as a *PrintError with
// the underlying cause attached.
func (s *Service) PrintSale(ctx context.Context, sale receipt.Sale, items []receipt.LineItem) error {
	printer, err := s.store.Default(ctx)
	if err != nil {
		return &PrintError{Op: "lookup printer", Err: err}
	}
	if printer == nil {
		return &PrintError{Op: "lookup printer", Err: ErrNoPrinterRegistered}
	}

	payload, err := receipt.Encode(sale, items, s.opts)
	if err != nil {
		return &PrintError{Op: "encode receipt", Err: err}
	}

	s.radioMu.Lock()
	defer s.radioMu.Unlock()

	slog.Info("[PRINT] printing sale", "sale", sale.ID, "printer", printer.Address, "bytes", len(payload))
	if err := s.transport.Transmit(ctx, printer.Address, payload); err != nil {
		return &PrintError{Op: "transmit", Err: err}
	}
	return nil
}
