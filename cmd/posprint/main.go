package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tozzoburger/posprint/internal/ble"
	"github.com/tozzoburger/posprint/internal/config"
	"github.com/tozzoburger/posprint/internal/print"
	"github.com/tozzoburger/posprint/internal/receipt"
	"github.com/tozzoburger/posprint/internal/registry"
)

const usage = `Usage: posprint [-config path] <command> [args]

Commands:
  scan      discover nearby BLE printers
  register  set the default printer (-addr, -name)
  printer   show the registered printer
  remove    clear the registered printer
  print     print a sale (-sale file.json)
`

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/posprint/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	setLogLevel(cfg.LogLevel)

	svc, store := buildService(cfg)
	defer store.Close()

	ctx := context.Background()
	switch cmd := flag.Arg(0); cmd {
	case "scan":
		runScan(ctx, svc, cfg, flag.Args()[1:])
	case "register":
		runRegister(ctx, svc, flag.Args()[1:])
	case "printer":
		runShowPrinter(ctx, svc)
	case "remove":
		runRemove(ctx, svc)
	case "print":
		runPrint(ctx, svc, flag.Args()[1:])
	default:
		log.Printf("unknown command %q", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func buildService(cfg *config.Config) (*print.Service, *registry.Store) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		log.Fatalf("create data directory: %v", err)
	}
	store, err := registry.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open printer registry: %v", err)
	}

	adapter := ble.NewBluetoothAdapter()
	transport := ble.NewTransport(adapter, ble.Config{
		ChunkSize:       cfg.BLE.ChunkSize,
		ConnectTimeout:  cfg.BLE.ConnectTimeout(),
		WriteTimeout:    cfg.BLE.WriteTimeout(),
		InterChunkDelay: cfg.BLE.InterChunkDelay(),
	})
	opts := receipt.Options{Vendor: cfg.VendorName, Currency: cfg.Currency}

	return print.NewService(store, ble.NewScanner(adapter), transport, opts), store
}

func runScan(ctx context.Context, svc *print.Service, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	timeout := fs.Duration("timeout", cfg.Scan.Duration(), "scan window duration")
	fs.Parse(args)

	log.Printf("Scanning for %s...", *timeout)
	devices, err := svc.ScanForPrinters(ctx, *timeout)
	if err != nil {
		if errors.Is(err, ble.ErrPermissionDenied) {
			log.Fatalf("Bluetooth permission denied. Grant radio access and retry.")
		}
		log.Fatalf("scan: %v", err)
	}

	if len(devices) == 0 {
		log.Println("No devices found. Is the printer powered on?")
		return
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(no name)"
		}
		fmt.Printf("  %-24s %s  RSSI %d\n", name, d.Address, d.RSSI)
	}
}

func runRegister(ctx context.Context, svc *print.Service, args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	addr := fs.String("addr", "", "printer address (from 'posprint scan')")
	name := fs.String("name", "", "printer display name")
	fs.Parse(args)

	if *addr == "" {
		log.Fatal("register: -addr is required")
	}
	if err := svc.RegisterPrinter(ctx, *addr, *name); err != nil {
		log.Fatalf("register: %v", err)
	}
	log.Printf("Registered printer %s (%s)", *name, *addr)
}

func runShowPrinter(ctx context.Context, svc *print.Service) {
	p, err := svc.RegisteredPrinter(ctx)
	if err != nil {
		log.Fatalf("printer: %v", err)
	}
	if p == nil {
		fmt.Println("No printer registered.")
		return
	}
	fmt.Printf("%s  %s\n", p.Name, p.Address)
}

func runRemove(ctx context.Context, svc *print.Service) {
	if err := svc.RemovePrinter(ctx); err != nil {
		log.Fatalf("remove: %v", err)
	}
	log.Println("Printer registration removed.")
}

// saleFile is the JSON shape the POS hands over for printing.
type saleFile struct {
	ID       int64     `json:"id"`
	Time     time.Time `json:"time"`
	Customer string    `json:"customer"`
	Total    float64   `json:"total"`
	Items    []struct {
		Name      string  `json:"name"`
		Quantity  int     `json:"quantity"`
		UnitPrice float64 `json:"unit_price"`
	} `json:"items"`
}

func runPrint(ctx context.Context, svc *print.Service, args []string) {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	salePath := fs.String("sale", "", "path to the sale JSON file")
	fs.Parse(args)

	if *salePath == "" {
		log.Fatal("print: -sale is required")
	}
	data, err := os.ReadFile(*salePath)
	if err != nil {
		log.Fatalf("print: read sale: %v", err)
	}
	var sf saleFile
	if err := json.Unmarshal(data, &sf); err != nil {
		log.Fatalf("print: parse sale: %v", err)
	}
	if sf.Time.IsZero() {
		sf.Time = time.Now()
	}

	sale := receipt.Sale{ID: sf.ID, Time: sf.Time, Customer: sf.Customer, Total: sf.Total}
	items := make([]receipt.LineItem, len(sf.Items))
	for i, it := range sf.Items {
		items[i] = receipt.LineItem{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	start := time.Now()
	if err := svc.PrintSale(ctx, sale, items); err != nil {
		switch {
		case errors.Is(err, print.ErrNoPrinterRegistered):
			log.Fatalf("No printer registered. Run 'posprint scan' then 'posprint register' first.")
		case errors.Is(err, ble.ErrNoWritableCharacteristic):
			log.Fatalf("Printer accepted the connection but exposes no writable characteristic: %v", err)
		default:
			log.Fatalf("print failed: %v", err)
		}
	}
	log.Printf("Sale #%d printed in %s", sale.ID, time.Since(start).Round(time.Millisecond))
}

// loadConfig loads the config from the specified path, or falls back
// to the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	default:
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}
}
