// Command test-print sends a fixed smoke-test receipt to an explicit
// printer address, bypassing the registry. Useful when bringing up a
// new printer model.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/tozzoburger/posprint/internal/ble"
	"github.com/tozzoburger/posprint/internal/receipt"
)

func main() {
	addr := flag.String("addr", "", "printer address (required)")
	chunkSize := flag.Int("chunk-size", ble.DefaultChunkSize, "bytes per BLE write")
	flag.Parse()

	if *addr == "" {
		log.Fatal("-addr is required")
	}

	sale := receipt.Sale{
		ID:       1,
		Time:     time.Now(),
		Customer: "test print",
	}
	items := []receipt.LineItem{
		{Name: "Test slip", Quantity: 1, UnitPrice: 0},
	}
	payload, err := receipt.Encode(sale, items, receipt.DefaultOptions())
	if err != nil {
		log.Fatalf("encode: %v", err)
	}

	cfg := ble.DefaultConfig()
	cfg.ChunkSize = *chunkSize
	transport := ble.NewTransport(ble.NewBluetoothAdapter(), cfg)

	log.Printf("Sending %d bytes to %s...", len(payload), *addr)
	start := time.Now()
	if err := transport.Transmit(context.Background(), *addr, payload); err != nil {
		log.Fatalf("transmit: %v", err)
	}
	log.Printf("Done in %s", time.Since(start).Round(time.Millisecond))
}
