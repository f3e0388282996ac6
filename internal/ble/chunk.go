package ble

// DefaultChunkSize is the conservative per-write byte bound for BLE
// peripherals that never negotiate a larger MTU. Oversize writes are
// silently rejected or truncated by such printers, so small fixed
// chunks are the portable fallback.
const DefaultChunkSize = 20

// Chunk splits payload into size-bounded slices in transmission order.
// Concatenating the result reproduces payload byte-for-byte. Returns
// nil for an empty payload. The slices alias payload; callers must not
// mutate it until transmission completes.
func Chunk(payload []byte, size int) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return append(chunks, payload)
}
