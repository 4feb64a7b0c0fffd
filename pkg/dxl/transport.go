package dxl

import "context"

// Protocol addressing constants shared with the transport.
const (
	// MaxID is the highest assignable servo ID; 253 and up are reserved
	// for broadcast and protocol use.
	MaxID = 252
	// BroadcastID addresses every device on the bus at once.
	BroadcastID = 254
)

// Model number register location, common to protocol 2.0 devices. Read
// before any model is resolved, so it cannot come from a control table.
const (
	modelNumberAddress = 0
	modelNumberWidth   = 2
)

// RegisterRead names one register to fetch in a bulk read.
type RegisterRead struct {
	ID      int
	Address int
	Width   int
}

// RegisterWrite names one register and the value to store in a bulk write.
type RegisterWrite struct {
	ID      int
	Address int
	Width   int
	Value   uint32
}

// Transport is the synchronous bus primitive the core consumes. Framing,
// checksums and retries are the implementation's responsibility: transient
// failures are retried inside the transport up to its retry budget and
// surface here as TimeoutError or ChecksumError. A non-zero device status
// byte surfaces as a StatusError. The transport is not internally
// concurrent; the Controller serializes access to it.
type Transport interface {
	// ReadRegister fetches width bytes at address from one device.
	ReadRegister(ctx context.Context, id, address, width int) (uint32, error)
	// WriteRegister stores width bytes at address on one device.
	WriteRegister(ctx context.Context, id, address, width int, value uint32) error
	// BulkRead fetches one register from each listed device in a single
	// bus transaction where supported. Best effort: devices that fail to
	// answer are absent from the result.
	BulkRead(ctx context.Context, reads []RegisterRead) (map[int]uint32, error)
	// BulkWrite stores one register on each listed device in a single bus
	// transaction where supported. Per-device failures are keyed by ID in
	// the returned map; the error reports transport-wide failure only.
	BulkWrite(ctx context.Context, writes []RegisterWrite) (map[int]error, error)
	// Scan pings the inclusive ID range and returns the responding IDs.
	Scan(ctx context.Context, first, last int) ([]int, error)
	// Close releases the underlying port.
	Close() error
}
