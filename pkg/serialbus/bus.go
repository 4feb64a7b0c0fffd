// Package serialbus drives a Dynamixel protocol 2.0 bus over a serial
// port. It implements the dxl.Transport contract: framing, checksums and
// the retry budget live here, so the core above it only ever sees typed
// errors.
package serialbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"go.bug.st/serial"

	"github.com/gwillem/dynamixel/pkg/dxl"
	"github.com/gwillem/dynamixel/pkg/protocol"
)

// Config holds the port parameters.
type Config struct {
	Port     string
	Baudrate int
	// ReadTimeout bounds one response read; retries multiply it.
	ReadTimeout time.Duration
	// RetryCount is how many times a timed-out or corrupted transaction is
	// reissued before the failure surfaces.
	RetryCount int
	// PingTimeout bounds each ping during a scan. Scans touch hundreds of
	// IDs, most of them absent, so this is much shorter than ReadTimeout.
	PingTimeout time.Duration
}

const (
	defaultReadTimeout = 200 * time.Millisecond
	defaultPingTimeout = 20 * time.Millisecond
	defaultRetryCount  = 3
)

// Bus is an open serial connection implementing dxl.Transport. It is not
// internally concurrent; the owning controller serializes access.
type Bus struct {
	cfg  Config
	port serial.Port
	log  golog.Logger
	buf  []byte
}

// Open opens the serial port and returns a ready bus.
func Open(cfg Config, logger golog.Logger) (*Bus, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = dxl.DefaultBaudrate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if logger == nil {
		logger = golog.Global()
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baudrate})
	if err != nil {
		return nil, &dxl.ConnectionError{Port: cfg.Port, Err: err}
	}
	return &Bus{cfg: cfg, port: port, log: logger, buf: make([]byte, 256)}, nil
}

// Close releases the serial port.
func (b *Bus) Close() error {
	return b.port.Close()
}

// ReadRegister fetches width bytes at address from one device.
func (b *Bus) ReadRegister(ctx context.Context, id, address, width int) (uint32, error) {
	params := []byte{byte(address), byte(address >> 8), byte(width), byte(width >> 8)}
	sp, err := b.transact(ctx, byte(id), protocol.InstRead, params, b.cfg.ReadTimeout)
	if err != nil {
		return 0, err
	}
	if err := statusToError(id, sp.status); err != nil {
		return 0, err
	}
	if len(sp.params) < width {
		return 0, fmt.Errorf("short read from servo %d: %d of %d byte(s)", id, len(sp.params), width)
	}
	return leUint(sp.params[:width]), nil
}

// WriteRegister stores width bytes at address on one device.
func (b *Bus) WriteRegister(ctx context.Context, id, address, width int, value uint32) error {
	params := make([]byte, 0, 2+width)
	params = append(params, byte(address), byte(address>>8))
	params = appendLE(params, value, width)
	sp, err := b.transact(ctx, byte(id), protocol.InstWrite, params, b.cfg.ReadTimeout)
	if err != nil {
		return err
	}
	return statusToError(id, sp.status)
}

// BulkRead issues one sync read for all requests sharing an address and
// width, then collects one status packet per listed device. Best effort:
// devices that fail to answer are left out of the result.
func (b *Bus) BulkRead(ctx context.Context, reads []dxl.RegisterRead) (map[int]uint32, error) {
	out := make(map[int]uint32, len(reads))
	for _, group := range groupReads(reads) {
		params := []byte{
			byte(group.address), byte(group.address >> 8),
			byte(group.width), byte(group.width >> 8),
		}
		for _, id := range group.ids {
			params = append(params, byte(id))
		}
		if err := b.send(buildPacket(protocol.BroadcastID, protocol.InstSyncRead, params)); err != nil {
			return nil, err
		}
		for range group.ids {
			sp, err := b.receive(ctx, b.cfg.ReadTimeout)
			if err != nil {
				// Remaining responders in this group are lost too; move on
				// with what arrived.
				b.log.Debugw("sync read response missing", "error", err)
				break
			}
			if sp.status != protocol.StatusOK && sp.status&protocol.AlertBit == 0 {
				continue
			}
			if len(sp.params) >= group.width {
				out[int(sp.id)] = leUint(sp.params[:group.width])
			}
		}
	}
	return out, nil
}

// BulkWrite issues one sync write per (address, width) group. Sync writes
// are broadcast and unacknowledged, so per-device failures cannot be
// observed here; the returned map is always empty on success.
func (b *Bus) BulkWrite(ctx context.Context, writes []dxl.RegisterWrite) (map[int]error, error) {
	for _, group := range groupWrites(writes) {
		params := []byte{
			byte(group.address), byte(group.address >> 8),
			byte(group.width), byte(group.width >> 8),
		}
		for _, w := range group.writes {
			params = append(params, byte(w.ID))
			params = appendLE(params, w.Value, group.width)
		}
		if err := b.send(buildPacket(protocol.BroadcastID, protocol.InstSyncWrite, params)); err != nil {
			return nil, err
		}
	}
	return map[int]error{}, nil
}

// Scan pings every ID in the inclusive range and returns the responders.
func (b *Bus) Scan(ctx context.Context, first, last int) ([]int, error) {
	var found []int
	for id := first; id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.send(buildPacket(byte(id), protocol.InstPing, nil)); err != nil {
			return nil, err
		}
		sp, err := b.receive(ctx, b.cfg.PingTimeout)
		if err != nil {
			continue // silent ID
		}
		if int(sp.id) == id {
			found = append(found, id)
		}
	}
	return found, nil
}

// transact sends an instruction packet and reads the matching status
// packet, retrying timed-out and corrupted exchanges up to the retry
// budget.
func (b *Bus) transact(ctx context.Context, id byte, inst protocol.Instruction, params []byte, timeout time.Duration) (statusPacket, error) {
	pkt := buildPacket(id, inst, params)
	var lastErr error
	for attempt := 0; attempt <= b.cfg.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return statusPacket{}, err
		}
		if attempt > 0 {
			b.log.Debugw("retrying transaction", "id", id, "attempt", attempt)
			_ = b.port.ResetInputBuffer()
		}
		if err := b.send(pkt); err != nil {
			return statusPacket{}, err
		}
		sp, err := b.receive(ctx, timeout)
		if err == nil && sp.id == id {
			return sp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("response from servo %d while waiting for %d", sp.id, id)
			continue
		}
		lastErr = err
		if !errors.Is(err, dxl.ErrTimeout) && !errors.Is(err, dxl.ErrChecksum) {
			return statusPacket{}, err
		}
	}
	if errors.Is(lastErr, dxl.ErrChecksum) {
		return statusPacket{}, &dxl.ChecksumError{ID: int(id)}
	}
	return statusPacket{}, &dxl.TimeoutError{Op: fmt.Sprintf("instruction 0x%02x", byte(inst)), ID: int(id), Timeout: timeout}
}

func (b *Bus) send(pkt []byte) error {
	if _, err := b.port.Write(pkt); err != nil {
		return &dxl.ConnectionError{Port: b.cfg.Port, Err: err}
	}
	return nil
}

// receive reads one complete status packet from the port.
func (b *Bus) receive(ctx context.Context, timeout time.Duration) (statusPacket, error) {
	if err := b.port.SetReadTimeout(timeout); err != nil {
		return statusPacket{}, &dxl.ConnectionError{Port: b.cfg.Port, Err: err}
	}
	// Fixed prefix through the length field, then the declared remainder.
	if err := b.readFull(ctx, b.buf[:7], timeout); err != nil {
		return statusPacket{}, err
	}
	// A status packet carries at least instruction, status and CRC, and the
	// protocol caps whole packets at MaxPacketLength. A length field outside
	// those bounds is a framing violation, not line corruption, so it is not
	// retried as a checksum failure.
	length := int(b.buf[5]) | int(b.buf[6])<<8
	if length < 4 || 7+length > protocol.MaxPacketLength {
		return statusPacket{}, fmt.Errorf("status packet length field %d out of range (servo %d)", length, b.buf[4])
	}
	if err := b.readFull(ctx, b.buf[7:7+length], timeout); err != nil {
		return statusPacket{}, err
	}
	sp, err := parseStatus(b.buf[:7+length])
	if err != nil {
		if errors.Is(err, errBadCRC) {
			return statusPacket{}, &dxl.ChecksumError{ID: int(b.buf[4])}
		}
		return statusPacket{}, err
	}
	return sp, nil
}

func (b *Bus) readFull(ctx context.Context, dst []byte, timeout time.Duration) error {
	off := 0
	for off < len(dst) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := b.port.Read(dst[off:])
		if err != nil {
			return &dxl.ConnectionError{Port: b.cfg.Port, Err: err}
		}
		if n == 0 {
			// The serial read timeout expired with no data.
			return &dxl.TimeoutError{Op: "read response", ID: -1, Timeout: timeout}
		}
		off += n
	}
	return nil
}

func statusToError(id int, status byte) error {
	if status == protocol.StatusOK {
		return nil
	}
	return &dxl.StatusError{ID: id, Code: status}
}

func leUint(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b[:4])
	}
}

func appendLE(dst []byte, v uint32, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

type readGroup struct {
	address int
	width   int
	ids     []int
}

func groupReads(reads []dxl.RegisterRead) []readGroup {
	var groups []readGroup
	for _, r := range reads {
		placed := false
		for i := range groups {
			if groups[i].address == r.Address && groups[i].width == r.Width {
				groups[i].ids = append(groups[i].ids, r.ID)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, readGroup{address: r.Address, width: r.Width, ids: []int{r.ID}})
		}
	}
	return groups
}

type writeGroup struct {
	address int
	width   int
	writes  []dxl.RegisterWrite
}

func groupWrites(writes []dxl.RegisterWrite) []writeGroup {
	var groups []writeGroup
	for _, w := range writes {
		placed := false
		for i := range groups {
			if groups[i].address == w.Address && groups[i].width == w.Width {
				groups[i].writes = append(groups[i].writes, w)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, writeGroup{address: w.Address, width: w.Width, writes: []dxl.RegisterWrite{w}})
		}
	}
	return groups
}
