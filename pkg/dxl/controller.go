package dxl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
)

// Config holds the controller's bus and polling parameters.
type Config struct {
	Port            string
	Baudrate        int
	ProtocolVersion float64
	Timeout         time.Duration
	RetryCount      int
	ScanStart       int
	ScanEnd         int
	PollInterval    time.Duration
	// MovingTolerance is the raw-count window used to decide a servo has
	// reached its target when its table has no MOVING item. Default 10,
	// matching the devices' own MOVING_THRESHOLD default.
	MovingTolerance int64
	// Registry resolves model numbers during the connect scan. Nil means
	// the process-wide registry.
	Registry *ModelRegistry
}

// Defaults for unset Config fields.
const (
	DefaultBaudrate        = 57600
	DefaultProtocolVersion = 2.0
	DefaultTimeout         = 5 * time.Second
	DefaultRetryCount      = 3
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultMovingTolerance = 10
)

func (c *Config) applyDefaults() {
	if c.Baudrate == 0 {
		c.Baudrate = DefaultBaudrate
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = DefaultProtocolVersion
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.ScanEnd == 0 {
		c.ScanEnd = MaxID
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MovingTolerance == 0 {
		c.MovingTolerance = DefaultMovingTolerance
	}
	if c.Registry == nil {
		c.Registry = defaultRegistry
	}
}

// Controller owns the transport and the set of discovered servos. All
// register I/O is serialized through it: the bus carries at most one
// transaction at a time, and multi-step sequences such as the
// torque-disable/mode-change protocol cannot be fragmented by concurrent
// callers.
type Controller struct {
	cfg Config
	t   Transport
	log golog.Logger
	clk clock.Clock

	mu        sync.Mutex
	connected bool
	servos    map[int]*Servo
	// pending maps servo ID to the raw goal written but not yet confirmed
	// reached. Added by SetPosition/SetPositions, removed by
	// WaitForServos; no other writer.
	pending map[int]int64
}

// NewController wraps an open transport. Call Connect to discover servos.
func NewController(t Transport, cfg Config, logger golog.Logger) *Controller {
	cfg.applyDefaults()
	if logger == nil {
		logger = golog.Global()
	}
	return &Controller{
		cfg:     cfg,
		t:       t,
		log:     logger,
		clk:     clock.New(),
		servos:  make(map[int]*Servo),
		pending: make(map[int]int64),
	}
}

// Connect scans the configured ID range, reads each responder's model
// number, resolves it against the registry and builds a Servo per device.
// Devices that fail the model number read or carry an unregistered model
// number are skipped, not fatal.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("already connected")}
	}
	ids, err := c.t.Scan(ctx, c.cfg.ScanStart, c.cfg.ScanEnd)
	if err != nil {
		return &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("bus scan: %w", err)}
	}
	c.connected = true
	for _, id := range ids {
		raw, err := c.t.ReadRegister(ctx, id, modelNumberAddress, modelNumberWidth)
		if err != nil {
			c.log.Debugw("servo did not answer model number read, skipping", "id", id, "error", err)
			continue
		}
		number := int(raw)
		model, table, err := c.cfg.Registry.Resolve(number)
		if err != nil {
			c.log.Warnw("unknown model number, skipping servo", "id", id, "model_number", number)
			continue
		}
		c.servos[id] = &Servo{c: c, id: id, model: model, table: table}
		c.log.Infow("found servo", "id", id, "model", model.Name)
	}
	c.log.Infof("connected, %d servo(s) on bus", len(c.servos))
	return nil
}

// Disconnect closes the transport. All Servo handles become invalid; any
// later use fails with a ConnectionError.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.servos = make(map[int]*Servo)
	c.pending = make(map[int]int64)
	if err := c.t.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	c.log.Info("disconnected")
	return nil
}

// GetServo looks up a discovered servo by ID. No bus I/O.
func (c *Controller) GetServo(id int) (*Servo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.servos[id]
	return s, ok
}

// IDs returns the discovered servo IDs in ascending order.
func (c *Controller) IDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.servos))
	for id := range c.servos {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// PendingIDs returns the IDs with unconfirmed targets, ascending.
func (c *Controller) PendingIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetTorqueAll enables or disables torque on every discovered servo. The
// bool reports whether all servos accepted the write.
func (c *Controller) SetTorqueAll(ctx context.Context, enable bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false, &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	all := true
	for _, s := range c.servos {
		ok, err := s.setTorqueLocked(ctx, enable)
		if err != nil {
			c.log.Errorw("torque write failed", "id", s.id, "error", err)
			all = false
			continue
		}
		if !ok {
			all = false
		}
	}
	return all, nil
}

// SetPositions commands goal positions, in degrees, for several servos in
// one grouped bus transaction. Every accepted entry is recorded as a
// pending target.
func (c *Controller) SetPositions(ctx context.Context, degrees map[int]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	writes := make([]RegisterWrite, 0, len(degrees))
	raws := make(map[int]int64, len(degrees))
	for id, deg := range degrees {
		s, ok := c.servos[id]
		if !ok {
			return fmt.Errorf("no servo with ID %d", id)
		}
		it, ok := s.table.Item(RegGoalPosition)
		if !ok {
			return fmt.Errorf("servo %d: no %s item", id, RegGoalPosition)
		}
		raw := DegreesToPosition(deg, s.model.Resolution, it)
		raws[id] = raw
		writes = append(writes, RegisterWrite{ID: id, Address: it.Address, Width: it.Width, Value: EncodeRaw(raw, it.Width)})
	}
	failed, err := c.t.BulkWrite(ctx, writes)
	if err != nil {
		return fmt.Errorf("bulk write goal positions: %w", err)
	}
	for id, raw := range raws {
		if ferr, bad := failed[id]; bad {
			c.log.Warnw("servo rejected goal position", "id", id, "error", ferr)
			continue
		}
		c.pending[id] = raw
	}
	return nil
}

// Positions reads the present position of every discovered servo in one
// grouped transaction and returns degrees keyed by ID. Best effort:
// non-answering servos are absent from the result.
func (c *Controller) Positions(ctx context.Context) (map[int]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	reads := make([]RegisterRead, 0, len(c.servos))
	for id, s := range c.servos {
		if it, ok := s.table.Item(RegPresentPosition); ok {
			reads = append(reads, RegisterRead{ID: id, Address: it.Address, Width: it.Width})
		}
	}
	values, err := c.t.BulkRead(ctx, reads)
	if err != nil {
		return nil, fmt.Errorf("bulk read positions: %w", err)
	}
	out := make(map[int]float64, len(values))
	for id, v := range values {
		s := c.servos[id]
		it, _ := s.table.Item(RegPresentPosition)
		deg := PositionToDegrees(DecodeRaw(v, it.Width, it.Signed), s.model.Resolution)
		s.lastPosition = deg
		out[id] = deg
	}
	return out, nil
}

// WaitForServos polls until every pending target is confirmed reached or
// the timeout elapses. Convergence is per servo: each one that stops
// moving (MOVING bit clear, or present position within MovingTolerance of
// the target when the table has no MOVING item) is removed from the
// pending set as it finishes. On timeout or cancellation the remaining
// targets stay pending, so a later call resumes where this one stopped.
// Returns true when the pending set drained before the deadline.
func (c *Controller) WaitForServos(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := c.clk.Now().Add(timeout)
	for {
		empty, err := c.pollPending(ctx)
		if err != nil {
			return false, err
		}
		if empty {
			return true, nil
		}
		if !c.clk.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-c.clk.After(c.cfg.PollInterval):
		}
	}
}

// pollPending performs one convergence pass over the pending set. The bus
// lock is held only for the pass, never across the inter-poll sleep.
func (c *Controller) pollPending(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false, &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	for id, target := range c.pending {
		s, ok := c.servos[id]
		if !ok {
			delete(c.pending, id)
			continue
		}
		reached, err := c.targetReachedLocked(ctx, s, target)
		if err != nil {
			// Keep the target pending; the next pass retries the read.
			c.log.Debugw("completion poll failed", "id", id, "error", err)
			continue
		}
		if reached {
			delete(c.pending, id)
		}
	}
	return len(c.pending) == 0, nil
}

func (c *Controller) targetReachedLocked(ctx context.Context, s *Servo, target int64) (bool, error) {
	if _, ok := s.table.Item(RegMoving); ok {
		moving, err := s.readNamedLocked(ctx, RegMoving)
		if err != nil {
			return false, err
		}
		return moving == 0, nil
	}
	pos, err := s.readNamedLocked(ctx, RegPresentPosition)
	if err != nil {
		return false, err
	}
	delta := pos - target
	if delta < 0 {
		delta = -delta
	}
	return delta <= c.cfg.MovingTolerance, nil
}

func (c *Controller) readRegisterLocked(ctx context.Context, id, address, width int) (uint32, error) {
	if !c.connected {
		return 0, &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	return c.t.ReadRegister(ctx, id, address, width)
}

func (c *Controller) writeRegisterLocked(ctx context.Context, id, address, width int, value uint32) error {
	if !c.connected {
		return &ConnectionError{Port: c.cfg.Port, Err: fmt.Errorf("not connected")}
	}
	return c.t.WriteRegister(ctx, id, address, width, value)
}
