package dxl

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestController connects a controller to a fake bus. Every listed ID
// answers the model number read as an XM430-W210.
func newTestController(t *testing.T, fake *fakeTransport) *Controller {
	t.Helper()
	for _, id := range fake.scanIDs {
		if _, ok := fake.regs[id][modelNumberAddress]; !ok {
			fake.setReg(id, modelNumberAddress, ModelNumberXM430W210)
		}
	}
	c := NewController(fake, Config{PollInterval: 10 * time.Millisecond}, golog.NewTestLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func testServo(t *testing.T, fake *fakeTransport) (*Controller, *Servo) {
	t.Helper()
	c := newTestController(t, fake)
	s, ok := c.GetServo(fake.scanIDs[0])
	require.True(t, ok)
	return c, s
}

func addrOf(t *testing.T, s *Servo, name string) (int, int) {
	t.Helper()
	it, ok := s.Table().Item(name)
	require.True(t, ok)
	return it.Address, it.Width
}

func TestServoEnableTorque(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	ctx := context.Background()

	ok, err := s.EnableTorque(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.TorqueEnabled())

	addr, width := addrOf(t, s, RegTorqueEnable)
	require.Len(t, fake.writes, 1)
	assert.Equal(t, RegisterWrite{ID: 1, Address: addr, Width: width, Value: 1}, fake.writes[0])

	ok, err = s.DisableTorque(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, s.TorqueEnabled())
	assert.Equal(t, uint32(0), fake.writes[1].Value)
}

func TestServoSetPositionWritesConvertedRaw(t *testing.T) {
	fake := newFakeTransport(1)
	c, s := testServo(t, fake)
	ctx := context.Background()

	ok, err := s.SetPosition(ctx, 180.0)
	require.NoError(t, err)
	assert.True(t, ok)

	// 180 deg at 4096 counts/rev is exactly 2048.
	addr, _ := addrOf(t, s, RegGoalPosition)
	assert.Equal(t, uint32(2048), fake.regs[1][addr])
	assert.Equal(t, []int{1}, c.PendingIDs())
}

func TestServoGetPosition(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)

	addr, _ := addrOf(t, s, RegPresentPosition)
	fake.setReg(1, addr, 2048)

	deg, err := s.GetPosition(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 180.0, deg, 0.001)
}

func TestServoVelocitySigned(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	ctx := context.Background()

	// -50 RPM at 0.229 RPM/count is -218 counts, stored two's complement.
	ok, err := s.SetVelocity(ctx, -50)
	require.NoError(t, err)
	assert.True(t, ok)

	addr, _ := addrOf(t, s, RegGoalVelocity)
	assert.Equal(t, EncodeRaw(-218, 4), fake.regs[1][addr])

	presentAddr, _ := addrOf(t, s, RegPresentVelocity)
	fake.setReg(1, presentAddr, EncodeRaw(-218, 4))
	rpm, err := s.GetVelocity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -49.922, rpm, 0.001)
}

func TestServoModeChangeDisablesTorqueFirst(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	ctx := context.Background()

	_, err := s.EnableTorque(ctx)
	require.NoError(t, err)
	require.True(t, s.TorqueEnabled())

	require.NoError(t, s.SetOperatingMode(ctx, ModeVelocity))

	torqueAddr, _ := addrOf(t, s, RegTorqueEnable)
	modeAddr, _ := addrOf(t, s, RegOperatingMode)

	// Enable, then disable-before-mode-write, then the mode itself. Torque
	// stays off; re-enabling is the caller's job.
	require.Len(t, fake.writes, 3)
	assert.Equal(t, torqueAddr, fake.writes[0].Address)
	assert.Equal(t, uint32(1), fake.writes[0].Value)
	assert.Equal(t, torqueAddr, fake.writes[1].Address)
	assert.Equal(t, uint32(0), fake.writes[1].Value)
	assert.Equal(t, modeAddr, fake.writes[2].Address)
	assert.Equal(t, uint32(ModeVelocity), fake.writes[2].Value)
	assert.False(t, s.TorqueEnabled())
}

func TestServoModeChangeWithTorqueOffSkipsDisable(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)

	require.NoError(t, s.SetOperatingMode(context.Background(), ModePosition))
	require.Len(t, fake.writes, 1)
	modeAddr, _ := addrOf(t, s, RegOperatingMode)
	assert.Equal(t, modeAddr, fake.writes[0].Address)
}

func TestServoUnsupportedMode(t *testing.T) {
	fake := newFakeTransport(1)
	c := NewController(fake, Config{
		Registry: func() *ModelRegistry {
			reg := NewModelRegistry()
			m := testModel(9001) // position control only
			m.Overrides = toTable([]ControlTableItem{rw(RegOperatingMode, 11, 1, 0, 16, 3)})
			if err := reg.Register(m); err != nil {
				t.Fatal(err)
			}
			return reg
		}(),
	}, golog.NewTestLogger(t))
	fake.setReg(1, modelNumberAddress, 9001)
	require.NoError(t, c.Connect(context.Background()))
	s, ok := c.GetServo(1)
	require.True(t, ok)

	err := s.SetOperatingMode(context.Background(), ModeCurrent)
	require.Error(t, err)
	assert.Empty(t, fake.writes, "unsupported mode must not touch the bus")
}

func TestServoWriteRejectedByDevice(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	addr, _ := addrOf(t, s, RegGoalPosition)

	// Device answers but refuses the value: flag false, no raised error.
	fake.writeErr[[2]int{1, addr}] = &StatusError{ID: 1, Code: 0x04}
	ok, err := s.SetPosition(context.Background(), 90)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.c.pending, "rejected write must not become a pending target")
}

func TestServoWriteHardwareAlert(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	addr, _ := addrOf(t, s, RegTorqueEnable)

	fake.writeErr[[2]int{1, addr}] = &StatusError{ID: 1, Code: 0x80 | 0x01}
	ok, err := s.EnableTorque(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHardware)
}

func TestServoWriteTransportFailure(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	addr, _ := addrOf(t, s, RegGoalPosition)

	fake.writeErr[[2]int{1, addr}] = &TimeoutError{Op: "write", ID: 1}
	ok, err := s.SetPosition(context.Background(), 90)
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestServoWriteItemRange(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)
	ctx := context.Background()

	_, err := s.WriteItem(ctx, "PWM_LIMIT", 886)
	require.Error(t, err)

	ok, err := s.WriteItem(ctx, "PWM_LIMIT", 500)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.WriteItem(ctx, RegPresentPosition, 0)
	require.Error(t, err, "read-only items must reject writes")

	_, err = s.WriteItem(ctx, "NO_SUCH_ITEM", 0)
	require.Error(t, err)
}

func TestServoHardwareErrors(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)

	addr, _ := addrOf(t, s, RegHardwareErrorStatus)
	fake.setReg(1, addr, 0x05) // input voltage + motor encoder

	faults, err := s.HardwareErrors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"input voltage error", "motor encoder error"}, faults)
}

func TestServoInfo(t *testing.T) {
	fake := newFakeTransport(1)
	_, s := testServo(t, fake)

	info := s.Info()
	assert.Equal(t, ModelNumberXM430W210, info.Number)
	assert.Equal(t, "XM430-W210", info.Name)
	assert.Contains(t, info.Features, "position_control")
	assert.Contains(t, info.Features, "current_control")
}

func TestServoUseAfterDisconnect(t *testing.T) {
	fake := newFakeTransport(1)
	c, s := testServo(t, fake)

	require.NoError(t, c.Disconnect())

	_, err := s.GetPosition(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)

	_, err = s.EnableTorque(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}
