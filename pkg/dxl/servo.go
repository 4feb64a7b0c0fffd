package dxl

import (
	"context"
	"errors"
	"fmt"

	"github.com/gwillem/dynamixel/pkg/protocol"
)

// Servo binds one device ID to its resolved model and the controller's
// transport. Servos are created by Controller.Connect and stay valid until
// the controller disconnects.
//
// Write operations use two-tier signaling: the bool reports whether the
// device accepted the value, the error reports whether the device could be
// talked to at all. A device status with the alert bit set escalates to a
// HardwareError.
type Servo struct {
	c     *Controller
	id    int
	model Model
	table ControlTable

	// Advisory caches, refreshed on every successful transaction. Get
	// operations always re-read the device.
	lastPosition  float64
	lastVelocity  float64
	torqueEnabled bool
	mode          OperatingMode
}

// ID returns the servo's bus address.
func (s *Servo) ID() int { return s.id }

// Model returns the resolved model definition.
func (s *Servo) Model() Model { return s.model }

// Table returns the servo's effective control table.
func (s *Servo) Table() ControlTable { return s.table }

// ModelInfo summarizes the servo's model for display.
type ModelInfo struct {
	Number   int      `json:"model_number"`
	Name     string   `json:"name"`
	Features []string `json:"features"`
}

// Info returns the servo's model summary.
func (s *Servo) Info() ModelInfo {
	return ModelInfo{Number: s.model.Number, Name: s.model.Name, Features: s.model.FeatureNames()}
}

// EnableTorque turns the motor output on.
func (s *Servo) EnableTorque(ctx context.Context) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.setTorqueLocked(ctx, true)
}

// DisableTorque turns the motor output off.
func (s *Servo) DisableTorque(ctx context.Context) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.setTorqueLocked(ctx, false)
}

// TorqueEnabled reports the last commanded torque state without bus I/O.
func (s *Servo) TorqueEnabled() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.torqueEnabled
}

func (s *Servo) setTorqueLocked(ctx context.Context, on bool) (bool, error) {
	var v int64
	if on {
		v = 1
	}
	ok, err := s.writeNamedLocked(ctx, RegTorqueEnable, v)
	if ok {
		s.torqueEnabled = on
	}
	return ok, err
}

// SetOperatingMode switches the servo's control mode. Devices reject mode
// changes while torque is enabled, so torque is disabled first when needed
// and left disabled; the caller re-enables it explicitly. The whole
// sequence runs as one bus transaction group that other operations cannot
// fragment.
func (s *Servo) SetOperatingMode(ctx context.Context, mode OperatingMode) error {
	if !s.model.Supports(mode) {
		return fmt.Errorf("servo %d: mode %s not supported by %s", s.id, mode, s.model.Name)
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.torqueEnabled {
		if ok, err := s.setTorqueLocked(ctx, false); err != nil {
			return fmt.Errorf("disable torque before mode change: %w", err)
		} else if !ok {
			return fmt.Errorf("servo %d rejected torque disable before mode change", s.id)
		}
	}
	ok, err := s.writeNamedLocked(ctx, RegOperatingMode, int64(mode))
	if err != nil {
		return fmt.Errorf("set operating mode: %w", err)
	}
	if !ok {
		return fmt.Errorf("servo %d rejected mode %s", s.id, mode)
	}
	s.mode = mode
	return nil
}

// SetPosition commands a goal position in degrees and records the raw
// target for completion tracking by WaitForServos.
func (s *Servo) SetPosition(ctx context.Context, degrees float64) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	it, ok := s.table.Item(RegGoalPosition)
	if !ok {
		return false, fmt.Errorf("servo %d: no %s item", s.id, RegGoalPosition)
	}
	raw := DegreesToPosition(degrees, s.model.Resolution, it)
	accepted, err := s.writeNamedLocked(ctx, RegGoalPosition, raw)
	if accepted {
		s.c.pending[s.id] = raw
	}
	return accepted, err
}

// GetPosition reads the present position and converts it to degrees.
func (s *Servo) GetPosition(ctx context.Context) (float64, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	raw, err := s.readNamedLocked(ctx, RegPresentPosition)
	if err != nil {
		return 0, err
	}
	deg := PositionToDegrees(raw, s.model.Resolution)
	s.lastPosition = deg
	return deg, nil
}

// SetVelocity commands a goal velocity in RPM; sign selects direction.
func (s *Servo) SetVelocity(ctx context.Context, rpm float64) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	it, ok := s.table.Item(RegGoalVelocity)
	if !ok {
		return false, fmt.Errorf("servo %d: no %s item", s.id, RegGoalVelocity)
	}
	raw := RPMToVelocity(rpm, s.model.VelocityScale, it)
	return s.writeNamedLocked(ctx, RegGoalVelocity, raw)
}

// GetVelocity reads the present velocity and converts it to RPM.
func (s *Servo) GetVelocity(ctx context.Context) (float64, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	raw, err := s.readNamedLocked(ctx, RegPresentVelocity)
	if err != nil {
		return 0, err
	}
	rpm := VelocityToRPM(raw, s.model.VelocityScale)
	s.lastVelocity = rpm
	return rpm, nil
}

// SetCurrentLimit sets the current limit in milliamps. Requires the
// current_control capability.
func (s *Servo) SetCurrentLimit(ctx context.Context, ma float64) (bool, error) {
	if !s.model.HasFeature(FeatureCurrentControl) {
		return false, fmt.Errorf("servo %d: current control not supported by %s", s.id, s.model.Name)
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	it, ok := s.table.Item(RegCurrentLimit)
	if !ok {
		return false, fmt.Errorf("servo %d: no %s item", s.id, RegCurrentLimit)
	}
	raw := MilliampsToCurrent(ma, s.model.CurrentScale, it)
	return s.writeNamedLocked(ctx, RegCurrentLimit, raw)
}

// SetLED turns the status LED on or off.
func (s *Servo) SetLED(ctx context.Context, on bool) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	var v int64
	if on {
		v = 1
	}
	return s.writeNamedLocked(ctx, RegLED, v)
}

// Moving reads the movement status bit.
func (s *Servo) Moving(ctx context.Context) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	raw, err := s.readNamedLocked(ctx, RegMoving)
	if err != nil {
		return false, err
	}
	return raw != 0, nil
}

// HardwareErrors reads the hardware error status register and decodes it
// into readable condition names. Empty means no fault.
func (s *Servo) HardwareErrors(ctx context.Context) ([]string, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	raw, err := s.readNamedLocked(ctx, RegHardwareErrorStatus)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeErrorBits(byte(raw)), nil
}

// ReadItem reads any control table item by name and returns its raw value,
// signed per the item definition.
func (s *Servo) ReadItem(ctx context.Context, name string) (int64, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.readNamedLocked(ctx, name)
}

// WriteItem writes any writable control table item by name. The value must
// be within the item's valid range.
func (s *Servo) WriteItem(ctx context.Context, name string, raw int64) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	it, ok := s.table.Item(name)
	if !ok {
		return false, fmt.Errorf("servo %d: no item %s", s.id, name)
	}
	if !it.Contains(raw) {
		return false, fmt.Errorf("servo %d: value %d outside range [%d, %d] of %s",
			s.id, raw, it.Min, it.Max, name)
	}
	return s.writeNamedLocked(ctx, name, raw)
}

func (s *Servo) readNamedLocked(ctx context.Context, name string) (int64, error) {
	it, ok := s.table.Item(name)
	if !ok {
		return 0, fmt.Errorf("servo %d: no item %s", s.id, name)
	}
	v, err := s.c.readRegisterLocked(ctx, s.id, it.Address, it.Width)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	return DecodeRaw(v, it.Width, it.Signed), nil
}

func (s *Servo) writeNamedLocked(ctx context.Context, name string, raw int64) (bool, error) {
	it, ok := s.table.Item(name)
	if !ok {
		return false, fmt.Errorf("servo %d: no item %s", s.id, name)
	}
	if it.Access != ReadWrite {
		return false, fmt.Errorf("servo %d: item %s is read-only", s.id, name)
	}
	err := s.c.writeRegisterLocked(ctx, s.id, it.Address, it.Width, EncodeRaw(raw, it.Width))
	if err == nil {
		return true, nil
	}
	var st *StatusError
	if errors.As(err, &st) {
		if st.Alert() {
			return false, &HardwareError{ID: s.id, Bits: st.Code}
		}
		// Ordinary device rejection: could talk to the device, it said no.
		return false, nil
	}
	return false, fmt.Errorf("write %s: %w", name, err)
}
