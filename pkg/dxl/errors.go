package dxl

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure classes the layer can report. Concrete
// error values carry context (servo ID, port, register) and unwrap to one
// of these, so callers match with errors.Is.
var (
	ErrConnection     = errors.New("dynamixel: connection error")
	ErrTimeout        = errors.New("dynamixel: timeout")
	ErrHardware       = errors.New("dynamixel: hardware error")
	ErrChecksum       = errors.New("dynamixel: checksum mismatch")
	ErrUnknownModel   = errors.New("dynamixel: unknown model")
	ErrSchemaConflict = errors.New("dynamixel: control table conflict")
)

// ConnectionError reports that the transport is unavailable: the port could
// not be opened, or an operation was issued after Disconnect.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("connection failed on %s: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// TimeoutError reports that a register transaction or a wait exceeded its
// deadline, after the transport's own retry budget was spent.
type TimeoutError struct {
	Op      string
	ID      int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.ID >= 0 {
		return fmt.Sprintf("%s timed out after %v (servo %d)", e.Op, e.Timeout, e.ID)
	}
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// HardwareError reports a device-side error status carried in a response,
// such as overheating or overload. Bits holds the raw hardware error byte.
type HardwareError struct {
	ID   int
	Bits byte
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("servo %d reported hardware error (bits 0x%02x)", e.ID, e.Bits)
}

func (e *HardwareError) Unwrap() error { return ErrHardware }

// ChecksumError reports a packet integrity failure that survived the
// transport's retries.
type ChecksumError struct {
	ID int
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch in response from servo %d", e.ID)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksum }

// UnknownModelError reports a model number with no registry entry.
type UnknownModelError struct {
	Number int
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("no registered model with number %d", e.Number)
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }

// SchemaConflictError reports two control table items whose byte ranges
// overlap, detected during model registration.
type SchemaConflictError struct {
	Model string
	ItemA string
	ItemB string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("model %s: control table items %s and %s overlap", e.Model, e.ItemA, e.ItemB)
}

func (e *SchemaConflictError) Unwrap() error { return ErrSchemaConflict }

// StatusError is the transport-level representation of a non-zero status
// byte in a response packet. Writes rejected by the device (data range,
// data limit, access violations) surface as a failed success flag; statuses
// with the alert bit set escalate to a HardwareError.
type StatusError struct {
	ID   int
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("servo %d returned status 0x%02x", e.ID, e.Code)
}

// Alert reports whether the status byte has the hardware alert bit set.
func (e *StatusError) Alert() bool { return e.Code&0x80 != 0 }
