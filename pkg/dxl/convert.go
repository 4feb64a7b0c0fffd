package dxl

import "math"

// Pure conversions between raw register encodings and physical units. All
// functions are stateless and parameterized by model constants so they can
// be used standalone, without a Servo.

// roundClamped rounds a converted value and saturates it into the item's
// range. Saturation happens in the float domain: a float→int64 conversion
// of an out-of-range value is implementation-defined in Go, so a huge
// request must hit the nearest bound before the conversion. NaN carries no
// direction and maps to the clamped zero.
func roundClamped(f float64, item ControlTableItem) int64 {
	if math.IsNaN(f) {
		return item.Clamp(0)
	}
	if f >= float64(item.Max) {
		return item.Max
	}
	if f <= float64(item.Min) {
		return item.Min
	}
	return item.Clamp(int64(math.Round(f)))
}

// DegreesToPosition converts an angle to a raw position count for a device
// with the given resolution (counts per revolution), clamped into the
// item's valid range. Out-of-range requests saturate at the nearest bound.
func DegreesToPosition(deg float64, resolution float64, item ControlTableItem) int64 {
	return roundClamped(deg/360.0*resolution, item)
}

// PositionToDegrees converts a raw position count back to degrees.
func PositionToDegrees(raw int64, resolution float64) float64 {
	return float64(raw) / resolution * 360.0
}

// RPMToVelocity converts RPM to a raw velocity count for a device whose
// velocity unit is scale RPM per count, clamped into the item's range.
// Negative values encode direction on signed velocity items.
func RPMToVelocity(rpm float64, scale float64, item ControlTableItem) int64 {
	return roundClamped(rpm/scale, item)
}

// VelocityToRPM converts a raw velocity count back to RPM.
func VelocityToRPM(raw int64, scale float64) float64 {
	return float64(raw) * scale
}

// MilliampsToCurrent converts a current in mA to a raw count for a device
// whose current unit is scale mA per count, clamped into the item's range.
func MilliampsToCurrent(ma float64, scale float64, item ControlTableItem) int64 {
	return roundClamped(ma/scale, item)
}

// CurrentToMilliamps converts a raw current count back to mA.
func CurrentToMilliamps(raw int64, scale float64) float64 {
	return float64(raw) * scale
}

// DecodeRaw interprets width bytes of register data, received as an
// unsigned accumulator, as a signed or unsigned integer. Signedness comes
// from the item definition, never assumed: a 4-byte extended position and a
// direction-bearing 2-byte velocity are both two's complement.
func DecodeRaw(v uint32, width int, signed bool) int64 {
	switch width {
	case 1:
		if signed {
			return int64(int8(v))
		}
		return int64(uint8(v))
	case 2:
		if signed {
			return int64(int16(v))
		}
		return int64(uint16(v))
	default:
		if signed {
			return int64(int32(v))
		}
		return int64(v)
	}
}

// EncodeRaw packs a raw integer into the unsigned wire representation for
// width bytes, two's complement for negative values.
func EncodeRaw(v int64, width int) uint32 {
	switch width {
	case 1:
		return uint32(uint8(v))
	case 2:
		return uint32(uint16(v))
	default:
		return uint32(v)
	}
}
