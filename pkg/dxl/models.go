package dxl

import "math"

// Register item names used by Servo and Controller operations. Model
// definitions must keep these names; overrides may move them to other
// addresses.
const (
	RegModelNumber         = "MODEL_NUMBER"
	RegFirmwareVersion     = "FIRMWARE_VERSION"
	RegOperatingMode       = "OPERATING_MODE"
	RegTorqueEnable        = "TORQUE_ENABLE"
	RegLED                 = "LED"
	RegHardwareErrorStatus = "HARDWARE_ERROR_STATUS"
	RegCurrentLimit        = "CURRENT_LIMIT"
	RegGoalVelocity        = "GOAL_VELOCITY"
	RegGoalPosition        = "GOAL_POSITION"
	RegMoving              = "MOVING"
	RegPresentVelocity     = "PRESENT_VELOCITY"
	RegPresentPosition     = "PRESENT_POSITION"
	RegPresentTemperature  = "PRESENT_TEMPERATURE"
	RegPresentInputVoltage = "PRESENT_INPUT_VOLTAGE"
)

// Built-in model numbers.
const (
	ModelNumberXM430W210 = 1030
	ModelNumberXM540W270 = 1120
)

func rw(name string, addr, width int, min, max, def int64) ControlTableItem {
	return ControlTableItem{Name: name, Address: addr, Width: width, Access: ReadWrite, Min: min, Max: max, Default: def}
}

func rws(name string, addr, width int, min, max, def int64) ControlTableItem {
	it := rw(name, addr, width, min, max, def)
	it.Signed = true
	return it
}

func ro(name string, addr, width int, min, max int64) ControlTableItem {
	return ControlTableItem{Name: name, Address: addr, Width: width, Access: ReadOnly, Min: min, Max: max, Default: clampDefault(min, max)}
}

func ros(name string, addr, width int, min, max int64) ControlTableItem {
	it := ro(name, addr, width, min, max)
	it.Signed = true
	return it
}

func clampDefault(min, max int64) int64 {
	if min > 0 {
		return min
	}
	if max < 0 {
		return max
	}
	return 0
}

func toTable(items []ControlTableItem) ControlTable {
	t := make(ControlTable, len(items))
	for _, it := range items {
		t[it.Name] = it
	}
	return t
}

// xm430BaseTable is the XM430-W210 control table, the base layout for the
// X-series models. Addresses and ranges follow the ROBOTIS e-manual.
func xm430BaseTable() ControlTable {
	items := []ControlTableItem{
		// EEPROM area, persisted across power cycles.
		ro(RegModelNumber, 0, 2, 0, 65535),
		ro("MODEL_INFORMATION", 2, 4, 0, math.MaxUint32),
		ro(RegFirmwareVersion, 6, 1, 0, 255),
		rw("ID", 7, 1, 0, MaxID, 1),
		rw("BAUD_RATE", 8, 1, 0, 7, 1),
		rw("RETURN_DELAY_TIME", 9, 1, 0, 254, 250),
		rw("DRIVE_MODE", 10, 1, 0, 5, 0),
		rw(RegOperatingMode, 11, 1, 0, 16, 3),
		rw("SECONDARY_ID", 12, 1, 0, 255, 255),
		rws("HOMING_OFFSET", 20, 4, -1044479, 1044479, 0),
		rw("MOVING_THRESHOLD", 24, 4, 0, 1023, 10),
		rw("TEMPERATURE_LIMIT", 31, 1, 0, 100, 80),
		rw("MAX_VOLTAGE_LIMIT", 32, 2, 95, 160, 160),
		rw("MIN_VOLTAGE_LIMIT", 34, 2, 95, 160, 95),
		rw("PWM_LIMIT", 36, 2, 0, 885, 885),
		rw(RegCurrentLimit, 38, 2, 0, 1193, 1193),
		rw("VELOCITY_LIMIT", 44, 4, 0, 1023, 1023),
		rw("MAX_POSITION_LIMIT", 48, 4, 0, 4095, 4095),
		rw("MIN_POSITION_LIMIT", 52, 4, 0, 4095, 0),
		rw("SHUTDOWN", 63, 1, 0, 127, 52),

		// RAM area, reset on power cycle.
		rw(RegTorqueEnable, 64, 1, 0, 1, 0),
		rw(RegLED, 65, 1, 0, 1, 0),
		rw("STATUS_RETURN_LEVEL", 68, 1, 0, 2, 2),
		ro("REGISTERED_INSTRUCTION", 69, 1, 0, 1),
		ro(RegHardwareErrorStatus, 70, 1, 0, 255),
		rw("VELOCITY_I_GAIN", 76, 2, 0, 16383, 1000),
		rw("VELOCITY_P_GAIN", 78, 2, 0, 16383, 100),
		rw("POSITION_D_GAIN", 80, 2, 0, 16383, 2000),
		rw("POSITION_I_GAIN", 82, 2, 0, 16383, 0),
		rw("POSITION_P_GAIN", 84, 2, 0, 16383, 640),
		rw("BUS_WATCHDOG", 98, 1, 0, 127, 0),
		rws("GOAL_PWM", 100, 2, -885, 885, 0),
		rws("GOAL_CURRENT", 102, 2, -1193, 1193, 0),
		rws(RegGoalVelocity, 104, 4, -1023, 1023, 0),
		rw("PROFILE_ACCELERATION", 108, 4, 0, 32767, 0),
		rw("PROFILE_VELOCITY", 112, 4, 0, 32767, 0),
		rw(RegGoalPosition, 116, 4, 0, 4095, 0),
		ro("REALTIME_TICK", 120, 2, 0, 32767),
		ro(RegMoving, 122, 1, 0, 1),
		ro("MOVING_STATUS", 123, 1, 0, 255),
		ros("PRESENT_PWM", 124, 2, math.MinInt16, math.MaxInt16),
		ros("PRESENT_LOAD", 126, 2, -1000, 1000),
		ros(RegPresentVelocity, 128, 4, math.MinInt32, math.MaxInt32),
		ros(RegPresentPosition, 132, 4, math.MinInt32, math.MaxInt32),
		ros("VELOCITY_TRAJECTORY", 136, 4, math.MinInt32, math.MaxInt32),
		ros("POSITION_TRAJECTORY", 140, 4, math.MinInt32, math.MaxInt32),
		ro(RegPresentInputVoltage, 144, 2, 0, 65535),
		ro(RegPresentTemperature, 146, 1, 0, 255),
	}
	t := toTable(items)
	// Units on the items callers meet through the typed API.
	setUnits(t, "HOMING_OFFSET", "pulse")
	setUnits(t, "MOVING_THRESHOLD", "0.229rpm")
	setUnits(t, "TEMPERATURE_LIMIT", "C")
	setUnits(t, "MAX_VOLTAGE_LIMIT", "0.1V")
	setUnits(t, "MIN_VOLTAGE_LIMIT", "0.1V")
	setUnits(t, RegCurrentLimit, "2.69mA")
	setUnits(t, "VELOCITY_LIMIT", "0.229rpm")
	setUnits(t, "MAX_POSITION_LIMIT", "pulse")
	setUnits(t, "MIN_POSITION_LIMIT", "pulse")
	setUnits(t, RegGoalVelocity, "0.229rpm")
	setUnits(t, RegGoalPosition, "pulse")
	setUnits(t, RegPresentVelocity, "0.229rpm")
	setUnits(t, RegPresentPosition, "pulse")
	setUnits(t, RegPresentInputVoltage, "0.1V")
	setUnits(t, RegPresentTemperature, "C")
	return t
}

func setUnits(t ControlTable, name, units string) {
	it := t[name]
	it.Units = units
	t[name] = it
}

// XM430W210 returns the built-in XM430-W210 model definition.
// 4096 counts per revolution, 0.229 RPM and 2.69 mA raw units.
func XM430W210() Model {
	return Model{
		Number:        ModelNumberXM430W210,
		Name:          "XM430-W210",
		Resolution:    4096,
		VelocityScale: 0.229,
		CurrentScale:  2.69,
		Features: map[Feature]bool{
			FeaturePositionControl:     true,
			FeatureVelocityControl:     true,
			FeatureCurrentControl:      true,
			FeatureExtendedPosition:    true,
			FeatureCurrentBasedControl: true,
			FeaturePWMControl:          true,
		},
		BaseTable: xm430BaseTable(),
	}
}

// XM540W270 returns the built-in XM540-W270 model definition. It shares
// the XM430 layout; the higher-torque hardware raises the current limit
// and adds external port data registers, both expressed as overrides.
func XM540W270() Model {
	m := XM430W210()
	m.Number = ModelNumberXM540W270
	m.Name = "XM540-W270"
	m.Overrides = toTable([]ControlTableItem{
		rw(RegCurrentLimit, 38, 2, 0, 2047, 2047),
		rws("GOAL_CURRENT", 102, 2, -2047, 2047, 0),
		ro("EXTERNAL_PORT_DATA_1", 152, 2, 0, 65535),
		ro("EXTERNAL_PORT_DATA_2", 154, 2, 0, 65535),
		ro("EXTERNAL_PORT_DATA_3", 156, 2, 0, 65535),
	})
	return m
}

func init() {
	for _, m := range []Model{XM430W210(), XM540W270()} {
		if err := RegisterModel(m); err != nil {
			panic(err)
		}
	}
}
