package dxl

import "sort"

// Feature is a capability tag on a model. Models are data (a table plus a
// tag set), not behavior: mode support is decided by tag lookup, never by
// type switching on the model.
type Feature string

const (
	FeaturePositionControl     Feature = "position_control"
	FeatureVelocityControl     Feature = "velocity_control"
	FeatureCurrentControl      Feature = "current_control"
	FeatureExtendedPosition    Feature = "extended_position"
	FeatureCurrentBasedControl Feature = "current_based_position"
	FeaturePWMControl          Feature = "pwm_control"
)

// OperatingMode is the raw mode code written to the OPERATING_MODE item.
type OperatingMode byte

const (
	ModeCurrent              OperatingMode = 0
	ModeVelocity             OperatingMode = 1
	ModePosition             OperatingMode = 3
	ModeExtendedPosition     OperatingMode = 4
	ModeCurrentBasedPosition OperatingMode = 5
	ModePWM                  OperatingMode = 16
)

func (m OperatingMode) String() string {
	switch m {
	case ModeCurrent:
		return "current"
	case ModeVelocity:
		return "velocity"
	case ModePosition:
		return "position"
	case ModeExtendedPosition:
		return "extended_position"
	case ModeCurrentBasedPosition:
		return "current_based_position"
	case ModePWM:
		return "pwm"
	}
	return "unknown"
}

// modeFeatures maps each operating mode to the capability tag a model must
// carry to support it.
var modeFeatures = map[OperatingMode]Feature{
	ModeCurrent:              FeatureCurrentControl,
	ModeVelocity:             FeatureVelocityControl,
	ModePosition:             FeaturePositionControl,
	ModeExtendedPosition:     FeatureExtendedPosition,
	ModeCurrentBasedPosition: FeatureCurrentBasedControl,
	ModePWM:                  FeaturePWMControl,
}

// Model describes one servo family: its identity, capabilities, conversion
// constants and control table layout.
type Model struct {
	Number   int
	Name     string
	Features map[Feature]bool

	// Resolution is raw position counts per full revolution.
	Resolution float64
	// VelocityScale is RPM per raw velocity unit.
	VelocityScale float64
	// CurrentScale is milliamps per raw current unit. Zero when the model
	// has no current sensing.
	CurrentScale float64

	BaseTable ControlTable
	// Overrides add new items or replace base items by name. An override
	// may relocate an item; reads and writes always consult the effective
	// table, so they follow the override's address.
	Overrides ControlTable
}

// HasFeature reports whether the model carries a capability tag.
func (m Model) HasFeature(f Feature) bool { return m.Features[f] }

// Supports reports whether the model can run in the given operating mode.
func (m Model) Supports(mode OperatingMode) bool {
	f, ok := modeFeatures[mode]
	return ok && m.HasFeature(f)
}

// FeatureNames returns the model's capability tags sorted by name.
func (m Model) FeatureNames() []string {
	names := make([]string, 0, len(m.Features))
	for f := range m.Features {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// EffectiveTable merges the overrides onto a copy of the base table,
// replacing or inserting by item name. Resolution is deterministic and
// total: the same model always yields an identical table.
func (m Model) EffectiveTable() ControlTable {
	eff := m.BaseTable.Clone()
	for name, it := range m.Overrides {
		eff[name] = it
	}
	return eff
}
