package dxl

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(number int) Model {
	return Model{
		Number:        number,
		Name:          "TEST-MODEL",
		Resolution:    4096,
		VelocityScale: 0.229,
		Features:      map[Feature]bool{FeaturePositionControl: true},
		BaseTable: toTable([]ControlTableItem{
			rw(RegTorqueEnable, 64, 1, 0, 1, 0),
			rw(RegGoalPosition, 116, 4, 0, 4095, 0),
			ros(RegPresentPosition, 132, 4, -2147483648, 2147483647),
		}),
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewModelRegistry()
	require.NoError(t, reg.Register(testModel(9001)))

	m, table, err := reg.Resolve(9001)
	require.NoError(t, err)
	assert.Equal(t, "TEST-MODEL", m.Name)
	assert.Len(t, table, 3)
}

func TestRegistryUnknownModel(t *testing.T) {
	reg := NewModelRegistry()

	_, _, err := reg.Resolve(42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)

	var unknown *UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 42, unknown.Number)
}

func TestRegistryResolutionDeterministic(t *testing.T) {
	reg := NewModelRegistry()
	m := testModel(9001)
	m.Overrides = toTable([]ControlTableItem{
		rw(RegTorqueEnable, 70, 1, 0, 1, 0), // relocated
	})
	require.NoError(t, reg.Register(m))

	_, first, err := reg.Resolve(9001)
	require.NoError(t, err)
	_, second, err := reg.Resolve(9001)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(first, second), "effective tables differ across resolutions")
}

func TestRegistryOverridePrecedence(t *testing.T) {
	reg := NewModelRegistry()
	m := testModel(9001)
	m.Overrides = toTable([]ControlTableItem{
		rws(RegGoalPosition, 200, 4, -1048575, 1048575, 0), // moved and widened
		rw("NEW_ITEM", 220, 2, 0, 100, 0),
	})
	require.NoError(t, reg.Register(m))

	_, table, err := reg.Resolve(9001)
	require.NoError(t, err)

	goal, ok := table.Item(RegGoalPosition)
	require.True(t, ok)
	assert.Equal(t, 200, goal.Address, "reads must target the override address, not the base one")
	assert.Equal(t, int64(1048575), goal.Max)

	_, ok = table.Item("NEW_ITEM")
	assert.True(t, ok, "override may add new items")

	// The base definition is untouched.
	base, _ := m.BaseTable.Item(RegGoalPosition)
	assert.Equal(t, 116, base.Address)
}

func TestRegistryOverlapRejected(t *testing.T) {
	reg := NewModelRegistry()
	require.NoError(t, reg.Register(testModel(9001)))

	bad := testModel(9001)
	bad.Name = "TEST-MODEL-V2"
	bad.Overrides = toTable([]ControlTableItem{
		// Lands inside GOAL_POSITION's [116, 120) range.
		rw("CLASHING", 118, 2, 0, 100, 0),
	})
	err := reg.Register(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaConflict)

	// Failed registration must not clobber the committed entry.
	m, _, err := reg.Resolve(9001)
	require.NoError(t, err)
	assert.Equal(t, "TEST-MODEL", m.Name)
}

func TestRegistryLastWriterWins(t *testing.T) {
	reg := NewModelRegistry()
	first := testModel(9001)
	require.NoError(t, reg.Register(first))

	second := testModel(9001)
	second.Name = "TEST-MODEL-V2"
	require.NoError(t, reg.Register(second))

	m, _, err := reg.Resolve(9001)
	require.NoError(t, err)
	assert.Equal(t, "TEST-MODEL-V2", m.Name)
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	for _, number := range []int{ModelNumberXM430W210, ModelNumberXM540W270} {
		m, table, err := LookupModel(number)
		require.NoError(t, err)
		assert.Equal(t, number, m.Number)
		assert.NotEmpty(t, table)
	}

	// XM540 inherits the XM430 layout but overrides the current limit.
	m, table, err := LookupModel(ModelNumberXM540W270)
	require.NoError(t, err)
	limit, ok := table.Item(RegCurrentLimit)
	require.True(t, ok)
	assert.Equal(t, int64(2047), limit.Max)
	assert.True(t, m.HasFeature(FeatureCurrentControl))
}
