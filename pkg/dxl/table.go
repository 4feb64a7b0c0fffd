// Package dxl models Dynamixel servos behind a typed, model-aware API: it
// maps per-model control table layouts onto named register items, converts
// between raw register encodings and physical units, and coordinates
// asynchronous completion tracking across many servos on one bus.
package dxl

import (
	"fmt"
	"sort"
)

// Access describes whether a control table item is writable.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "RW"
	}
	return "R"
}

// ControlTableItem is one named, addressed register in a device's memory.
// Min and Max bound the raw value inclusively; Signed selects two's
// complement interpretation of the stored bytes.
type ControlTableItem struct {
	Name    string
	Address int
	Width   int // 1, 2 or 4 bytes
	Access  Access
	Min     int64
	Max     int64
	Signed  bool
	Units   string // empty means dimensionless/raw
	Default int64
}

// Clamp saturates a raw value into the item's valid range. Saturation is
// silent: motors clip at their limits anyway, and the caller can observe
// the actual position afterward.
func (it ControlTableItem) Clamp(v int64) int64 {
	if v < it.Min {
		return it.Min
	}
	if v > it.Max {
		return it.Max
	}
	return v
}

// Contains reports whether a raw value lies within the item's valid range.
func (it ControlTableItem) Contains(v int64) bool {
	return v >= it.Min && v <= it.Max
}

// end returns the first byte offset past the item.
func (it ControlTableItem) end() int { return it.Address + it.Width }

func (it ControlTableItem) validate() error {
	switch it.Width {
	case 1, 2, 4:
	default:
		return fmt.Errorf("item %s: unsupported width %d", it.Name, it.Width)
	}
	if it.Address < 0 {
		return fmt.Errorf("item %s: negative address %d", it.Name, it.Address)
	}
	if it.Min > it.Max {
		return fmt.Errorf("item %s: min %d above max %d", it.Name, it.Min, it.Max)
	}
	if it.Default < it.Min || it.Default > it.Max {
		return fmt.Errorf("item %s: default %d outside [%d, %d]", it.Name, it.Default, it.Min, it.Max)
	}
	var lo, hi int64
	if it.Signed {
		hi = int64(1)<<(8*it.Width-1) - 1
		lo = -hi - 1
	} else {
		hi = int64(1)<<(8*it.Width) - 1
	}
	if it.Min < lo || it.Max > hi {
		return fmt.Errorf("item %s: range [%d, %d] does not fit %d byte(s)", it.Name, it.Min, it.Max, it.Width)
	}
	return nil
}

// ControlTable maps item name to register item. Names are unique; order is
// irrelevant.
type ControlTable map[string]ControlTableItem

// Item looks up a register item by name.
func (t ControlTable) Item(name string) (ControlTableItem, bool) {
	it, ok := t[name]
	return it, ok
}

// Clone returns an independent copy of the table.
func (t ControlTable) Clone() ControlTable {
	out := make(ControlTable, len(t))
	for name, it := range t {
		out[name] = it
	}
	return out
}

// Validate checks every item's internal invariants and rejects tables where
// two items occupy overlapping byte ranges. Run once at registration;
// tables are immutable afterward.
func (t ControlTable) Validate(modelName string) error {
	items := make([]ControlTableItem, 0, len(t))
	for name, it := range t {
		if it.Name != name {
			return fmt.Errorf("item registered as %q but named %q", name, it.Name)
		}
		if err := it.validate(); err != nil {
			return err
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Address < items[j].Address })
	for i := 1; i < len(items); i++ {
		if items[i].Address < items[i-1].end() {
			return &SchemaConflictError{Model: modelName, ItemA: items[i-1].Name, ItemB: items[i].Name}
		}
	}
	return nil
}
