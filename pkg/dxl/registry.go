package dxl

import "sync"

// ModelRegistry maps model numbers to resolved models. The zero value is
// not usable; create one with NewModelRegistry or use the package-level
// default, which ships pre-populated with the built-in models.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[int]registeredModel
}

// registeredModel pairs a model with its effective table, resolved and
// validated once at registration.
type registeredModel struct {
	model Model
	table ControlTable
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[int]registeredModel)}
}

// Register validates the model's effective table and commits it under its
// model number, replacing any prior entry (last writer wins). The table is
// resolved into a staging copy first; a SchemaConflictError or any item
// invariant failure leaves the registry untouched.
func (r *ModelRegistry) Register(m Model) error {
	staged := m.EffectiveTable()
	if err := staged.Validate(m.Name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Number] = registeredModel{model: m, table: staged}
	return nil
}

// Resolve returns the model registered under the given number along with
// its effective control table.
func (r *ModelRegistry) Resolve(number int) (Model, ControlTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.models[number]
	if !ok {
		return Model{}, nil, &UnknownModelError{Number: number}
	}
	return reg.model, reg.table.Clone(), nil
}

// Numbers returns the registered model numbers, unordered.
func (r *ModelRegistry) Numbers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nums := make([]int, 0, len(r.models))
	for n := range r.models {
		nums = append(nums, n)
	}
	return nums
}

// defaultRegistry holds the built-in models and any models registered via
// the package-level RegisterModel.
var defaultRegistry = NewModelRegistry()

// RegisterModel adds a model to the process-wide registry used by
// controllers that were not given their own.
func RegisterModel(m Model) error { return defaultRegistry.Register(m) }

// LookupModel resolves a model number against the process-wide registry.
func LookupModel(number int) (Model, ControlTable, error) { return defaultRegistry.Resolve(number) }
