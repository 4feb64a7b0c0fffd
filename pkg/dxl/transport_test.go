package dxl

import (
	"context"
	"fmt"
	"sync"
)

// fakeTransport is an in-memory register bank standing in for a bus full
// of servos.
type fakeTransport struct {
	mu sync.Mutex

	// regs maps servo ID to address to stored value.
	regs map[int]map[int]uint32
	// scanIDs is what Scan reports.
	scanIDs []int
	// writes records every single-register write in order.
	writes []RegisterWrite
	// bulkWrites records every grouped write call.
	bulkWrites [][]RegisterWrite
	// bulkFailures is returned as the per-device failure map of BulkWrite.
	bulkFailures map[int]error
	// readErr and writeErr inject failures per (id, address).
	readErr  map[[2]int]error
	writeErr map[[2]int]error
	// readHook, when set, intercepts all reads.
	readHook func(id, address, width int) (uint32, bool)

	closed bool
}

func newFakeTransport(ids ...int) *fakeTransport {
	f := &fakeTransport{
		regs:     make(map[int]map[int]uint32),
		scanIDs:  ids,
		readErr:  make(map[[2]int]error),
		writeErr: make(map[[2]int]error),
	}
	for _, id := range ids {
		f.regs[id] = make(map[int]uint32)
	}
	return f
}

func (f *fakeTransport) setReg(id, address int, value uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.regs[id] == nil {
		f.regs[id] = make(map[int]uint32)
	}
	f.regs[id][address] = value
}

func (f *fakeTransport) ReadRegister(_ context.Context, id, address, width int) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[[2]int{id, address}]; err != nil {
		return 0, err
	}
	if f.readHook != nil {
		if v, ok := f.readHook(id, address, width); ok {
			return v, nil
		}
	}
	bank, ok := f.regs[id]
	if !ok {
		return 0, &TimeoutError{Op: "read", ID: id}
	}
	return bank[address], nil
}

func (f *fakeTransport) WriteRegister(_ context.Context, id, address, width int, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[[2]int{id, address}]; err != nil {
		return err
	}
	bank, ok := f.regs[id]
	if !ok {
		return &TimeoutError{Op: "write", ID: id}
	}
	bank[address] = value
	f.writes = append(f.writes, RegisterWrite{ID: id, Address: address, Width: width, Value: value})
	return nil
}

func (f *fakeTransport) BulkRead(_ context.Context, reads []RegisterRead) (map[int]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]uint32, len(reads))
	for _, r := range reads {
		if err := f.readErr[[2]int{r.ID, r.Address}]; err != nil {
			continue
		}
		if bank, ok := f.regs[r.ID]; ok {
			out[r.ID] = bank[r.Address]
		}
	}
	return out, nil
}

func (f *fakeTransport) BulkWrite(_ context.Context, writes []RegisterWrite) (map[int]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkWrites = append(f.bulkWrites, writes)
	failed := make(map[int]error)
	for _, w := range writes {
		if err := f.bulkFailures[w.ID]; err != nil {
			failed[w.ID] = err
			continue
		}
		if bank, ok := f.regs[w.ID]; ok {
			bank[w.Address] = w.Value
		}
	}
	return failed, nil
}

func (f *fakeTransport) Scan(_ context.Context, first, last int) ([]int, error) {
	var out []int
	for _, id := range f.scanIDs {
		if id >= first && id <= last {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("already closed")
	}
	f.closed = true
	return nil
}
