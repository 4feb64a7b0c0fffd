package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type stubSource struct {
	positions map[int]float64
	err       error
}

func (s *stubSource) Positions(ctx context.Context) (map[int]float64, error) {
	return s.positions, s.err
}

func (s *stubSource) IDs() []int {
	ids := make([]int, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	return ids
}

func TestMonitorStreamsStates(t *testing.T) {
	src := &stubSource{positions: map[int]float64{1: 90.0, 2: 180.0}}
	m := New(src, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	select {
	case st := <-m.States():
		if st.Error != nil {
			t.Fatalf("unexpected sample error: %v", st.Error)
		}
		if st.Positions[1] != 90.0 || st.Positions[2] != 180.0 {
			t.Fatalf("positions = %v", st.Positions)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample within 1s")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Start returned %v, want context.Canceled", err)
	}
}

func TestMonitorReportsReadErrors(t *testing.T) {
	src := &stubSource{err: fmt.Errorf("bus gone")}
	m := New(src, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	select {
	case st := <-m.States():
		if st.Error == nil {
			t.Fatal("expected an error sample")
		}
	case <-time.After(time.Second):
		t.Fatal("no sample within 1s")
	}
}

func TestMonitorStartTwice(t *testing.T) {
	m := New(&stubSource{positions: map[int]float64{1: 0}}, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)
	<-m.States()

	if err := m.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}
}

func TestMonitorDefaultRate(t *testing.T) {
	if got := New(&stubSource{}, 0).Hz(); got != 20 {
		t.Fatalf("default Hz = %d, want 20", got)
	}
}
