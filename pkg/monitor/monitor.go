// Package monitor provides a background polling loop that streams live
// servo positions over channels, for TUIs and loggers.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PositionSource is the slice of the controller the monitor needs.
type PositionSource interface {
	Positions(ctx context.Context) (map[int]float64, error)
	IDs() []int
}

// State is one sample of the bus: positions in degrees keyed by servo ID.
type State struct {
	Positions map[int]float64
	Timestamp time.Time
	Error     error
}

// Monitor polls a controller at a fixed rate and publishes samples.
type Monitor struct {
	src PositionSource
	hz  int

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// New creates a monitor over a connected controller. hz defaults to 20.
func New(src PositionSource, hz int) *Monitor {
	if hz <= 0 {
		hz = 20
	}
	return &Monitor{
		src:     src,
		hz:      hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns the channel carrying position samples.
func (m *Monitor) States() <-chan State {
	return m.stateCh
}

// Logs returns the channel carrying log messages.
func (m *Monitor) Logs() <-chan string {
	return m.logCh
}

// Hz returns the polling frequency.
func (m *Monitor) Hz() int {
	return m.hz
}

func (m *Monitor) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case m.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the polling loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("already running")
	}
	m.running = true
	m.mu.Unlock()

	m.log("Monitoring %d servo(s) at %d Hz", len(m.src.IDs()), m.hz)

	ticker := time.NewTicker(time.Second / time.Duration(m.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			m.log("Monitoring stopped")
			return ctx.Err()
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

func (m *Monitor) step(ctx context.Context) {
	positions, err := m.src.Positions(ctx)
	if err != nil {
		m.log("Read error: %v", err)
		m.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}
	m.sendState(State{Positions: positions, Timestamp: time.Now()})
}

func (m *Monitor) sendState(s State) {
	select {
	case m.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-m.stateCh:
		default:
		}
		m.stateCh <- s
	}
}
