package waveform

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start while the monitor is active.
var ErrAlreadyRunning = errors.New("monitor is already running")

// frameSamples is how many points each redraw frame carries.
const frameSamples = 512

// Monitor drives a periodic redraw of the simulated trace.  Its
// lifetime is owned by whoever owns the display: Start begins the
// tick, Stop ends it immediately and permanently.  The running flag is
// checked every tick, so a stopped monitor can never touch a torn-down
// display.
type Monitor struct {
	Interval time.Duration

	gen *Generator

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewMonitor creates a monitor emitting frames from gen at interval.
func NewMonitor(gen *Generator, interval time.Duration) *Monitor {
	return &Monitor{Interval: interval, gen: gen}
}

// Start begins emitting frames to fn, one per interval, until Stop is
// called.  fn runs on the monitor's tick; it must not block for long.
func (m *Monitor) Start(fn func(Trace)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.done = make(chan struct{})
	done := m.done

	go func() {
		tick := time.NewTicker(m.Interval)
		defer tick.Stop()
		dt := m.Interval.Seconds() / frameSamples
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				if !m.Running() {
					return
				}
				fn(m.gen.Next("simulated", frameSamples, dt))
			}
		}
	}()
	return nil
}

// Stop ceases the tick.  Idempotent; a stopped monitor never fires again.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.done)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
