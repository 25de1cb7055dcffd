// Package bench tracks the instruments connected to the test bench.
//
// A Manager owns at most one handle per role.  Handles carry either a
// real Rigol driver or a simulated one; the sequence controller cannot
// tell them apart.  There are no ambient globals: everything that
// wants a handle asks the manager.
package bench

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/rigol"
	"github.com/converter-bench/benchtop/session"
	"github.com/converter-bench/benchtop/sim"
)

const probeTimeout = 3 * time.Second

// ConnectionError wraps a failed connection attempt with the role and
// address it was for.  Nothing is registered when Connect fails.
type ConnectionError struct {
	Role  instrument.Role
	Addr  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s at %s failed: %v", e.Role, e.Addr, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Manager is the registry of connected instruments.
type Manager struct {
	handles map[instrument.Role]*instrument.Handle
	log     *session.Log

	// dial probes network reachability before a real driver is built;
	// swapped out in tests.
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

// NewManager creates an empty manager recording its events to log.
func NewManager(log *session.Log) *Manager {
	return &Manager{
		handles: map[instrument.Role]*instrument.Handle{},
		log:     log,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// Connect establishes a connection for a role and registers the
// resulting handle.  With simulated true, the handle performs no
// network I/O and always succeeds, satisfying the same capability
// contract as a real one.
//
// A successful connect for an already-connected role replaces the
// prior handle; the prior handle's transport is closed best-effort
// first.  A failed connect registers nothing.
func (m *Manager) Connect(role instrument.Role, addr string, simulated bool) (*instrument.Handle, error) {
	mode := "HARDWARE"
	if simulated {
		mode = "SIMULATION"
	}
	m.log.Append("Initiating %s handshake with %s (%s)...", mode, addr, role)

	h, err := m.build(role, addr, simulated)
	if err != nil {
		m.log.Append("Handshake Failed: %v", err)
		return nil, err
	}

	if prev, ok := m.handles[role]; ok {
		if cerr := prev.Close(); cerr != nil {
			m.log.Append("note: previous %s handle at %s did not close cleanly: %v", role, prev.Addr, cerr)
		} else {
			m.log.Append("previous %s handle at %s released", role, prev.Addr)
		}
	}
	m.handles[role] = h
	m.log.Append("Connection established (%s). Ready.", mode)
	return h, nil
}

func (m *Manager) build(role instrument.Role, addr string, simulated bool) (*instrument.Handle, error) {
	h := &instrument.Handle{Role: role, Addr: addr, Status: instrument.Live, Simulated: simulated}
	if simulated {
		switch role {
		case instrument.Oscilloscope:
			h.Scope = sim.NewScope(addr)
		case instrument.PowerSupply:
			h.Supply = sim.NewSupply(addr)
		}
		return h, nil
	}

	serialLink := !strings.Contains(addr, ":")
	if err := m.probe(addr, serialLink); err != nil {
		return nil, &ConnectionError{Role: role, Addr: addr, Cause: err}
	}
	switch role {
	case instrument.Oscilloscope:
		if serialLink {
			return nil, &ConnectionError{Role: role, Addr: addr,
				Cause: fmt.Errorf("the oscilloscope requires a network address")}
		}
		d := rigol.NewDS1000Z(addr)
		h.Scope = d
		h.Closer = d
	case instrument.PowerSupply:
		var d *rigol.DP800
		if serialLink {
			d = rigol.NewDP800Serial(addr)
		} else {
			d = rigol.NewDP800(addr)
		}
		h.Supply = d
		h.Closer = d
	}
	return h, nil
}

// probe verifies the link is reachable before a driver is registered,
// so a dead address never leaves a half-initialized handle behind.
func (m *Manager) probe(addr string, serialLink bool) error {
	if serialLink {
		port, err := serial.OpenPort(&serial.Config{Name: addr, Baud: 9600})
		if err != nil {
			return err
		}
		return port.Close()
	}
	conn, err := m.dial(addr, probeTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Resolve returns the live handle for a role, if one is connected.
func (m *Manager) Resolve(role instrument.Role) (*instrument.Handle, bool) {
	h, ok := m.handles[role]
	return h, ok
}

// Connected returns all connected handles in stable role order.
func (m *Manager) Connected() []*instrument.Handle {
	var out []*instrument.Handle
	for _, role := range []instrument.Role{instrument.Oscilloscope, instrument.PowerSupply} {
		if h, ok := m.handles[role]; ok {
			out = append(out, h)
		}
	}
	return out
}

// DisconnectAll closes and deregisters every handle.
func (m *Manager) DisconnectAll() {
	for role, h := range m.handles {
		if err := h.Close(); err != nil {
			m.log.Append("disconnect %s at %s: %v", role, h.Addr, err)
		}
		delete(m.handles, role)
	}
	m.log.Append("All instruments disconnected.")
}
