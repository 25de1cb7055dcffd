// Package instrument defines the capability types for bench instruments.
//
// A Handle represents one connected (or simulated) instrument.  The
// capability set behind a handle depends on its Role; the sequence
// controller and the HTTP layer depend only on the Scope and Supply
// interfaces, never on a concrete driver.
package instrument

import (
	"fmt"
	"io"
	"strings"
)

// Role identifies which capability set a handle exposes.
type Role int

const (
	// Oscilloscope covers scope-like instruments with a built-in
	// signal source (reset, amplitude, frequency, output enable).
	Oscilloscope Role = iota

	// PowerSupply covers programmable multi-channel DC supplies.
	PowerSupply
)

func (r Role) String() string {
	switch r {
	case Oscilloscope:
		return "oscilloscope"
	case PowerSupply:
		return "power supply"
	default:
		return fmt.Sprintf("unknown role (%d)", int(r))
	}
}

// ParseRole converts a string to a Role.  Matching is case insensitive
// and tolerates the underscore and hyphen spellings seen in config files.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(s)) {
	case "oscilloscope", "scope":
		return Oscilloscope, nil
	case "power supply", "supply", "psu":
		return PowerSupply, nil
	default:
		return 0, fmt.Errorf("unknown instrument role %q", s)
	}
}

// Status is the liveness of a handle as tracked by the connection manager.
type Status int

const (
	// Offline is the zero value; a handle that has been disconnected
	// or replaced.
	Offline Status = iota

	// Live handles accepted their last connection attempt.
	Live

	// Errored handles saw a driver-level failure on their last command.
	Errored
)

func (s Status) String() string {
	switch s {
	case Live:
		return "live"
	case Errored:
		return "errored"
	default:
		return "offline"
	}
}

// Scope is the capability set of an oscilloscope with a signal source.
// Real implementations talk SCPI over the network; simulated ones
// record the commands they would have sent and always succeed.
type Scope interface {
	Reset() error
	SetAmplitude(volts float64) error
	SetFrequency(hz float64) error
	EnableOutput() error
}

// Supply is the capability set of a programmable DC power supply.
type Supply interface {
	Reset() error
	SetChannel(volts, amps float64, channel int) error
	EnableOutput(channel int) error
	DisableOutput(channel int) error
}

// Handle is one connected instrument.  Exactly one of Scope or Supply
// is non-nil, matching Role.  Handles are created and exclusively
// owned by the connection manager; consumers resolve them by role and
// must not retain them across reconnects.
type Handle struct {
	Role      Role
	Addr      string
	Status    Status
	Simulated bool

	Scope  Scope
	Supply Supply

	// Closer tears down the transport behind a real driver.  Nil for
	// simulated handles.
	Closer io.Closer
}

// Close releases the transport behind the handle, if any, and marks it
// offline.
func (h *Handle) Close() error {
	h.Status = Offline
	if h.Closer == nil {
		return nil
	}
	return h.Closer.Close()
}
