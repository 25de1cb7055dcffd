// Package sim provides simulated instrument drivers for offline
// rehearsal.  They perform no I/O, always succeed unless a failure is
// injected, and record every command they would have sent so tests and
// operators can inspect exactly what a real run would do.
package sim

import "fmt"

// device is the bookkeeping shared by the simulated drivers.
type device struct {
	addr     string
	calls    map[string]int
	commands []string

	// failures maps an operation name to the error it should return,
	// for rehearsing driver-failure handling.
	failures map[string]error
}

func newDevice(addr string) device {
	return device{
		addr:     addr,
		calls:    map[string]int{},
		failures: map[string]error{},
	}
}

// do records one operation and the wire command it stands in for.
func (d *device) do(op, wire string) error {
	d.calls[op]++
	if err := d.failures[op]; err != nil {
		return err
	}
	d.commands = append(d.commands, fmt.Sprintf("[SIM] %s > %s", d.addr, wire))
	return nil
}

// Calls returns how many times the named operation was invoked.
func (d *device) Calls(op string) int {
	return d.calls[op]
}

// Commands returns the transcript of commands the device would have sent.
func (d *device) Commands() []string {
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

// FailWith makes the named operation return err on every future call.
func (d *device) FailWith(op string, err error) {
	d.failures[op] = err
}

// Scope is a virtual oscilloscope with a signal source.
type Scope struct {
	device
}

// NewScope creates a virtual scope "at" addr.
func NewScope(addr string) *Scope {
	return &Scope{newDevice(addr)}
}

func (s *Scope) Reset() error {
	return s.do("Reset", "*RST")
}

func (s *Scope) SetAmplitude(volts float64) error {
	return s.do("SetAmplitude", fmt.Sprintf(":SOURce:VOLTage %G", volts))
}

func (s *Scope) SetFrequency(hz float64) error {
	return s.do("SetFrequency", fmt.Sprintf(":SOURce:FREQuency %G", hz))
}

func (s *Scope) EnableOutput() error {
	return s.do("EnableOutput", ":OUTPut ON")
}

// Supply is a virtual programmable power supply.
type Supply struct {
	device
}

// NewSupply creates a virtual supply "at" addr.
func NewSupply(addr string) *Supply {
	return &Supply{newDevice(addr)}
}

func (s *Supply) Reset() error {
	return s.do("Reset", "*RST")
}

func (s *Supply) SetChannel(volts, amps float64, channel int) error {
	return s.do("SetChannel", fmt.Sprintf(":APPLy CH%d,%G,%G", channel, volts, amps))
}

func (s *Supply) EnableOutput(channel int) error {
	return s.do("EnableOutput", fmt.Sprintf(":OUTPut CH%d,ON", channel))
}

func (s *Supply) DisableOutput(channel int) error {
	return s.do("DisableOutput", fmt.Sprintf(":OUTPut CH%d,OFF", channel))
}
