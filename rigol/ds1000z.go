// Package rigol provides interfaces to Rigol bench instruments.
package rigol

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/converter-bench/benchtop/comm"
	"github.com/converter-bench/benchtop/scpi"
)

// the DS1000Z command parser drops input beyond ~30 commands/sec over LAN
const commandsPerSecond = 20

// DS1000Z is an interface to the oscilloscope of the same name.  The
// -S models carry the built-in signal source driven by the SOURce
// subsystem.
type DS1000Z struct {
	scpi.SCPI
}

// NewDS1000Z creates a new scope instance with communication set up.
func NewDS1000Z(addr string) *DS1000Z {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &DS1000Z{scpi.SCPI{
		Pool:        pool,
		Handshaking: true,
		Limiter:     rate.NewLimiter(rate.Limit(commandsPerSecond), 1),
	}}
}

// Reset restores the factory state (*RST).
func (s *DS1000Z) Reset() error {
	return s.Write("*RST")
}

// SetAmplitude configures the source output amplitude in volts.
func (s *DS1000Z) SetAmplitude(volts float64) error {
	return s.Write(":SOURce:VOLTage", scpi.FormatFloat(volts))
}

// GetAmplitude returns the source output amplitude in volts.
func (s *DS1000Z) GetAmplitude() (float64, error) {
	return s.ReadFloat(":SOURce:VOLTage?")
}

// SetFrequency configures the source output frequency in Hz.
func (s *DS1000Z) SetFrequency(hz float64) error {
	return s.Write(":SOURce:FREQuency", scpi.FormatFloat(hz))
}

// GetFrequency returns the source output frequency in Hz.
func (s *DS1000Z) GetFrequency() (float64, error) {
	return s.ReadFloat(":SOURce:FREQuency?")
}

// EnableOutput turns the source output on.
func (s *DS1000Z) EnableOutput() error {
	return s.Write(":OUTPut ON")
}

// DisableOutput turns the source output off.
func (s *DS1000Z) DisableOutput() error {
	return s.Write(":OUTPut OFF")
}

// SetScale sets the vertical scale of a channel in volts per division.
func (s *DS1000Z) SetScale(channel int, voltsPerDiv float64) error {
	return s.Write(fmt.Sprintf(":CHANnel%d:SCALe", channel), scpi.FormatFloat(voltsPerDiv))
}

// GetScale returns the vertical scale of a channel in volts per division.
func (s *DS1000Z) GetScale(channel int) (float64, error) {
	return s.ReadFloat(fmt.Sprintf(":CHANnel%d:SCALe?", channel))
}

// SetTimebase sets the main timebase in seconds per division.
func (s *DS1000Z) SetTimebase(secPerDiv float64) error {
	return s.Write(":TIMebase:MAIN:SCALe", scpi.FormatFloat(secPerDiv))
}

// GetTimebase returns the main timebase in seconds per division.
func (s *DS1000Z) GetTimebase() (float64, error) {
	return s.ReadFloat(":TIMebase:MAIN:SCALe?")
}

// Close releases the connection to the scope.
func (s *DS1000Z) Close() error {
	return s.Pool.Close()
}
