package rigol

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/time/rate"

	"github.com/converter-bench/benchtop/comm"
	"github.com/converter-bench/benchtop/scpi"
)

// NumSupplyChannels is the output channel count of the DP800 family.
const NumSupplyChannels = 3

// makeSerConf makes a serial.Config with the DP800 RS-232 defaults.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 10 * time.Second,
	}
}

// DP800 is an interface to the programmable power supplies of the same
// name (DP811, DP832, etc.).
type DP800 struct {
	scpi.SCPI
}

// NewDP800 creates a new supply instance over the LAN interface.
func NewDP800(addr string) *DP800 {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	return newDP800(maker)
}

// NewDP800Serial creates a new supply instance over RS-232, for units
// without the LAN option.
func NewDP800Serial(port string) *DP800 {
	maker := comm.SerialConnMaker(makeSerConf(port))
	return newDP800(maker)
}

func newDP800(maker comm.CreationFunc) *DP800 {
	pool := comm.NewPool(1, time.Hour, maker)
	return &DP800{scpi.SCPI{
		Pool:        pool,
		Handshaking: true,
		Limiter:     rate.NewLimiter(rate.Limit(commandsPerSecond), 1),
	}}
}

// Reset restores the factory state (*RST); all outputs come up disabled.
func (d *DP800) Reset() error {
	return d.Write("*RST")
}

// SetChannel programs one output channel's voltage and current limit.
func (d *DP800) SetChannel(volts, amps float64, channel int) error {
	return d.Write(fmt.Sprintf(":APPLy CH%d,%s,%s",
		channel, scpi.FormatFloat(volts), scpi.FormatFloat(amps)))
}

// EnableOutput turns one output channel on.
func (d *DP800) EnableOutput(channel int) error {
	return d.Write(fmt.Sprintf(":OUTPut CH%d,ON", channel))
}

// DisableOutput turns one output channel off.
func (d *DP800) DisableOutput(channel int) error {
	return d.Write(fmt.Sprintf(":OUTPut CH%d,OFF", channel))
}

// MeasureVoltage reads back the actual output voltage of a channel.
func (d *DP800) MeasureVoltage(channel int) (float64, error) {
	return d.ReadFloat(fmt.Sprintf(":MEASure:VOLTage? CH%d", channel))
}

// MeasureCurrent reads back the actual output current of a channel.
func (d *DP800) MeasureCurrent(channel int) (float64, error) {
	return d.ReadFloat(fmt.Sprintf(":MEASure:CURRent? CH%d", channel))
}

// Close releases the connection to the supply.
func (d *DP800) Close() error {
	return d.Pool.Close()
}
