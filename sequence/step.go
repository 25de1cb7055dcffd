package sequence

import (
	"fmt"

	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/interlock"
)

// Op names one instrument operation a step can perform.
type Op int

const (
	OpReset Op = iota
	OpSetAmplitude
	OpSetFrequency
	OpEnableOutput
	OpSetChannel
	OpEnableChannel
	OpDisableChannel
)

func (o Op) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpSetAmplitude:
		return "set amplitude"
	case OpSetFrequency:
		return "set frequency"
	case OpEnableOutput:
		return "enable output"
	case OpSetChannel:
		return "set channel"
	case OpEnableChannel:
		return "enable channel"
	case OpDisableChannel:
		return "disable channel"
	default:
		return fmt.Sprintf("unknown op (%d)", int(o))
	}
}

// ParseOp converts the wire spelling of an op ("set_amplitude") to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "reset":
		return OpReset, nil
	case "set_amplitude":
		return OpSetAmplitude, nil
	case "set_frequency":
		return OpSetFrequency, nil
	case "enable_output":
		return OpEnableOutput, nil
	case "set_channel":
		return OpSetChannel, nil
	case "enable_channel":
		return OpEnableChannel, nil
	case "disable_channel":
		return OpDisableChannel, nil
	default:
		return 0, fmt.Errorf("unknown op %q", s)
	}
}

// Step describes one instrument action and the parameter values it
// requires.  Steps execute strictly in order; instrument state is
// order-dependent (amplitude must be set before output is enabled).
type Step struct {
	Role    instrument.Role
	Op      Op
	Volts   float64
	Amps    float64
	Hz      float64
	Channel int
}

// Reset builds a step that resets the instrument of the given role.
func Reset(role instrument.Role) Step {
	return Step{Role: role, Op: OpReset}
}

// SetAmplitude builds a scope source-amplitude step.
func SetAmplitude(volts float64) Step {
	return Step{Role: instrument.Oscilloscope, Op: OpSetAmplitude, Volts: volts}
}

// SetFrequency builds a scope source-frequency step.
func SetFrequency(hz float64) Step {
	return Step{Role: instrument.Oscilloscope, Op: OpSetFrequency, Hz: hz}
}

// EnableOutput builds a scope source-output-on step.
func EnableOutput() Step {
	return Step{Role: instrument.Oscilloscope, Op: OpEnableOutput}
}

// SetChannel builds a supply channel-programming step.
func SetChannel(volts, amps float64, channel int) Step {
	return Step{Role: instrument.PowerSupply, Op: OpSetChannel, Volts: volts, Amps: amps, Channel: channel}
}

// EnableChannel builds a supply output-on step.
func EnableChannel(channel int) Step {
	return Step{Role: instrument.PowerSupply, Op: OpEnableChannel, Channel: channel}
}

// DisableChannel builds a supply output-off step.
func DisableChannel(channel int) Step {
	return Step{Role: instrument.PowerSupply, Op: OpDisableChannel, Channel: channel}
}

// Params returns the named values this step carries, for interlock
// evaluation.  Ops without numeric parameters return nil.
func (s Step) Params() []interlock.Param {
	switch s.Op {
	case OpSetAmplitude:
		return []interlock.Param{{Name: interlock.ParamAmplitude, Value: s.Volts}}
	case OpSetFrequency:
		return []interlock.Param{{Name: interlock.ParamFrequency, Value: s.Hz}}
	case OpSetChannel:
		return []interlock.Param{
			{Name: interlock.ParamVoltage, Value: s.Volts},
			{Name: interlock.ParamCurrent, Value: s.Amps},
		}
	default:
		return nil
	}
}

// Describe renders the step for log entries.
func (s Step) Describe() string {
	switch s.Op {
	case OpSetAmplitude:
		return fmt.Sprintf("%s %G V", s.Op, s.Volts)
	case OpSetFrequency:
		return fmt.Sprintf("%s %G Hz", s.Op, s.Hz)
	case OpSetChannel:
		return fmt.Sprintf("%s CH%d %G V %G A", s.Op, s.Channel, s.Volts, s.Amps)
	case OpEnableChannel, OpDisableChannel:
		return fmt.Sprintf("%s CH%d", s.Op, s.Channel)
	default:
		return s.Op.String()
	}
}

// apply invokes the operation on the handle.  The handle's role is
// checked so a mis-built step surfaces as a driver failure rather than
// a nil dereference.
func (s Step) apply(h *instrument.Handle) error {
	switch s.Op {
	case OpReset:
		switch {
		case h.Scope != nil:
			return h.Scope.Reset()
		case h.Supply != nil:
			return h.Supply.Reset()
		}
	case OpSetAmplitude:
		if h.Scope != nil {
			return h.Scope.SetAmplitude(s.Volts)
		}
	case OpSetFrequency:
		if h.Scope != nil {
			return h.Scope.SetFrequency(s.Hz)
		}
	case OpEnableOutput:
		if h.Scope != nil {
			return h.Scope.EnableOutput()
		}
	case OpSetChannel:
		if h.Supply != nil {
			return h.Supply.SetChannel(s.Volts, s.Amps, s.Channel)
		}
	case OpEnableChannel:
		if h.Supply != nil {
			return h.Supply.EnableOutput(s.Channel)
		}
	case OpDisableChannel:
		if h.Supply != nil {
			return h.Supply.DisableOutput(s.Channel)
		}
	}
	return fmt.Errorf("%s handle cannot perform %s", h.Role, s.Op)
}
