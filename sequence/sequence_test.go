package sequence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/interlock"
	"github.com/converter-bench/benchtop/sequence"
	"github.com/converter-bench/benchtop/session"
	"github.com/converter-bench/benchtop/sim"
)

// fakeBench is a minimal HandleResolver for tests.
type fakeBench struct {
	handles map[instrument.Role]*instrument.Handle
}

func (f *fakeBench) Resolve(role instrument.Role) (*instrument.Handle, bool) {
	h, ok := f.handles[role]
	return h, ok
}

func (f *fakeBench) Connected() []*instrument.Handle {
	var out []*instrument.Handle
	for _, role := range []instrument.Role{instrument.Oscilloscope, instrument.PowerSupply} {
		if h, ok := f.handles[role]; ok {
			out = append(out, h)
		}
	}
	return out
}

func benchWithScope(scope *sim.Scope) *fakeBench {
	return &fakeBench{handles: map[instrument.Role]*instrument.Handle{
		instrument.Oscilloscope: {
			Role:      instrument.Oscilloscope,
			Addr:      "192.168.1.5:5555",
			Status:    instrument.Live,
			Simulated: true,
			Scope:     scope,
		},
	}}
}

func TestRunCompletesAndLogsEachStep(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), benchWithScope(scope), log)

	result := c.Run([]sequence.Step{
		sequence.SetAmplitude(5.0),
		sequence.SetFrequency(50e3),
		sequence.EnableOutput(),
	})

	assert.Equal(t, sequence.Completed, result.State)
	assert.Equal(t, -1, result.Step)
	assert.Equal(t, sequence.Completed, c.State())

	entries := log.Entries()
	require.Len(t, entries, 4) // one per step plus the banner
	assert.Contains(t, entries[0].Text, "set amplitude 5 V")
	assert.Contains(t, entries[1].Text, "set frequency 50000 Hz")
	assert.Contains(t, entries[2].Text, "enable output")
	assert.Equal(t, "--- SEQUENCE COMPLETE ---", entries[3].Text)

	assert.Equal(t, 1, scope.Calls("SetAmplitude"))
	assert.Equal(t, 1, scope.Calls("SetFrequency"))
	assert.Equal(t, 1, scope.Calls("EnableOutput"))
}

func TestRejectionShortCircuits(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), benchWithScope(scope), log)

	result := c.Run([]sequence.Step{
		sequence.SetAmplitude(25.0),
		sequence.EnableOutput(),
	})

	assert.Equal(t, sequence.Rejected, result.State)
	assert.Equal(t, 0, result.Step)
	assert.NotEmpty(t, result.Reason)
	assert.Equal(t, sequence.Rejected, c.State())

	// the rejected command never reached the driver, nor did any later step
	assert.Equal(t, 0, scope.Calls("SetAmplitude"))
	assert.Equal(t, 0, scope.Calls("EnableOutput"))

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "SAFETY INTERLOCK")
}

func TestNoHandleAbortsBeforeAnyExecution(t *testing.T) {
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), &fakeBench{handles: map[instrument.Role]*instrument.Handle{}}, log)

	result := c.Run([]sequence.Step{
		sequence.SetAmplitude(5.0),
		sequence.EnableOutput(),
	})

	assert.Equal(t, sequence.Aborted, result.State)
	assert.Equal(t, -1, result.Step)
	assert.Contains(t, result.Reason, "no oscilloscope connected")

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "ABORT")
}

func TestMixedRolesAbortWhenOneIsMissing(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), benchWithScope(scope), log)

	result := c.Run([]sequence.Step{
		sequence.SetAmplitude(5.0),
		sequence.SetChannel(12, 1.5, 1),
	})

	assert.Equal(t, sequence.Aborted, result.State)
	assert.Contains(t, result.Reason, "no power supply connected")
	// even the scope step never executed
	assert.Equal(t, 0, scope.Calls("SetAmplitude"))
}

func TestDriverFailureHaltsTheRun(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	boom := errors.New("the instrument said no")
	scope.FailWith("SetFrequency", boom)
	log := session.NewLog()
	fb := benchWithScope(scope)
	c := sequence.NewController(interlock.DefaultPolicy(), fb, log)

	result := c.Run([]sequence.Step{
		sequence.SetAmplitude(5.0),
		sequence.SetFrequency(50e3),
		sequence.EnableOutput(),
	})

	assert.Equal(t, sequence.Failed, result.State)
	assert.Equal(t, 1, result.Step)
	assert.ErrorIs(t, result.Cause, boom)
	assert.Equal(t, 0, scope.Calls("EnableOutput"))

	// the cause string is preserved verbatim in the log
	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Text, "the instrument said no")

	h, _ := fb.Resolve(instrument.Oscilloscope)
	assert.Equal(t, instrument.Errored, h.Status)
}

func TestSupplySequence(t *testing.T) {
	supply := sim.NewSupply("192.168.1.6:5555")
	fb := &fakeBench{handles: map[instrument.Role]*instrument.Handle{
		instrument.PowerSupply: {
			Role:      instrument.PowerSupply,
			Addr:      "192.168.1.6:5555",
			Simulated: true,
			Supply:    supply,
		},
	}}
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), fb, log)

	result := c.Run([]sequence.Step{
		sequence.SetChannel(32.0, 2.0, 1),
		sequence.EnableChannel(1),
	})
	assert.Equal(t, sequence.Completed, result.State)
	assert.Equal(t, 1, supply.Calls("SetChannel"))
	assert.Equal(t, 1, supply.Calls("EnableOutput"))

	result = c.Run([]sequence.Step{sequence.SetChannel(32.1, 2.0, 1)})
	assert.Equal(t, sequence.Rejected, result.State)
	assert.Equal(t, 1, supply.Calls("SetChannel"))
}

func TestPrecheckMatchesRunDecisionsWithoutSideEffects(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), benchWithScope(scope), log)

	res, ok := c.Precheck([]sequence.Step{
		sequence.SetAmplitude(5.0),
		sequence.EnableOutput(),
	})
	assert.True(t, ok)
	assert.Equal(t, -1, res.Step)

	res, ok = c.Precheck([]sequence.Step{sequence.SetAmplitude(25.0)})
	assert.False(t, ok)
	assert.Equal(t, sequence.Rejected, res.State)
	assert.Equal(t, 0, res.Step)

	res, ok = c.Precheck([]sequence.Step{sequence.SetChannel(12, 1.5, 1)})
	assert.False(t, ok)
	assert.Equal(t, sequence.Aborted, res.State)
	assert.Contains(t, res.Reason, "no power supply connected")

	// prechecking touched neither hardware, the log, nor the state
	assert.Equal(t, 0, scope.Calls("SetAmplitude"))
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, sequence.Idle, c.State())
}

func TestEmergencyStopWithNothingConnected(t *testing.T) {
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), &fakeBench{handles: map[instrument.Role]*instrument.Handle{}}, log)

	c.EmergencyStop()
	assert.Equal(t, 1, log.Len())

	// idempotent: a second call logs again but raises nothing
	c.EmergencyStop()
	assert.Equal(t, 2, log.Len())
}

func TestEmergencyStopSweepsEveryHandle(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	supply := sim.NewSupply("192.168.1.6:5555")
	fb := benchWithScope(scope)
	fb.handles[instrument.PowerSupply] = &instrument.Handle{
		Role:      instrument.PowerSupply,
		Addr:      "192.168.1.6:5555",
		Simulated: true,
		Supply:    supply,
	}
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), fb, log)

	c.EmergencyStop()
	assert.Equal(t, 1, scope.Calls("Reset"))
	assert.Equal(t, 3, supply.Calls("DisableOutput"))
	assert.Contains(t, log.Entries()[log.Len()-1].Text, "SAFETY STOP")
}

func TestEmergencyStopIsBestEffort(t *testing.T) {
	scope := sim.NewScope("192.168.1.5:5555")
	scope.FailWith("Reset", errors.New("link down"))
	supply := sim.NewSupply("192.168.1.6:5555")
	fb := benchWithScope(scope)
	fb.handles[instrument.PowerSupply] = &instrument.Handle{
		Role:   instrument.PowerSupply,
		Addr:   "192.168.1.6:5555",
		Supply: supply,
	}
	log := session.NewLog()
	c := sequence.NewController(interlock.DefaultPolicy(), fb, log)

	c.EmergencyStop() // must not panic or stop early
	assert.Equal(t, 3, supply.Calls("DisableOutput"))

	var sawFailure bool
	for _, e := range log.Entries() {
		if e.Text == "SAFETY STOP: Output disabled / Instrument Reset." {
			continue
		}
		if len(e.Text) >= 11 && e.Text[:11] == "Stop Failed" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
}
