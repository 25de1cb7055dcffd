// Package interlock implements the bench safety policy.
//
// Every parameter a sequence step carries is evaluated against a
// per-role, per-parameter ceiling strictly before the command reaches
// a driver.  Evaluation is a pure function of (role, parameter, value)
// so it can be reused by every step and tested in isolation.
package interlock

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/converter-bench/benchtop/instrument"
)

// Canonical parameter names used by sequence steps and the policy.
const (
	ParamAmplitude = "amplitude"
	ParamFrequency = "frequency"
	ParamVoltage   = "voltage"
	ParamCurrent   = "current"
)

// Default ceilings, volts.  Overridable per deployment via config.
const (
	DefaultScopeAmplitudeV = 20.0
	DefaultSupplyVoltageV  = 32.0
)

// Param is one named value carried by a sequence step.
type Param struct {
	Name  string
	Value float64
}

// Decision is the outcome of evaluating one parameter.
type Decision struct {
	Accepted bool
	Reason   string
}

func accept() Decision {
	return Decision{Accepted: true}
}

func reject(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Policy maps (role, parameter) to a ceiling.  Values at the ceiling
// are accepted; values above it are rejected.  Parameters without a
// ceiling pass unchecked, but must still be finite.
type Policy struct {
	ceilings map[instrument.Role]map[string]float64
}

// NewPolicy returns a policy with no ceilings.
func NewPolicy() *Policy {
	return &Policy{ceilings: map[instrument.Role]map[string]float64{}}
}

// DefaultPolicy returns the stock bench limits: oscilloscope source
// amplitude at most 20 V, power supply voltage at most 32 V.
func DefaultPolicy() *Policy {
	p := NewPolicy()
	p.SetCeiling(instrument.Oscilloscope, ParamAmplitude, DefaultScopeAmplitudeV)
	p.SetCeiling(instrument.PowerSupply, ParamVoltage, DefaultSupplyVoltageV)
	return p
}

// SetCeiling installs or replaces the limit for one (role, parameter) pair.
func (p *Policy) SetCeiling(role instrument.Role, param string, limit float64) {
	m, ok := p.ceilings[role]
	if !ok {
		m = map[string]float64{}
		p.ceilings[role] = m
	}
	m[param] = limit
}

// Ceiling reports the limit for a (role, parameter) pair, if one exists.
func (p *Policy) Ceiling(role instrument.Role, param string) (float64, bool) {
	m, ok := p.ceilings[role]
	if !ok {
		return 0, false
	}
	limit, ok := m[param]
	return limit, ok
}

// Evaluate decides whether value may be sent to an instrument of the
// given role as the named parameter.  It has no side effects and is
// deterministic given its inputs.
func (p *Policy) Evaluate(role instrument.Role, param string, value float64) Decision {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return reject("invalid input: %s is not a finite number", param)
	}
	if limit, ok := p.Ceiling(role, param); ok && value > limit {
		return reject("%s %s %v exceeds the %v limit", role, param, value, limit)
	}
	return accept()
}

// EvaluateString parses raw as a number and evaluates it.  Missing or
// non-numeric input is a rejection, never a panic; operator-facing
// fields come through here.
func (p *Policy) EvaluateString(role instrument.Role, param, raw string) Decision {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reject("invalid input: %s is required", param)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return reject("invalid input: %s must be numeric, got %q", param, raw)
	}
	return p.Evaluate(role, param, value)
}
