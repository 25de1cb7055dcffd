// Package sequence orchestrates ordered instrument operations behind
// the bench safety interlock.
//
// A Controller runs a sequence of steps against connected handles.
// Every parameter of every step is evaluated by the interlock before
// the command reaches a driver; the first rejection or driver failure
// halts the run.  Hardware commands are never retried automatically:
// on real hardware, fail loud and fail stopped.
package sequence

import (
	"fmt"

	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/interlock"
	"github.com/converter-bench/benchtop/session"
)

// State is the lifecycle of one run.  A run moves Idle -> Running and
// then to exactly one terminal state; it never regresses.
type State int

const (
	Idle State = iota
	Running
	Completed
	Rejected
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown state (%d)", int(s))
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s >= Completed
}

// Result is the outcome of a run.  It is a terminal value: the
// controller never mutates it after Run returns.
type Result struct {
	// State is one of Completed, Rejected, Failed, Aborted.
	State State

	// Step is the index of the deciding step, or -1 when the run
	// completed or aborted before any step executed.
	Step int

	// Reason is the interlock rejection reason or the missing role,
	// empty on completion.
	Reason string

	// Cause is the underlying driver error for Failed results.
	Cause error
}

func (r Result) String() string {
	switch r.State {
	case Completed:
		return "completed"
	case Rejected:
		return fmt.Sprintf("rejected at step %d: %s", r.Step, r.Reason)
	case Failed:
		return fmt.Sprintf("failed at step %d: %v", r.Step, r.Cause)
	case Aborted:
		return fmt.Sprintf("aborted: %s", r.Reason)
	default:
		return r.State.String()
	}
}

// HandleResolver supplies connected handles by role.  The connection
// manager implements it.
type HandleResolver interface {
	Resolve(instrument.Role) (*instrument.Handle, bool)
	Connected() []*instrument.Handle
}

// Controller runs sequences.  It holds no cross-run state besides its
// explicit collaborators: the policy, the resolver, and the log.
type Controller struct {
	policy  *interlock.Policy
	handles HandleResolver
	log     *session.Log
	last    State
}

// NewController wires a controller to its collaborators.
func NewController(policy *interlock.Policy, handles HandleResolver, log *session.Log) *Controller {
	return &Controller{policy: policy, handles: handles, log: log, last: Idle}
}

// State returns the state of the most recent run, Idle before any run.
func (c *Controller) State() State {
	return c.last
}

// run is the per-invocation state machine.  Transitions only move
// forward; once terminal, further transitions are ignored.
type run struct {
	state State
}

func (r *run) to(next State) {
	if r.state.Terminal() {
		return
	}
	r.state = next
}

// Precheck reports whether Run would start executing steps: it scans
// for missing roles and interlock violations without touching hardware,
// the log, or the controller state.  ok is false when Run would abort
// or reject, with the would-be result describing why.
func (c *Controller) Precheck(steps []Step) (Result, bool) {
	for _, s := range steps {
		if _, ok := c.handles.Resolve(s.Role); !ok {
			return Result{State: Aborted, Step: -1,
				Reason: fmt.Sprintf("no %s connected", s.Role)}, false
		}
	}
	for i, s := range steps {
		for _, p := range s.Params() {
			if d := c.policy.Evaluate(s.Role, p.Name, p.Value); !d.Accepted {
				return Result{State: Rejected, Step: i, Reason: d.Reason}, false
			}
		}
	}
	return Result{State: Idle, Step: -1}, true
}

// Run executes steps in order and returns the terminal result, writing
// one log entry per step attempt.
//
// If any step references a role with no connected handle, the run
// aborts before anything executes.  Otherwise each step's parameters
// pass through the interlock; a rejection or a driver failure stops
// the run at that step.
func (c *Controller) Run(steps []Step) Result {
	r := &run{state: Idle}
	r.to(Running)
	defer func() { c.last = r.state }()

	for _, s := range steps {
		if _, ok := c.handles.Resolve(s.Role); !ok {
			reason := fmt.Sprintf("no %s connected", s.Role)
			c.log.Append("ABORT: %s; sequence not started", reason)
			r.to(Aborted)
			return Result{State: Aborted, Step: -1, Reason: reason}
		}
	}

	for i, s := range steps {
		h, _ := c.handles.Resolve(s.Role)
		for _, p := range s.Params() {
			if d := c.policy.Evaluate(s.Role, p.Name, p.Value); !d.Accepted {
				c.log.Append("SAFETY INTERLOCK: step %d (%s) rejected: %s", i, s.Describe(), d.Reason)
				r.to(Rejected)
				return Result{State: Rejected, Step: i, Reason: d.Reason}
			}
		}
		if err := s.apply(h); err != nil {
			h.Status = instrument.Errored
			c.log.Append("Command Error: step %d (%s): %v", i, s.Describe(), err)
			r.to(Failed)
			return Result{State: Failed, Step: i, Reason: err.Error(), Cause: err}
		}
		c.log.Append("step %d: %s (%s @ %s)", i, s.Describe(), s.Role, h.Addr)
	}

	c.log.Append("--- SEQUENCE COMPLETE ---")
	r.to(Completed)
	return Result{State: Completed, Step: -1}
}

// EmergencyStop resets every connected scope and kills every supply
// output, regardless of any sequence state.  It is best-effort:
// failures are logged, never returned, and never halt the sweep over
// the remaining handles.  Calling it with nothing connected is a no-op
// that still logs an entry.
func (c *Controller) EmergencyStop() {
	handles := c.handles.Connected()
	if len(handles) == 0 {
		c.log.Append("SAFETY STOP: no instruments connected, nothing to do")
		return
	}
	for _, h := range handles {
		switch {
		case h.Scope != nil:
			if err := h.Scope.Reset(); err != nil {
				c.log.Append("Stop Failed: %s @ %s: %v", h.Role, h.Addr, err)
			}
		case h.Supply != nil:
			for ch := 1; ch <= supplyChannels; ch++ {
				if err := h.Supply.DisableOutput(ch); err != nil {
					c.log.Append("Stop Failed: %s @ %s CH%d: %v", h.Role, h.Addr, ch, err)
				}
			}
		}
	}
	c.log.Append("SAFETY STOP: Output disabled / Instrument Reset.")
}

// supplyChannels is how many outputs the stop sweep covers; the DP800
// family tops out at three.
const supplyChannels = 3
