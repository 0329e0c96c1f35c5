// Package sim implements the Simulator Façade described in spec §4.8: the
// single entry point a driver (interactive REPL, test harness, or batch
// runner) uses to reset, single-step, and inspect a machine built from the
// register, flags, memory, decoder and executor packages.
package sim

import (
	"fmt"

	"github.com/wbmoore/armsim/bus"
	"github.com/wbmoore/armsim/decoder"
	"github.com/wbmoore/armsim/executor"
	"github.com/wbmoore/armsim/flags"
	"github.com/wbmoore/armsim/memory"
	"github.com/wbmoore/armsim/register"
)

// State is the Façade's lifecycle, per spec §3.
type State int

const (
	Uninitialized State = iota
	Ready
	Started
	Stopped
	Finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	case Finished:
		return "Finished"
	default:
		return "?"
	}
}

// StepMode selects the granularity of single-stepping.
type StepMode int

const (
	StepNone StepMode = iota
	StepInto
	StepForward
	StepOut
)

// Simulator is the Façade: it owns the bus and the subsystems wired to it,
// and sequences fetch/execute/advance.
type Simulator struct {
	Bus       *bus.Bus
	Registers *register.File
	Flags     *flags.Set
	Memory    *memory.Memory
	Machine   *executor.Machine

	State        State
	CountCycle   uint64
	fetchedInstr []byte // 4 bytes, or nil if no word has ever been fetched
	stepMode     StepMode

	// calledThisCycle records whether the cycle just executed was a link
	// branch, for the step-forward "upgrade to step-out" rule.
	calledThisCycle bool
}

// New wires a fresh Simulator over img. The Simulator starts
// Uninitialized; call Reset before the first NextInstr.
func New(img memory.Image) (*Simulator, error) {
	b := bus.New()
	regs := register.NewFile(b)
	fl := flags.NewSet(b)
	mem, err := memory.New(b, img)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	return &Simulator{
		Bus:       b,
		Registers: regs,
		Flags:     fl,
		Memory:    mem,
		Machine:   executor.New(regs, fl, mem),
		State:     Uninitialized,
	}, nil
}

// Reset sets state=Ready, clears the cycle counter, sets PC=0, and
// prefetches the word at PC in exec mode.
func (s *Simulator) Reset() {
	s.Memory.Reset()
	s.State = Ready
	s.CountCycle = 0
	s.stepMode = StepNone
	s.Registers.Set(register.PC, 0, false)
	s.fetch()
}

func (s *Simulator) fetch() {
	pc := s.Registers.Get(register.PC, false)
	raw, ok := s.Memory.Get(pc, 4, true)
	if ok {
		s.fetchedInstr = raw
	}
	// On failure, fetchedInstr retains its previous value (spec §4.8):
	// the bus event from Memory.Get is the only signal of the failure.
}

// NextInstr executes the currently fetched word, advances PC by 4,
// refetches, and updates stepMode based on whether the bus triggered this
// cycle.
func (s *Simulator) NextInstr() {
	s.Bus.Reset()
	s.State = Started

	if s.fetchedInstr != nil {
		word := uint32(s.fetchedInstr[0]) | uint32(s.fetchedInstr[1])<<8 |
			uint32(s.fetchedInstr[2])<<16 | uint32(s.fetchedInstr[3])<<24

		depthBefore := s.Machine.StepDepth
		if instr, err := decoder.Decode(word); err == nil {
			s.Machine.Execute(instr)
		}
		s.calledThisCycle = s.Machine.StepDepth > depthBefore
	}

	s.CountCycle++
	pc := s.Registers.Get(register.PC, false)
	s.Registers.Set(register.PC, pc+4, false)
	s.fetch()

	if s.Bus.Triggered() {
		s.stepMode = StepNone
		s.State = Stopped
	}
}

// SetStepCondition arms step-forward or step-out mode with a fresh depth
// counter. Passing StepInto arms step-into the same way; IsStepDone never
// consults the depth counter in that mode.
func (s *Simulator) SetStepCondition(mode StepMode) {
	s.stepMode = mode
	s.Machine.StepDepth = 1
}

// StepMode reports the currently armed step mode.
func (s *Simulator) StepMode() StepMode {
	return s.stepMode
}

// IsStepDone reports whether the armed step mode should halt the driver's
// loop after the cycle just executed. Step-into always stops. Step-forward
// stops unless a call occurred this cycle (in which case it upgrades to
// step-out at depth 1, waiting for the matching return). Step-out stops
// only once depth has unwound back to 0.
func (s *Simulator) IsStepDone() bool {
	switch s.stepMode {
	case StepInto:
		return true
	case StepForward:
		if s.calledThisCycle {
			s.stepMode = StepOut
			s.Machine.StepDepth = 1
			return false
		}
		return true
	case StepOut:
		return s.Machine.StepDepth <= 0
	default:
		return true
	}
}

// FetchedWord returns the currently prefetched instruction word and
// whether one is available.
func (s *Simulator) FetchedWord() (uint32, bool) {
	if s.fetchedInstr == nil {
		return 0, false
	}
	w := uint32(s.fetchedInstr[0]) | uint32(s.fetchedInstr[1])<<8 |
		uint32(s.fetchedInstr[2])<<16 | uint32(s.fetchedInstr[3])<<24
	return w, true
}

// Finish marks the simulator Finished; no further NextInstr calls are
// expected, though nothing prevents them.
func (s *Simulator) Finish() {
	s.State = Finished
}
