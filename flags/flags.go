// Package flags implements the four named condition-code flags (Z, N, C, V)
// with the same watchpoint contract as register.File.
package flags

import "github.com/wbmoore/armsim/bus"

// Name identifies a flag. Flags are always addressed by name, never index.
type Name string

const (
	Z Name = "Z"
	N Name = "N"
	C Name = "C"
	V Name = "V"
)

var all = [4]Name{Z, N, C, V}

// Breakpoint mask bits, identical semantics to register.Mask{Read,Write}.
const (
	MaskRead  = 4
	MaskWrite = 2
)

type slot struct {
	val  bool
	mask int
}

// Set holds the four condition flags.
type Set struct {
	bus   *bus.Bus
	slots map[Name]*slot
}

// NewSet returns a Set with all flags false, wired to b.
func NewSet(b *bus.Bus) *Set {
	s := &Set{bus: b, slots: make(map[Name]*slot, len(all))}
	for _, n := range all {
		s.slots[n] = &slot{}
	}
	return s
}

func (s *Set) slotFor(name Name) *slot {
	sl, ok := s.slots[name]
	if !ok {
		panic("flags: unknown flag name " + string(name))
	}
	return sl
}

// Get returns the boolean value of name, raising a read-breakpoint event
// first when maySignal is true and the read bit is set for name.
func (s *Set) Get(name Name, maySignal bool) bool {
	sl := s.slotFor(name)
	if maySignal && sl.mask&MaskRead != 0 {
		s.bus.Throw(bus.Event{Src: bus.Flag, Mode: bus.ModeRead, Info: name})
	}
	return sl.val
}

// Set assigns val to name, raising a write-breakpoint event when maySignal
// is true and the write bit is set for name.
func (s *Set) Set(name Name, val bool, maySignal bool) {
	sl := s.slotFor(name)
	sl.val = val
	if maySignal && sl.mask&MaskWrite != 0 {
		s.bus.Throw(bus.Event{Src: bus.Flag, Mode: bus.ModeWrite, Info: name})
	}
}

// SetBreakpoint overwrites the watchpoint mask for name.
func (s *Set) SetBreakpoint(name Name, mask int) {
	s.slotFor(name).mask = mask
}

// RemoveBreakpoint zeroes the watchpoint mask for name.
func (s *Set) RemoveBreakpoint(name Name) {
	s.slotFor(name).mask = 0
}

// String renders the flags in NZCV order with '.' for a clear flag, e.g.
// ".Z.." when only Z is set, matching the
// teacher's statusString-style fixed-width flag dump (see mos6502.go).
func (s *Set) String() string {
	out := make([]byte, 0, 4)
	order := [4]struct {
		n Name
		c byte
	}{{N, 'N'}, {Z, 'Z'}, {C, 'C'}, {V, 'V'}}
	for _, o := range order {
		if s.slots[o.n].val {
			out = append(out, o.c)
		} else {
			out = append(out, '.')
		}
	}
	return string(out)
}
