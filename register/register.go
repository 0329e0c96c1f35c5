// Package register implements the 16-entry general register file: 32-bit
// values, read/write watchpoints raised on a shared bus.Bus, and an
// append-only (bounded) history of written values per register.
package register

import "github.com/wbmoore/armsim/bus"

const Count = 16

// Aliases for the three registers with architectural roles beyond general
// purpose use. They affect presentation only — File treats all 16 slots
// identically.
const (
	SP = 13
	LR = 14
	PC = 15
)

// Breakpoint mask bits, per spec §4.2: bit 2 = on-write, bit 4 = on-read.
const (
	MaskRead  = 4
	MaskWrite = 2
)

// DefaultHistoryLimit bounds the per-register history ring (spec §9: "Bound
// them (ring buffer) if memory is a concern").
const DefaultHistoryLimit = 1024

// File holds the 16 general registers plus their watchpoint masks and
// history logs.
type File struct {
	bus          *bus.Bus
	values       [Count]uint32
	masks        [Count]int
	history      [Count][]uint32
	historyLimit int
}

// NewFile returns a File with all registers zeroed, wired to b for
// watchpoint events.
func NewFile(b *bus.Bus) *File {
	return &File{bus: b, historyLimit: DefaultHistoryLimit}
}

// SetHistoryLimit overrides the default history ring size. A limit of 0
// disables history retention.
func (f *File) SetHistoryLimit(n int) {
	f.historyLimit = n
}

func aliasName(id int) string {
	switch id {
	case SP:
		return "SP"
	case LR:
		return "LR"
	case PC:
		return "PC"
	default:
		return ""
	}
}

// AliasName returns the presentation-only alias for id, or "" if id has
// none.
func AliasName(id int) string {
	return aliasName(id)
}

// Get returns the current value of register id. When maySignal is true and
// the read-breakpoint bit is set for id, a bus.Event is raised before the
// value is returned.
func (f *File) Get(id int, maySignal bool) uint32 {
	if maySignal && f.masks[id]&MaskRead != 0 {
		f.bus.Throw(bus.Event{Src: bus.Register, Mode: bus.ModeRead, Info: id})
	}
	return f.values[id]
}

// Set truncates val to 32 bits (a no-op in Go, since the stored type is
// already uint32, but kept explicit to document the invariant), appends it
// to id's history, and raises a write-breakpoint event when maySignal is
// true and the write bit is set for id.
func (f *File) Set(id int, val uint32, maySignal bool) {
	f.values[id] = val
	f.appendHistory(id, val)
	if maySignal && f.masks[id]&MaskWrite != 0 {
		f.bus.Throw(bus.Event{Src: bus.Register, Mode: bus.ModeWrite, Info: id})
	}
}

func (f *File) appendHistory(id int, val uint32) {
	if f.historyLimit <= 0 {
		return
	}
	h := append(f.history[id], val)
	if over := len(h) - f.historyLimit; over > 0 {
		h = h[over:]
	}
	f.history[id] = h
}

// History returns the chronological (oldest-first) log of values written
// to register id, bounded by the configured history limit.
func (f *File) History(id int) []uint32 {
	return f.history[id]
}

// SetBreakpoint overwrites the watchpoint mask for register id. Multiple
// concurrent modes are bitwise-OR'd into a single mask by the caller.
func (f *File) SetBreakpoint(id int, mask int) {
	f.masks[id] = mask
}

// RemoveBreakpoint zeroes the watchpoint mask for register id.
func (f *File) RemoveBreakpoint(id int) {
	f.masks[id] = 0
}

// Breakpoint returns the current watchpoint mask for register id.
func (f *File) Breakpoint(id int) int {
	return f.masks[id]
}
