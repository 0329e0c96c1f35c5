// Package memory implements the sectioned, sparse byte-addressable memory
// described in spec §4.4: an ordered collection of named, non-overlapping
// segments, a per-byte breakpoint mask, an append-only (bounded) write log,
// and bulk serialisation for the UI's memory view.
package memory

import (
	"fmt"
	"sort"

	"github.com/wbmoore/armsim/bus"
)

// Breakpoint mask bits for memory addresses, per spec §4.4: bit 4 = read,
// bit 2 = write, bit 1 = execute. Note this differs from register/flag
// masks, which use bit 2 = write and bit 4 = read but have no execute bit.
const (
	MaskExecute = 1
	MaskWrite   = 2
	MaskRead    = 4
)

// DefaultWriteLogLimit bounds the write log (spec §9: bound history logs
// with a ring buffer if memory is a concern).
const DefaultWriteLogLimit = 4096

// Image is the external loader's description of the initial memory
// snapshot (spec §6): named segments with their initial contents, plus the
// two reserved __MEMINFOSTART/__MEMINFOEND maps giving each segment's
// address range.
type Image struct {
	Segments map[string][]byte
	Start    map[string]uint32
	End      map[string]uint32
}

type segment struct {
	name  string
	start uint32
	end   uint32 // exclusive
	data  []byte
}

// WriteRecord is one entry in the append-only write log.
type WriteRecord struct {
	Segment string
	Offset  uint32
	Size    int
	Value   uint32
}

// Memory is the sectioned address space.
type Memory struct {
	bus           *bus.Bus
	segments      []*segment // ascending by start, non-overlapping
	maxAddr       uint32
	breakpoints   map[uint32]int
	writeLog      []WriteRecord
	writeLogLimit int
	initial       map[string][]byte // immutable snapshot for Reset
}

// New validates img (segments non-overlapping, |Start| == |End| and every
// segment name present in both) and returns a ready Memory wired to b.
func New(b *bus.Bus, img Image) (*Memory, error) {
	if len(img.Start) != len(img.End) {
		return nil, fmt.Errorf("memory: __MEMINFOSTART has %d entries, __MEMINFOEND has %d", len(img.Start), len(img.End))
	}
	for name := range img.Start {
		if _, ok := img.End[name]; !ok {
			return nil, fmt.Errorf("memory: segment %q has a start but no end", name)
		}
	}
	for name := range img.End {
		if _, ok := img.Start[name]; !ok {
			return nil, fmt.Errorf("memory: segment %q has an end but no start", name)
		}
	}

	names := make([]string, 0, len(img.Start))
	for name := range img.Start {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return img.Start[names[i]] < img.Start[names[j]] })

	m := &Memory{
		bus:           b,
		breakpoints:   make(map[uint32]int),
		writeLogLimit: DefaultWriteLogLimit,
		initial:       make(map[string][]byte, len(names)),
	}

	var prevEnd uint32
	for i, name := range names {
		start, end := img.Start[name], img.End[name]
		if end < start {
			return nil, fmt.Errorf("memory: segment %q end %#x precedes start %#x", name, end, start)
		}
		if i > 0 && start < prevEnd {
			return nil, fmt.Errorf("memory: segment %q starting at %#x overlaps the previous segment ending at %#x", name, start, prevEnd)
		}
		prevEnd = end

		size := end - start
		data := make([]byte, size)
		copy(data, img.Segments[name])
		snap := make([]byte, size)
		copy(snap, data)

		m.segments = append(m.segments, &segment{name: name, start: start, end: end, data: data})
		m.initial[name] = snap

		if end > m.maxAddr {
			m.maxAddr = end
		}
	}

	return m, nil
}

// MaxAddr returns the exclusive upper bound of the address space, i.e. the
// largest declared segment end.
func (m *Memory) MaxAddr() uint32 {
	return m.maxAddr
}

// Reset restores every segment to its initial snapshot. It does not clear
// breakpoints or the write log — those are debugging-session state, not
// architectural state.
func (m *Memory) Reset() {
	for _, s := range m.segments {
		copy(s.data, m.initial[s.name])
	}
}

func (m *Memory) resolve(addr, size uint32) (*segment, uint32, bool) {
	for _, s := range m.segments {
		if addr >= s.start && addr+size <= s.end {
			return s, addr - s.start, true
		}
	}
	return nil, 0, false
}

// Get resolves addr for a size-byte access (1, 2 or 4) and returns the raw
// little-endian bytes. execMode marks an instruction-fetch read, which is
// gated by the execute breakpoint bit rather than the read bit. On an
// unresolvable address, it raises (memory, ModeIllegalAddress, addr) and
// returns (nil, false).
func (m *Memory) Get(addr uint32, size int, execMode bool) ([]byte, bool) {
	seg, off, ok := m.resolve(addr, uint32(size))
	if !ok {
		m.bus.Throw(bus.Event{Src: bus.Memory, Mode: bus.ModeIllegalAddress, Info: addr})
		return nil, false
	}

	for i := uint32(0); i < uint32(size); i++ {
		mask := m.breakpoints[addr+i]
		if execMode && mask&MaskExecute != 0 {
			m.bus.Throw(bus.Event{Src: bus.Memory, Mode: bus.ModeExecute, Info: addr + i})
		}
		if mask&MaskRead != 0 {
			m.bus.Throw(bus.Event{Src: bus.Memory, Mode: bus.ModeRead, Info: addr + i})
		}
	}

	out := make([]byte, size)
	copy(out, seg.data[off:off+uint32(size)])
	return out, true
}

// Set resolves addr for a size-byte access and writes the low size bytes
// of val in little-endian order, raising write-breakpoint events and
// appending to the write log. On an unresolvable address it raises
// (memory, ModeIllegalAddress, addr) and leaves memory unchanged.
func (m *Memory) Set(addr uint32, val uint32, size int) {
	seg, off, ok := m.resolve(addr, uint32(size))
	if !ok {
		m.bus.Throw(bus.Event{Src: bus.Memory, Mode: bus.ModeIllegalAddress, Info: addr})
		return
	}

	for i := 0; i < size; i++ {
		seg.data[off+uint32(i)] = byte(val >> (8 * i))
	}

	for i := uint32(0); i < uint32(size); i++ {
		if m.breakpoints[addr+i]&MaskWrite != 0 {
			m.bus.Throw(bus.Event{Src: bus.Memory, Mode: bus.ModeWrite, Info: addr + i})
		}
	}

	m.appendWriteLog(WriteRecord{Segment: seg.name, Offset: off, Size: size, Value: val})
}

func (m *Memory) appendWriteLog(r WriteRecord) {
	if m.writeLogLimit <= 0 {
		return
	}
	m.writeLog = append(m.writeLog, r)
	if over := len(m.writeLog) - m.writeLogLimit; over > 0 {
		m.writeLog = m.writeLog[over:]
	}
}

// SetWriteLogLimit overrides the default write-log ring size.
func (m *Memory) SetWriteLogLimit(n int) {
	m.writeLogLimit = n
}

// WriteLog returns the chronological (oldest-first) log of writes.
func (m *Memory) WriteLog() []WriteRecord {
	return m.writeLog
}

// SetBreakpoint overwrites the watchpoint mask for addr.
func (m *Memory) SetBreakpoint(addr uint32, mask int) {
	m.breakpoints[addr] = mask
}

// RemoveBreakpoint zeroes the watchpoint mask for addr.
func (m *Memory) RemoveBreakpoint(addr uint32) {
	delete(m.breakpoints, addr)
}

// Breakpoint returns the current watchpoint mask for addr.
func (m *Memory) Breakpoint(addr uint32) int {
	return m.breakpoints[addr]
}

// Serialize returns a single contiguous byte image spanning [0, MaxAddr()):
// segments in ascending start order, zero padding between and after them.
func (m *Memory) Serialize() []byte {
	out := make([]byte, m.maxAddr)
	for _, s := range m.segments {
		copy(out[s.start:s.end], s.data)
	}
	return out
}
