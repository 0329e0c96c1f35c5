// Package config loads a simulator session description from a TOML
// manifest: the initial memory image (named segments and their address
// ranges), seed register values, and breakpoint/watchpoint presets to
// install before the first NextInstr call.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/wbmoore/armsim/memory"
)

// SegmentSpec is one [[segment]] table in the manifest.
type SegmentSpec struct {
	Name  string `toml:"name"`
	Start uint32 `toml:"start"`
	End   uint32 `toml:"end"`
	// Path is accepted in the manifest but Load does not read it; every
	// segment starts zero-filled.
	Path string `toml:"path"`
}

// BreakpointSpec is one [[breakpoint]] table, aimed at either a register
// (by id or alias name) or a memory address.
type BreakpointSpec struct {
	Register string `toml:"register"` // e.g. "r3", "sp", "pc"; empty if Address is used
	Address  *uint32 `toml:"address"`
	Mask     int    `toml:"mask"`
}

// manifest is the raw TOML document shape.
type manifest struct {
	Registers   map[string]uint32 `toml:"registers"`
	Segment     []SegmentSpec     `toml:"segment"`
	Breakpoint  []BreakpointSpec  `toml:"breakpoint"`
}

// Session is the decoded, ready-to-apply manifest contents.
type Session struct {
	Image       memory.Image
	Registers   map[int]uint32
	Breakpoints []BreakpointSpec
}

// Load parses the TOML file at path into a Session. It does not allocate
// any simulator state itself; callers pass Image to memory.New and apply
// Registers/Breakpoints afterward.
func Load(path string) (*Session, error) {
	var m manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	img := memory.Image{
		Segments: make(map[string][]byte, len(m.Segment)),
		Start:    make(map[string]uint32, len(m.Segment)),
		End:      make(map[string]uint32, len(m.Segment)),
	}
	for _, seg := range m.Segment {
		if seg.End < seg.Start {
			return nil, fmt.Errorf("config: segment %q has end %#x before start %#x", seg.Name, seg.End, seg.Start)
		}
		img.Segments[seg.Name] = make([]byte, seg.End-seg.Start)
		img.Start[seg.Name] = seg.Start
		img.End[seg.Name] = seg.End
	}

	regs := make(map[int]uint32, len(m.Registers))
	for name, val := range m.Registers {
		id, err := registerID(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		regs[id] = val
	}

	return &Session{Image: img, Registers: regs, Breakpoints: m.Breakpoint}, nil
}

func registerID(name string) (int, error) {
	switch name {
	case "sp":
		return 13, nil
	case "lr":
		return 14, nil
	case "pc":
		return 15, nil
	}
	var id int
	if n, err := fmt.Sscanf(name, "r%d", &id); err != nil || n != 1 {
		return 0, fmt.Errorf("unrecognised register name %q (want r0..r15, sp, lr or pc)", name)
	}
	if id < 0 || id > 15 {
		return 0, fmt.Errorf("register %q out of range 0..15", name)
	}
	return id, nil
}
