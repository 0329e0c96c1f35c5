package sim

import (
	"testing"

	"github.com/wbmoore/armsim/bus"
	"github.com/wbmoore/armsim/decoder"
	"github.com/wbmoore/armsim/flags"
	"github.com/wbmoore/armsim/memory"
	"github.com/wbmoore/armsim/register"
)

func ramImage(size uint32) memory.Image {
	return memory.Image{
		Segments: map[string][]byte{"ram": make([]byte, size)},
		Start:    map[string]uint32{"ram": 0},
		End:      map[string]uint32{"ram": size},
	}
}

func encodeDataOpImm(cond decoder.Condition, opcode decoder.Opcode, setFlags bool, rn, rd int, imm uint32) uint32 {
	w := uint32(cond) << 28
	w |= 1 << 25 // immediate operand2
	w |= uint32(opcode) << 21
	if setFlags {
		w |= 1 << 20
	}
	w |= uint32(rn) << 16
	w |= uint32(rd) << 12
	w |= imm & 0xFF
	return w
}

func encodeSTR(cond decoder.Condition, base, rd int, immOffset uint32) uint32 {
	w := uint32(cond) << 28
	w |= 1 << 26 // word/byte class
	w |= 1 << 24 // pre
	w |= 1 << 23 // up
	w |= uint32(base) << 16
	w |= uint32(rd) << 12
	w |= immOffset & 0xFFF
	return w
}

func encodeLDR(cond decoder.Condition, base, rd int, immOffset uint32) uint32 {
	return encodeSTR(cond, base, rd, immOffset) | 1<<20
}

func encodeBranch(cond decoder.Condition, link bool, wordOffset int32) uint32 {
	w := uint32(cond) << 28
	w |= 0b101 << 25
	if link {
		w |= 1 << 24
	}
	w |= uint32(wordOffset) & 0xFFFFFF
	return w
}

func littleEndian(word uint32) []byte {
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func loadProgram(t *testing.T, img *memory.Image, addr uint32, words ...uint32) {
	t.Helper()
	ram := img.Segments["ram"]
	for _, w := range words {
		copy(ram[addr:addr+4], littleEndian(w))
		addr += 4
	}
}

func TestSeededSTRThenLDRRoundTrip(t *testing.T) {
	// Exercises scenario 1 (spec §8): load R0, STR it, LDR it back. A
	// hand-built MOV/ORR sequence for an arbitrary 32-bit constant needs
	// awkward rotated-immediate encoding, so R0 is seeded directly and the
	// STR/LDR round trip — the scenario's actual subject — is what runs.
	prog := memory.Image{
		Segments: map[string][]byte{"ram": make([]byte, 0x200)},
		Start:    map[string]uint32{"ram": 0},
		End:      map[string]uint32{"ram": 0x200},
	}
	loadProgram(t, &prog, 0,
		encodeSTR(decoder.AL, 1, 0, 0),
		encodeLDR(decoder.AL, 1, 2, 0),
	)
	sm, err := New(prog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sm.Reset()
	sm.Registers.Set(0, 0x12345678, false)
	sm.Registers.Set(1, 0x100, false)

	sm.NextInstr() // STR
	sm.NextInstr() // LDR

	if got := sm.Registers.Get(2, false); got != 0x12345678 {
		t.Errorf("R2 = %#x, want 0x12345678", got)
	}
}

func TestMOVSImmediateThroughSimSetsRegisterAndZ(t *testing.T) {
	// MOVS R0, #1 via the real decoder, catching the rotate==0 immediate
	// path that a hand-seeded register would skip entirely.
	img := ramImage(0x20)
	loadProgram(t, &img, 0, encodeDataOpImm(decoder.AL, decoder.MOV, true, 0, 0, 1))

	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.Flags.Set(flags.C, true, false)
	s.NextInstr()

	if got := s.Registers.Get(0, false); got != 1 {
		t.Errorf("R0 = %d, want 1", got)
	}
	if s.Flags.Get(flags.Z, false) {
		t.Errorf("MOVS R0,#1 should not set Z")
	}
	if !s.Flags.Get(flags.C, false) {
		t.Errorf("an unrotated immediate operand2 must leave C untouched")
	}
}

func TestBranchForwardFetchesFromTarget(t *testing.T) {
	img := ramImage(0x20)
	loadProgram(t, &img, 0, encodeBranch(decoder.AL, false, 2)) // B +8 bytes
	loadProgram(t, &img, 8, 0xDEADBEEF)

	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.NextInstr()

	word, ok := s.FetchedWord()
	if !ok || word != 0xDEADBEEF {
		t.Errorf("fetchedInstr after B +8 = (%#x,%v), want (0xdeadbeef,true)", word, ok)
	}
}

func TestSignedByteLoadSignExtends(t *testing.T) {
	img := ramImage(0x20)
	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.Registers.Set(1, 0x10, false)
	s.Memory.Set(0x10, 0xFF, 1)

	// LDRSB R2, [R1]
	word := uint32(decoder.AL) << 28
	word |= 1 << 24 // pre
	word |= 1 << 23 // up
	word |= 1 << 22 // immediate offset (of 0)
	word |= 1 << 20 // L
	word |= 1 << 16 // base = R1
	word |= 2 << 12 // rd = R2
	word |= 1 << 7
	word |= 1 << 6 // signed
	word |= 1 << 4

	loadProgram(t, &img, 0, word)
	s2, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s2.Reset()
	s2.Registers.Set(1, 0x10, false)
	s2.Memory.Set(0x10, 0xFF, 1)
	s2.NextInstr()

	if got := s2.Registers.Get(2, false); got != 0xFFFFFFFF {
		t.Errorf("R2 = %#x, want 0xffffffff", got)
	}
}

func TestCMPEqualThenConditionalBranches(t *testing.T) {
	img := ramImage(0x40)
	cmp := encodeDataOpImm(decoder.AL, decoder.CMP, true, 0, 0, 0)
	loadProgram(t, &img, 0, cmp)

	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.NextInstr()

	if !s.Flags.Get(flags.Z, false) {
		t.Fatalf("CMP R0,#0 with R0 == 0 should set Z")
	}

	s.Registers.Set(register.PC, 0x20, false)
	beq := encodeBranch(decoder.EQ, false, 2)
	bne := encodeBranch(decoder.NE, false, 2)

	img2 := memory.Image{
		Segments: map[string][]byte{"ram": make([]byte, 0x40)},
		Start:    map[string]uint32{"ram": 0},
		End:      map[string]uint32{"ram": 0x40},
	}
	loadProgram(t, &img2, 0x20, beq)
	s3, _ := New(img2)
	s3.Reset()
	s3.Flags.Set(flags.Z, true, false)
	s3.Registers.Set(register.PC, 0x20, false)
	s3.fetch()
	pcBefore := s3.Registers.Get(register.PC, false)
	s3.NextInstr()
	if got := s3.Registers.Get(register.PC, false); got == pcBefore+4 {
		t.Errorf("EQ branch with Z set should have been taken")
	}

	img3 := memory.Image{
		Segments: map[string][]byte{"ram": make([]byte, 0x40)},
		Start:    map[string]uint32{"ram": 0},
		End:      map[string]uint32{"ram": 0x40},
	}
	loadProgram(t, &img3, 0x20, bne)
	s4, _ := New(img3)
	s4.Reset()
	s4.Flags.Set(flags.Z, true, false)
	s4.Registers.Set(register.PC, 0x20, false)
	s4.fetch()
	s4.NextInstr()
	if got := s4.Registers.Get(register.PC, false); got != 0x20+4 {
		t.Errorf("NE branch with Z set should have been skipped: PC = %#x, want %#x", got, 0x20+4)
	}
}

func TestWriteWatchpointHaltsFaçadeAfterCycle(t *testing.T) {
	img := ramImage(0x20)
	mov := encodeDataOpImm(decoder.AL, decoder.MOV, false, 0, 3, 0x7)
	loadProgram(t, &img, 0, mov)

	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.Registers.SetBreakpoint(3, register.MaskWrite)

	s.NextInstr()

	if !s.Bus.Triggered() {
		t.Fatalf("expected a write-watchpoint event")
	}
	ev := s.Bus.Event()
	if ev.Src != bus.Register || ev.Mode != bus.ModeWrite || ev.Info != 3 {
		t.Errorf("got %v, want (register, write, 3)", ev)
	}
	if s.State != Stopped {
		t.Errorf("state = %v, want Stopped", s.State)
	}
	if got := s.Registers.Get(3, false); got != 0x7 {
		t.Errorf("R3 = %#x, want 0x7", got)
	}
}

func TestSTROutsideSegmentsLeavesMemoryUnchangedAndCycleAdvancesOnce(t *testing.T) {
	img := ramImage(0x20)
	str := encodeSTR(decoder.AL, 1, 0, 0) // STR R0, [R1] with R1 pointing outside ram
	loadProgram(t, &img, 0, str)

	s, err := New(img)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Reset()
	s.Registers.Set(1, 0x5000, false)
	before := s.Memory.Serialize()

	s.NextInstr()

	if !s.Bus.Triggered() || s.Bus.Event().Mode != bus.ModeIllegalAddress {
		t.Errorf("expected an illegal-address event, got %v", s.Bus.Event())
	}
	after := s.Memory.Serialize()
	if string(before) != string(after) {
		t.Errorf("memory changed after an illegal store")
	}
	if s.CountCycle != 1 {
		t.Errorf("CountCycle = %d, want 1", s.CountCycle)
	}
}
