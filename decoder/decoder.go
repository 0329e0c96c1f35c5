// Package decoder maps a 32-bit little-endian instruction word to a tagged
// Instruction descriptor, mirroring the ARM7TDMI user-mode encoding for the
// branch, data-processing and word/byte/half/signed memory classes this
// interpreter supports (spec §4.6). It is the sole translator from bytes to
// decoded variants; no other package parses bit-fields.
package decoder

import (
	"errors"
	"fmt"

	"github.com/wbmoore/armsim/shifter"
)

// ErrIllegalEncoding is returned when no supported instruction class
// matches a word.
var ErrIllegalEncoding = errors.New("decoder: illegal encoding")

// Condition is the 4-bit condition-code field carried by every decoded
// instruction.
type Condition uint8

const (
	EQ Condition = iota
	NE
	CS
	CC
	MI
	PL
	VS
	VC
	HI
	LS
	GE
	LT
	GT
	LE
	AL
	NV
)

var condNames = [...]string{"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC", "HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV"}

func (c Condition) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "??"
}

// Opcode enumerates the sixteen ARM data-processing opcodes, numbered to
// match their 4-bit encoding in bits 24..21 of a DataOp word.
type Opcode uint8

const (
	AND Opcode = iota
	EOR
	SUB
	RSB
	ADD
	ADC
	SBC
	RSC
	TST
	TEQ
	CMP
	CMN
	ORR
	MOV
	BIC
	MVN
)

var opcodeNames = [...]string{"AND", "EOR", "SUB", "RSB", "ADD", "ADC", "SBC", "RSC", "TST", "TEQ", "CMP", "CMN", "ORR", "MOV", "BIC", "MVN"}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "???"
}

// IsComparison reports whether opcode is one of the four that never write
// back to Rd (TST, TEQ, CMP, CMN).
func (o Opcode) IsComparison() bool {
	switch o {
	case TST, TEQ, CMP, CMN:
		return true
	default:
		return false
	}
}

// Instruction is implemented by Branch, DataOp and MemOp.
type Instruction interface {
	Condition() Condition
	fmt.Stringer
}

// BranchMode selects between a PC-relative immediate branch and a
// register-indirect (BX-style) branch.
type BranchMode int

const (
	BranchImmediate BranchMode = iota
	BranchRegister
)

// Branch is a decoded B/BL/BX-style instruction.
type Branch struct {
	Cond   Condition
	Link   bool
	Mode   BranchMode
	Offset int32 // valid when Mode == BranchImmediate
	Rn     int   // valid when Mode == BranchRegister
}

func (b Branch) Condition() Condition { return b.Cond }

func (b Branch) String() string {
	link := ""
	if b.Link {
		link = "L"
	}
	if b.Mode == BranchRegister {
		return fmt.Sprintf("B%sX%s R%d", link, b.Cond, b.Rn)
	}
	return fmt.Sprintf("B%s%s %+d", link, b.Cond, b.Offset)
}

// Op2Kind selects a DataOp's second operand form.
type Op2Kind int

const (
	Op2Immediate Op2Kind = iota
	Op2Register
)

// Op2 is a DataOp's second operand: either an 8-bit immediate rotated by
// the barrel shifter, or a register optionally run through the shifter.
type Op2 struct {
	Kind     Op2Kind
	ImmValue uint32 // valid when Kind == Op2Immediate
	Rm       int    // valid when Kind == Op2Register
	Shift    shifter.Spec
}

// DataOp is a decoded data-processing instruction (AND..MVN).
type DataOp struct {
	Cond     Condition
	Opcode   Opcode
	Rn, Rd   int
	SetFlags bool
	Op2      Op2
}

func (d DataOp) Condition() Condition { return d.Cond }

func (d DataOp) String() string {
	s := ""
	if d.SetFlags {
		s = "S"
	}
	return fmt.Sprintf("%s%s%s R%d, R%d, <op2>", d.Opcode, s, d.Cond, d.Rd, d.Rn)
}

// MemMode selects a MemOp's direction.
type MemMode int

const (
	LDR MemMode = iota
	STR
)

// OffsetKind selects a MemOp's addressing offset form.
type OffsetKind int

const (
	OffsetImmediate OffsetKind = iota
	OffsetRegister
)

// Offset is a MemOp's addressing offset: either an immediate (already
// combined from its split nibbles for half/signed encodings) or a
// register optionally run through the shifter (word/byte class only —
// half/signed register offsets never carry a shift, per spec §4.6).
type Offset struct {
	Kind     OffsetKind
	ImmValue uint32
	Rm       int
	Shift    shifter.Spec
}

// MemOp is a decoded load/store instruction covering both the word/byte
// class and the half/signed class (spec §3's single MemOp variant).
type MemOp struct {
	Cond      Condition
	Mode      MemMode
	Base, Rd  int
	Sign      int // +1 or -1
	Pre       bool
	Writeback bool
	Byte      bool
	Signed    bool
	Half      bool
	Offset    Offset
}

func (m MemOp) Condition() Condition { return m.Cond }

func (m MemOp) String() string {
	mode := "LDR"
	if m.Mode == STR {
		mode = "STR"
	}
	size := "W"
	switch {
	case m.Half && m.Signed:
		size = "SH"
	case m.Half:
		size = "H"
	case m.Byte && m.Signed:
		size = "SB"
	case m.Byte:
		size = "B"
	}
	return fmt.Sprintf("%s%s%s R%d, [R%d, ...]", mode, size, m.Cond, m.Rd, m.Base)
}

func bits(word uint32, hi, lo int) uint32 {
	return (word >> uint(lo)) & ((1 << uint(hi-lo+1)) - 1)
}

func bit(word uint32, n int) bool {
	return (word>>uint(n))&1 != 0
}

func signExtend(val uint32, width int) int32 {
	shift := 32 - width
	return int32(val<<uint(shift)) >> uint(shift)
}

func shiftTypeFromBits(v uint32) shifter.Kind {
	switch v {
	case 0:
		return shifter.LSL
	case 1:
		return shifter.LSR
	case 2:
		return shifter.ASR
	default:
		return shifter.ROR
	}
}

// decodeRegisterShift decodes the bits[11:0] "shifter operand" field used
// by both data-processing register operands and word/byte memory operand
// offsets.
func decodeRegisterShift(word uint32) (rm int, spec shifter.Spec) {
	rm = int(bits(word, 3, 0))
	kind := shiftTypeFromBits(bits(word, 6, 5))
	if bit(word, 4) {
		rs := int(bits(word, 11, 8))
		spec = shifter.Spec{Kind: kind, Amount: shifter.Amount{Kind: shifter.AmountRegister, Value: rs}}
	} else {
		amt := int(bits(word, 11, 7))
		spec = shifter.Spec{Kind: kind, Amount: shifter.Amount{Kind: shifter.AmountImmediate, Value: amt}}
	}
	return rm, spec
}

// Decode translates a 32-bit little-endian instruction word into a
// Decoded Instruction. It returns ErrIllegalEncoding when no supported
// class matches.
func Decode(word uint32) (Instruction, error) {
	cond := Condition(bits(word, 31, 28))

	// BX-style register branch: fixed bits 27..4 == 0x12FFF1.
	if word&0x0FFFFFF0 == 0x012FFF10 {
		return Branch{Cond: cond, Mode: BranchRegister, Rn: int(bits(word, 3, 0))}, nil
	}

	switch bits(word, 27, 25) {
	case 0b101:
		offset := signExtend(bits(word, 23, 0), 24) << 2
		return Branch{
			Cond:   cond,
			Link:   bit(word, 24),
			Mode:   BranchImmediate,
			Offset: offset,
		}, nil
	}

	switch bits(word, 27, 26) {
	case 0b00:
		if bits(word, 27, 25) == 0b000 && bit(word, 7) && bit(word, 4) {
			return decodeHalfSigned(word, cond)
		}
		return decodeDataOp(word, cond)
	case 0b01:
		return decodeWordByte(word, cond)
	}

	return nil, fmt.Errorf("%w: %#08x", ErrIllegalEncoding, word)
}

func decodeDataOp(word uint32, cond Condition) (Instruction, error) {
	d := DataOp{
		Cond:     cond,
		Opcode:   Opcode(bits(word, 24, 21)),
		SetFlags: bit(word, 20),
		Rn:       int(bits(word, 19, 16)),
		Rd:       int(bits(word, 15, 12)),
	}

	if bit(word, 25) {
		rotate := bits(word, 11, 8) * 2
		d.Op2 = Op2{
			Kind:     Op2Immediate,
			ImmValue: bits(word, 7, 0),
			Shift:    shifter.Spec{Kind: shifter.ROR, Amount: shifter.Amount{Kind: shifter.AmountImmediate, Value: int(rotate)}},
		}
	} else {
		rm, spec := decodeRegisterShift(word)
		d.Op2 = Op2{Kind: Op2Register, Rm: rm, Shift: spec}
	}

	return d, nil
}

func decodeWordByte(word uint32, cond Condition) (Instruction, error) {
	pre := bit(word, 24)
	m := MemOp{
		Cond:      cond,
		Mode:      ldrOrStr(bit(word, 20)),
		Base:      int(bits(word, 19, 16)),
		Rd:        int(bits(word, 15, 12)),
		Sign:      signOf(bit(word, 23)),
		Pre:       pre,
		Writeback: bit(word, 21) || !pre,
		Byte:      bit(word, 22),
	}

	if bit(word, 25) {
		rm, spec := decodeRegisterShift(word)
		m.Offset = Offset{Kind: OffsetRegister, Rm: rm, Shift: spec}
	} else {
		m.Offset = Offset{Kind: OffsetImmediate, ImmValue: bits(word, 11, 0)}
	}

	return m, nil
}

func decodeHalfSigned(word uint32, cond Condition) (Instruction, error) {
	pre := bit(word, 24)
	imm := bit(word, 22)
	m := MemOp{
		Cond:      cond,
		Mode:      ldrOrStr(bit(word, 20)),
		Base:      int(bits(word, 19, 16)),
		Rd:        int(bits(word, 15, 12)),
		Sign:      signOf(bit(word, 23)),
		Pre:       pre,
		Writeback: bit(word, 21) || !pre,
		Byte:      !bit(word, 5),
		Signed:    bit(word, 6),
		Half:      bit(word, 5),
	}

	if imm {
		hi := bits(word, 11, 8)
		lo := bits(word, 3, 0)
		m.Offset = Offset{Kind: OffsetImmediate, ImmValue: (hi << 4) | lo}
	} else {
		m.Offset = Offset{Kind: OffsetRegister, Rm: int(bits(word, 3, 0))}
	}

	return m, nil
}

func ldrOrStr(l bool) MemMode {
	if l {
		return LDR
	}
	return STR
}

func signOf(up bool) int {
	if up {
		return 1
	}
	return -1
}
