// Package executor carries out a Decoded Instruction against a register
// file, flag set and memory, following the dispatch rules of spec §4.7:
// condition check, variant dispatch (Branch/DataOp/MemOp), and the
// step-depth accounting the Simulator Façade uses to implement step-into,
// step-forward and step-out.
package executor

import (
	"github.com/wbmoore/armsim/decoder"
	"github.com/wbmoore/armsim/flags"
	"github.com/wbmoore/armsim/memory"
	"github.com/wbmoore/armsim/register"
	"github.com/wbmoore/armsim/shifter"
)

// Machine bundles the architectural state an instruction operates on.
// StepDepth is exported because the Façade reads and resets it between
// instructions; the Executor only ever increments or decrements it.
type Machine struct {
	Registers *register.File
	Flags     *flags.Set
	Memory    *memory.Memory
	StepDepth int
}

// New returns a Machine over the given subsystems. The subsystems must
// already share a common bus.Bus; Execute never touches the bus directly.
func New(regs *register.File, f *flags.Set, mem *memory.Memory) *Machine {
	return &Machine{Registers: regs, Flags: f, Memory: mem}
}

// Execute evaluates instr's condition against current flags and, if true,
// dispatches to the variant-specific handler. A false condition is a no-op;
// the Façade still advances PC.
func (m *Machine) Execute(instr decoder.Instruction) {
	if !m.evaluate(instr.Condition()) {
		return
	}
	switch v := instr.(type) {
	case decoder.Branch:
		m.execBranch(v)
	case decoder.DataOp:
		m.execDataOp(v)
	case decoder.MemOp:
		m.execMemOp(v)
	}
}

func (m *Machine) evaluate(cond decoder.Condition) bool {
	z := m.Flags.Get(flags.Z, false)
	n := m.Flags.Get(flags.N, false)
	c := m.Flags.Get(flags.C, false)
	v := m.Flags.Get(flags.V, false)

	switch cond {
	case decoder.EQ:
		return z
	case decoder.NE:
		return !z
	case decoder.CS:
		return c
	case decoder.CC:
		return !c
	case decoder.MI:
		return n
	case decoder.PL:
		return !n
	case decoder.VS:
		return v
	case decoder.VC:
		return !v
	case decoder.HI:
		return c && !z
	case decoder.LS:
		return !c || z
	case decoder.GE:
		return n == v
	case decoder.LT:
		return n != v
	case decoder.GT:
		return !z && (n == v)
	case decoder.LE:
		return z || (n != v)
	case decoder.AL:
		return true
	case decoder.NV:
		return false
	default:
		return false
	}
}

func (m *Machine) execBranch(b decoder.Branch) {
	if b.Link {
		pc := m.Registers.Get(register.PC, false)
		m.Registers.Set(register.LR, pc+4, true)
		m.StepDepth++
	}

	switch b.Mode {
	case decoder.BranchImmediate:
		pc := m.Registers.Get(register.PC, false)
		m.Registers.Set(register.PC, pc+uint32(b.Offset)-4, true)
	case decoder.BranchRegister:
		rn := m.Registers.Get(b.Rn, false)
		m.Registers.Set(register.PC, rn-4, true)
		m.StepDepth--
	}
}

// shiftedRegister resolves a register operand through the barrel shifter,
// reporting the carry-out alongside the shifted value.
func (m *Machine) shiftedRegister(rm int, spec shifter.Spec) (result uint32, carryOut bool) {
	rmVal := m.Registers.Get(rm, false)
	var amountRegVal uint32
	if spec.Amount.Kind == shifter.AmountRegister {
		amountRegVal = m.Registers.Get(spec.Amount.Value, false)
	}
	cIn := m.Flags.Get(flags.C, false)
	carryOut, result = shifter.Shift(rmVal, spec, amountRegVal, cIn)
	return result, carryOut
}

func (m *Machine) resolveMemOffset(off decoder.Offset) uint32 {
	if off.Kind == decoder.OffsetImmediate {
		return off.ImmValue
	}
	result, _ := m.shiftedRegister(off.Rm, off.Shift)
	return result
}

func (m *Machine) execMemOp(op decoder.MemOp) {
	base := m.Registers.Get(op.Base, false)
	offset := m.resolveMemOffset(op.Offset)

	var addr uint32
	if op.Sign >= 0 {
		addr = base + offset
	} else {
		addr = base - offset
	}

	effective := base
	if op.Pre {
		effective = addr
	}

	size := 4
	switch {
	case op.Half:
		size = 2
	case op.Byte:
		size = 1
	}

	switch op.Mode {
	case decoder.LDR:
		raw, ok := m.Memory.Get(effective, size, false)
		if !ok {
			return
		}
		val := unpackLittleEndian(raw)
		if op.Signed {
			val = uint32(signExtend(int64(val), size*8))
		}
		m.Registers.Set(op.Rd, val, true)
	case decoder.STR:
		val := m.Registers.Get(op.Rd, false)
		// The PC+4 store-value special case is documented only for the
		// half/signed transfer class; a plain word/byte STR R15 stores PC
		// unmodified.
		if op.Rd == register.PC && (op.Half || op.Signed) {
			val = m.Registers.Get(register.PC, false) + 4
		}
		m.Memory.Set(effective, val, size)
	}

	if op.Writeback {
		m.Registers.Set(op.Base, addr, true)
	}
}

func unpackLittleEndian(b []byte) uint32 {
	var v uint32
	for i, bb := range b {
		v |= uint32(bb) << (8 * i)
	}
	return v
}

func signExtend(val int64, bits int) int64 {
	shift := 64 - bits
	return (val << uint(shift)) >> uint(shift)
}

func b2u32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// subWithCarry computes a + ^b + carryIn as a 33-bit operation, the
// standard ARM ALU construction shared by SUB, RSB, CMP, SBC and RSC: a
// plain subtraction supplies carryIn=1, a subtract-with-carry variant
// supplies the current C flag.
func subWithCarry(a, b, carryIn uint32) (res uint32, carryOut, overflow bool) {
	bNot := ^b
	sum := uint64(a) + uint64(bNot) + uint64(carryIn)
	res = uint32(sum)
	carryOut = sum>>32 != 0
	overflow = (a^bNot)&0x80000000 == 0 && (a^res)&0x80000000 != 0
	return
}

func (m *Machine) execDataOp(d decoder.DataOp) {
	op1 := m.Registers.Get(d.Rn, false)
	cIn := m.Flags.Get(flags.C, false)

	var op2 uint32
	var shifterCarry bool
	shifterCarryValid := false
	switch d.Op2.Kind {
	case decoder.Op2Immediate:
		// The encoded rotate field is "rotate the 8-bit immediate right by
		// this many bits," not a register-shift amount: rotate==0 means no
		// rotation at all, not RRX, and leaves C untouched. Only run it
		// through the shifter when the rotate amount is actually non-zero.
		if d.Op2.Shift.Amount.Value != 0 {
			shifterCarry, op2 = shifter.Shift(d.Op2.ImmValue, d.Op2.Shift, 0, cIn)
			shifterCarryValid = true
		} else {
			op2 = d.Op2.ImmValue
		}
	case decoder.Op2Register:
		op2, shifterCarry = m.shiftedRegister(d.Op2.Rm, d.Op2.Shift)
		shifterCarryValid = true
	}

	var res uint32
	var addCarry, addOverflow bool
	var subCarry, subOverflow bool
	isAdd := false
	isSub := false

	switch d.Opcode {
	case decoder.AND, decoder.TST:
		res = op1 & op2
	case decoder.EOR, decoder.TEQ:
		res = op1 ^ op2
	case decoder.SUB, decoder.CMP:
		isSub = true
		res, subCarry, subOverflow = subWithCarry(op1, op2, 1)
	case decoder.RSB:
		isSub = true
		res, subCarry, subOverflow = subWithCarry(op2, op1, 1)
	case decoder.ADD, decoder.CMN:
		isAdd = true
		sum := uint64(op1) + uint64(op2)
		res = uint32(sum)
		addCarry = sum>>32 != 0
		addOverflow = (op1^op2)&0x80000000 == 0 && (op1^res)&0x80000000 != 0
	case decoder.ADC:
		isAdd = true
		sum := uint64(op1) + uint64(op2) + uint64(b2u32(cIn))
		res = uint32(sum)
		addCarry = sum>>32 != 0
		addOverflow = (op1^op2)&0x80000000 == 0 && (op1^res)&0x80000000 != 0
	case decoder.SBC:
		isSub = true
		res, subCarry, subOverflow = subWithCarry(op1, op2, b2u32(cIn))
	case decoder.RSC:
		isSub = true
		res, subCarry, subOverflow = subWithCarry(op2, op1, b2u32(cIn))
	case decoder.ORR:
		res = op1 | op2
	case decoder.MOV:
		res = op2
	case decoder.BIC:
		res = op1 &^ op2
	case decoder.MVN:
		res = ^op2
	}

	if d.SetFlags {
		m.Flags.Set(flags.Z, res == 0, true)
		m.Flags.Set(flags.N, res&0x80000000 != 0, true)
		switch {
		case isAdd:
			m.Flags.Set(flags.C, addCarry, true)
			m.Flags.Set(flags.V, addOverflow, true)
		case isSub:
			m.Flags.Set(flags.C, subCarry, true)
			m.Flags.Set(flags.V, subOverflow, true)
		default:
			// Logical ops (AND/EOR/TST/TEQ/ORR/MOV/BIC/MVN): C comes from
			// the shifter, V is left unaffected (spec §9). An immediate
			// operand2 with no rotation never touched the shifter, so C
			// stays as it was.
			if shifterCarryValid {
				m.Flags.Set(flags.C, shifterCarry, true)
			}
		}
	}

	if !d.Opcode.IsComparison() {
		m.Registers.Set(d.Rd, res, true)
	}
}
