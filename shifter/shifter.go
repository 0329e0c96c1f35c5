// Package shifter implements the ARM barrel shifter as a pure function of
// (value, ShiftSpec, carry-in): LSL, LSR, ASR, ROR and the RRX special
// case (ROR by an immediate 0), producing both the shifted result and the
// carry-out bit. It never raises bus events.
package shifter

// Kind selects the shift/rotate operation.
type Kind int

const (
	LSL Kind = iota
	LSR
	ASR
	ROR
)

// AmountKind distinguishes an immediate shift amount from one taken from
// the low bits of a register.
type AmountKind int

const (
	AmountImmediate AmountKind = iota
	AmountRegister
)

// Amount is either an immediate 0..31 or a register id 0..15 whose low 4
// bits supply the shift amount at execution time.
type Amount struct {
	Kind  AmountKind
	Value int // immediate value, or register id
}

// Spec describes one barrel-shifter operation.
type Spec struct {
	Kind   Kind
	Amount Amount
}

// Shift computes the barrel shifter's (carryOut, result) for value under
// spec, resolving a register-sourced amount via amountRegVal (the current
// value of the register named in spec.Amount.Value; Shift itself masks it
// to its low 4 bits).
// cIn is the current C flag, consulted only for RRX.
func Shift(value uint32, spec Spec, amountRegVal uint32, cIn bool) (carryOut bool, result uint32) {
	n := resolveAmount(spec.Amount, amountRegVal)

	switch spec.Kind {
	case LSL:
		return shiftLSL(value, n, cIn)
	case LSR:
		return shiftLSR(value, n, cIn)
	case ASR:
		return shiftASR(value, n, cIn)
	case ROR:
		if spec.Amount.Kind == AmountImmediate && spec.Amount.Value == 0 {
			return rrx(value, cIn)
		}
		return shiftROR(value, n, cIn)
	default:
		panic("shifter: unknown Kind")
	}
}

func resolveAmount(a Amount, regVal uint32) int {
	if a.Kind == AmountRegister {
		return int(regVal & 0xF)
	}
	return a.Value
}

func shiftLSL(value uint32, n int, cIn bool) (bool, uint32) {
	if n == 0 {
		return cIn, value
	}
	if n >= 32 {
		if n == 32 {
			return value&1 != 0, 0
		}
		return false, 0
	}
	carry := (value>>(32-n))&1 != 0
	return carry, value << uint(n)
}

func shiftLSR(value uint32, n int, cIn bool) (bool, uint32) {
	if n == 0 {
		return cIn, value
	}
	if n >= 32 {
		if n == 32 {
			return value&0x80000000 != 0, 0
		}
		return false, 0
	}
	carry := (value>>(n-1))&1 != 0
	return carry, value >> uint(n)
}

func shiftASR(value uint32, n int, cIn bool) (bool, uint32) {
	signed := int32(value)
	if n == 0 {
		return cIn, value
	}
	if n >= 32 {
		carry := signed < 0
		if carry {
			return true, 0xFFFFFFFF
		}
		return false, 0
	}
	carry := (value>>(n-1))&1 != 0
	return carry, uint32(signed >> uint(n))
}

func shiftROR(value uint32, n int, cIn bool) (bool, uint32) {
	if n == 0 {
		return cIn, value
	}
	n %= 32
	if n == 0 {
		// A full rotation: carry-out is bit 31, value unchanged.
		return value&0x80000000 != 0, value
	}
	carry := (value>>(n-1))&1 != 0
	result := (value >> uint(n)) | (value << uint(32-n))
	return carry, result
}

// rrx is ROR with an immediate amount of 0: a 33-bit rotate-right-through-
// carry by one position.
func rrx(value uint32, cIn bool) (bool, uint32) {
	carry := value&1 != 0
	result := value >> 1
	if cIn {
		result |= 0x80000000
	}
	return carry, result
}
