package prover

import (
	"github.com/holiman/uint256"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/riscv"
)

// Debug circuits evaluate each cycle's constraints over the Goldilocks
// field, p = 2^64 - 2^32 + 1. 32-bit words embed without reduction, so a
// wrapping operation holds in the field up to a multiple of 2^32.
var (
	goldilocks  = uint256.NewInt(0xFFFFFFFF00000001)
	wordModulus = uint256.NewInt(1 << 32)
)

// Constraint names reported by CheckConstraints.
const (
	ConstraintRegister     = "register_consistency"
	ConstraintPCTransition = "pc_transition"
	ConstraintAlignment    = "mem_alignment"
	ConstraintAdd          = "add"
	ConstraintSub          = "sub"
	ConstraintMul          = "mul"
	ConstraintUpperImm     = "upper_immediate"
	ConstraintLink         = "link"
)

func fe(v uint32) *uint256.Int { return uint256.NewInt(uint64(v)) }

// wrapsTo reports whether sum == out + k*2^32 in the field for some carry k
// in [0, maxCarry].
func wrapsTo(sum *uint256.Int, out uint32, maxCarry uint64) bool {
	rhs := fe(out)
	for k := uint64(0); k <= maxCarry; k++ {
		if sum.Eq(rhs) {
			return true
		}
		rhs.AddMod(rhs, wordModulus, goldilocks)
	}
	return false
}

// checkAdd asserts a + b == out (mod 2^32).
func checkAdd(a, b, out uint32) bool {
	sum := new(uint256.Int).AddMod(fe(a), fe(b), goldilocks)
	return wrapsTo(sum, out, 1)
}

// checkSub asserts a - b == out (mod 2^32) as out + b == a + k*2^32.
func checkSub(a, b, out uint32) bool {
	return checkAdd(out, b, a)
}

// checkMul asserts the low word of a*b is out. The product is below 2^64
// but may exceed p, so the carry is taken from the exact product.
func checkMul(a, b, out uint32) bool {
	prod := new(uint256.Int).Mul(fe(a), fe(b))
	hi := new(uint256.Int).Rsh(prod, 32)
	lhs := new(uint256.Int).Mod(prod, goldilocks)
	rhs := new(uint256.Int).MulMod(hi, wordModulus, goldilocks)
	rhs.AddMod(rhs, fe(out), goldilocks)
	return lhs.Eq(rhs)
}

// CheckConstraints evaluates the debug-circuit constraints over every
// cycle of an operand trace. The first failure is returned as
// UnsatisfiedConstraint naming the cycle, pc and constraint.
func CheckConstraints(trace *riscv.Trace) error {
	if !trace.HasOperands() {
		return errs.New(errs.Internal, "debug circuits need an operand trace")
	}
	var regs [riscv.RegCount]uint32
	for i := range trace.Steps {
		s := &trace.Steps[i]
		if name := checkStep(s, &regs); name != "" {
			return unsatisfied(name, uint64(i), s)
		}
		if s.Rd != 0 {
			regs[s.Rd] = s.RdVal
		}
	}
	return nil
}

func unsatisfied(name string, cycle uint64, s *riscv.Step) error {
	return errs.New(errs.UnsatisfiedConstraint, "%s at cycle %d pc 0x%08x (instr 0x%08x)", name, cycle, s.PC, s.Instr)
}

// checkStep returns the name of the first constraint s violates, or "".
func checkStep(s *riscv.Step, regs *[riscv.RegCount]uint32) string {
	instr := s.Instr
	op := riscv.Opcode(instr)
	rs1, rs2 := regs[riscv.Rs1(instr)], regs[riscv.Rs2(instr)]

	switch op {
	case riscv.OpJALR, riscv.OpLoad, riscv.OpImm, riscv.OpSystem:
		if s.Rs1Val != rs1 {
			return ConstraintRegister
		}
	case riscv.OpBranch, riscv.OpStore, riscv.OpReg:
		if s.Rs1Val != rs1 || s.Rs2Val != rs2 {
			return ConstraintRegister
		}
	}

	next := s.PC + 4
	switch op {
	case riscv.OpJAL:
		next = s.PC + uint32(riscv.ImmJ(instr))
	case riscv.OpJALR:
		next = (s.Rs1Val + uint32(riscv.ImmI(instr))) &^ 1
	case riscv.OpBranch:
		if branchHolds(riscv.Funct3(instr), s.Rs1Val, s.Rs2Val) {
			next = s.PC + uint32(riscv.ImmB(instr))
		}
	}
	if s.NextPC != next {
		return ConstraintPCTransition
	}

	switch op {
	case riscv.OpLoad, riscv.OpStore:
		if !aligned(riscv.Funct3(instr), s.MemAddr) {
			return ConstraintAlignment
		}
	}

	if s.Rd == 0 {
		return ""
	}
	switch op {
	case riscv.OpLUI:
		if s.RdVal != riscv.ImmU(instr) {
			return ConstraintUpperImm
		}
	case riscv.OpAUIPC:
		if !checkAdd(s.PC, riscv.ImmU(instr), s.RdVal) {
			return ConstraintUpperImm
		}
	case riscv.OpJAL, riscv.OpJALR:
		if !checkAdd(s.PC, 4, s.RdVal) {
			return ConstraintLink
		}
	case riscv.OpImm:
		if riscv.Funct3(instr) == 0 && !checkAdd(s.Rs1Val, uint32(riscv.ImmI(instr)), s.RdVal) {
			return ConstraintAdd
		}
	case riscv.OpReg:
		f3, f7 := riscv.Funct3(instr), riscv.Funct7(instr)
		switch {
		case f3 == 0 && f7 == 0x00:
			if !checkAdd(s.Rs1Val, s.Rs2Val, s.RdVal) {
				return ConstraintAdd
			}
		case f3 == 0 && f7 == 0x20:
			if !checkSub(s.Rs1Val, s.Rs2Val, s.RdVal) {
				return ConstraintSub
			}
		case f3 == 0 && f7 == 0x01:
			if !checkMul(s.Rs1Val, s.Rs2Val, s.RdVal) {
				return ConstraintMul
			}
		}
	}
	return ""
}

func branchHolds(funct3, a, b uint32) bool {
	switch funct3 {
	case 0:
		return a == b
	case 1:
		return a != b
	case 4:
		return int32(a) < int32(b)
	case 5:
		return int32(a) >= int32(b)
	case 6:
		return a < b
	case 7:
		return a >= b
	}
	return false
}

// aligned reports whether addr is naturally aligned for the access width
// encoded in funct3.
func aligned(funct3, addr uint32) bool {
	switch funct3 & 3 {
	case 1:
		return addr&1 == 0
	case 2:
		return addr&3 == 0
	}
	return true
}
