package riscv

import (
	"errors"
	"fmt"
)

// ErrOutsideText is returned when compiled code jumps out of the text
// section it was compiled from.
var ErrOutsideText = errors.New("riscv: pc outside compiled text")

// op is a pre-decoded instruction. It fills the step's destination, memory
// and next-PC fields; operand values are not recorded.
type op func(c *CPU, s *Step) error

// Program is a text section compiled into closures. Instruction fields are
// decoded once at compile time, so running a Program skips fetch and decode.
type Program struct {
	base   uint32
	instrs []uint32
	ops    []op
}

// Compile translates text, located at base, into a Program. Words that do
// not decode are compiled into ops that fail when executed, since text
// sections may embed data.
func Compile(text []uint32, base uint32) *Program {
	p := &Program{
		base:   base,
		instrs: text,
		ops:    make([]op, len(text)),
	}
	for i, instr := range text {
		p.ops[i] = compileOne(instr)
	}
	return p
}

// Len returns the number of compiled instructions.
func (p *Program) Len() int { return len(p.ops) }

// Step executes the compiled instruction at c.PC and retires it.
func (p *Program) Step(c *CPU) error {
	if c.Halted {
		return ErrHalted
	}
	if c.PC&3 != 0 {
		return fmt.Errorf("%w: 0x%08x", ErrMisalignedPC, c.PC)
	}
	idx := (c.PC - p.base) >> 2
	if c.PC < p.base || uint64(idx) >= uint64(len(p.ops)) {
		return fmt.Errorf("%w: 0x%08x", ErrOutsideText, c.PC)
	}
	s := Step{PC: c.PC, Instr: p.instrs[idx], NextPC: c.PC + 4}
	if err := p.ops[idx](c, &s); err != nil {
		return err
	}
	return c.retire(&s)
}

func compileOne(instr uint32) op {
	rd := uint8(Rd(instr))
	rs1, rs2 := Rs1(instr), Rs2(instr)
	funct3 := Funct3(instr)
	set := func(s *Step, v uint32) {
		if rd != 0 {
			s.Rd, s.RdVal = rd, v
		}
	}

	switch Opcode(instr) {
	case OpLUI:
		imm := ImmU(instr)
		return func(_ *CPU, s *Step) error { set(s, imm); return nil }
	case OpAUIPC:
		imm := ImmU(instr)
		return func(_ *CPU, s *Step) error { set(s, s.PC+imm); return nil }
	case OpJAL:
		off := uint32(ImmJ(instr))
		return func(_ *CPU, s *Step) error {
			set(s, s.PC+4)
			s.NextPC = s.PC + off
			return nil
		}
	case OpJALR:
		imm := uint32(ImmI(instr))
		return func(c *CPU, s *Step) error {
			target := (c.Regs[rs1] + imm) &^ 1
			set(s, s.PC+4)
			s.NextPC = target
			return nil
		}
	case OpBranch:
		off := uint32(ImmB(instr))
		if _, err := branchTaken(funct3, 0, 0); err != nil {
			return failing(err)
		}
		return func(c *CPU, s *Step) error {
			taken, _ := branchTaken(funct3, c.Regs[rs1], c.Regs[rs2])
			if taken {
				s.NextPC = s.PC + off
			}
			return nil
		}
	case OpLoad:
		imm := uint32(ImmI(instr))
		return func(c *CPU, s *Step) error {
			addr := c.Regs[rs1] + imm
			v, err := c.Mem.load(funct3, addr)
			if err != nil {
				return fault("load", addr, err)
			}
			s.MemKind, s.MemAddr, s.MemVal = MemLoad, addr, v
			set(s, v)
			return nil
		}
	case OpStore:
		imm := uint32(ImmS(instr))
		return func(c *CPU, s *Step) error {
			addr, v := c.Regs[rs1]+imm, c.Regs[rs2]
			if err := c.Mem.store(funct3, addr, v); err != nil {
				return fault("store", addr, err)
			}
			s.MemKind, s.MemAddr, s.MemVal = MemStore, addr, v
			return nil
		}
	case OpImm:
		if _, err := aluImm(instr, 0); err != nil {
			return failing(err)
		}
		if funct3 == 0 {
			imm := uint32(ImmI(instr))
			return func(c *CPU, s *Step) error { set(s, c.Regs[rs1]+imm); return nil }
		}
		return func(c *CPU, s *Step) error {
			v, _ := aluImm(instr, c.Regs[rs1])
			set(s, v)
			return nil
		}
	case OpReg:
		if _, err := aluReg(instr, 0, 1); err != nil {
			return failing(err)
		}
		return func(c *CPU, s *Step) error {
			v, _ := aluReg(instr, c.Regs[rs1], c.Regs[rs2])
			set(s, v)
			return nil
		}
	case OpFence:
		return func(*CPU, *Step) error { return nil }
	case OpSystem:
		return func(c *CPU, s *Step) error {
			return c.system(s, c.Regs[rs1])
		}
	}
	return failing(fmt.Errorf("%w: opcode=0x%02x", ErrInvalidInstruction, Opcode(instr)))
}

func failing(err error) op {
	return func(_ *CPU, s *Step) error {
		return fmt.Errorf("%w (pc=0x%08x)", err, s.PC)
	}
}
