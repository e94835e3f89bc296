// Package riscv implements the RV32IM machine that guest programs run on:
// an instruction-at-a-time interpreter, a closure-compiling JIT over the
// text section, sparse bounded memory and per-cycle execution traces.
//
// A program halts on ECALL, on EBREAK, or on an instruction whose next PC
// equals its own PC (the `j .` idle loop). Every retired instruction,
// including the halting one, costs one cycle.
package riscv

import (
	"errors"
	"fmt"
)

// CPU errors.
var (
	ErrInvalidInstruction = errors.New("riscv: invalid instruction")
	ErrHalted             = errors.New("riscv: cpu halted")
	ErrMemoryFault        = errors.New("riscv: memory access fault")
	ErrMisalignedPC       = errors.New("riscv: misaligned pc")
	ErrEmptyProgram       = errors.New("riscv: empty program")
)

// RegCount is the number of general-purpose registers.
const RegCount = 32

// Observer is notified of every retired instruction. cycle is the index of
// the step, starting at zero. A non-nil error stops execution after the
// step has been retired.
type Observer interface {
	OnStep(cycle uint64, s *Step) error
}

// CPU is the architectural state of an RV32IM hart plus its I/O channels.
type CPU struct {
	Regs   [RegCount]uint32
	PC     uint32
	Mem    *Memory
	Cycles uint64
	Halted bool

	// Output collects words the guest published through the
	// non-determinism CSR.
	Output []uint32

	// Trace and Observer are optional.
	Trace    *Trace
	Observer Observer

	input    []uint32
	inputPos int
}

// NewCPU creates a CPU over mem that serves input words to the guest.
func NewCPU(mem *Memory, input []uint32) *CPU {
	return &CPU{Mem: mem, input: input}
}

// LoadProgram copies code into memory at base and sets PC to entry.
func (c *CPU) LoadProgram(code []byte, base, entry uint32) error {
	if len(code) == 0 {
		return ErrEmptyProgram
	}
	if err := c.Mem.LoadSegment(base, code); err != nil {
		return err
	}
	c.PC = entry
	return nil
}

// InputConsumed returns how many input words the guest has read.
func (c *CPU) InputConsumed() int { return c.inputPos }

// Step fetches, executes and retires a single instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}
	if c.PC&3 != 0 {
		return fmt.Errorf("%w: 0x%08x", ErrMisalignedPC, c.PC)
	}
	instr, err := c.Mem.ReadWord(c.PC)
	if err != nil {
		return fault("fetch", c.PC, err)
	}
	s := Step{PC: c.PC, Instr: instr}
	if err := c.execute(&s); err != nil {
		return err
	}
	return c.retire(&s)
}

// retire commits a step: register write, PC update, cycle accounting and
// halt detection. Both engines funnel through here.
func (c *CPU) retire(s *Step) error {
	if s.Rd != 0 {
		c.Regs[s.Rd] = s.RdVal
	}
	c.PC = s.NextPC
	if s.Halt || s.NextPC == s.PC {
		s.Halt = true
		c.Halted = true
	}
	var err error
	if c.Observer != nil {
		err = c.Observer.OnStep(c.Cycles, s)
	}
	if c.Trace != nil {
		c.Trace.record(s)
	}
	c.Cycles++
	return err
}

func (c *CPU) execute(s *Step) error {
	instr, pc := s.Instr, s.PC
	s.NextPC = pc + 4
	switch Opcode(instr) {
	case OpLUI:
		writeRd(s, ImmU(instr))
	case OpAUIPC:
		writeRd(s, pc+ImmU(instr))
	case OpJAL:
		writeRd(s, pc+4)
		s.NextPC = pc + uint32(ImmJ(instr))
	case OpJALR:
		s.Rs1Val = c.Regs[Rs1(instr)]
		writeRd(s, pc+4)
		s.NextPC = (s.Rs1Val + uint32(ImmI(instr))) &^ 1
	case OpBranch:
		s.Rs1Val, s.Rs2Val = c.Regs[Rs1(instr)], c.Regs[Rs2(instr)]
		taken, err := branchTaken(Funct3(instr), s.Rs1Val, s.Rs2Val)
		if err != nil {
			return err
		}
		if taken {
			s.NextPC = pc + uint32(ImmB(instr))
		}
	case OpLoad:
		s.Rs1Val = c.Regs[Rs1(instr)]
		addr := s.Rs1Val + uint32(ImmI(instr))
		v, err := c.Mem.load(Funct3(instr), addr)
		if err != nil {
			return fault("load", addr, err)
		}
		s.MemKind, s.MemAddr, s.MemVal = MemLoad, addr, v
		writeRd(s, v)
	case OpStore:
		s.Rs1Val, s.Rs2Val = c.Regs[Rs1(instr)], c.Regs[Rs2(instr)]
		addr := s.Rs1Val + uint32(ImmS(instr))
		if err := c.Mem.store(Funct3(instr), addr, s.Rs2Val); err != nil {
			return fault("store", addr, err)
		}
		s.MemKind, s.MemAddr, s.MemVal = MemStore, addr, s.Rs2Val
	case OpImm:
		s.Rs1Val = c.Regs[Rs1(instr)]
		v, err := aluImm(instr, s.Rs1Val)
		if err != nil {
			return err
		}
		writeRd(s, v)
	case OpReg:
		s.Rs1Val, s.Rs2Val = c.Regs[Rs1(instr)], c.Regs[Rs2(instr)]
		v, err := aluReg(instr, s.Rs1Val, s.Rs2Val)
		if err != nil {
			return err
		}
		writeRd(s, v)
	case OpFence:
	case OpSystem:
		s.Rs1Val = c.Regs[Rs1(instr)]
		return c.system(s, s.Rs1Val)
	default:
		return fmt.Errorf("%w: opcode=0x%02x at pc=0x%08x", ErrInvalidInstruction, Opcode(instr), pc)
	}
	return nil
}

// system handles ECALL, EBREAK and accesses to the non-determinism CSR.
// Reading the CSR into a non-zero rd pops the next input word (zero once
// the input is exhausted); a non-zero rs1 publishes its value.
func (c *CPU) system(s *Step, rs1Val uint32) error {
	instr := s.Instr
	switch Funct3(instr) {
	case 0:
		switch instr >> 20 {
		case 0, 1: // ECALL, EBREAK
			s.Halt = true
			return nil
		}
	case 1, 2, 3:
		if CSR(instr) != NonDeterminismCSR {
			return fmt.Errorf("%w: csr 0x%03x at pc=0x%08x", ErrInvalidInstruction, CSR(instr), s.PC)
		}
		if Rd(instr) != 0 {
			writeRd(s, c.nextInput())
		}
		if Rs1(instr) != 0 {
			c.Output = append(c.Output, rs1Val)
		}
		return nil
	}
	return fmt.Errorf("%w: system 0x%08x at pc=0x%08x", ErrInvalidInstruction, instr, s.PC)
}

func (c *CPU) nextInput() uint32 {
	if c.inputPos >= len(c.input) {
		return 0
	}
	w := c.input[c.inputPos]
	c.inputPos++
	return w
}

func writeRd(s *Step, v uint32) {
	if rd := Rd(s.Instr); rd != 0 {
		s.Rd, s.RdVal = uint8(rd), v
	}
}

func fault(op string, addr uint32, err error) error {
	return fmt.Errorf("%w: %s at 0x%08x: %w", ErrMemoryFault, op, addr, err)
}
