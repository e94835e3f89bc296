package riscv

import "fmt"

// Major opcodes of RV32IM.
const (
	OpLoad   uint32 = 0x03
	OpFence  uint32 = 0x0F
	OpImm    uint32 = 0x13
	OpAUIPC  uint32 = 0x17
	OpStore  uint32 = 0x23
	OpReg    uint32 = 0x33
	OpLUI    uint32 = 0x37
	OpBranch uint32 = 0x63
	OpJALR   uint32 = 0x67
	OpJAL    uint32 = 0x6F
	OpSystem uint32 = 0x73
)

// NonDeterminismCSR is the CSR through which the guest reads input words
// and publishes output words.
const NonDeterminismCSR uint32 = 0x7C0

// aluImm evaluates an OP-IMM instruction on src.
func aluImm(instr, src uint32) (uint32, error) {
	imm := ImmI(instr)
	immU := uint32(imm)
	shamt := immU & 0x1F
	switch Funct3(instr) {
	case 0: // ADDI
		return src + immU, nil
	case 1: // SLLI
		if Funct7(instr) != 0 {
			return 0, fmt.Errorf("%w: slli funct7=0x%02x", ErrInvalidInstruction, Funct7(instr))
		}
		return src << shamt, nil
	case 2: // SLTI
		return boolWord(int32(src) < imm), nil
	case 3: // SLTIU
		return boolWord(src < immU), nil
	case 4: // XORI
		return src ^ immU, nil
	case 5:
		switch Funct7(instr) {
		case 0x00: // SRLI
			return src >> shamt, nil
		case 0x20: // SRAI
			return uint32(int32(src) >> shamt), nil
		}
		return 0, fmt.Errorf("%w: shift funct7=0x%02x", ErrInvalidInstruction, Funct7(instr))
	case 6: // ORI
		return src | immU, nil
	default: // ANDI
		return src & immU, nil
	}
}

// aluReg evaluates an OP instruction, including the M extension.
func aluReg(instr, a, b uint32) (uint32, error) {
	funct3, funct7 := Funct3(instr), Funct7(instr)
	switch funct7 {
	case 0x01:
		return mulDiv(funct3, a, b), nil
	case 0x00, 0x20:
	default:
		return 0, fmt.Errorf("%w: funct7=0x%02x", ErrInvalidInstruction, funct7)
	}
	alt := funct7 == 0x20
	if alt && funct3 != 0 && funct3 != 5 {
		return 0, fmt.Errorf("%w: funct3=%d with funct7=0x20", ErrInvalidInstruction, funct3)
	}
	switch funct3 {
	case 0:
		if alt {
			return a - b, nil // SUB
		}
		return a + b, nil // ADD
	case 1: // SLL
		return a << (b & 0x1F), nil
	case 2: // SLT
		return boolWord(int32(a) < int32(b)), nil
	case 3: // SLTU
		return boolWord(a < b), nil
	case 4: // XOR
		return a ^ b, nil
	case 5:
		if alt {
			return uint32(int32(a) >> (b & 0x1F)), nil // SRA
		}
		return a >> (b & 0x1F), nil // SRL
	case 6: // OR
		return a | b, nil
	default: // AND
		return a & b, nil
	}
}

// mulDiv evaluates MUL/DIV/REM. Division by zero and signed overflow
// follow the RISC-V convention instead of trapping.
func mulDiv(funct3, a, b uint32) uint32 {
	switch funct3 {
	case 0: // MUL
		return a * b
	case 1: // MULH
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case 2: // MULHSU
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case 3: // MULHU
		return uint32((uint64(a) * uint64(b)) >> 32)
	case 4: // DIV
		switch {
		case b == 0:
			return 0xFFFFFFFF
		case a == 0x80000000 && b == 0xFFFFFFFF:
			return a
		}
		return uint32(int32(a) / int32(b))
	case 5: // DIVU
		if b == 0 {
			return 0xFFFFFFFF
		}
		return a / b
	case 6: // REM
		switch {
		case b == 0:
			return a
		case a == 0x80000000 && b == 0xFFFFFFFF:
			return 0
		}
		return uint32(int32(a) % int32(b))
	default: // REMU
		if b == 0 {
			return a
		}
		return a % b
	}
}

// branchTaken evaluates a BRANCH condition.
func branchTaken(funct3, a, b uint32) (bool, error) {
	switch funct3 {
	case 0: // BEQ
		return a == b, nil
	case 1: // BNE
		return a != b, nil
	case 4: // BLT
		return int32(a) < int32(b), nil
	case 5: // BGE
		return int32(a) >= int32(b), nil
	case 6: // BLTU
		return a < b, nil
	case 7: // BGEU
		return a >= b, nil
	}
	return false, fmt.Errorf("%w: branch funct3=%d", ErrInvalidInstruction, funct3)
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
