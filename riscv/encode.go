package riscv

// Field decoders shared by the interpreter, the JIT compiler and the
// constraint checker.

// Opcode returns the major opcode of instr.
func Opcode(instr uint32) uint32 { return instr & 0x7F }

// Rd returns the destination register field.
func Rd(instr uint32) uint32 { return (instr >> 7) & 0x1F }

// Rs1 returns the first source register field.
func Rs1(instr uint32) uint32 { return (instr >> 15) & 0x1F }

// Rs2 returns the second source register field.
func Rs2(instr uint32) uint32 { return (instr >> 20) & 0x1F }

// Funct3 returns the funct3 field.
func Funct3(instr uint32) uint32 { return (instr >> 12) & 0x7 }

// Funct7 returns the funct7 field.
func Funct7(instr uint32) uint32 { return (instr >> 25) & 0x7F }

// CSR returns the CSR address of a SYSTEM instruction.
func CSR(instr uint32) uint32 { return instr >> 20 }

// signExtend interprets the low bits of v as a two's complement number.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// ImmI returns the sign-extended 12-bit I-type immediate.
func ImmI(instr uint32) int32 { return int32(instr) >> 20 }

// ImmS returns the sign-extended 12-bit S-type immediate.
func ImmS(instr uint32) int32 {
	return signExtend((instr>>7)&0x1F|((instr>>25)<<5), 12)
}

// ImmB returns the sign-extended 13-bit branch offset.
// Layout: imm[12|10:5] rs2 rs1 funct3 imm[4:1|11].
func ImmB(instr uint32) int32 {
	v := (instr>>31)<<12 |
		((instr>>7)&0x1)<<11 |
		((instr>>25)&0x3F)<<5 |
		((instr>>8)&0xF)<<1
	return signExtend(v, 13)
}

// ImmU returns the U-type immediate already shifted into bits 31:12.
func ImmU(instr uint32) uint32 { return instr & 0xFFFFF000 }

// ImmJ returns the sign-extended 21-bit jump offset.
// Layout: imm[20|10:1|11|19:12] rd opcode.
func ImmJ(instr uint32) int32 {
	v := (instr>>31)<<20 |
		((instr>>12)&0xFF)<<12 |
		((instr>>20)&0x1)<<11 |
		((instr>>21)&0x3FF)<<1
	return signExtend(v, 21)
}

// EncodeRType encodes an R-type instruction.
func EncodeRType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// EncodeIType encodes an I-type instruction.
func EncodeIType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// EncodeSType encodes an S-type instruction.
func EncodeSType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm & 0xFFF)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1F)<<7 | opcode
}

// EncodeBType encodes a B-type instruction.
func EncodeBType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&0x1)<<31 | ((u>>5)&0x3F)<<25 | rs2<<20 | rs1<<15 |
		funct3<<12 | ((u>>1)&0xF)<<8 | ((u>>11)&0x1)<<7 | opcode
}

// EncodeUType encodes a U-type instruction.
func EncodeUType(opcode, rd uint32, imm uint32) uint32 {
	return imm&0xFFFFF000 | rd<<7 | opcode
}

// EncodeJType encodes a J-type instruction.
func EncodeJType(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>20)&0x1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&0x1)<<20 |
		((u>>12)&0xFF)<<12 | rd<<7 | opcode
}
