package riscv

// Mnemonic constructors for hand-assembled guest programs.

// Register ABI names used by the call-stack tracker and reports.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegT0   = 5
	RegA0   = 10
	RegA7   = 17
)

func Lui(rd uint32, imm uint32) uint32   { return EncodeUType(OpLUI, rd, imm) }
func Auipc(rd uint32, imm uint32) uint32 { return EncodeUType(OpAUIPC, rd, imm) }

func Addi(rd, rs1 uint32, imm int32) uint32 { return EncodeIType(OpImm, rd, 0, rs1, imm) }
func Xori(rd, rs1 uint32, imm int32) uint32 { return EncodeIType(OpImm, rd, 4, rs1, imm) }
func Slli(rd, rs1, shamt uint32) uint32     { return EncodeIType(OpImm, rd, 1, rs1, int32(shamt)) }

func Add(rd, rs1, rs2 uint32) uint32  { return EncodeRType(OpReg, rd, 0, rs1, rs2, 0) }
func Sub(rd, rs1, rs2 uint32) uint32  { return EncodeRType(OpReg, rd, 0, rs1, rs2, 0x20) }
func Mul(rd, rs1, rs2 uint32) uint32  { return EncodeRType(OpReg, rd, 0, rs1, rs2, 1) }
func Divu(rd, rs1, rs2 uint32) uint32 { return EncodeRType(OpReg, rd, 5, rs1, rs2, 1) }

func Lw(rd, rs1 uint32, imm int32) uint32  { return EncodeIType(OpLoad, rd, 2, rs1, imm) }
func Lbu(rd, rs1 uint32, imm int32) uint32 { return EncodeIType(OpLoad, rd, 4, rs1, imm) }
func Sw(rs1, rs2 uint32, imm int32) uint32 { return EncodeSType(OpStore, 2, rs1, rs2, imm) }
func Sb(rs1, rs2 uint32, imm int32) uint32 { return EncodeSType(OpStore, 0, rs1, rs2, imm) }

func Beq(rs1, rs2 uint32, off int32) uint32 { return EncodeBType(OpBranch, 0, rs1, rs2, off) }
func Bne(rs1, rs2 uint32, off int32) uint32 { return EncodeBType(OpBranch, 1, rs1, rs2, off) }
func Blt(rs1, rs2 uint32, off int32) uint32 { return EncodeBType(OpBranch, 4, rs1, rs2, off) }

func Jal(rd uint32, off int32) uint32       { return EncodeJType(OpJAL, rd, off) }
func Jalr(rd, rs1 uint32, imm int32) uint32 { return EncodeIType(OpJALR, rd, 0, rs1, imm) }
func Ret() uint32                           { return Jalr(RegZero, RegRA, 0) }
func Call(off int32) uint32                 { return Jal(RegRA, off) }
func Ecall() uint32                         { return OpSystem }
func Ebreak() uint32                        { return 1<<20 | OpSystem }
func Nop() uint32                           { return Addi(0, 0, 0) }

// Idle is the `j .` loop guests use to signal completion.
func Idle() uint32 { return Jal(RegZero, 0) }

// ReadInput pops the next non-deterministic input word into rd.
func ReadInput(rd uint32) uint32 {
	return EncodeIType(OpSystem, rd, 1, 0, int32(NonDeterminismCSR))
}

// WriteOutput publishes rs1 as a guest output word.
func WriteOutput(rs1 uint32) uint32 {
	return EncodeIType(OpSystem, 0, 1, rs1, int32(NonDeterminismCSR))
}
