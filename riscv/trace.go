package riscv

import "encoding/binary"

// MemKind classifies the memory access of a step.
type MemKind uint8

const (
	MemNone MemKind = iota
	MemLoad
	MemStore
)

// Step records one retired instruction. Rd is 0 when no register was
// written. Rs1Val and Rs2Val are the operand values read by the
// instruction; they are only populated by the interpreter.
type Step struct {
	PC      uint32
	Instr   uint32
	NextPC  uint32
	Rd      uint8
	RdVal   uint32
	Rs1Val  uint32
	Rs2Val  uint32
	MemKind MemKind
	MemAddr uint32
	MemVal  uint32
	Halt    bool
}

// StepEncodingSize is the length of Step.AppendCommitted output.
const StepEncodingSize = 4*6 + 2

// AppendCommitted appends the committed fields of s to buf: everything an
// execution replay determines, excluding operand values. Interpreted traces
// and transpiled tapes of the same run therefore encode identically.
func (s *Step) AppendCommitted(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, s.PC)
	buf = binary.LittleEndian.AppendUint32(buf, s.Instr)
	buf = binary.LittleEndian.AppendUint32(buf, s.NextPC)
	buf = append(buf, s.Rd, byte(s.MemKind))
	buf = binary.LittleEndian.AppendUint32(buf, s.RdVal)
	buf = binary.LittleEndian.AppendUint32(buf, s.MemAddr)
	buf = binary.LittleEndian.AppendUint32(buf, s.MemVal)
	return buf
}

// TraceKind selects what an engine records while executing.
type TraceKind uint8

const (
	// TraceNone records nothing.
	TraceNone TraceKind = iota
	// TraceOperands records every step with operand values.
	TraceOperands
	// TraceTape records a replay tape without operand values.
	TraceTape
)

func (k TraceKind) String() string {
	switch k {
	case TraceOperands:
		return "operands"
	case TraceTape:
		return "tape"
	default:
		return "none"
	}
}

// Trace is the per-cycle record of one execution. Steps[i] is cycle i.
type Trace struct {
	Kind  TraceKind
	Steps []Step
}

// NewTrace returns an empty trace of the given kind, or nil for TraceNone.
func NewTrace(kind TraceKind) *Trace {
	if kind == TraceNone {
		return nil
	}
	return &Trace{Kind: kind, Steps: make([]Step, 0, 1024)}
}

// Len returns the number of recorded cycles.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Steps)
}

// HasOperands reports whether the trace carries operand values.
func (t *Trace) HasOperands() bool {
	return t != nil && t.Kind == TraceOperands
}

func (t *Trace) record(s *Step) {
	if t.Kind == TraceTape {
		s.Rs1Val, s.Rs2Val = 0, 0
	}
	t.Steps = append(t.Steps, *s)
}
