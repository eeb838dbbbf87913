package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Disassemble returns a human-readable listing of the whole program:
// procedure table, then code with absolute offsets.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", p.name))
	if len(p.procs) > 0 {
		sb.WriteString(fmt.Sprintf("; Procedures (%d):\n", len(p.procs)))
		for i, proc := range p.procs {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s argc=%d body=%06X", i, proc.Name, proc.ArgCount, proc.BodyPos))
			if proc.Flags&ProcFlagConditional != 0 {
				sb.WriteString(fmt.Sprintf(" cond=%06X", proc.ConditionPos))
			}
			if proc.Flags&ProcFlagTimed != 0 {
				sb.WriteString(fmt.Sprintf(" delay=%s", proc.Delay))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n; Code:\n")

	offset := p.codeStart
	for offset < len(p.code) {
		line, instrLen := p.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%06X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}
	return sb.String()
}

// DisassembleInstruction renders the single instruction at offset.
func (p *Program) DisassembleInstruction(offset int) string {
	line, _ := p.disassembleInstruction(offset)
	return line
}

func (p *Program) disassembleInstruction(offset int) (string, int) {
	if offset+OpcodeSize > len(p.code) {
		return "<end of code>", 0
	}
	op := Opcode(binary.BigEndian.Uint16(p.code[offset:]))
	if !op.HasImmediate() {
		return op.String(), OpcodeSize
	}
	if offset+op.InstructionLen() > len(p.code) {
		return fmt.Sprintf("%s <truncated>", op), len(p.code) - offset
	}
	raw := binary.BigEndian.Uint32(p.code[offset+OpcodeSize:])

	switch op {
	case OpConstInt:
		return fmt.Sprintf("const_int %d", int32(raw)), op.InstructionLen()
	case OpConstFloat:
		return fmt.Sprintf("const_float %v", math.Float32frombits(raw)), op.InstructionLen()
	case OpConstString:
		return fmt.Sprintf("const_string %d%s", int32(raw), tableComment(p.strings, int32(raw))), op.InstructionLen()
	case OpConstName:
		return fmt.Sprintf("const_name %d%s", int32(raw), tableComment(p.names, int32(raw))), op.InstructionLen()
	default:
		return fmt.Sprintf("%s 0x%08X", op, raw), op.InstructionLen()
	}
}

func tableComment(tbl *StringTable, id int32) string {
	s, ok := tbl.Get(id)
	if !ok {
		return " ; <missing>"
	}
	display := *s
	if len(display) > 40 {
		display = display[:37] + "..."
	}
	return fmt.Sprintf(" ; %q", display)
}
