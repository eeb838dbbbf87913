package vm

import "fmt"

// Opcode is a 16-bit bytecode instruction. Plain opcodes live in the 0x8000
// range; opcodes above OpConstString carry a 4-byte immediate operand whose
// interpretation depends on the range the opcode falls in.
type Opcode uint16

// OpcodeSize is the encoded width of an opcode, in bytes.
const OpcodeSize = 2

const (
	// ========================================================================
	// Control flow and machine state (0x8000-0x802D)
	// ========================================================================

	OpNoop           Opcode = 0x8000 // No operation
	OpCall           Opcode = 0x8001 // Call procedure by table index (unimplemented)
	OpCritStart      Opcode = 0x8002 // Begin critical section (unimplemented)
	OpCritDone       Opcode = 0x8003 // End critical section (unimplemented)
	OpJmp            Opcode = 0x8004 // Pop position, jump unconditionally
	OpAtoD           Opcode = 0x800C // Move top of return stack to data stack
	OpDtoA           Opcode = 0x800D // Move top of data stack to return stack
	OpExitProg       Opcode = 0x8010 // Halt the program permanently
	OpFetchGlobal    Opcode = 0x8012 // Pop offset, push data[globalBase+offset]
	OpStoreGlobal    Opcode = 0x8013 // Pop offset, pop value, store at globalBase+offset
	OpFetchExternal  Opcode = 0x8014 // Pop name, push external variable
	OpStoreExternal  Opcode = 0x8015 // Pop value, pop name, store external variable
	OpExportVar      Opcode = 0x8016 // Pop name, create external variable as Null
	OpSwap           Opcode = 0x8018 // Swap top two data stack values
	OpSwapA          Opcode = 0x8019 // Swap tops of the data and return stacks
	OpPop            Opcode = 0x801A // Discard top of data stack
	OpDup            Opcode = 0x801B // Duplicate top of data stack
	OpPopReturn      Opcode = 0x801C // Pop return stack position, jump to it
	OpPopFlagsReturn Opcode = 0x8020 // Pop flags word off the return stack
	OpPopFlagsExit   Opcode = 0x8021 // Pop position off data stack, jump, halt
	OpPopBase        Opcode = 0x8024 // Restore base from return stack
	OpPopToBase      Opcode = 0x8025 // Truncate data stack down to base
	OpPushBase       Opcode = 0x8026 // Pop arg count, establish new base frame
	OpSetGlobal      Opcode = 0x8027 // Set globalBase to current data stack length
	OpIf             Opcode = 0x802A // Pop condition then target; jump when false
	OpWhile          Opcode = 0x802B // Pop condition; when false pop target and jump

	// ========================================================================
	// Comparison (0x802E-0x8033)
	// ========================================================================

	OpEqual        Opcode = 0x802E // Pop two, push equality as Int(0|1)
	OpNotEqual     Opcode = 0x802F // Pop two, push inequality as Int(0|1)
	OpLessEqual    Opcode = 0x8030 // Pop two, push a <= b
	OpGreaterEqual Opcode = 0x8031 // Pop two, push a >= b
	OpLess         Opcode = 0x8032 // Pop two, push a < b
	OpGreater      Opcode = 0x8033 // Pop two, push a > b

	// ========================================================================
	// Arithmetic and logic (0x8034-0x8041)
	// ========================================================================

	OpAdd    Opcode = 0x8034 // Pop two, push sum (concatenates strings)
	OpSub    Opcode = 0x8035 // Pop two, push difference
	OpMul    Opcode = 0x8036 // Pop two, push product
	OpDiv    Opcode = 0x8037 // Pop two, push quotient
	OpMod    Opcode = 0x8038 // Pop two ints, push remainder
	OpAnd    Opcode = 0x8039 // Pop two, push logical and as Int(0|1)
	OpOr     Opcode = 0x803A // Pop two, push logical or as Int(0|1)
	OpBwAnd  Opcode = 0x803B // Pop two, push bitwise and
	OpBwOr   Opcode = 0x803C // Pop two, push bitwise or
	OpBwXor  Opcode = 0x803D // Pop two, push bitwise xor
	OpBwNot  Opcode = 0x803E // Pop one, push bitwise complement
	OpFloor  Opcode = 0x803F // Pop one, push integer truncation
	OpNot    Opcode = 0x8040 // Pop one, push logical negation as Int(0|1)
	OpNegate Opcode = 0x8041 // Pop one, push arithmetic negation

	// ========================================================================
	// Game bridge (0x80C0-0x80FF)
	// ========================================================================

	OpGlobalVar       Opcode = 0x80C0 // Pop index, push numbered global
	OpSetGlobalVar    Opcode = 0x80C1 // Pop value, pop index, ask the host to store it
	OpLocalVar        Opcode = 0x80C2 // Pop index, push script-local variable
	OpSetLocalVar     Opcode = 0x80C3 // Pop value, pop index, store script-local variable
	OpMapVar          Opcode = 0x80C4 // Pop index, push map-scoped variable
	OpSetMapVar       Opcode = 0x80C5 // Pop value, pop index, store map-scoped variable
	OpSelfObj         Opcode = 0x80C6 // Push the handle of the attached object
	OpScriptOverrides Opcode = 0x80C7 // Mark default handling as overridden
	OpGameTime        Opcode = 0x80C8 // Push elapsed game time in ticks
	OpDebugMsg        Opcode = 0x80C9 // Pop string, log it

	// ========================================================================
	// Immediate-operand opcodes (0x9001-0xC001)
	// ========================================================================

	OpConstString Opcode = 0x9001 // Push string table reference: <id:i32>
	OpConstName   Opcode = 0x9801 // Push name table reference: <id:i32>
	OpConstFloat  Opcode = 0xA001 // Push float constant: <v:f32>
	OpConstInt    Opcode = 0xC001 // Push int constant: <v:i32>
)

var opcodeNames = map[Opcode]string{
	OpNoop:            "noop",
	OpCall:            "call",
	OpCritStart:       "crit_start",
	OpCritDone:        "crit_done",
	OpJmp:             "jmp",
	OpAtoD:            "a_to_d",
	OpDtoA:            "d_to_a",
	OpExitProg:        "exit_prog",
	OpFetchGlobal:     "fetch_global",
	OpStoreGlobal:     "store_global",
	OpFetchExternal:   "fetch_external",
	OpStoreExternal:   "store_external",
	OpExportVar:       "export_var",
	OpSwap:            "swap",
	OpSwapA:           "swapa",
	OpPop:             "pop",
	OpDup:             "dup",
	OpPopReturn:       "pop_return",
	OpPopFlagsReturn:  "pop_flags_return",
	OpPopFlagsExit:    "pop_flags_exit",
	OpPopBase:         "pop_base",
	OpPopToBase:       "pop_to_base",
	OpPushBase:        "push_base",
	OpSetGlobal:       "set_global",
	OpIf:              "if",
	OpWhile:           "while",
	OpEqual:           "equal",
	OpNotEqual:        "not_equal",
	OpLessEqual:       "less_equal",
	OpGreaterEqual:    "greater_equal",
	OpLess:            "less",
	OpGreater:         "greater",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpDiv:             "div",
	OpMod:             "mod",
	OpAnd:             "and",
	OpOr:              "or",
	OpBwAnd:           "bwand",
	OpBwOr:            "bwor",
	OpBwXor:           "bwxor",
	OpBwNot:           "bwnot",
	OpFloor:           "floor",
	OpNot:             "not",
	OpNegate:          "negate",
	OpGlobalVar:       "global_var",
	OpSetGlobalVar:    "set_global_var",
	OpLocalVar:        "local_var",
	OpSetLocalVar:     "set_local_var",
	OpMapVar:          "map_var",
	OpSetMapVar:       "set_map_var",
	OpSelfObj:         "self_obj",
	OpScriptOverrides: "script_overrides",
	OpGameTime:        "game_time",
	OpDebugMsg:        "debug_msg",
	OpConstString:     "const_string",
	OpConstName:       "const_name",
	OpConstFloat:      "const_float",
	OpConstInt:        "const_int",
}

// String returns the assembler name of the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%04X)", uint16(op))
}

// HasImmediate reports whether the opcode carries a 4-byte operand.
func (op Opcode) HasImmediate() bool {
	return op >= OpConstString
}

// InstructionLen returns the encoded length of the instruction in bytes.
func (op Opcode) InstructionLen() int {
	if op.HasImmediate() {
		return OpcodeSize + 4
	}
	return OpcodeSize
}
