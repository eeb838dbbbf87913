package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("geck.vm")

// scriptLog carries debug_msg output, so hosts can route script chatter
// separately from interpreter diagnostics.
var scriptLog = commonlog.GetLogger("geck.vm.debug")

// ProgramState is one execution of a Program: the instruction cursor, the
// two stacks and the frame registers. Several states may share one Program;
// a state must not be used from more than one goroutine at a time.
type ProgramState struct {
	prg         *Program
	codePos     int
	instrPos    int
	dataStack   *Stack
	returnStack *Stack
	base        int
	globalBase  int
	halted      bool
}

// NewProgramState creates a fresh state positioned at the program's first
// instruction. maxStackLen bounds both stacks; zero or negative selects
// DefaultMaxStackLen.
func NewProgramState(prg *Program, maxStackLen int) *ProgramState {
	if maxStackLen <= 0 {
		maxStackLen = DefaultMaxStackLen
	}
	return &ProgramState{
		prg:         prg,
		codePos:     prg.CodeStart(),
		dataStack:   NewStack("data", maxStackLen),
		returnStack: NewStack("return", maxStackLen),
		base:        -1,
		globalBase:  -1,
	}
}

// Program returns the shared image this state executes.
func (s *ProgramState) Program() *Program {
	return s.prg
}

// CodePos returns the current instruction cursor.
func (s *ProgramState) CodePos() int {
	return s.codePos
}

// DataStack exposes the data stack, mainly for the host and tests.
func (s *ProgramState) DataStack() *Stack {
	return s.dataStack
}

// ReturnStack exposes the return stack.
func (s *ProgramState) ReturnStack() *Stack {
	return s.returnStack
}

// Base returns the current frame base, -1 when no frame is established.
func (s *ProgramState) Base() int {
	return s.base
}

// GlobalBase returns the procedure-global frame base, -1 when unset.
func (s *ProgramState) GlobalBase() int {
	return s.globalBase
}

// Halted reports whether exit_prog has run.
func (s *ProgramState) Halted() bool {
	return s.halted
}

// Step executes a single instruction. Once the program has halted every
// call fails with ErrHalted.
func (s *ProgramState) Step(ctx *Context) error {
	if s.halted {
		return fmt.Errorf("program %s: %w", s.prg.Name(), ErrHalted)
	}
	s.instrPos = s.codePos
	raw, err := s.u16At(s.codePos)
	if err != nil {
		return err
	}
	op := Opcode(raw)
	h, ok := handlers[op]
	if !ok {
		return &BadOpcodeError{Code: raw}
	}
	s.codePos += OpcodeSize
	if err := h(&instr{st: s, ctx: ctx}); err != nil {
		if IsHalted(err) {
			return err
		}
		return fmt.Errorf("%s at 0x%06x: %w", op, s.instrPos, err)
	}
	return nil
}

// Run executes instructions until the program halts, which is reported as
// success, or an instruction fails.
func (s *ProgramState) Run(ctx *Context) error {
	for {
		if err := s.Step(ctx); err != nil {
			if IsHalted(err) {
				return nil
			}
			return err
		}
	}
}

// ExecuteProc runs a named procedure to completion.
func (s *ProgramState) ExecuteProc(name string, ctx *Context) error {
	proc, _, ok := s.prg.ProcByName(name)
	if !ok {
		return &BadProcedureError{Name: name}
	}
	return s.executeProc(proc, ctx)
}

// ExecuteProcByIndex runs the procedure with the given table index.
func (s *ProgramState) ExecuteProcByIndex(i int, ctx *Context) error {
	proc, ok := s.prg.Proc(i)
	if !ok {
		return &BadProcedureError{Name: fmt.Sprintf("#%d", i)}
	}
	return s.executeProc(proc, ctx)
}

// executeProc sets up the standard prologue the compiled epilogue undoes:
// the resume position and a flags word on the return stack, and three
// scratch slots on the data stack.
func (s *ProgramState) executeProc(proc *Procedure, ctx *Context) error {
	s.halted = false
	if err := s.returnStack.Push(Int(int32(s.codePos))); err != nil {
		return err
	}
	if err := s.returnStack.Push(Int(20)); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := s.dataStack.Push(Int(0)); err != nil {
			return err
		}
	}
	log.Debugf("executing %s proc %q at 0x%06x", s.prg.Name(), proc.Name, proc.BodyPos)
	s.codePos = proc.BodyPos
	return s.Run(ctx)
}

// ---------------------------------------------------------------------------
// Instruction stream access
// ---------------------------------------------------------------------------

func (s *ProgramState) u16At(pos int) (uint16, error) {
	if pos < 0 || pos+2 > len(s.prg.code) {
		return 0, ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint16(s.prg.code[pos:]), nil
}

func (s *ProgramState) nextI32() (int32, error) {
	if s.codePos+4 > len(s.prg.code) {
		return 0, ErrUnexpectedEOF
	}
	v := int32(binary.BigEndian.Uint32(s.prg.code[s.codePos:]))
	s.codePos += 4
	return v, nil
}

func (s *ProgramState) nextF32() (float32, error) {
	if s.codePos+4 > len(s.prg.code) {
		return 0, ErrUnexpectedEOF
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(s.prg.code[s.codePos:]))
	s.codePos += 4
	return v, nil
}

// jump moves the cursor to an absolute position. The target must leave room
// for at least one opcode; anything else is a Content value-error.
func (s *ProgramState) jump(pos int32) error {
	p := int(pos)
	if p < 0 || p+OpcodeSize > len(s.prg.code) {
		return badContent()
	}
	s.codePos = p
	return nil
}

// ---------------------------------------------------------------------------
// Frame-relative data stack access
// ---------------------------------------------------------------------------

func (s *ProgramState) fetchGlobal(offset int32) (Value, error) {
	if s.globalBase < 0 {
		return Value{}, miscErrorf("global base is not set")
	}
	return s.dataStack.At(s.globalBase + int(offset))
}

func (s *ProgramState) storeGlobal(offset int32, v Value) error {
	if s.globalBase < 0 {
		return miscErrorf("global base is not set")
	}
	return s.dataStack.SetAt(s.globalBase+int(offset), v)
}
