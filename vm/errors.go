package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

var (
	// ErrBadInstruction indicates a malformed immediate operand.
	ErrBadInstruction = errors.New("bad instruction")

	// ErrHalted signals graceful program termination. It is not a fault:
	// drivers must check for it with IsHalted and unload the program cleanly.
	ErrHalted = errors.New("halted")

	// ErrUnimplementedOpcode is returned by placeholder handlers for opcodes
	// that have not been ported yet.
	ErrUnimplementedOpcode = errors.New("unimplemented opcode")

	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrUnexpectedEOF indicates the code stream ended in the middle of an
	// opcode or immediate operand.
	ErrUnexpectedEOF = errors.New("unexpected end of code")
)

// BadValueKind distinguishes the two ways an operand can be bad: the wrong
// tag entirely, or the right tag with unusable contents (an unresolvable
// string id, division by zero, arithmetic overflow).
type BadValueKind int

const (
	BadValueType BadValueKind = iota
	BadValueContent
)

func (k BadValueKind) String() string {
	switch k {
	case BadValueType:
		return "type"
	case BadValueContent:
		return "content"
	default:
		return fmt.Sprintf("BadValueKind(%d)", int(k))
	}
}

// BadValueError reports an operand with the wrong tag or unusable contents.
type BadValueError struct {
	Kind BadValueKind
}

func (e *BadValueError) Error() string {
	return fmt.Sprintf("bad value: %s", e.Kind)
}

// Is makes every BadValueError of the same kind match via errors.Is.
func (e *BadValueError) Is(target error) bool {
	t, ok := target.(*BadValueError)
	return ok && t.Kind == e.Kind
}

// BadOpcodeError reports an unrecognized opcode in the code stream.
type BadOpcodeError struct {
	Code uint16
}

func (e *BadOpcodeError) Error() string {
	return fmt.Sprintf("bad opcode: 0x%04x", e.Code)
}

// BadMetadataError reports a malformed program image (procedure table, name
// table or string table).
type BadMetadataError struct {
	Reason string
}

func (e *BadMetadataError) Error() string {
	return fmt.Sprintf("bad metadata: %s", e.Reason)
}

// BadProcedureError reports a reference to a procedure the program does not
// define.
type BadProcedureError struct {
	Name string
}

func (e *BadProcedureError) Error() string {
	return fmt.Sprintf("bad procedure: %q", e.Name)
}

// MiscError carries named bridge and logic errors, such as a duplicate
// variable export or a frame operation with no frame active.
type MiscError struct {
	Reason string
}

func (e *MiscError) Error() string {
	return e.Reason
}

// IsHalted reports whether err is the graceful-termination signal rather
// than a fault.
func IsHalted(err error) bool {
	return errors.Is(err, ErrHalted)
}

func badType() error {
	return &BadValueError{Kind: BadValueType}
}

func badContent() error {
	return &BadValueError{Kind: BadValueContent}
}

func miscErrorf(format string, args ...any) error {
	return &MiscError{Reason: fmt.Sprintf(format, args...)}
}
