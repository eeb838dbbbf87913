package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Builder assembles a program image. Code positions are not known until the
// tables are laid out, so jumps target labels and the final positions are
// patched in by Build.
type Builder struct {
	code    []byte
	names   *tableBuilder
	strings *tableBuilder
	procs   []builderProc
	labels  []int
	fixups  []fixup
}

// Label marks a code position to be resolved at build time.
type Label int

const noLabel Label = -1

type fixup struct {
	at    int // offset of the i32 operand within the code buffer
	label Label
}

type builderProc struct {
	name      string
	flags     ProcFlags
	delay     time.Duration
	condition Label
	body      Label
	argCount  int
}

// NewBuilder creates an empty image builder.
func NewBuilder() *Builder {
	return &Builder{
		names:   newTableBuilder(),
		strings: newTableBuilder(),
	}
}

// NewLabel allocates an unplaced label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark places a label at the current code position.
func (b *Builder) Mark(l Label) {
	b.labels[l] = len(b.code)
}

// Here returns a label already placed at the current code position.
func (b *Builder) Here() Label {
	l := b.NewLabel()
	b.Mark(l)
	return l
}

// Emit appends a plain opcode.
func (b *Builder) Emit(op Opcode) {
	b.code = binary.BigEndian.AppendUint16(b.code, uint16(op))
}

// EmitInt appends a const_int instruction.
func (b *Builder) EmitInt(v int32) {
	b.Emit(OpConstInt)
	b.code = binary.BigEndian.AppendUint32(b.code, uint32(v))
}

// EmitFloat appends a const_float instruction.
func (b *Builder) EmitFloat(v float32) {
	b.Emit(OpConstFloat)
	b.code = binary.BigEndian.AppendUint32(b.code, math.Float32bits(v))
}

// EmitString interns s in the string table and appends a const_string
// instruction referencing it.
func (b *Builder) EmitString(s string) {
	b.Emit(OpConstString)
	b.code = binary.BigEndian.AppendUint32(b.code, uint32(b.strings.add(s)))
}

// EmitName interns s in the name table and appends a const_name instruction.
func (b *Builder) EmitName(s string) {
	b.Emit(OpConstName)
	b.code = binary.BigEndian.AppendUint32(b.code, uint32(b.names.add(s)))
}

// EmitConstLabel appends a const_int whose value becomes the label's
// absolute position, for feeding jmp, if and while.
func (b *Builder) EmitConstLabel(l Label) {
	b.Emit(OpConstInt)
	b.fixups = append(b.fixups, fixup{at: len(b.code), label: l})
	b.code = binary.BigEndian.AppendUint32(b.code, 0)
}

// DeclareProc adds a procedure table entry. The body label must be marked
// before Build; pass noCondition when the procedure has no condition.
func (b *Builder) DeclareProc(name string, flags ProcFlags, delay time.Duration, argCount int, condition, body Label) {
	b.procs = append(b.procs, builderProc{
		name:      name,
		flags:     flags,
		delay:     delay,
		condition: condition,
		body:      body,
		argCount:  argCount,
	})
}

// NoCondition is the condition argument for unconditional procedures.
func (b *Builder) NoCondition() Label {
	return noLabel
}

// Build lays the image out and resolves every label to its absolute
// position. Unmarked labels are an error.
func (b *Builder) Build() ([]byte, error) {
	// Intern procedure names first so the name table is complete.
	nameOffsets := make([]int32, len(b.procs))
	for i, p := range b.procs {
		nameOffsets[i] = b.names.add(p.name)
	}

	nameTable := b.names.finish()
	stringTable := b.strings.finish()

	codeStart := headerSize + 4 + procEntrySize*len(b.procs) + len(nameTable) + len(stringTable)

	resolve := func(l Label) (int, error) {
		if l == noLabel {
			return 0, nil
		}
		if int(l) >= len(b.labels) || b.labels[l] < 0 {
			return 0, fmt.Errorf("label %d is never marked", l)
		}
		return codeStart + b.labels[l], nil
	}

	code := make([]byte, len(b.code))
	copy(code, b.code)
	for _, f := range b.fixups {
		pos, err := resolve(f.label)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(code[f.at:], uint32(pos))
	}

	img := make([]byte, 0, codeStart+len(code))
	hdr := make([]byte, headerSize)
	copy(hdr, imageMagic)
	binary.BigEndian.PutUint16(hdr[4:6], imageVersion)
	img = append(img, hdr...)

	img = binary.BigEndian.AppendUint32(img, uint32(len(b.procs)))
	for i, p := range b.procs {
		cond, err := resolve(p.condition)
		if err != nil {
			return nil, fmt.Errorf("procedure %q: %w", p.name, err)
		}
		body, err := resolve(p.body)
		if err != nil {
			return nil, fmt.Errorf("procedure %q: %w", p.name, err)
		}
		img = binary.BigEndian.AppendUint32(img, uint32(nameOffsets[i]))
		img = binary.BigEndian.AppendUint32(img, uint32(p.flags))
		img = binary.BigEndian.AppendUint32(img, uint32(p.delay/time.Millisecond))
		img = binary.BigEndian.AppendUint32(img, uint32(cond))
		img = binary.BigEndian.AppendUint32(img, uint32(body))
		img = binary.BigEndian.AppendUint32(img, uint32(p.argCount))
	}

	img = append(img, nameTable...)
	img = append(img, stringTable...)
	img = append(img, code...)
	return img, nil
}

// ---------------------------------------------------------------------------
// Table builder
// ---------------------------------------------------------------------------

// tableBuilder accumulates a string table. Ids are byte offsets of each
// entry's text within the table buffer, matching what readStringTable
// reconstructs.
type tableBuilder struct {
	buf []byte
	ids map[string]int32
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{
		buf: make([]byte, 4), // total length, patched by finish
		ids: make(map[string]int32),
	}
}

func (t *tableBuilder) add(s string) int32 {
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := int32(len(t.buf) + 2)
	t.buf = binary.BigEndian.AppendUint16(t.buf, uint16(len(s)+1))
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	t.ids[s] = id
	return id
}

func (t *tableBuilder) finish() []byte {
	if len(t.ids) == 0 {
		return binary.BigEndian.AppendUint32(nil, 0xFFFFFFFF)
	}
	t.buf = binary.BigEndian.AppendUint16(t.buf, 0xFFFF)
	t.buf = binary.BigEndian.AppendUint16(t.buf, 0)
	binary.BigEndian.PutUint32(t.buf, uint32(len(t.buf)-8))
	return t.buf
}
