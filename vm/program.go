package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Program image layout:
//
//	offset 0   header: 4-byte magic "GECK", u16 format version, zero padding
//	offset 42  procedure table: u32 count, then 24-byte entries
//	...        name table (procedure and external variable names)
//	...        string table (string literals)
//	...        code, through the end of the image
//
// All multi-byte fields are big-endian. Code positions inside instructions
// are absolute byte offsets into the image, so the code section keeps its
// place even though it sits after the tables.

const (
	imageMagic    = "GECK"
	imageVersion  = 1
	headerSize    = 42
	procEntrySize = 24
)

// ProcFlags describes how a procedure is meant to be invoked.
type ProcFlags uint32

const (
	ProcFlagTimed       ProcFlags = 0x01 // run after Delay elapses
	ProcFlagConditional ProcFlags = 0x02 // run when the condition body is true
	ProcFlagImported    ProcFlags = 0x04 // defined in another program
	ProcFlagExported    ProcFlags = 0x08 // visible to other programs
	ProcFlagCritical    ProcFlags = 0x10 // must not be interrupted
)

// Procedure is one entry of a program's procedure table.
type Procedure struct {
	Name         string
	Flags        ProcFlags
	Delay        time.Duration
	ConditionPos int
	BodyPos      int
	ArgCount     int
}

// Program is an immutable loaded image shared by every state executing it.
type Program struct {
	name        string
	code        []byte
	codeStart   int
	names       *StringTable
	strings     *StringTable
	procs       []Procedure
	procsByName map[string]int
}

// LoadProgram parses an image. The name is diagnostic only, typically the
// source file's base name.
func LoadProgram(name string, data []byte) (*Program, error) {
	r := &imageReader{data: data}

	hdr, err := r.bytes(headerSize)
	if err != nil {
		return nil, err
	}
	if string(hdr[:4]) != imageMagic {
		return nil, &BadMetadataError{Reason: "bad magic"}
	}
	if v := binary.BigEndian.Uint16(hdr[4:6]); v != imageVersion {
		return nil, &BadMetadataError{Reason: fmt.Sprintf("unsupported format version %d", v)}
	}

	rawProcs, err := readProcTable(r)
	if err != nil {
		return nil, err
	}
	names, err := readStringTable(r)
	if err != nil {
		return nil, fmt.Errorf("name table: %w", err)
	}
	strs, err := readStringTable(r)
	if err != nil {
		return nil, fmt.Errorf("string table: %w", err)
	}

	prg := &Program{
		name:        name,
		code:        data,
		codeStart:   r.pos,
		names:       names,
		strings:     strs,
		procs:       make([]Procedure, 0, len(rawProcs)),
		procsByName: make(map[string]int, len(rawProcs)),
	}
	for i, rp := range rawProcs {
		pname, ok := names.Get(int32(rp.nameOffset))
		if !ok {
			return nil, &BadMetadataError{Reason: fmt.Sprintf("procedure %d: name offset %d not in name table", i, rp.nameOffset)}
		}
		prg.procs = append(prg.procs, Procedure{
			Name:         *pname,
			Flags:        ProcFlags(rp.flags),
			Delay:        time.Duration(rp.delayMillis) * time.Millisecond,
			ConditionPos: int(rp.conditionPos),
			BodyPos:      int(rp.bodyPos),
			ArgCount:     int(rp.argCount),
		})
		prg.procsByName[*pname] = i
	}
	return prg, nil
}

// Name returns the diagnostic name the program was loaded under.
func (p *Program) Name() string {
	return p.name
}

// Code returns the full image; instruction positions index into it.
func (p *Program) Code() []byte {
	return p.code
}

// CodeStart returns the byte offset of the first instruction.
func (p *Program) CodeStart() int {
	return p.codeStart
}

// Names returns the name table (procedure and exported variable names).
func (p *Program) Names() *StringTable {
	return p.names
}

// Strings returns the string literal table.
func (p *Program) Strings() *StringTable {
	return p.strings
}

// Procs returns the procedure table in declaration order.
func (p *Program) Procs() []Procedure {
	return p.procs
}

// Proc returns the procedure at index i.
func (p *Program) Proc(i int) (*Procedure, bool) {
	if i < 0 || i >= len(p.procs) {
		return nil, false
	}
	return &p.procs[i], true
}

// ProcByName looks a procedure up by name, returning its table index too.
func (p *Program) ProcByName(name string) (*Procedure, int, bool) {
	i, ok := p.procsByName[name]
	if !ok {
		return nil, 0, false
	}
	return &p.procs[i], i, true
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

type rawProc struct {
	nameOffset   uint32
	flags        uint32
	delayMillis  uint32
	conditionPos uint32
	bodyPos      uint32
	argCount     uint32
}

func readProcTable(r *imageReader) ([]rawProc, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	procs := make([]rawProc, 0, count)
	for i := uint32(0); i < count; i++ {
		entry, err := r.bytes(procEntrySize)
		if err != nil {
			return nil, err
		}
		procs = append(procs, rawProc{
			nameOffset:   binary.BigEndian.Uint32(entry[0:4]),
			flags:        binary.BigEndian.Uint32(entry[4:8]),
			delayMillis:  binary.BigEndian.Uint32(entry[8:12]),
			conditionPos: binary.BigEndian.Uint32(entry[12:16]),
			bodyPos:      binary.BigEndian.Uint32(entry[16:20]),
			argCount:     binary.BigEndian.Uint32(entry[20:24]),
		})
	}
	return procs, nil
}

// readStringTable parses one table. Ids are byte offsets within the table
// buffer, so the loader and any image writer agree on them without a
// separate index.
func readStringTable(r *imageReader) (*StringTable, error) {
	tbl := NewStringTable()

	total, err := r.u32()
	if err != nil {
		return nil, err
	}
	if total == 0xFFFFFFFF {
		return tbl, nil
	}

	start := r.pos - 4
	for {
		l, err := r.u16()
		if err != nil {
			return nil, err
		}
		if l == 0xFFFF {
			if _, err := r.u16(); err != nil {
				return nil, err
			}
			break
		}
		id := int32(r.pos - start)
		raw, err := r.bytes(int(l))
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 || raw[len(raw)-1] != 0 {
			return nil, &BadMetadataError{Reason: "string table entry is not NUL-terminated"}
		}
		s := string(bytes.TrimRight(raw, "\x00"))
		tbl.Insert(id, &s)
	}
	if r.pos-start != int(total)+8 {
		return nil, &BadMetadataError{Reason: "string table length mismatch"}
	}
	return tbl, nil
}

type imageReader struct {
	data []byte
	pos  int
}

func (r *imageReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *imageReader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *imageReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
