package vm

// instr bundles what a handler needs: the executing state and the world
// it runs against.
type instr struct {
	st  *ProgramState
	ctx *Context
}

type handler func(*instr) error

func (in *instr) debugf(format string, args ...any) {
	args = append([]any{in.st.instrPos}, args...)
	log.Debugf("[0x%06x] "+format, args...)
}

func (in *instr) warningf(format string, args ...any) {
	args = append([]any{in.st.instrPos}, args...)
	log.Warningf("[0x%06x] "+format, args...)
}

// binaryOp pops the right then the left operand, applies f and pushes the
// result.
func (in *instr) binaryOp(name string, f func(l, r Value) (Value, error)) error {
	right, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	left, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	res, err := f(left, right)
	if err != nil {
		in.debugf("%s %s, %s failed: %s", name, left, right, err)
		return err
	}
	if err := in.st.dataStack.Push(res); err != nil {
		return err
	}
	in.debugf("%s %s, %s -> %s", name, left, right, res)
	return nil
}

// unaryOp pops one operand, applies f and pushes the result.
func (in *instr) unaryOp(name string, f func(v Value) (Value, error)) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	res, err := f(v)
	if err != nil {
		in.debugf("%s %s failed: %s", name, v, err)
		return err
	}
	if err := in.st.dataStack.Push(res); err != nil {
		return err
	}
	in.debugf("%s %s -> %s", name, v, res)
	return nil
}

// compareOp implements the ordering opcodes: accept reports whether the
// Compare outcome satisfies the opcode. Unordered operands satisfy nothing.
func (in *instr) compareOp(name string, accept func(ord int) bool) error {
	return in.binaryOp(name, func(l, r Value) (Value, error) {
		ord, ok, err := l.Compare(r, in.st.prg.Strings())
		if err != nil {
			return Value{}, err
		}
		return FromBool(ok && accept(ord)), nil
	})
}
