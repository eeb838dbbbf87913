package vm

var handlers = map[Opcode]handler{
	OpNoop:            noop,
	OpCall:            unimplemented,
	OpCritStart:       unimplemented,
	OpCritDone:        unimplemented,
	OpJmp:             jmp,
	OpAtoD:            aToD,
	OpDtoA:            dToA,
	OpExitProg:        exitProg,
	OpFetchGlobal:     fetchGlobal,
	OpStoreGlobal:     storeGlobal,
	OpFetchExternal:   fetchExternal,
	OpStoreExternal:   storeExternal,
	OpExportVar:       exportVar,
	OpSwap:            swap,
	OpSwapA:           swapA,
	OpPop:             pop,
	OpDup:             dup,
	OpPopReturn:       popReturn,
	OpPopFlagsReturn:  popFlagsReturn,
	OpPopFlagsExit:    popFlagsExit,
	OpPopBase:         popBase,
	OpPopToBase:       popToBase,
	OpPushBase:        pushBase,
	OpSetGlobal:       setGlobal,
	OpIf:              ifOp,
	OpWhile:           while,
	OpEqual:           equal,
	OpNotEqual:        notEqual,
	OpLessEqual:       lessEqual,
	OpGreaterEqual:    greaterEqual,
	OpLess:            less,
	OpGreater:         greater,
	OpAdd:             add,
	OpSub:             sub,
	OpMul:             mul,
	OpDiv:             div,
	OpMod:             mod,
	OpAnd:             and,
	OpOr:              or,
	OpBwAnd:           bwAnd,
	OpBwOr:            bwOr,
	OpBwXor:           bwXor,
	OpBwNot:           bwNot,
	OpFloor:           floor,
	OpNot:             not,
	OpNegate:          negate,
	OpGlobalVar:       globalVar,
	OpSetGlobalVar:    setGlobalVar,
	OpLocalVar:        localVar,
	OpSetLocalVar:     setLocalVar,
	OpMapVar:          mapVar,
	OpSetMapVar:       setMapVar,
	OpSelfObj:         selfObj,
	OpScriptOverrides: scriptOverrides,
	OpGameTime:        gameTime,
	OpDebugMsg:        debugMsg,
	OpConstString:     constString,
	OpConstName:       constName,
	OpConstFloat:      constFloat,
	OpConstInt:        constInt,
}

func unimplemented(in *instr) error {
	return ErrUnimplementedOpcode
}

// ---------------------------------------------------------------------------
// Control flow and machine state
// ---------------------------------------------------------------------------

func noop(in *instr) error {
	in.debugf("noop")
	return nil
}

func jmp(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	pos, err := v.CoerceToInt()
	if err != nil {
		return err
	}
	in.debugf("jmp 0x%06x", pos)
	return in.st.jump(pos)
}

func aToD(in *instr) error {
	v, err := in.st.returnStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("a_to_d %s", v)
	return in.st.dataStack.Push(v)
}

func dToA(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("d_to_a %s", v)
	return in.st.returnStack.Push(v)
}

func exitProg(in *instr) error {
	in.debugf("exit_prog")
	in.st.halted = true
	return ErrHalted
}

func fetchGlobal(in *instr) error {
	ov, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	offset, err := ov.CoerceToInt()
	if err != nil {
		return err
	}
	v, err := in.st.fetchGlobal(offset)
	if err != nil {
		return err
	}
	in.debugf("fetch_global %d -> %s", offset, v)
	return in.st.dataStack.Push(v)
}

func storeGlobal(in *instr) error {
	ov, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	offset, err := ov.CoerceToInt()
	if err != nil {
		return err
	}
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("store_global %d <- %s", offset, v)
	return in.st.storeGlobal(offset, v)
}

func fetchExternal(in *instr) error {
	nv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	name, err := nv.AsString(in.st.prg.Names())
	if err != nil {
		return err
	}
	v, ok := in.ctx.ExternalVars[*name]
	if !ok {
		return miscErrorf("external variable %q does not exist", *name)
	}
	in.debugf("fetch_external %s -> %s", *name, v)
	return in.st.dataStack.Push(v)
}

func storeExternal(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	nv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	name, err := nv.AsString(in.st.prg.Names())
	if err != nil {
		return err
	}
	if _, ok := in.ctx.ExternalVars[*name]; !ok {
		return miscErrorf("external variable %q does not exist", *name)
	}
	// The stored value must stay meaningful after this program is gone, so
	// string references are resolved against the owning table now.
	rv, err := v.Resolved(in.st.prg.Strings())
	if err != nil {
		return err
	}
	in.debugf("store_external %s <- %s", *name, rv)
	in.ctx.ExternalVars[*name] = rv
	return nil
}

func exportVar(in *instr) error {
	nv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	name, err := nv.AsString(in.st.prg.Names())
	if err != nil {
		return err
	}
	if _, ok := in.ctx.ExternalVars[*name]; ok {
		return miscErrorf("external variable %q already exists", *name)
	}
	in.debugf("export_var %s", *name)
	in.ctx.ExternalVars[*name] = Null
	return nil
}

func swap(in *instr) error {
	a, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	b, err := in.st.dataStack.Pop()
	if err != nil {
		in.st.dataStack.Push(a)
		return err
	}
	in.debugf("swap %s, %s", b, a)
	if err := in.st.dataStack.Push(a); err != nil {
		return err
	}
	return in.st.dataStack.Push(b)
}

// swapA exchanges the tops of the data and return stacks.
func swapA(in *instr) error {
	dv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	rv, err := in.st.returnStack.Pop()
	if err != nil {
		in.st.dataStack.Push(dv)
		return err
	}
	in.debugf("swapa %s, %s", dv, rv)
	if err := in.st.dataStack.Push(rv); err != nil {
		return err
	}
	return in.st.returnStack.Push(dv)
}

func pop(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("pop %s", v)
	return nil
}

func dup(in *instr) error {
	v, err := in.st.dataStack.Top()
	if err != nil {
		return err
	}
	in.debugf("dup %s", v)
	return in.st.dataStack.Push(v)
}

func popReturn(in *instr) error {
	v, err := in.st.returnStack.Pop()
	if err != nil {
		return err
	}
	pos, err := v.CoerceToInt()
	if err != nil {
		return err
	}
	in.debugf("pop_return 0x%06x", pos)
	return in.st.jump(pos)
}

// popFlagsReturn discards the flags word a procedure prologue left on the
// return stack.
func popFlagsReturn(in *instr) error {
	v, err := in.st.returnStack.Pop()
	if err != nil {
		return err
	}
	flags, err := v.CoerceToInt()
	if err != nil {
		return err
	}
	in.debugf("pop_flags_return %d", flags)
	return nil
}

func popFlagsExit(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	pos, err := v.CoerceToInt()
	if err != nil {
		return err
	}
	if err := in.st.jump(pos); err != nil {
		return err
	}
	in.debugf("pop_flags_exit 0x%06x", pos)
	in.st.halted = true
	return ErrHalted
}

func popBase(in *instr) error {
	v, err := in.st.returnStack.Pop()
	if err != nil {
		return err
	}
	base, err := v.CoerceToInt()
	if err != nil {
		return err
	}
	in.debugf("pop_base %d", base)
	in.st.base = int(base)
	return nil
}

func popToBase(in *instr) error {
	if in.st.base < 0 {
		return miscErrorf("base is not set")
	}
	in.debugf("pop_to_base %d", in.st.base)
	return in.st.dataStack.Truncate(in.st.base)
}

// pushBase establishes a frame over the topmost argCount values. Nothing is
// popped until the new frame is known to fit and the old base is saved, so
// a failure leaves the machine untouched.
func pushBase(in *instr) error {
	av, err := in.st.dataStack.Top()
	if err != nil {
		return err
	}
	argCount, err := av.CoerceToInt()
	if err != nil {
		return err
	}
	newBase := in.st.dataStack.Len() - 1 - int(argCount)
	if argCount < 0 || newBase < 0 {
		return badContent()
	}
	if err := in.st.returnStack.Push(Int(int32(in.st.base))); err != nil {
		return err
	}
	in.st.dataStack.Pop()
	in.debugf("push_base %d -> %d", in.st.base, newBase)
	in.st.base = newBase
	return nil
}

func setGlobal(in *instr) error {
	in.st.globalBase = in.st.dataStack.Len()
	in.debugf("set_global %d", in.st.globalBase)
	return nil
}

func ifOp(in *instr) error {
	cond, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	pv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("if %s", cond)
	if cond.Test() {
		return nil
	}
	pos, err := pv.CoerceToInt()
	if err != nil {
		return err
	}
	return in.st.jump(pos)
}

func while(in *instr) error {
	cond, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	in.debugf("while %s", cond)
	if cond.Test() {
		return nil
	}
	pv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	pos, err := pv.CoerceToInt()
	if err != nil {
		return err
	}
	return in.st.jump(pos)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func equal(in *instr) error {
	return in.binaryOp("equal", func(l, r Value) (Value, error) {
		eq, err := l.Equal(r, in.st.prg.Strings())
		if err != nil {
			return Value{}, err
		}
		return FromBool(eq), nil
	})
}

func notEqual(in *instr) error {
	return in.binaryOp("not_equal", func(l, r Value) (Value, error) {
		eq, err := l.Equal(r, in.st.prg.Strings())
		if err != nil {
			return Value{}, err
		}
		return FromBool(!eq), nil
	})
}

func lessEqual(in *instr) error {
	return in.compareOp("less_equal", func(ord int) bool { return ord <= 0 })
}

func greaterEqual(in *instr) error {
	return in.compareOp("greater_equal", func(ord int) bool { return ord >= 0 })
}

func less(in *instr) error {
	return in.compareOp("less", func(ord int) bool { return ord < 0 })
}

func greater(in *instr) error {
	return in.compareOp("greater", func(ord int) bool { return ord > 0 })
}

// ---------------------------------------------------------------------------
// Arithmetic and logic
// ---------------------------------------------------------------------------

func add(in *instr) error {
	return in.binaryOp("add", func(l, r Value) (Value, error) {
		return l.Add(r, in.st.prg.Strings())
	})
}

func sub(in *instr) error {
	return in.binaryOp("sub", Value.Sub)
}

func mul(in *instr) error {
	return in.binaryOp("mul", Value.Mul)
}

func div(in *instr) error {
	return in.binaryOp("div", Value.Div)
}

func mod(in *instr) error {
	return in.binaryOp("mod", Value.Rem)
}

func and(in *instr) error {
	return in.binaryOp("and", func(l, r Value) (Value, error) {
		return FromBool(l.Test() && r.Test()), nil
	})
}

func or(in *instr) error {
	return in.binaryOp("or", func(l, r Value) (Value, error) {
		return FromBool(l.Test() || r.Test()), nil
	})
}

func bwAnd(in *instr) error {
	return in.binaryOp("bwand", Value.BwAnd)
}

func bwOr(in *instr) error {
	return in.binaryOp("bwor", Value.BwOr)
}

func bwXor(in *instr) error {
	return in.binaryOp("bwxor", Value.BwXor)
}

func bwNot(in *instr) error {
	return in.unaryOp("bwnot", Value.BwNot)
}

func floor(in *instr) error {
	return in.unaryOp("floor", func(v Value) (Value, error) {
		i, err := v.CoerceToInt()
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	})
}

func not(in *instr) error {
	return in.unaryOp("not", func(v Value) (Value, error) {
		return v.Not(), nil
	})
}

func negate(in *instr) error {
	return in.unaryOp("negate", Value.Neg)
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

func constInt(in *instr) error {
	v, err := in.st.nextI32()
	if err != nil {
		return err
	}
	in.debugf("const_int %d", v)
	return in.st.dataStack.Push(Int(v))
}

func constFloat(in *instr) error {
	v, err := in.st.nextF32()
	if err != nil {
		return err
	}
	in.debugf("const_float %v", v)
	return in.st.dataStack.Push(Float(v))
}

func constString(in *instr) error {
	id, err := in.st.nextI32()
	if err != nil {
		return err
	}
	if id < 0 {
		return ErrBadInstruction
	}
	in.debugf("const_string #%d", id)
	return in.st.dataStack.Push(IndirectStr(id))
}

func constName(in *instr) error {
	id, err := in.st.nextI32()
	if err != nil {
		return err
	}
	if id < 0 {
		return ErrBadInstruction
	}
	in.debugf("const_name #%d", id)
	return in.st.dataStack.Push(IndirectStr(id))
}

// ---------------------------------------------------------------------------
// Game bridge
// ---------------------------------------------------------------------------

func globalVar(in *instr) error {
	iv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	idx, err := iv.CoerceToInt()
	if err != nil {
		return err
	}
	// Scripts probe globals that were never configured; answer with a
	// sentinel instead of failing the whole program.
	if idx < 0 || int(idx) >= len(in.ctx.GlobalVars) {
		in.warningf("global_var %d out of range (have %d)", idx, len(in.ctx.GlobalVars))
		return in.st.dataStack.Push(Int(-1))
	}
	v := Int(in.ctx.GlobalVars[idx])
	in.debugf("global_var %d -> %s", idx, v)
	return in.st.dataStack.Push(v)
}

func setGlobalVar(in *instr) error {
	vv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	value, err := vv.CoerceToInt()
	if err != nil {
		return err
	}
	iv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	idx, err := iv.CoerceToInt()
	if err != nil {
		return err
	}
	if in.ctx.SetGlobalVar == nil {
		in.warningf("set_global_var %d dropped, no host hook", idx)
		return nil
	}
	in.debugf("set_global_var %d <- %d", idx, value)
	return in.ctx.SetGlobalVar(idx, value)
}

func localVar(in *instr) error {
	return scopedVar(in, "local_var", in.ctx.LocalVars)
}

func setLocalVar(in *instr) error {
	vv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	value, err := vv.CoerceToInt()
	if err != nil {
		return err
	}
	iv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	idx, err := iv.CoerceToInt()
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(in.ctx.LocalVars) {
		in.warningf("set_local_var %d out of range (have %d)", idx, len(in.ctx.LocalVars))
		return nil
	}
	in.debugf("set_local_var %d <- %d", idx, value)
	in.ctx.LocalVars[idx] = value
	return nil
}

func mapVar(in *instr) error {
	return scopedVar(in, "map_var", in.ctx.MapVars)
}

func setMapVar(in *instr) error {
	vv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	value, err := vv.CoerceToInt()
	if err != nil {
		return err
	}
	iv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	idx, err := iv.CoerceToInt()
	if err != nil {
		return err
	}
	if in.ctx.SetMapVar != nil {
		in.debugf("set_map_var %d <- %d", idx, value)
		return in.ctx.SetMapVar(idx, value)
	}
	if idx < 0 || int(idx) >= len(in.ctx.MapVars) {
		in.warningf("set_map_var %d out of range (have %d)", idx, len(in.ctx.MapVars))
		return nil
	}
	in.debugf("set_map_var %d <- %d", idx, value)
	in.ctx.MapVars[idx] = value
	return nil
}

// scopedVar reads a numbered variable leniently: out-of-range indexes read
// as 0 with a warning.
func scopedVar(in *instr, name string, vars []int32) error {
	iv, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	idx, err := iv.CoerceToInt()
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(vars) {
		in.warningf("%s %d out of range (have %d)", name, idx, len(vars))
		return in.st.dataStack.Push(Int(0))
	}
	v := Int(vars[idx])
	in.debugf("%s %d -> %s", name, idx, v)
	return in.st.dataStack.Push(v)
}

func selfObj(in *instr) error {
	in.debugf("self_obj %s", in.ctx.SelfObj)
	return in.st.dataStack.Push(in.ctx.SelfObj)
}

func scriptOverrides(in *instr) error {
	in.debugf("script_overrides")
	in.ctx.Overridden = true
	return nil
}

func gameTime(in *instr) error {
	var t int32
	if in.ctx.GameTime != nil {
		t = in.ctx.GameTime()
	}
	in.debugf("game_time %d", t)
	return in.st.dataStack.Push(Int(t))
}

func debugMsg(in *instr) error {
	v, err := in.st.dataStack.Pop()
	if err != nil {
		return err
	}
	s, err := v.CoerceToString(in.st.prg.Strings())
	if err != nil {
		return err
	}
	scriptLog.Infof("%s: %s", in.st.prg.Name(), *s)
	return nil
}
