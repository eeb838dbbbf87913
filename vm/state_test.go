package vm

import (
	"errors"
	"testing"
)

func runProgram(t *testing.T, ctx *Context, fn func(b *Builder)) *ProgramState {
	t.Helper()
	st := NewProgramState(buildProgram(t, fn), 0)
	if err := st.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return st
}

func failProgram(t *testing.T, ctx *Context, fn func(b *Builder)) (*ProgramState, error) {
	t.Helper()
	st := NewProgramState(buildProgram(t, fn), 0)
	err := st.Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	return st, err
}

func topInt(t *testing.T, st *ProgramState) int32 {
	t.Helper()
	v, err := st.DataStack().Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	return mustIntValue(t, v)
}

func TestRunArithmetic(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(2)
		b.EmitInt(3)
		b.Emit(OpAdd)
		b.EmitInt(10)
		b.Emit(OpMul)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 50 {
		t.Errorf("(2+3)*10 = %d", got)
	}
	if !st.Halted() {
		t.Error("state not halted after exit_prog")
	}
}

func TestRunStringConcat(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitString("hello ")
		b.EmitString("world")
		b.Emit(OpAdd)
		b.Emit(OpExitProg)
	})
	v, _ := st.DataStack().Top()
	s, err := v.AsString(st.Program().Strings())
	if err != nil {
		t.Fatalf("AsString: %v", err)
	}
	if *s != "hello world" {
		t.Errorf("concat = %q", *s)
	}
}

func TestStepAfterHalt(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.Emit(OpExitProg)
	})
	err := st.Step(NewContext())
	if !IsHalted(err) {
		t.Fatalf("Step after halt: err = %v", err)
	}
	// Run treats a halted program as already done.
	if err := st.Run(NewContext()); err != nil {
		t.Errorf("Run after halt: %v", err)
	}
}

func TestRunUnknownOpcode(t *testing.T) {
	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.Emit(Opcode(0x7777))
	})
	var opErr *BadOpcodeError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want bad opcode", err)
	}
	if opErr.Code != 0x7777 {
		t.Errorf("Code = 0x%04X", opErr.Code)
	}
}

func TestRunUnimplementedOpcode(t *testing.T) {
	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.Emit(OpCall)
	})
	if !errors.Is(err, ErrUnimplementedOpcode) {
		t.Fatalf("err = %v", err)
	}
}

func TestStackOpcodes(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(1)
		b.EmitInt(2)
		b.Emit(OpSwap) // 2 1
		b.Emit(OpDup)  // 2 1 1
		b.Emit(OpPop)  // 2 1
		b.Emit(OpExitProg)
	})
	ds := st.DataStack()
	if ds.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ds.Len())
	}
	if v, _ := ds.At(0); mustIntValue(t, v) != 2 {
		t.Errorf("bottom = %s", v)
	}
	if got := topInt(t, st); got != 1 {
		t.Errorf("top = %d", got)
	}
}

func TestReturnStackTransfer(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(7)
		b.Emit(OpDtoA) // return: 7
		b.EmitInt(8)
		b.Emit(OpSwapA) // data: 7, return: 8
		b.Emit(OpAtoD)  // data: 7 8
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 8 {
		t.Errorf("top = %d", got)
	}
	if v, _ := st.DataStack().At(0); mustIntValue(t, v) != 7 {
		t.Errorf("bottom = %s", v)
	}
	if st.ReturnStack().Len() != 0 {
		t.Errorf("return stack Len = %d, want 0", st.ReturnStack().Len())
	}
}

func TestJmp(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		over := b.NewLabel()
		b.EmitConstLabel(over)
		b.Emit(OpJmp)
		b.EmitInt(111) // skipped
		b.Mark(over)
		b.EmitInt(222)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 222 {
		t.Errorf("top = %d", got)
	}
	if st.DataStack().Len() != 1 {
		t.Errorf("Len = %d", st.DataStack().Len())
	}
}

func TestJmpOutOfRange(t *testing.T) {
	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(1 << 30)
		b.Emit(OpJmp)
	})
	if !errors.Is(err, &BadValueError{Kind: BadValueContent}) {
		t.Fatalf("err = %v", err)
	}
}

func TestIf(t *testing.T) {
	build := func(cond int32) func(b *Builder) {
		return func(b *Builder) {
			els := b.NewLabel()
			b.EmitConstLabel(els)
			b.EmitInt(cond)
			b.Emit(OpIf)
			b.EmitInt(111)
			b.Emit(OpExitProg)
			b.Mark(els)
			b.EmitInt(222)
			b.Emit(OpExitProg)
		}
	}

	if got := topInt(t, runProgram(t, NewContext(), build(1))); got != 111 {
		t.Errorf("true branch = %d", got)
	}
	if got := topInt(t, runProgram(t, NewContext(), build(0))); got != 222 {
		t.Errorf("false branch = %d", got)
	}
}

func TestWhileLoop(t *testing.T) {
	// Counts 3 iterations. The loop exit address is pushed once and stays
	// on the stack until the condition finally fails.
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(0) // counter slot
		b.Emit(OpSetGlobal)
		// set_global records the length above the slot, so the counter
		// lives at offset -1.
		top := b.NewLabel()
		done := b.NewLabel()
		b.EmitConstLabel(done)
		b.Mark(top)
		b.EmitInt(-1)
		b.Emit(OpFetchGlobal)
		b.EmitInt(3)
		b.Emit(OpLess) // counter < 3
		b.Emit(OpWhile)
		// body: counter += 1
		b.EmitInt(-1)
		b.Emit(OpFetchGlobal)
		b.EmitInt(1)
		b.Emit(OpAdd)
		b.EmitInt(-1)
		b.Emit(OpStoreGlobal)
		b.EmitConstLabel(top)
		b.Emit(OpJmp)
		b.Mark(done)
		b.Emit(OpExitProg)
	})
	if st.DataStack().Len() != 1 {
		t.Fatalf("data Len = %d, want 1", st.DataStack().Len())
	}
	if v, _ := st.DataStack().At(0); mustIntValue(t, v) != 3 {
		t.Errorf("counter = %s", v)
	}
}

func TestPushBasePopBase(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(11)
		b.EmitInt(22)
		b.EmitInt(2) // arg count
		b.Emit(OpPushBase)
		b.Emit(OpExitProg)
	})
	if st.Base() != 0 {
		t.Errorf("Base = %d, want 0", st.Base())
	}
	if st.DataStack().Len() != 2 {
		t.Errorf("data Len = %d, want 2", st.DataStack().Len())
	}
	// The previous base, -1, was saved.
	if v, _ := st.ReturnStack().Top(); mustIntValue(t, v) != -1 {
		t.Errorf("saved base = %s", v)
	}

	st = runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(11)
		b.EmitInt(1)
		b.Emit(OpPushBase)
		b.Emit(OpPopBase)
		b.Emit(OpExitProg)
	})
	if st.Base() != -1 {
		t.Errorf("Base after pop_base = %d, want -1", st.Base())
	}
	if st.ReturnStack().Len() != 0 {
		t.Errorf("return Len = %d, want 0", st.ReturnStack().Len())
	}
}

func TestPushBaseBadArgCount(t *testing.T) {
	st, err := failProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(10)
		b.EmitInt(5) // claims more args than exist
		b.Emit(OpPushBase)
	})
	if !errors.Is(err, &BadValueError{Kind: BadValueContent}) {
		t.Fatalf("err = %v", err)
	}
	// Nothing moved: both operands are still there, no base was saved.
	if st.DataStack().Len() != 2 {
		t.Errorf("data Len = %d, want 2", st.DataStack().Len())
	}
	if st.ReturnStack().Len() != 0 {
		t.Errorf("return Len = %d, want 0", st.ReturnStack().Len())
	}
	if st.Base() != -1 {
		t.Errorf("Base = %d, want -1", st.Base())
	}
}

func TestPopToBase(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(1)
		b.EmitInt(0)
		b.Emit(OpPushBase) // base = 1
		b.EmitInt(2)
		b.EmitInt(3)
		b.Emit(OpPopToBase)
		b.Emit(OpExitProg)
	})
	if st.DataStack().Len() != 1 {
		t.Errorf("data Len = %d, want 1", st.DataStack().Len())
	}

	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(1)
		b.Emit(OpPopToBase)
	})
	var miscErr *MiscError
	if !errors.As(err, &miscErr) {
		t.Fatalf("pop_to_base without base: err = %v", err)
	}
}

func TestGlobalFrame(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(100) // slot 0
		b.EmitInt(200) // slot 1
		b.Emit(OpSetGlobal)
		b.EmitInt(-2)
		b.Emit(OpFetchGlobal) // pushes 100
		b.EmitInt(-1)
		b.Emit(OpStoreGlobal) // slot 1 = 100
		b.EmitInt(-1)
		b.Emit(OpFetchGlobal)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 100 {
		t.Errorf("slot 1 = %d", got)
	}

	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(0)
		b.Emit(OpFetchGlobal)
	})
	var miscErr *MiscError
	if !errors.As(err, &miscErr) {
		t.Fatalf("fetch_global without frame: err = %v", err)
	}
}

func TestExternalVars(t *testing.T) {
	ctx := NewContext()
	st := runProgram(t, ctx, func(b *Builder) {
		b.EmitName("counter")
		b.Emit(OpExportVar)
		b.EmitName("counter")
		b.EmitInt(5)
		b.Emit(OpStoreExternal)
		b.EmitName("counter")
		b.Emit(OpFetchExternal)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 5 {
		t.Errorf("fetched = %d", got)
	}
	if v, ok := ctx.ExternalVars["counter"]; !ok || mustIntValue(t, v) != 5 {
		t.Errorf("ExternalVars[counter] = %s, %v", v, ok)
	}
}

func TestExportVarReadsNull(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitName("fresh")
		b.Emit(OpExportVar)
		b.EmitName("fresh")
		b.Emit(OpFetchExternal)
		b.Emit(OpExitProg)
	})
	if v, _ := st.DataStack().Top(); v.Kind() != KindNull {
		t.Errorf("fresh export reads %s, want Null", v)
	}
}

func TestExternalVarErrors(t *testing.T) {
	var miscErr *MiscError

	_, err := failProgram(t, NewContext(), func(b *Builder) {
		b.EmitName("dup")
		b.Emit(OpExportVar)
		b.EmitName("dup")
		b.Emit(OpExportVar)
	})
	if !errors.As(err, &miscErr) {
		t.Errorf("duplicate export: err = %v", err)
	}

	_, err = failProgram(t, NewContext(), func(b *Builder) {
		b.EmitName("ghost")
		b.Emit(OpFetchExternal)
	})
	if !errors.As(err, &miscErr) {
		t.Errorf("fetch missing: err = %v", err)
	}

	_, err = failProgram(t, NewContext(), func(b *Builder) {
		b.EmitName("ghost")
		b.EmitInt(1)
		b.Emit(OpStoreExternal)
	})
	if !errors.As(err, &miscErr) {
		t.Errorf("store missing: err = %v", err)
	}
}

func TestStoreExternalResolvesStrings(t *testing.T) {
	ctx := NewContext()
	runProgram(t, ctx, func(b *Builder) {
		b.EmitName("greeting")
		b.Emit(OpExportVar)
		b.EmitName("greeting")
		b.EmitString("hi")
		b.Emit(OpStoreExternal)
		b.Emit(OpExitProg)
	})
	v := ctx.ExternalVars["greeting"]
	// The stored value must not depend on the program's table anymore.
	s, err := v.AsString(nil)
	if err != nil {
		t.Fatalf("stored value unresolved: %v", err)
	}
	if *s != "hi" {
		t.Errorf("stored = %q", *s)
	}
}

func TestGlobalVarBridge(t *testing.T) {
	ctx := NewContext()
	ctx.GlobalVars = []int32{7, 8}

	st := runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(1)
		b.Emit(OpGlobalVar)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 8 {
		t.Errorf("global_var 1 = %d", got)
	}

	// Out of range reads the sentinel instead of failing.
	st = runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(5)
		b.Emit(OpGlobalVar)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != -1 {
		t.Errorf("global_var 5 = %d, want -1", got)
	}
}

func TestSetGlobalVarHook(t *testing.T) {
	ctx := NewContext()
	ctx.GlobalVars = []int32{0}

	var gotIdx, gotVal int32
	ctx.SetGlobalVar = func(index, value int32) error {
		gotIdx, gotVal = index, value
		return nil
	}
	runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(0)
		b.EmitInt(99)
		b.Emit(OpSetGlobalVar)
		b.Emit(OpExitProg)
	})
	if gotIdx != 0 || gotVal != 99 {
		t.Errorf("hook got %d, %d", gotIdx, gotVal)
	}
	// The interpreter itself never wrote the slice.
	if ctx.GlobalVars[0] != 0 {
		t.Errorf("GlobalVars[0] = %d", ctx.GlobalVars[0])
	}

	// Without a hook the write is dropped.
	ctx.SetGlobalVar = nil
	runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(0)
		b.EmitInt(42)
		b.Emit(OpSetGlobalVar)
		b.Emit(OpExitProg)
	})
	if ctx.GlobalVars[0] != 0 {
		t.Errorf("GlobalVars[0] = %d after dropped write", ctx.GlobalVars[0])
	}
}

func TestLocalAndMapVars(t *testing.T) {
	ctx := NewContext()
	ctx.LocalVars = []int32{5}
	ctx.MapVars = []int32{6}

	st := runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(0)
		b.EmitInt(50)
		b.Emit(OpSetLocalVar)
		b.EmitInt(0)
		b.EmitInt(60)
		b.Emit(OpSetMapVar)
		b.EmitInt(0)
		b.Emit(OpLocalVar)
		b.EmitInt(0)
		b.Emit(OpMapVar)
		b.Emit(OpAdd)
		b.EmitInt(9)
		b.Emit(OpLocalVar) // out of range, reads 0
		b.Emit(OpAdd)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 110 {
		t.Errorf("sum = %d, want 110", got)
	}
	if ctx.LocalVars[0] != 50 || ctx.MapVars[0] != 60 {
		t.Errorf("vars = %v, %v", ctx.LocalVars, ctx.MapVars)
	}
}

func TestSetMapVarHook(t *testing.T) {
	ctx := NewContext()
	var gotIdx, gotVal int32
	ctx.SetMapVar = func(index, value int32) error {
		gotIdx, gotVal = index, value
		return nil
	}
	runProgram(t, ctx, func(b *Builder) {
		b.EmitInt(2)
		b.EmitInt(33)
		b.Emit(OpSetMapVar)
		b.Emit(OpExitProg)
	})
	if gotIdx != 2 || gotVal != 33 {
		t.Errorf("hook got %d, %d", gotIdx, gotVal)
	}
}

func TestSelfObjAndOverrides(t *testing.T) {
	ctx := NewContext()
	ctx.SelfObj = Object(77)

	st := runProgram(t, ctx, func(b *Builder) {
		b.Emit(OpSelfObj)
		b.Emit(OpScriptOverrides)
		b.Emit(OpExitProg)
	})
	v, _ := st.DataStack().Top()
	if h, err := v.AsObject(); err != nil || h != 77 {
		t.Errorf("self_obj = %s", v)
	}
	if !ctx.Overridden {
		t.Error("script_overrides did not set Overridden")
	}
}

func TestGameTime(t *testing.T) {
	ctx := NewContext()
	ctx.GameTime = func() int32 { return 1234 }

	st := runProgram(t, ctx, func(b *Builder) {
		b.Emit(OpGameTime)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 1234 {
		t.Errorf("game_time = %d", got)
	}
}

func TestExecuteProc(t *testing.T) {
	prg := buildProgram(t, func(b *Builder) {
		body := b.NewLabel()
		b.DeclareProc("start", 0, 0, 0, b.NoCondition(), body)
		b.Emit(OpExitProg)
		b.Mark(body)
		b.EmitInt(42)
		b.Emit(OpPopFlagsReturn) // discards the prologue flags word
		b.Emit(OpPopReturn)      // resumes at the saved position, which halts
	})
	st := NewProgramState(prg, 0)
	if err := st.ExecuteProc("start", NewContext()); err != nil {
		t.Fatalf("ExecuteProc: %v", err)
	}
	// Three scratch slots from the prologue plus the body's value.
	if st.DataStack().Len() != 4 {
		t.Fatalf("data Len = %d, want 4", st.DataStack().Len())
	}
	if got := topInt(t, st); got != 42 {
		t.Errorf("top = %d", got)
	}
	if st.ReturnStack().Len() != 0 {
		t.Errorf("return Len = %d, want 0", st.ReturnStack().Len())
	}

	var procErr *BadProcedureError
	if err := st.ExecuteProc("no_such_proc", NewContext()); !errors.As(err, &procErr) {
		t.Errorf("missing proc: err = %v", err)
	}
}

func TestComparisonOpcodes(t *testing.T) {
	tests := []struct {
		op   Opcode
		l, r int32
		want int32
	}{
		{OpLess, 1, 2, 1},
		{OpLess, 2, 2, 0},
		{OpLessEqual, 2, 2, 1},
		{OpGreater, 3, 2, 1},
		{OpGreaterEqual, 1, 2, 0},
		{OpEqual, 2, 2, 1},
		{OpNotEqual, 2, 2, 0},
	}
	for _, tt := range tests {
		st := runProgram(t, NewContext(), func(b *Builder) {
			b.EmitInt(tt.l)
			b.EmitInt(tt.r)
			b.Emit(tt.op)
			b.Emit(OpExitProg)
		})
		if got := topInt(t, st); got != tt.want {
			t.Errorf("%d %s %d = %d, want %d", tt.l, tt.op, tt.r, got, tt.want)
		}
	}
}

func TestLogicOpcodes(t *testing.T) {
	st := runProgram(t, NewContext(), func(b *Builder) {
		b.EmitInt(1)
		b.EmitString("")
		b.Emit(OpAnd) // strings are truthy even when empty
		b.EmitInt(0)
		b.Emit(OpOr)
		b.Emit(OpNot)
		b.Emit(OpExitProg)
	})
	if got := topInt(t, st); got != 0 {
		t.Errorf("not(1 and \"\" or 0) = %d", got)
	}
}

func TestStackOverflowDuringRun(t *testing.T) {
	prg := buildProgram(t, func(b *Builder) {
		top := b.Here()
		b.EmitInt(1)
		b.EmitConstLabel(top)
		b.Emit(OpJmp)
	})
	st := NewProgramState(prg, 5)
	if err := st.Run(NewContext()); !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v", err)
	}
}
