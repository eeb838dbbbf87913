package vm

import "testing"

func TestPredefinedProcNames(t *testing.T) {
	tests := []struct {
		p    PredefinedProc
		name string
	}{
		{ProcMapEnter, "map_enter_p_proc"},
		{ProcMapUpdate, "map_update_p_proc"},
		{ProcMapExit, "map_exit_p_proc"},
		{ProcStart, "start"},
	}
	for _, tt := range tests {
		if got := tt.p.Name(); got != tt.name {
			t.Errorf("Name = %q, want %q", got, tt.name)
		}
	}
}

func TestVmLoadProgramCaches(t *testing.T) {
	img := buildImage(t, func(b *Builder) { b.Emit(OpExitProg) })

	v := New(Config{})
	prg1, err := v.LoadProgram("script", img)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	prg2, err := v.LoadProgram("script", img)
	if err != nil {
		t.Fatalf("LoadProgram again: %v", err)
	}
	if prg1 != prg2 {
		t.Error("second load did not return the cached program")
	}
	if got, ok := v.Program("script"); !ok || got != prg1 {
		t.Error("Program lookup failed")
	}
	if _, ok := v.Program("other"); ok {
		t.Error("Program found a phantom entry")
	}
}

func TestVmStates(t *testing.T) {
	img := buildImage(t, func(b *Builder) { b.Emit(OpExitProg) })

	v := New(Config{MaxStackLen: 16})
	prg, err := v.LoadProgram("script", img)
	if err != nil {
		t.Fatal(err)
	}

	h1, st1 := v.NewState(prg)
	h2, st2 := v.NewState(prg)
	if h1 == h2 {
		t.Fatal("handles collide")
	}
	if st1 == st2 {
		t.Fatal("states are shared")
	}
	if got, ok := v.State(h1); !ok || got != st1 {
		t.Error("State(h1) lookup failed")
	}

	v.RemoveState(h1)
	if _, ok := v.State(h1); ok {
		t.Error("state survived removal")
	}
}

func TestVmExecutePredefined(t *testing.T) {
	img := buildImage(t, func(b *Builder) {
		body := b.NewLabel()
		b.DeclareProc("map_enter_p_proc", 0, 0, 0, b.NoCondition(), body)
		b.Emit(OpExitProg)
		b.Mark(body)
		b.EmitInt(1)
		b.Emit(OpExitProg)
	})

	v := New(Config{})
	prg, err := v.LoadProgram("script", img)
	if err != nil {
		t.Fatal(err)
	}
	h, st := v.NewState(prg)

	ran, err := v.ExecutePredefined(h, ProcMapEnter, NewContext())
	if err != nil {
		t.Fatalf("ExecutePredefined: %v", err)
	}
	if !ran {
		t.Fatal("map_enter_p_proc did not run")
	}
	if got := topInt(t, st); got != 1 {
		t.Errorf("top = %d", got)
	}

	// A program without the procedure is skipped, not failed.
	ran, err = v.ExecutePredefined(h, ProcMapExit, NewContext())
	if err != nil {
		t.Fatalf("ExecutePredefined: %v", err)
	}
	if ran {
		t.Error("missing procedure reported as run")
	}

	if _, err := v.ExecutePredefined(12345, ProcStart, NewContext()); err == nil {
		t.Error("unknown handle succeeded")
	}
}
