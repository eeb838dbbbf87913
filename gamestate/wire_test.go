package gamestate

import (
	"bytes"
	"testing"

	"github.com/chazu/geck/vm"
)

func TestSnapshotRoundtrip(t *testing.T) {
	ctx := vm.NewContext()
	ctx.ExternalVars["count"] = vm.Int(5)
	ctx.ExternalVars["rate"] = vm.Float(1.5)
	ctx.ExternalVars["name"] = vm.Str("narg")
	ctx.ExternalVars["slot"] = vm.Null

	data, err := MarshalSnapshot(ctx)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	restored := vm.NewContext()
	if err := UnmarshalSnapshot(data, restored); err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if len(restored.ExternalVars) != 4 {
		t.Fatalf("restored %d vars", len(restored.ExternalVars))
	}
	if i, _ := restored.ExternalVars["count"].AsInt(); i != 5 {
		t.Errorf("count = %s", restored.ExternalVars["count"])
	}
	if f, _ := restored.ExternalVars["rate"].AsFloat(); f != 1.5 {
		t.Errorf("rate = %s", restored.ExternalVars["rate"])
	}
	if s, err := restored.ExternalVars["name"].AsString(nil); err != nil || *s != "narg" {
		t.Errorf("name = %s", restored.ExternalVars["name"])
	}
	if restored.ExternalVars["slot"].Kind() != vm.KindNull {
		t.Errorf("slot = %s", restored.ExternalVars["slot"])
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	ctx := vm.NewContext()
	ctx.ExternalVars["a"] = vm.Int(1)
	ctx.ExternalVars["b"] = vm.Int(2)
	ctx.ExternalVars["c"] = vm.Str("x")

	first, err := MarshalSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := MarshalSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestSnapshotRejectsObjects(t *testing.T) {
	ctx := vm.NewContext()
	ctx.ExternalVars["obj"] = vm.Object(7)
	if _, err := MarshalSnapshot(ctx); err == nil {
		t.Fatal("object handle serialized")
	}
}

func TestSnapshotRejectsUnresolvedStrings(t *testing.T) {
	ctx := vm.NewContext()
	ctx.ExternalVars["s"] = vm.IndirectStr(12)
	if _, err := MarshalSnapshot(ctx); err == nil {
		t.Fatal("indirect string serialized")
	}
}
