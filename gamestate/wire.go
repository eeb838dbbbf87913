package gamestate

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/geck/vm"
)

// cborEncMode uses canonical mode so identical snapshots encode to identical
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gamestate: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the serializable form of the cross-program variable state the
// host carries in saved games.
type Snapshot struct {
	ExternalVars map[string]SnapshotValue `cbor:"external_vars"`
}

// SnapshotValue is one serialized Value. Exactly one payload field is
// meaningful, selected by Kind; object handles are process-local and are
// deliberately not representable.
type SnapshotValue struct {
	Kind   string  `cbor:"kind"`
	Int    int32   `cbor:"int,omitempty"`
	Float  float32 `cbor:"float,omitempty"`
	String string  `cbor:"string,omitempty"`
}

const (
	kindNull   = "null"
	kindInt    = "int"
	kindFloat  = "float"
	kindString = "string"
)

// MarshalSnapshot serializes the external variables of a context. String
// values must already be resolved, which store_external guarantees; an
// object handle is an error since it cannot survive the process.
func MarshalSnapshot(ctx *vm.Context) ([]byte, error) {
	snap := Snapshot{ExternalVars: make(map[string]SnapshotValue, len(ctx.ExternalVars))}
	for name, v := range ctx.ExternalVars {
		sv, err := snapshotValue(v)
		if err != nil {
			return nil, fmt.Errorf("external variable %q: %w", name, err)
		}
		snap.ExternalVars[name] = sv
	}
	return cborEncMode.Marshal(&snap)
}

// UnmarshalSnapshot restores external variables into a context, replacing
// its current map.
func UnmarshalSnapshot(data []byte, ctx *vm.Context) error {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("gamestate: unmarshal snapshot: %w", err)
	}
	vars := make(map[string]vm.Value, len(snap.ExternalVars))
	for name, sv := range snap.ExternalVars {
		v, err := sv.value()
		if err != nil {
			return fmt.Errorf("external variable %q: %w", name, err)
		}
		vars[name] = v
	}
	ctx.ExternalVars = vars
	return nil
}

func snapshotValue(v vm.Value) (SnapshotValue, error) {
	switch v.Kind() {
	case vm.KindNull:
		return SnapshotValue{Kind: kindNull}, nil
	case vm.KindInt:
		i, _ := v.AsInt()
		return SnapshotValue{Kind: kindInt, Int: i}, nil
	case vm.KindFloat:
		f, _ := v.AsFloat()
		return SnapshotValue{Kind: kindFloat, Float: f}, nil
	case vm.KindString:
		s, err := v.AsString(nil)
		if err != nil {
			return SnapshotValue{}, fmt.Errorf("unresolved string reference")
		}
		return SnapshotValue{Kind: kindString, String: *s}, nil
	default:
		return SnapshotValue{}, fmt.Errorf("%s value is not serializable", v.Kind())
	}
}

func (sv SnapshotValue) value() (vm.Value, error) {
	switch sv.Kind {
	case kindNull:
		return vm.Null, nil
	case kindInt:
		return vm.Int(sv.Int), nil
	case kindFloat:
		return vm.Float(sv.Float), nil
	case kindString:
		return vm.Str(sv.String), nil
	default:
		return vm.Value{}, fmt.Errorf("unknown value kind %q", sv.Kind)
	}
}
