package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Handle is an opaque identifier for a host-owned game object. The
// interpreter never looks inside it; it only moves handles between stacks
// and compares them for identity. The zero handle is never a live object.
type Handle uint64

// Kind tags the variants of Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged union representing any datum on a stack: null, a 32-bit
// integer, a 32-bit float, a string (indirect table reference or resolved
// shared text), or an opaque object handle. Values are cheap to copy; a
// resolved string shares its backing text with every other Value holding it.
type Value struct {
	kind Kind
	i    int32
	f    float32
	s    StringValue
	obj  Handle
}

// Null is the null value.
var Null = Value{kind: KindNull}

// Int creates an integer value.
func Int(v int32) Value {
	return Value{kind: KindInt, i: v}
}

// Float creates a float value.
func Float(v float32) Value {
	return Value{kind: KindFloat, f: v}
}

// FromBool creates Int(1) for true and Int(0) for false.
func FromBool(v bool) Value {
	if v {
		return Int(1)
	}
	return Int(0)
}

// Str creates a direct string value with fresh backing text.
func Str(s string) Value {
	return Value{kind: KindString, s: DirectString(s)}
}

// SharedStr creates a direct string value sharing existing backing text.
func SharedStr(s *string) Value {
	return Value{kind: KindString, s: StringValue{str: s}}
}

// IndirectStr creates a string value referencing the string table by id.
func IndirectStr(id int32) Value {
	return Value{kind: KindString, s: StringValue{id: id}}
}

// Object creates an object-handle value.
func Object(h Handle) Value {
	return Value{kind: KindObject, obj: h}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// String renders the value for diagnostics. Indirect strings are shown by id,
// not resolved.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "Null"
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("Float(%v)", v.f)
	case KindString:
		if v.s.str != nil {
			return fmt.Sprintf("Str(%q)", *v.s.str)
		}
		return fmt.Sprintf("Str(#%d)", v.s.id)
	case KindObject:
		return fmt.Sprintf("Obj(%d)", uint64(v.obj))
	default:
		return fmt.Sprintf("Value(%d)", int(v.kind))
	}
}

// ---------------------------------------------------------------------------
// Narrowing accessors. These succeed only when the tag matches.
// ---------------------------------------------------------------------------

// AsInt returns the integer payload or a Type value-error.
func (v Value) AsInt() (int32, error) {
	if v.kind != KindInt {
		return 0, badType()
	}
	return v.i, nil
}

// AsFloat returns the float payload or a Type value-error.
func (v Value) AsFloat() (float32, error) {
	if v.kind != KindFloat {
		return 0, badType()
	}
	return v.f, nil
}

// AsStringValue returns the string payload without resolving it.
func (v Value) AsStringValue() (StringValue, error) {
	if v.kind != KindString {
		return StringValue{}, badType()
	}
	return v.s, nil
}

// AsString returns the resolved string, consulting the table for indirect
// references. An unresolvable id is a Content value-error.
func (v Value) AsString(strings *StringTable) (*string, error) {
	sv, err := v.AsStringValue()
	if err != nil {
		return nil, err
	}
	return sv.Resolve(strings)
}

// AsObject returns the object handle or a Type value-error.
func (v Value) AsObject() (Handle, error) {
	if v.kind != KindObject {
		return 0, badType()
	}
	return v.obj, nil
}

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// CoerceToInt converts numeric values to int, truncating floats.
func (v Value) CoerceToInt() (int32, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindFloat:
		return int32(v.f), nil
	default:
		return 0, badType()
	}
}

// CoerceToFloat converts numeric values to float.
func (v Value) CoerceToFloat() (float32, error) {
	switch v.kind {
	case KindInt:
		return float32(v.i), nil
	case KindFloat:
		return v.f, nil
	default:
		return 0, badType()
	}
}

// CoerceToString converts ints and floats to their canonical decimal text
// and resolves string values. Floats always carry five decimal places, so
// Float(12.3) reads "12.30000". Null and objects are Type value-errors.
func (v Value) CoerceToString(strings *StringTable) (*string, error) {
	switch v.kind {
	case KindInt:
		s := strconv.FormatInt(int64(v.i), 10)
		return &s, nil
	case KindFloat:
		s := fmt.Sprintf("%.5f", v.f)
		return &s, nil
	case KindString:
		return v.s.Resolve(strings)
	default:
		return nil, badType()
	}
}

// Resolved returns the value with any indirect string reference replaced by
// its resolved form; non-string values pass through unchanged.
func (v Value) Resolved(strings *StringTable) (Value, error) {
	if v.kind != KindString {
		return v, nil
	}
	sv, err := v.s.Resolved(strings)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindString, s: sv}, nil
}

// ---------------------------------------------------------------------------
// Truthiness and logic
// ---------------------------------------------------------------------------

// Test returns the truthiness of the value: nonzero numbers, every string
// (even empty or unresolvable), and every object handle are true.
func (v Value) Test() bool {
	switch v.kind {
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return true
	case KindObject:
		return true
	default:
		return false
	}
}

// Not returns the logical negation as Int(0) or Int(1).
func (v Value) Not() Value {
	return FromBool(!v.Test())
}

// Neg returns the arithmetic negation of a numeric value.
func (v Value) Neg() (Value, error) {
	switch v.kind {
	case KindInt:
		return Int(-v.i), nil
	case KindFloat:
		return Float(-v.f), nil
	default:
		return Value{}, badType()
	}
}

// ---------------------------------------------------------------------------
// Arithmetic. Integer operations use checked 32-bit math: overflow, division
// by zero and MinInt32/-1 are Content value-errors, matching the compiled
// scripts' expectations.
// ---------------------------------------------------------------------------

// Add adds numbers, promoting to float when either side is float. When
// either side is a string the other is converted to its canonical text and
// the result is the concatenation.
func (v Value) Add(o Value, strings *StringTable) (Value, error) {
	if v.kind == KindString || o.kind == KindString {
		l, err := v.CoerceToString(strings)
		if err != nil {
			return Value{}, err
		}
		r, err := o.CoerceToString(strings)
		if err != nil {
			return Value{}, err
		}
		return Str(*l + *r), nil
	}
	if v.kind == KindFloat || o.kind == KindFloat {
		l, err := v.CoerceToFloat()
		if err != nil {
			return Value{}, err
		}
		r, err := o.CoerceToFloat()
		if err != nil {
			return Value{}, err
		}
		return Float(l + r), nil
	}
	l, err := v.AsInt()
	if err != nil {
		return Value{}, err
	}
	r, err := o.AsInt()
	if err != nil {
		return Value{}, err
	}
	sum, ok := addI32(l, r)
	if !ok {
		return Value{}, badContent()
	}
	return Int(sum), nil
}

// Sub subtracts numbers; non-numeric operands are Type value-errors.
func (v Value) Sub(o Value) (Value, error) {
	return numericBinary(v, o,
		func(l, r int32) (int32, bool) { return subI32(l, r) },
		func(l, r float32) (float32, bool) { return l - r, true })
}

// Mul multiplies numbers; non-numeric operands are Type value-errors.
func (v Value) Mul(o Value) (Value, error) {
	return numericBinary(v, o,
		func(l, r int32) (int32, bool) { return mulI32(l, r) },
		func(l, r float32) (float32, bool) { return l * r, true })
}

// Div divides numbers. Division by zero is a Content value-error for both
// ints and floats.
func (v Value) Div(o Value) (Value, error) {
	return numericBinary(v, o,
		func(l, r int32) (int32, bool) { return divI32(l, r) },
		func(l, r float32) (float32, bool) { return l / r, r != 0 })
}

// Rem is the integer remainder; both operands must already be ints.
func (v Value) Rem(o Value) (Value, error) {
	l, err := v.AsInt()
	if err != nil {
		return Value{}, err
	}
	r, err := o.AsInt()
	if err != nil {
		return Value{}, err
	}
	rem, ok := remI32(l, r)
	if !ok {
		return Value{}, badContent()
	}
	return Int(rem), nil
}

func numericBinary(v, o Value,
	ints func(l, r int32) (int32, bool),
	floats func(l, r float32) (float32, bool)) (Value, error) {

	if !v.isNumeric() || !o.isNumeric() {
		return Value{}, badType()
	}
	if v.kind == KindFloat || o.kind == KindFloat {
		l, _ := v.CoerceToFloat()
		r, _ := o.CoerceToFloat()
		res, ok := floats(l, r)
		if !ok {
			return Value{}, badContent()
		}
		return Float(res), nil
	}
	res, ok := ints(v.i, o.i)
	if !ok {
		return Value{}, badContent()
	}
	return Int(res), nil
}

func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// BwAnd is bitwise and; both operands are coerced to int.
func (v Value) BwAnd(o Value) (Value, error) {
	l, r, err := coercedIntPair(v, o)
	if err != nil {
		return Value{}, err
	}
	return Int(l & r), nil
}

// BwOr is bitwise or; both operands are coerced to int.
func (v Value) BwOr(o Value) (Value, error) {
	l, r, err := coercedIntPair(v, o)
	if err != nil {
		return Value{}, err
	}
	return Int(l | r), nil
}

// BwXor is bitwise exclusive or; both operands are coerced to int.
func (v Value) BwXor(o Value) (Value, error) {
	l, r, err := coercedIntPair(v, o)
	if err != nil {
		return Value{}, err
	}
	return Int(l ^ r), nil
}

// BwNot is bitwise complement; the operand is coerced to int.
func (v Value) BwNot() (Value, error) {
	i, err := v.CoerceToInt()
	if err != nil {
		return Value{}, err
	}
	return Int(^i), nil
}

func coercedIntPair(v, o Value) (int32, int32, error) {
	l, err := v.CoerceToInt()
	if err != nil {
		return 0, 0, err
	}
	r, err := o.CoerceToInt()
	if err != nil {
		return 0, 0, err
	}
	return l, r, nil
}

// ---------------------------------------------------------------------------
// Ordering and equality
// ---------------------------------------------------------------------------

// Compare orders two values, returning -1, 0 or 1 and whether the operands
// were comparable at all (NaN makes floats unordered).
//
// The cross-type rules are the legacy ones compiled scripts rely on:
//
//   - numbers compare numerically, ints promoting to float as needed;
//   - a number paired with a string becomes its canonical decimal text and
//     the two strings compare lexically, case-SENSITIVELY;
//   - two strings compare case-INSENSITIVELY (lowercase fold).
//
// The asymmetry is deliberate and load-bearing. Null and object operands are
// Type value-errors.
func (v Value) Compare(o Value, tbl *StringTable) (int, bool, error) {
	lk, rk := v.kind, o.kind
	if lk == KindNull || lk == KindObject || rk == KindNull || rk == KindObject {
		return 0, false, badType()
	}

	switch {
	case lk == KindString && rk == KindString:
		l, err := v.s.Resolve(tbl)
		if err != nil {
			return 0, false, err
		}
		r, err := o.s.Resolve(tbl)
		if err != nil {
			return 0, false, err
		}
		return strings.Compare(strings.ToLower(*l), strings.ToLower(*r)), true, nil

	case lk == KindString || rk == KindString:
		l, err := v.CoerceToString(tbl)
		if err != nil {
			return 0, false, err
		}
		r, err := o.CoerceToString(tbl)
		if err != nil {
			return 0, false, err
		}
		return strings.Compare(*l, *r), true, nil

	case lk == KindInt && rk == KindInt:
		switch {
		case v.i < o.i:
			return -1, true, nil
		case v.i > o.i:
			return 1, true, nil
		default:
			return 0, true, nil
		}

	default:
		l, _ := v.CoerceToFloat()
		r, _ := o.CoerceToFloat()
		if math.IsNaN(float64(l)) || math.IsNaN(float64(r)) {
			return 0, false, nil
		}
		switch {
		case l < r:
			return -1, true, nil
		case l > r:
			return 1, true, nil
		default:
			return 0, true, nil
		}
	}
}

// Equal tests two values for equality. Null equals only Null; objects
// compare by handle identity; any other pairing involving null or an object
// is unequal. Everything else follows Compare, so string equality is
// case-insensitive like string ordering.
func (v Value) Equal(o Value, tbl *StringTable) (bool, error) {
	lSpecial := v.kind == KindNull || v.kind == KindObject
	rSpecial := o.kind == KindNull || o.kind == KindObject
	if lSpecial || rSpecial {
		if v.kind != o.kind {
			return false, nil
		}
		if v.kind == KindNull {
			return true, nil
		}
		return v.obj == o.obj, nil
	}
	ord, ok, err := v.Compare(o, tbl)
	if err != nil {
		return false, err
	}
	return ok && ord == 0, nil
}

// ---------------------------------------------------------------------------
// Checked 32-bit integer arithmetic
// ---------------------------------------------------------------------------

func addI32(a, b int32) (int32, bool) {
	r := int64(a) + int64(b)
	return int32(r), r >= math.MinInt32 && r <= math.MaxInt32
}

func subI32(a, b int32) (int32, bool) {
	r := int64(a) - int64(b)
	return int32(r), r >= math.MinInt32 && r <= math.MaxInt32
}

func mulI32(a, b int32) (int32, bool) {
	r := int64(a) * int64(b)
	return int32(r), r >= math.MinInt32 && r <= math.MaxInt32
}

func divI32(a, b int32) (int32, bool) {
	if b == 0 || (a == math.MinInt32 && b == -1) {
		return 0, false
	}
	return a / b, true
}

func remI32(a, b int32) (int32, bool) {
	if b == 0 || (a == math.MinInt32 && b == -1) {
		return 0, false
	}
	return a % b, true
}

// ---------------------------------------------------------------------------
// StringValue
// ---------------------------------------------------------------------------

// StringValue is either an indirect reference into a string table or
// already-resolved text shared by every Value holding it.
type StringValue struct {
	id  int32
	str *string // non-nil means direct
}

// DirectString creates a resolved string value with fresh backing text.
func DirectString(s string) StringValue {
	return StringValue{str: &s}
}

// IndirectString creates a table reference.
func IndirectString(id int32) StringValue {
	return StringValue{id: id}
}

// IsDirect reports whether the value is already resolved.
func (s StringValue) IsDirect() bool {
	return s.str != nil
}

// ID returns the table id of an indirect reference. Only meaningful when
// IsDirect is false.
func (s StringValue) ID() int32 {
	return s.id
}

// Resolve returns the shared backing text, consulting the table for an
// indirect reference. An absent id is a Content value-error, never a panic.
func (s StringValue) Resolve(tbl *StringTable) (*string, error) {
	if s.str != nil {
		return s.str, nil
	}
	if tbl != nil {
		if r, ok := tbl.Get(s.id); ok {
			return r, nil
		}
	}
	return nil, badContent()
}

// Resolved returns the direct form of the value.
func (s StringValue) Resolved(tbl *StringTable) (StringValue, error) {
	r, err := s.Resolve(tbl)
	if err != nil {
		return StringValue{}, err
	}
	return StringValue{str: r}, nil
}
