package vm

// Stack is a bounded LIFO of values. Every failing operation leaves the
// stack exactly as it was; callers can rely on that when an instruction
// aborts halfway through its pops.
type Stack struct {
	name   string
	values []Value
	maxLen int
}

// NewStack creates a stack holding at most maxLen values. The name appears
// in logs and exists purely for diagnostics.
func NewStack(name string, maxLen int) *Stack {
	return &Stack{name: name, maxLen: maxLen}
}

// Name returns the diagnostic name.
func (s *Stack) Name() string {
	return s.name
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int {
	return len(s.values)
}

// IsEmpty reports whether the stack holds no values.
func (s *Stack) IsEmpty() bool {
	return len(s.values) == 0
}

// Push appends a value, failing with ErrStackOverflow at capacity.
func (s *Stack) Push(v Value) error {
	if len(s.values) >= s.maxLen {
		return ErrStackOverflow
	}
	s.values = append(s.values, v)
	return nil
}

// Pop removes and returns the top value, failing with ErrStackUnderflow
// when empty.
func (s *Stack) Pop() (Value, error) {
	if len(s.values) == 0 {
		return Value{}, ErrStackUnderflow
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// Top returns the top value without removing it.
func (s *Stack) Top() (Value, error) {
	if len(s.values) == 0 {
		return Value{}, ErrStackUnderflow
	}
	return s.values[len(s.values)-1], nil
}

// At returns the value at index i counted from the bottom. An index outside
// the live range is a Content value-error.
func (s *Stack) At(i int) (Value, error) {
	if i < 0 || i >= len(s.values) {
		return Value{}, badContent()
	}
	return s.values[i], nil
}

// SetAt replaces the value at index i counted from the bottom.
func (s *Stack) SetAt(i int, v Value) error {
	if i < 0 || i >= len(s.values) {
		return badContent()
	}
	s.values[i] = v
	return nil
}

// Truncate discards values until at most n remain. It only shrinks;
// truncating to more than the current length fails with ErrStackUnderflow.
func (s *Stack) Truncate(n int) error {
	if n < 0 || n > len(s.values) {
		return ErrStackUnderflow
	}
	s.values = s.values[:n]
	return nil
}

// Values exposes the live slice bottom-first, for inspection only.
func (s *Stack) Values() []Value {
	return s.values
}
