package vm

// Context is the world a program executes against: the variables shared
// with other programs and the hooks back into the host. The interpreter
// only reads GlobalVars; writes go through the SetGlobalVar hook so the
// host stays the single owner of that state.
type Context struct {
	// ExternalVars are named variables shared across programs. Keys come
	// into existence through export_var and are written by store_external.
	ExternalVars map[string]Value

	// GlobalVars are the numbered game globals, read-only here.
	GlobalVars []int32

	// LocalVars are the variables attached to the executing script instance.
	LocalVars []int32

	// MapVars are the variables scoped to the current map.
	MapVars []int32

	// SelfObj is pushed by self_obj, usually an object handle or Null.
	SelfObj Value

	// GameTime supplies the current game time in ticks. Nil reads as 0.
	GameTime func() int32

	// SetGlobalVar is invoked for set_global_var. When nil the write is
	// dropped with a warning.
	SetGlobalVar func(index int32, value int32) error

	// SetMapVar, when set, replaces the in-place MapVars write so the host
	// can persist the change.
	SetMapVar func(index int32, value int32) error

	// Overridden is set by script_overrides to suppress the host's default
	// handling of the current event.
	Overridden bool
}

// NewContext creates a context with an empty external variable map.
func NewContext() *Context {
	return &Context{ExternalVars: map[string]Value{}}
}
