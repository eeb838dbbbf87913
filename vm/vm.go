package vm

// DefaultMaxStackLen bounds the data and return stacks when no explicit
// limit is configured.
const DefaultMaxStackLen = 2000

// Config carries the tunables shared by every state a Vm creates.
type Config struct {
	// MaxStackLen bounds each stack of every program state. Zero selects
	// DefaultMaxStackLen.
	MaxStackLen int
}

// StateHandle identifies a live program state within a Vm.
type StateHandle uint32

// PredefinedProc names the procedures the host invokes on well-known
// events rather than from bytecode.
type PredefinedProc int

const (
	ProcMapEnter PredefinedProc = iota
	ProcMapUpdate
	ProcMapExit
	ProcStart
)

// Name returns the procedure name the compiler emits for the event.
func (p PredefinedProc) Name() string {
	switch p {
	case ProcMapEnter:
		return "map_enter_p_proc"
	case ProcMapUpdate:
		return "map_update_p_proc"
	case ProcMapExit:
		return "map_exit_p_proc"
	case ProcStart:
		return "start"
	default:
		return ""
	}
}

// Vm owns loaded programs and the states executing them. It is the host's
// registry, not a scheduler; callers drive each state themselves.
type Vm struct {
	config     Config
	programs   map[string]*Program
	states     map[StateHandle]*ProgramState
	nextHandle StateHandle
}

// New creates an empty Vm.
func New(config Config) *Vm {
	if config.MaxStackLen <= 0 {
		config.MaxStackLen = DefaultMaxStackLen
	}
	return &Vm{
		config:   config,
		programs: map[string]*Program{},
		states:   map[StateHandle]*ProgramState{},
	}
}

// LoadProgram parses an image and caches it under name; loading the same
// name again returns the cached program.
func (v *Vm) LoadProgram(name string, data []byte) (*Program, error) {
	if prg, ok := v.programs[name]; ok {
		return prg, nil
	}
	prg, err := LoadProgram(name, data)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded program %s: %d procs, code at 0x%06x",
		name, len(prg.Procs()), prg.CodeStart())
	v.programs[name] = prg
	return prg, nil
}

// Program returns a previously loaded program.
func (v *Vm) Program(name string) (*Program, bool) {
	prg, ok := v.programs[name]
	return prg, ok
}

// NewState creates a state for prg and registers it under a fresh handle.
func (v *Vm) NewState(prg *Program) (StateHandle, *ProgramState) {
	st := NewProgramState(prg, v.config.MaxStackLen)
	h := v.nextHandle
	v.nextHandle++
	v.states[h] = st
	return h, st
}

// State looks a registered state up by handle.
func (v *Vm) State(h StateHandle) (*ProgramState, bool) {
	st, ok := v.states[h]
	return st, ok
}

// RemoveState drops a state from the registry.
func (v *Vm) RemoveState(h StateHandle) {
	delete(v.states, h)
}

// ExecutePredefined runs the given event procedure of a state. A program
// that does not define the procedure is skipped, which is the common case;
// the return reports whether it ran.
func (v *Vm) ExecutePredefined(h StateHandle, p PredefinedProc, ctx *Context) (bool, error) {
	st, ok := v.states[h]
	if !ok {
		return false, miscErrorf("no program state %d", h)
	}
	name := p.Name()
	if _, _, ok := st.Program().ProcByName(name); !ok {
		return false, nil
	}
	if err := st.ExecuteProc(name, ctx); err != nil {
		return true, err
	}
	return true, nil
}
