// Geck CLI - runs and disassembles compiled script programs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/geck/config"
	"github.com/chazu/geck/gamestate"
	"github.com/chazu/geck/vm"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides geck.toml)")
	disasm := flag.Bool("d", false, "Disassemble programs instead of running them")
	procName := flag.String("p", "start", "Procedure to execute")
	mapName := flag.String("map", "default", "Map whose variables to load")
	configDir := flag.String("c", ".", "Directory to search for geck.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geck [options] <program>...\n\n")
		fmt.Fprintf(os.Stderr, "Runs compiled script programs against the persistent game state.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geck door.geck                 # Run door.geck's start procedure\n")
		fmt.Fprintf(os.Stderr, "  geck -p map_enter_p_proc *.geck\n")
		fmt.Fprintf(os.Stderr, "  geck -d door.geck              # Print a disassembly listing\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	v := cfg.Log.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	commonlog.Configure(v, nil)

	if *disasm {
		os.Exit(disassemble(flag.Args()))
	}
	os.Exit(run(cfg, flag.Args(), *procName, *mapName))
}

func disassemble(paths []string) int {
	for _, path := range paths {
		prg, err := loadProgramFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Print(prg.Disassemble())
	}
	return 0
}

func run(cfg *config.Config, paths []string, procName, mapName string) int {
	store, err := gamestate.Open(cfg.DatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if err := store.InitGlobals(make([]int32, cfg.State.GlobalVars)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := vm.NewContext()
	if err := store.BindContext(ctx, mapName, cfg.State.MapVars); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	machine := vm.New(vm.Config{MaxStackLen: cfg.Vm.MaxStackLen})
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		prg, err := machine.LoadProgram(programName(path), data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			return 1
		}

		_, st := machine.NewState(prg)
		if _, _, ok := prg.ProcByName(procName); ok {
			err = st.ExecuteProc(procName, ctx)
		} else {
			err = st.Run(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", prg.Name(), err)
			return 1
		}
	}
	return 0
}

func loadProgramFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vm.LoadProgram(programName(path), data)
}

func programName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
