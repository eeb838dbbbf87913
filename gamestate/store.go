// Package gamestate persists the host-owned game variables scripts read and
// write through the interpreter's bridge opcodes.
package gamestate

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/geck/vm"
)

// Store is the single writer of the persistent global (GVAR) and map-scoped
// (MVAR) variable arrays. The interpreter itself only ever reads them; all
// writes funnel through the hooks the Store installs on a Context.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	globals []int32
	mapVars map[string][]int32
}

// Open opens or creates the store database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_vars (
		idx   INTEGER PRIMARY KEY,
		value INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating global_vars table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS map_vars (
		map   TEXT NOT NULL,
		idx   INTEGER NOT NULL,
		value INTEGER NOT NULL,
		PRIMARY KEY (map, idx)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating map_vars table: %w", err)
	}

	return &Store{
		db:      db,
		mapVars: map[string][]int32{},
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitGlobals loads the global array, seeding missing indexes from defaults.
// Already-stored values win over the defaults.
func (s *Store) InitGlobals(defaults []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.globals = make([]int32, len(defaults))
	copy(s.globals, defaults)

	rows, err := s.db.Query("SELECT idx, value FROM global_vars")
	if err != nil {
		return fmt.Errorf("loading global_vars: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var value int32
		if err := rows.Scan(&idx, &value); err != nil {
			return fmt.Errorf("scanning global_vars: %w", err)
		}
		if idx >= 0 && idx < len(s.globals) {
			s.globals[idx] = value
		}
	}
	return rows.Err()
}

// Globals returns the cached global array. The slice is shared with every
// bound Context; only SetGlobal may write it.
func (s *Store) Globals() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globals
}

// SetGlobal writes one global variable through to the database.
func (s *Store) SetGlobal(index, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || int(index) >= len(s.globals) {
		return fmt.Errorf("global var %d out of range (have %d)", index, len(s.globals))
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO global_vars (idx, value) VALUES (?, ?)",
		index, value,
	); err != nil {
		return fmt.Errorf("saving global var %d: %w", index, err)
	}
	s.globals[index] = value
	return nil
}

// LoadMapVars loads the variable array of a named map, growing it to count
// entries seeded with zero.
func (s *Store) LoadMapVars(mapName string, count int) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := make([]int32, count)
	rows, err := s.db.Query("SELECT idx, value FROM map_vars WHERE map = ?", mapName)
	if err != nil {
		return nil, fmt.Errorf("loading map_vars for %q: %w", mapName, err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var value int32
		if err := rows.Scan(&idx, &value); err != nil {
			return nil, fmt.Errorf("scanning map_vars: %w", err)
		}
		if idx >= 0 && idx < len(vars) {
			vars[idx] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.mapVars[mapName] = vars
	return vars, nil
}

// SetMapVar writes one map variable through to the database.
func (s *Store) SetMapVar(mapName string, index, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, ok := s.mapVars[mapName]
	if !ok {
		return fmt.Errorf("map %q is not loaded", mapName)
	}
	if index < 0 || int(index) >= len(vars) {
		return fmt.Errorf("map var %d out of range (have %d)", index, len(vars))
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO map_vars (map, idx, value) VALUES (?, ?, ?)",
		mapName, index, value,
	); err != nil {
		return fmt.Errorf("saving map var %s/%d: %w", mapName, index, err)
	}
	vars[index] = value
	return nil
}

// BindContext points a Context at the store: globals become readable, and
// the set-var opcodes write through here instead of mutating slices the
// interpreter does not own.
func (s *Store) BindContext(ctx *vm.Context, mapName string, mapVarCount int) error {
	if err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.globals == nil {
			return fmt.Errorf("globals not initialized")
		}
		return nil
	}(); err != nil {
		return err
	}

	mapVars, err := s.LoadMapVars(mapName, mapVarCount)
	if err != nil {
		return err
	}

	ctx.GlobalVars = s.Globals()
	ctx.MapVars = mapVars
	ctx.SetGlobalVar = s.SetGlobal
	ctx.SetMapVar = func(index, value int32) error {
		return s.SetMapVar(mapName, index, value)
	}
	return nil
}
