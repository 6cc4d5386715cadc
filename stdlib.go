package tswasm

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"
)

// stdlibExportNames are the symbols a standard-library module re-exports
// for every other language module to import: a handful of libc entry
// points a C-compiled grammar scanner typically pulls in, plus the two
// operator new/delete symbols a C++-compiled one needs.
var stdlibExportNames = []string{
	"malloc", "calloc", "realloc", "free",
	"memset", "memcpy", "memcmp", "memchr", "memmove",
	"strlen", "towupper", "abort",
	"__cxa_atexit",
	"_Znwm", "_ZdlPv", // operator new(size_t), operator delete(void*)
}

// StdlibModule is the compiled re-exportable standard-library module: a
// WASM module providing the handful of libc/libc++ symbols a grammar's own
// C or C++ runtime code references, instantiated once per Store and
// spliced into every later language module's import resolution so each
// language module doesn't have to carry its own copy of
// malloc/free/memcpy/etc.
type StdlibModule struct {
	compiled *wasmtime.Module
}

// CompileStdlib compiles a standard-library WASM binary for later use with
// WithStdlib. The binary is expected to export at least the names in
// stdlibExportNames; entries it doesn't export are simply left unresolved
// for whatever language modules attempt to import them (surfaced as the
// normal UnresolvedImportError from Store.Load).
func CompileStdlib(engine *wasmtime.Engine, wasmBytes []byte) (*StdlibModule, error) {
	m, err := wasmtime.NewModule(engine, wasmBytes)
	if err != nil {
		return nil, &CompileError{Message: err.Error()}
	}
	return &StdlibModule{compiled: m}, nil
}

// resolvedStdlib is the per-Store instantiation of a StdlibModule: the
// live wasmtime.Instance plus a name-indexed export lookup, consulted by
// import resolution for any name outside the fixed set (memory and table
// bases, the shared memory and table, and the four classifier callbacks).
type resolvedStdlib struct {
	instance *wasmtime.Instance
	exports  map[string]*wasmtime.Extern
}

// instantiateStdlib instantiates stdlib's compiled module against the
// Store's shared memory and table (it imports both, the same way a
// language module does) and indexes its exports by name.
func instantiateStdlib(s *Store, stdlib *StdlibModule) (*resolvedStdlib, error) {
	instance, err := wasmtime.NewInstance(s.wstore, stdlib.compiled, []wasmtime.AsExtern{s.memory, s.table})
	if err != nil {
		return nil, fmt.Errorf("instantiating standard library module: %w", err)
	}

	exports := make(map[string]*wasmtime.Extern)
	exportTypes := stdlib.compiled.Exports()
	for i, ext := range instance.Exports(s.wstore) {
		if i >= len(exportTypes) {
			break
		}
		exports[exportTypes[i].Name()] = ext
	}

	return &resolvedStdlib{instance: instance, exports: exports}, nil
}

// resolveStdlibImport looks up name among the instantiated standard
// library's exports, returning (nil, false) if this Store has no stdlib
// configured or the stdlib doesn't export that name.
func (s *Store) resolveStdlibImport(name string) (*wasmtime.Extern, bool) {
	if s.stdlib == nil {
		return nil, false
	}
	ext, ok := s.stdlib.exports[name]
	return ext, ok
}
