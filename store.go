package tswasm

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/bytecodealliance/wasmtime-go"
)

// nextLanguageID is the process-wide monotonic counter backing each
// LanguageModule's language_id.
var nextLanguageID uint32

func newLanguageID() uint32 {
	return atomic.AddUint32(&nextLanguageID, 1)
}

// Store is the sandbox: one wasmtime engine, one shared guest linear
// memory, one shared indirect function table with a fixed callback
// prologue, and the growing set of LanguageInstances bound into it.
//
// A Store is not safe for concurrent use from more than one goroutine;
// callers that share one across goroutines must guard it with a mutex.
type Store struct {
	engine *wasmtime.Engine
	wstore *wasmtime.Store
	memory *wasmtime.Memory
	table  *wasmtime.Table
	logger Logger
	stdlib *resolvedStdlib

	// callbackFuncs indexes the prologue callbacks by import name, for
	// language modules that import them directly rather than reaching
	// them through the indirect table.
	callbackFuncs map[string]*wasmtime.Func

	// memoryCursor and tableCursor are the Store's allocation cursors:
	// monotonically non-decreasing, mutated only while loading a module and
	// only while no parse is bound.
	memoryCursor uint32
	tableCursor  uint32

	// instances holds every LanguageInstance bound into this Store, kept
	// sorted by LanguageModule.languageID so Bind can binary-search it.
	instances []*LanguageInstance

	// currentLexer and currentInstance are non-nil only while a parse is
	// bound; Bind sets them, Unbind clears them.
	currentLexer    Lexer
	currentInstance *LanguageInstance
}

// NewStore constructs a Store: an engine-scoped wasmtime store, a linear
// memory sized to hold the LexerBridge, the LexerBridge itself written at
// its fixed address, an indirect function table whose first prologueLen
// slots are the host callbacks, and (if configured) the standard-library
// module instantiated once against that prologue.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		cfg = NewStoreConfig()
	}
	engine := wasmtime.NewEngineWithConfig(cfg.newEngineConfig())
	wstore := wasmtime.NewStore(engine)

	s := &Store{
		engine: engine,
		wstore: wstore,
		logger: cfg.logger,
	}

	memType := wasmtime.NewMemoryType(pagesFor(lexerBridgeEnd), false, 0)
	memory, err := wasmtime.NewMemory(wstore, memType)
	if err != nil {
		return nil, fmt.Errorf("allocating guest memory: %w", err)
	}
	s.memory = memory

	bridge := &lexerBridge{
		advanceIx:                lexerAdvanceIx,
		markEndIx:                lexerMarkEndIx,
		getColumnIx:              lexerGetColumnIx,
		isAtIncludedRangeStartIx: lexerIsAtIncludedRangeStartIx,
		eofIx:                    lexerEOFIx,
	}
	copy(memory.UnsafeData(wstore)[lexerBridgeAddress:], bridge.encode())

	defs := callbackDefinitions()
	tableType := wasmtime.NewTableType(wasmtime.NewValType(wasmtime.KindFuncref), uint32(len(defs)), false, 0)
	table, err := wasmtime.NewTable(wstore, tableType, wasmtime.ValFuncref(nil))
	if err != nil {
		return nil, fmt.Errorf("allocating indirect function table: %w", err)
	}
	s.table = table
	if _, err := table.Grow(wstore, uint32(len(defs)), wasmtime.ValFuncref(nil)); err != nil {
		return nil, fmt.Errorf("growing indirect function table for prologue: %w", err)
	}
	s.callbackFuncs = make(map[string]*wasmtime.Func, len(defs))
	for i, def := range defs {
		fn := wasmtime.NewFunc(wstore, def.ty, def.fn(s))
		if err := table.Set(wstore, uint32(i), wasmtime.ValFuncref(fn)); err != nil {
			return nil, fmt.Errorf("installing callback %s at slot %d: %w", def.name, i, err)
		}
		s.callbackFuncs[def.name] = fn
	}

	s.memoryCursor = lexerBridgeEnd
	s.tableCursor = prologueLen

	if cfg.stdlib != nil {
		resolved, err := instantiateStdlib(s, cfg.stdlib)
		if err != nil {
			return nil, err
		}
		s.stdlib = resolved
	}

	return s, nil
}

// pagesFor returns the minimum number of 64KiB wasm pages needed to hold n
// bytes.
func pagesFor(n uint32) uint32 {
	const pageSize = 1 << 16
	return (n + pageSize - 1) / pageSize
}

func (s *Store) writeLookahead(v int32) {
	data := s.memory.UnsafeData(s.wstore)
	putI32(data[lexerBridgeAddress:], v)
}

func (s *Store) readLookaheadAndResult() (int32, uint16) {
	data := s.memory.UnsafeData(s.wstore)
	return getI32(data[lexerBridgeAddress:]), getU16(data[lexerBridgeAddress+4:])
}

// findInstance returns the LanguageInstance already bound into this Store
// for the given language id, if any, via binary search over the sorted
// instances slice.
func (s *Store) findInstance(languageID uint32) (*LanguageInstance, int, bool) {
	i := sort.Search(len(s.instances), func(i int) bool {
		return s.instances[i].languageID >= languageID
	})
	if i < len(s.instances) && s.instances[i].languageID == languageID {
		return s.instances[i], i, true
	}
	return nil, i, false
}

func (s *Store) insertInstance(at int, inst *LanguageInstance) {
	s.instances = append(s.instances, nil)
	copy(s.instances[at+1:], s.instances[at:])
	s.instances[at] = inst
}
