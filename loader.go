package tswasm

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"
)

// Load compiles wasmBytes as a language module named languageName, binds it
// into s, and returns its copied-out LanguageDescriptor. Load is a Store
// method rather than a free function because every step after compilation
// needs the Store's shared memory, table, and cursors.
//
// On any error the Store's cursors are left unmoved and no LanguageInstance
// is appended. Guest memory and the indirect table may already have been
// grown by then; that growth is not undone.
func (s *Store) Load(languageName string, wasmBytes []byte) (Descriptor, error) {
	dylink, err := ParseDylinkInfo(wasmBytes)
	if err != nil {
		return nil, &InvalidModuleError{Reason: err.Error()}
	}

	compiled, err := wasmtime.NewModule(s.engine, wasmBytes)
	if err != nil {
		return nil, &CompileError{Message: err.Error()}
	}
	s.logger.Printf("compiled language module %q", languageName)

	memoryBase := alignUp(s.memoryCursor, dylink.MemoryAlign)
	tableBase := alignUp(s.tableCursor, dylink.TableAlign)

	if err := s.growMemoryTo(memoryBase + dylink.MemorySize); err != nil {
		return nil, err
	}
	if err := s.growTableTo(tableBase + dylink.TableSize); err != nil {
		return nil, err
	}

	memoryBaseGlobal, err := wasmtime.NewGlobal(s.wstore, wasmtime.NewGlobalType(i32(), false), wasmtime.ValI32(int32(memoryBase)))
	if err != nil {
		return nil, fmt.Errorf("creating __memory_base global: %w", err)
	}
	tableBaseGlobal, err := wasmtime.NewGlobal(s.wstore, wasmtime.NewGlobalType(i32(), false), wasmtime.ValI32(int32(tableBase)))
	if err != nil {
		return nil, fmt.Errorf("creating __table_base global: %w", err)
	}

	imports, err := s.resolveImports(compiled, memoryBaseGlobal, tableBaseGlobal)
	if err != nil {
		return nil, err
	}

	instance, err := wasmtime.NewInstance(s.wstore, compiled, imports)
	if err != nil {
		return nil, &InstantiationTrapError{Message: err.Error()}
	}
	s.logger.Printf("instantiated language module %q at memory_base=%d table_base=%d", languageName, memoryBase, tableBase)

	exportsByName := make(map[string]*wasmtime.Extern)
	exportTypes := compiled.Exports()
	for i, ext := range instance.Exports(s.wstore) {
		if i < len(exportTypes) {
			exportsByName[exportTypes[i].Name()] = ext
		}
	}

	if reloc, ok := exportsByName["__wasm_apply_data_relocs"]; ok {
		if fn := reloc.Func(); fn != nil {
			if _, err := fn.Call(s.wstore); err != nil {
				return nil, &RelocationTrapError{Message: err.Error()}
			}
			s.logger.Printf("applied data relocations for %q", languageName)
		}
	}

	exportName := "tree_sitter_" + languageName
	languageExt, ok := exportsByName[exportName]
	if !ok {
		return nil, &MissingLanguageExportError{LanguageName: languageName}
	}
	languageFn := languageExt.Func()
	if languageFn == nil {
		return nil, &MissingLanguageExportError{LanguageName: languageName}
	}

	results, err := languageFn.Call(s.wstore)
	if err != nil {
		return nil, &LanguageCallTrapError{FunctionName: exportName, Message: err.Error()}
	}
	blockAddr, ok := results.(int32)
	if !ok {
		return nil, &MissingLanguageExportError{LanguageName: languageName}
	}

	module := &LanguageModule{
		languageID: newLanguageID(),
		name:       languageName,
		compiled:   compiled,
		dylink:     *dylink,
	}

	mem := s.memory.UnsafeData(s.wstore)
	raw, err := decodeLanguageInWasmMemory(mem, uint32(blockAddr))
	if err != nil {
		return nil, fmt.Errorf("reading language block: %w", err)
	}

	descriptor, err := copyOut(mem, uint32(blockAddr), module)
	if err != nil {
		return nil, err
	}

	// Every fallible step is behind us: commit the cursors and record the
	// instance as the last act of a successful Load.
	s.memoryCursor = memoryBase + dylink.MemorySize
	s.tableCursor = tableBase + dylink.TableSize

	inst := &LanguageInstance{
		languageID:             module.languageID,
		instance:               instance,
		memoryBase:             memoryBase,
		tableBase:              tableBase,
		externalStatesAddress:  uint32(raw.externalScannerStates),
		lexMainFnIx:            absoluteTableIndex(raw.lexFn, tableBase),
		lexKeywordFnIx:         absoluteTableIndex(raw.keywordLexFn, tableBase),
		scannerCreateFnIx:      absoluteTableIndex(raw.externalScannerCreate, tableBase),
		scannerDestroyFnIx:     absoluteTableIndex(raw.externalScannerDestroy, tableBase),
		scannerSerializeFnIx:   absoluteTableIndex(raw.externalScannerSerialize, tableBase),
		scannerDeserializeFnIx: absoluteTableIndex(raw.externalScannerDeserialize, tableBase),
		scannerScanFnIx:        absoluteTableIndex(raw.externalScannerScan, tableBase),
	}
	_, at, _ := s.findInstance(module.languageID)
	s.insertInstance(at, inst)
	s.logger.Printf("loaded language module %q as language_id=%d", languageName, module.languageID)

	return descriptor, nil
}

// absoluteTableIndex converts a relative function-table index read out of a
// language block into an absolute index into the Store's shared table. A
// zero relative index means "function not provided" and stays zero rather
// than becoming tableBase.
func absoluteTableIndex(relative int32, tableBase uint32) int32 {
	if relative == 0 {
		return 0
	}
	return relative + int32(tableBase)
}

func (s *Store) growMemoryTo(bytesNeeded uint32) error {
	current := uint32(len(s.memory.UnsafeData(s.wstore)))
	if current >= bytesNeeded {
		return nil
	}
	extraPages := pagesFor(bytesNeeded - current)
	if _, err := s.memory.Grow(s.wstore, uint64(extraPages)); err != nil {
		return fmt.Errorf("growing guest memory: %w", err)
	}
	return nil
}

func (s *Store) growTableTo(entriesNeeded uint32) error {
	current := s.table.Size(s.wstore)
	if current >= entriesNeeded {
		return nil
	}
	if _, err := s.table.Grow(s.wstore, entriesNeeded-current, wasmtime.ValFuncref(nil)); err != nil {
		return fmt.Errorf("growing indirect function table: %w", err)
	}
	return nil
}

// resolveImports builds the import vector for compiled's declared imports,
// in declared order, matching each name against the closed set of names a
// language module may legally import. Duplicate names are permitted and
// resolved independently.
func (s *Store) resolveImports(compiled *wasmtime.Module, memoryBaseGlobal, tableBaseGlobal *wasmtime.Global) ([]wasmtime.AsExtern, error) {
	importTypes := compiled.Imports()
	out := make([]wasmtime.AsExtern, len(importTypes))
	for i, imp := range importTypes {
		name := imp.Name()
		switch name {
		case "__memory_base":
			out[i] = memoryBaseGlobal
		case "__table_base":
			out[i] = tableBaseGlobal
		case "__indirect_function_table":
			out[i] = s.table
		case "memory":
			out[i] = s.memory
		case "iswspace", "iswdigit", "iswalpha", "iswalnum":
			fn, ok := s.callbackFuncs[name]
			if !ok {
				return nil, &UnresolvedImportError{Name: name}
			}
			out[i] = fn
		default:
			ext, ok := s.resolveStdlibImport(name)
			if !ok {
				return nil, &UnresolvedImportError{Name: name}
			}
			out[i] = ext
		}
	}
	return out, nil
}
