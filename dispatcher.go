package tswasm

import (
	"errors"

	"github.com/bytecodealliance/wasmtime-go"
)

// Bind attaches lexer and descriptor to s as the current parse. It rejects
// descriptors that are not WASM-backed, and lazily re-instantiates the
// descriptor's module into this Store if no LanguageInstance for it exists
// yet — an idempotent re-instantiation keyed by language_id rather than by
// re-running the Loader's table copy-out.
func (s *Store) Bind(lexer Lexer, descriptor Descriptor) error {
	wasm, ok := descriptor.(*WasmLanguage)
	if !ok {
		return errors.New("descriptor is not wasm-backed")
	}

	inst, _, found := s.findInstance(wasm.Module.languageID)
	if !found {
		var err error
		inst, err = s.reinstantiate(wasm.Module)
		if err != nil {
			return err
		}
	}

	s.currentLexer = lexer
	s.currentInstance = inst
	s.logger.Printf("bound language_id=%d as the current parse", wasm.Module.languageID)
	return nil
}

// Unbind clears the current parse.
func (s *Store) Unbind() {
	if s.currentInstance != nil {
		s.logger.Printf("unbound language_id=%d", s.currentInstance.languageID)
	}
	s.currentLexer = nil
	s.currentInstance = nil
}

// reinstantiate re-runs the instantiation half of Store.Load — compile is
// skipped since module.compiled already holds the compiled form, and the
// descriptor is not re-materialised, only a new LanguageInstance recorded —
// against a fresh base in this Store.
func (s *Store) reinstantiate(module *LanguageModule) (*LanguageInstance, error) {
	dylink := module.dylink

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
		return nil, err
	}
	tableBaseGlobal, err := wasmtime.NewGlobal(s.wstore, wasmtime.NewGlobalType(i32(), false), wasmtime.ValI32(int32(tableBase)))
	if err != nil {
		return nil, err
	}

	imports, err := s.resolveImports(module.compiled, memoryBaseGlobal, tableBaseGlobal)
	if err != nil {
		return nil, err
	}

	instance, err := wasmtime.NewInstance(s.wstore, module.compiled, imports)
	if err != nil {
		return nil, &InstantiationTrapError{Message: err.Error()}
	}
	s.logger.Printf("re-instantiated language module %q at memory_base=%d table_base=%d", module.name, memoryBase, tableBase)

	exportsByName := make(map[string]*wasmtime.Extern)
	exportTypes := module.compiled.Exports()
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
			s.logger.Printf("applied data relocations for %q", module.name)
		}
	}

	exportName := "tree_sitter_" + module.name
	languageExt, ok := exportsByName[exportName]
	if !ok {
		return nil, &MissingLanguageExportError{LanguageName: module.name}
	}
	languageFn := languageExt.Func()
	results, err := languageFn.Call(s.wstore)
	if err != nil {
		return nil, &LanguageCallTrapError{FunctionName: exportName, Message: err.Error()}
	}
	blockAddr := results.(int32)

	mem := s.memory.UnsafeData(s.wstore)
	raw, err := decodeLanguageInWasmMemory(mem, uint32(blockAddr))
	if err != nil {
		return nil, err
	}

	// Every fallible step is behind us: commit the cursors as the last act
	// of a successful re-instantiation.
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
	return inst, nil
}

// callIndirect invokes the function at absolute table index ix with args
// (each a raw 32-bit guest value) and returns its single i32 result, if
// any. A zero ix means the language never provided that function, which is
// always a caller bug, not a guest trap.
func (s *Store) callIndirect(name string, ix int32, args ...interface{}) (int32, error) {
	if ix == 0 {
		return 0, &LanguageCallTrapError{FunctionName: name, Message: "function not provided by this language"}
	}
	val := s.table.Get(s.wstore, uint32(ix))
	if val == nil {
		return 0, &LanguageCallTrapError{FunctionName: name, Message: "table index out of range"}
	}
	fn := val.Funcref()
	if fn == nil {
		return 0, &LanguageCallTrapError{FunctionName: name, Message: "table slot is not a function"}
	}
	raw, err := fn.Call(s.wstore, args...)
	if err != nil {
		return 0, &LanguageCallTrapError{FunctionName: name, Message: err.Error()}
	}
	if raw == nil {
		return 0, nil
	}
	return raw.(int32), nil
}

// lexCallShim is the shared pre/post-amble for both lex_main and
// lex_keyword: write the lookahead, call through the table, read back
// lookahead and result_symbol.
func (s *Store) lexCallShim(name string, fnIx int32, state uint32) (bool, error) {
	s.writeLookahead(s.currentLexer.Lookahead())
	result, err := s.callIndirect(name, fnIx, int32(lexerBridgeAddress), int32(state))
	if err != nil {
		return false, err
	}
	_, resultSymbol := s.readLookaheadAndResult()
	s.currentInstance.lastResultSymbol = resultSymbol
	return result != 0, nil
}

// LexMain runs the current instance's lex_main entry point.
func (s *Store) LexMain(state uint32) (bool, error) {
	return s.lexCallShim("lex_main", s.currentInstance.lexMainFnIx, state)
}

// LexKeyword runs the current instance's lex_keyword entry point.
func (s *Store) LexKeyword(state uint32) (bool, error) {
	return s.lexCallShim("lex_keyword", s.currentInstance.lexKeywordFnIx, state)
}

// ResultSymbol returns the symbol written into the LexerBridge by the most
// recent LexMain/LexKeyword call.
func (s *Store) ResultSymbol() uint16 {
	return s.currentInstance.lastResultSymbol
}

// ScannerCreate invokes the current instance's scanner_create entry point.
func (s *Store) ScannerCreate() (uint32, error) {
	result, err := s.callIndirect("scanner_create", s.currentInstance.scannerCreateFnIx)
	if err != nil {
		return 0, err
	}
	return uint32(result), nil
}

// ScannerDestroy invokes the current instance's scanner_destroy entry point.
func (s *Store) ScannerDestroy(scannerAddr uint32) error {
	_, err := s.callIndirect("scanner_destroy", s.currentInstance.scannerDestroyFnIx, int32(scannerAddr))
	return err
}

// ScannerScan invokes the current instance's scanner_scan entry point. The
// third argument is computed as external_states_address + validTokensIx,
// since valid-token flags are one byte each.
func (s *Store) ScannerScan(scannerAddr uint32, validTokensIx uint32) (bool, error) {
	validTokensAddress := s.currentInstance.externalStatesAddress + validTokensIx
	result, err := s.callIndirect(
		"scanner_scan",
		s.currentInstance.scannerScanFnIx,
		int32(scannerAddr),
		int32(lexerBridgeAddress),
		int32(validTokensAddress),
	)
	if err != nil {
		return false, err
	}
	return result != 0, nil
}

// ScannerSerialize invokes the current instance's scanner_serialize entry
// point, returning the number of bytes written. The upstream external
// scanner protocol leaves serialize/deserialize unimplemented; the shape is
// reserved here so a future scanner can fill it in.
func (s *Store) ScannerSerialize(scannerAddr uint32, outAddr uint32) (uint32, error) {
	result, err := s.callIndirect("scanner_serialize", s.currentInstance.scannerSerializeFnIx,
		int32(scannerAddr), int32(outAddr))
	if err != nil {
		return 0, err
	}
	return uint32(result), nil
}

// ScannerDeserialize invokes the current instance's scanner_deserialize
// entry point.
func (s *Store) ScannerDeserialize(scannerAddr uint32, inAddr uint32, length uint32) error {
	_, err := s.callIndirect("scanner_deserialize", s.currentInstance.scannerDeserializeFnIx,
		int32(scannerAddr), int32(inAddr), int32(length))
	return err
}
