package tswasm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bytecodealliance/wasmtime-go"
	"github.com/stretchr/testify/require"
)

// dylinkSection builds a standalone "dylink.0" custom section (the same
// shape buildDylinkModule's header-prefixed module uses), without the
// magic/version header, so it can be appended after a complete module
// wasmtime.Wat2Wasm already produced. Wasm permits custom sections anywhere
// in a module, including trailing ones, so ParseDylinkInfo's section walk
// finds it regardless of where it lands.
func dylinkSection(memSize, memAlign, tableSize, tableAlign uint32) []byte {
	var memInfo []byte
	memInfo = append(memInfo, uleb128(memSize)...)
	memInfo = append(memInfo, uleb128(memAlign)...)
	memInfo = append(memInfo, uleb128(tableSize)...)
	memInfo = append(memInfo, uleb128(tableAlign)...)

	var subsection []byte
	subsection = append(subsection, 0x01)
	subsection = append(subsection, uleb128(uint32(len(memInfo)))...)
	subsection = append(subsection, memInfo...)

	name := "dylink.0"
	var custom []byte
	custom = append(custom, uleb128(uint32(len(name)))...)
	custom = append(custom, []byte(name)...)
	custom = append(custom, subsection...)

	var section []byte
	section = append(section, 0x00)
	section = append(section, uleb128(uint32(len(custom)))...)
	section = append(section, custom...)
	return section
}

// watByteString renders b as a WAT string literal's escaped byte sequence,
// suitable for splicing into a data segment.
func watByteString(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		fmt.Fprintf(&sb, "\\%02x", c)
	}
	return sb.String()
}

// buildMinimalLanguageBlock lays out a 144-byte LanguageInWasmMemory with
// every count at zero except version, so copyOut's conditional branches
// (field maps, alias map, small parse table, external scanner descriptor)
// all take their empty path, plus the two table-dispatch fields and the
// external-scanner-states address this test exercises directly.
func buildMinimalLanguageBlock(lexFnRelative, scannerScanRelative int32, externalStatesAddr uint32) []byte {
	b := make([]byte, languageInWasmMemorySize)
	putU32(b[0:], 1) // version
	putI32(b[92:], lexFnRelative)
	putU32(b[104:], externalStatesAddr)
	putI32(b[120:], scannerScanRelative)
	return b
}

// buildRelocatableLanguageModule compiles a minimal WAT module that plays
// the part of a real relocatable language module: it imports the memory
// and table base globals, the shared memory and indirect table, writes a
// LanguageInWasmMemory block at its own memory_base (no
// __wasm_apply_data_relocs needed since every address inside it is either
// zero or absolute), exports tree_sitter_<name> returning that block's
// address, and places three functions in the shared table starting at
// table_base: a no-op placeholder at relative index 0, lex_main at 1
// (writes result_symbol=42 into the LexerBridge and reports a match), and
// scanner_scan at 2 (writes the valid_tokens address it was called with
// into the LexerBridge so the test can read it back).
func buildRelocatableLanguageModule(t *testing.T, languageName string, externalStatesAddr uint32) []byte {
	t.Helper()

	block := buildMinimalLanguageBlock(1, 2, externalStatesAddr)

	wat := fmt.Sprintf(`(module
  (import "env" "__memory_base" (global $memory_base i32))
  (import "env" "__table_base" (global $table_base i32))
  (import "env" "memory" (memory 1))
  (import "env" "__indirect_function_table" (table 3 funcref))

  (func $dummy)

  (func $lex_main (param $bridge i32) (param $state i32) (result i32)
    local.get $bridge
    i32.const 42
    i32.store16 offset=4
    i32.const 1)

  (func $scanner_scan (param $scanner i32) (param $bridge i32) (param $valid_tokens i32) (result i32)
    local.get $bridge
    local.get $valid_tokens
    i32.store offset=6
    i32.const 1)

  (elem (global.get $table_base) $dummy $lex_main $scanner_scan)

  (data (global.get $memory_base) "%s")

  (func (export "tree_sitter_%s") (result i32)
    global.get $memory_base))`, watByteString(block), languageName)

	core, err := wasmtime.Wat2Wasm(wat)
	require.NoError(t, err)

	out := append([]byte{}, core...)
	out = append(out, dylinkSection(uint32(languageInWasmMemorySize), 8, 3, 1)...)
	return out
}

func TestLoad_endToEnd(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)

	memBefore, tableBefore := s.memoryCursor, s.tableCursor
	wasmBytes := buildRelocatableLanguageModule(t, "testlang", 5000)

	descriptor, err := s.Load("testlang", wasmBytes)
	require.NoError(t, err)

	wasm, ok := descriptor.(*WasmLanguage)
	require.True(t, ok)
	require.Equal(t, uint32(1), wasm.Version)

	wantMemoryBase := alignUp(memBefore, 8)
	wantTableBase := alignUp(tableBefore, 1)
	require.Equal(t, wantMemoryBase+languageInWasmMemorySize, s.memoryCursor)
	require.Equal(t, wantTableBase+3, s.tableCursor)

	inst, _, found := s.findInstance(wasm.Module.languageID)
	require.True(t, found)
	require.Equal(t, wantMemoryBase, inst.memoryBase)
	require.Equal(t, wantTableBase, inst.tableBase)
}

func TestLoad_secondModuleGetsDisjointAlignedLayout(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)

	_, err = s.Load("first", buildRelocatableLanguageModule(t, "first", 1000))
	require.NoError(t, err)
	memAfterFirst, tableAfterFirst := s.memoryCursor, s.tableCursor

	_, err = s.Load("second", buildRelocatableLanguageModule(t, "second", 2000))
	require.NoError(t, err)

	require.GreaterOrEqual(t, s.memoryCursor, memAfterFirst+languageInWasmMemorySize)
	require.GreaterOrEqual(t, s.tableCursor, tableAfterFirst+3)
}

func TestBindAndLexMain_endToEnd(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)

	descriptor, err := s.Load("testlang", buildRelocatableLanguageModule(t, "testlang", 5000))
	require.NoError(t, err)

	require.NoError(t, s.Bind(stubLexer{}, descriptor))

	matched, err := s.LexMain(0)
	require.NoError(t, err)
	require.True(t, matched)
	require.EqualValues(t, 42, s.ResultSymbol())
}

func TestScannerScan_endToEnd(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)

	descriptor, err := s.Load("testlang", buildRelocatableLanguageModule(t, "testlang", 5000))
	require.NoError(t, err)
	require.NoError(t, s.Bind(stubLexer{}, descriptor))

	matched, err := s.ScannerScan(999, 5)
	require.NoError(t, err)
	require.True(t, matched)

	mem := s.memory.UnsafeData(s.wstore)
	gotValidTokensAddress := getI32(mem[lexerBridgeAddress+6:])
	require.EqualValues(t, 5000+5, gotValidTokensAddress)
}

func TestLoad_unresolvedImportLeavesCursorsUnmoved(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)
	memBefore, tableBefore := s.memoryCursor, s.tableCursor

	core, err := wasmtime.Wat2Wasm(`(module
  (import "env" "bogus_fn" (func)))`)
	require.NoError(t, err)
	wasmBytes := append(append([]byte{}, core...), dylinkSection(0, 1, 0, 1)...)

	_, err = s.Load("anything", wasmBytes)
	require.Error(t, err)

	var unresolved *UnresolvedImportError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "bogus_fn", unresolved.Name)
	require.Equal(t, memBefore, s.memoryCursor)
	require.Equal(t, tableBefore, s.tableCursor)
}
