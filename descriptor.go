package tswasm

import "fmt"

// Descriptor is the native-shaped record the host parser consumes. Rather
// than a dual-use keyword_lex_fn field acting as both sentinel marker and
// module pointer, Descriptor is an explicit tagged union: exactly one of
// NativeLanguage or WasmLanguage backs any given value. IsWasmBacked
// replaces a pointer-equality check as the runtime test distinguishing
// WASM-backed from native descriptors.
type Descriptor interface {
	isDescriptor()
}

// NativeLanguage wraps a language descriptor backed by linked native code.
// Its internal shape is an external collaborator: this package never looks
// inside it, only carries it.
type NativeLanguage struct {
	Raw any
}

func (*NativeLanguage) isDescriptor() {}

// Symbol is a tree-sitter grammar symbol id: 16 bits.
type Symbol = uint16

// SymbolMetadata is the per-symbol record copied out of
// LanguageInWasmMemory.symbol_metadata.
type SymbolMetadata struct {
	Visible   bool
	Named     bool
	Supertype bool
}

// LexMode is the per-state record copied out of
// LanguageInWasmMemory.lex_modes.
type LexMode struct {
	LexState         uint16
	ExternalLexState uint16
}

// FieldMapSlice is the per-production-id record copied out of
// LanguageInWasmMemory.field_map_slices.
type FieldMapSlice struct {
	Index  uint16
	Length uint16
}

// FieldMapEntry is the per-entry record copied out of
// LanguageInWasmMemory.field_map_entries.
type FieldMapEntry struct {
	FieldID    uint16
	ChildIndex uint8
	Inherited  bool
}

// ExternalScannerDescriptor carries the copied-out external-scanner
// metadata for a WASM-backed language.
type ExternalScannerDescriptor struct {
	SymbolMap []Symbol
	// StatesAddress is the guest address of the external-scanner state
	// table, kept as an address (not copied into host memory) because it
	// is consumed by guest calls through the Dispatcher, not read by the
	// host.
	StatesAddress uint32
}

// WasmLanguage is the WASM-backed LanguageDescriptor. It exclusively owns
// every buffer below; dropping it should release them (Go's GC does this
// automatically once nothing references the WasmLanguage).
type WasmLanguage struct {
	// Module is a weak (non-owning) back-reference to the LanguageModule
	// this descriptor was materialized from: the descriptor never deletes
	// the module, but must not outlive it. It is what Store.Bind uses
	// to find or create this Store's LanguageInstance, replacing a dual-use
	// keyword_lex_fn pointer.
	Module *LanguageModule

	Version                uint32
	SymbolCount            uint32
	AliasCount             uint32
	TokenCount             uint32
	ExternalTokenCount     uint32
	StateCount             uint32
	LargeStateCount        uint32
	ProductionIDCount      uint32
	FieldCount             uint32
	MaxAliasSequenceLength uint16
	KeywordCaptureToken    Symbol

	ParseTable      []uint16
	ParseActions    []byte
	SymbolNames     []*string
	SymbolMetadata  []SymbolMetadata
	PublicSymbolMap []Symbol
	LexModes        []LexMode

	FieldMapSlices  []FieldMapSlice
	FieldMapEntries []FieldMapEntry
	FieldNames      []*string

	AliasMap       []byte
	AliasSequences []Symbol

	SmallParseTableMap []uint32
	SmallParseTable    []uint16

	ExternalScanner ExternalScannerDescriptor

	// PrimaryStateIDsAddress is the guest address of primary_state_ids: the
	// layout carries it but no size is published for its contents, so it
	// is kept as an address rather than a guessed-length host copy.
	PrimaryStateIDsAddress uint32
}

func (*WasmLanguage) isDescriptor() {}

// sentinelLexFn is the one host-language function whose address used to be
// the witness that a descriptor is WASM-backed. This package no longer
// uses its address for that purpose (Descriptor's tag does), but keeps the
// function around for native ABI compatibility: code in this package that
// still expects the C shape of a native TSLanguage.lex_fn slot can wire
// this in as that function pointer. It is unexported, so callers outside
// the package cannot reach it.
func sentinelLexFn(_ Lexer, _ uint16) bool { return false }

// IsWasmBacked reports whether d is backed by a WASM language module.
func IsWasmBacked(d Descriptor) bool {
	_, ok := d.(*WasmLanguage)
	return ok
}

// languageInWasmMemory is the raw guest layout, plus two ABI fields
// (parseActionsLength, smallParseTableLength) this implementation requires
// every language module to additionally publish at the end of the struct.
// A fixed-size guess for these two arrays (5655 actions, "last map entry +
// 64") is fragile against future language grammars, so this ABI instead
// has the guest publish the real lengths.
type languageInWasmMemory struct {
	version            uint32
	symbolCount        uint32
	aliasCount         uint32
	tokenCount         uint32
	externalTokenCount uint32
	stateCount         uint32
	largeStateCount    uint32
	productionIDCount  uint32
	fieldCount         uint32

	maxAliasSequenceLength uint16

	parseTable         int32
	smallParseTable    int32
	smallParseTableMap int32
	parseActions       int32
	symbolNames        int32
	fieldNames         int32
	fieldMapSlices     int32
	fieldMapEntries    int32
	symbolMetadata     int32
	publicSymbolMap    int32
	aliasMap           int32
	aliasSequences     int32
	lexModes           int32
	lexFn              int32
	keywordLexFn       int32

	keywordCaptureToken uint16

	externalScannerStates      int32
	externalScannerSymbolMap   int32
	externalScannerCreate      int32
	externalScannerDestroy     int32
	externalScannerScan        int32
	externalScannerSerialize   int32
	externalScannerDeserialize int32

	primaryStateIDs int32

	// ABI extension (see doc comment above).
	parseActionsLength    uint32
	smallParseTableLength uint32
}

// languageInWasmMemorySize is sizeof(LanguageInWasmMemory) in guest bytes,
// including the natural alignment padding a C compiler inserts after the
// u16 fields (2 bytes after max_alias_sequence_length, 2 bytes after
// keyword_capture_token) so 32-bit fields stay 4-byte aligned, plus this
// implementation's trailing extension fields.
const languageInWasmMemorySize = 9*4 + 2 + 2 /*pad*/ + 15*4 + 2 + 2 /*pad*/ + 7*4 + 4 + 4 + 4

func decodeLanguageInWasmMemory(mem []byte, addr uint32) (*languageInWasmMemory, error) {
	if uint64(addr)+uint64(languageInWasmMemorySize) > uint64(len(mem)) {
		return nil, fmt.Errorf("language block at 0x%x runs past end of guest memory", addr)
	}
	b := mem[addr:]
	l := &languageInWasmMemory{
		version:            getU32(b[0:]),
		symbolCount:        getU32(b[4:]),
		aliasCount:         getU32(b[8:]),
		tokenCount:         getU32(b[12:]),
		externalTokenCount: getU32(b[16:]),
		stateCount:         getU32(b[20:]),
		largeStateCount:    getU32(b[24:]),
		productionIDCount:  getU32(b[28:]),
		fieldCount:         getU32(b[32:]),

		maxAliasSequenceLength: getU16(b[36:]),
	}
	o := 40 // 36 + 2 bytes padding, 4-byte aligned
	l.parseTable = getI32(b[o+0:])
	l.smallParseTable = getI32(b[o+4:])
	l.smallParseTableMap = getI32(b[o+8:])
	l.parseActions = getI32(b[o+12:])
	l.symbolNames = getI32(b[o+16:])
	l.fieldNames = getI32(b[o+20:])
	l.fieldMapSlices = getI32(b[o+24:])
	l.fieldMapEntries = getI32(b[o+28:])
	l.symbolMetadata = getI32(b[o+32:])
	l.publicSymbolMap = getI32(b[o+36:])
	l.aliasMap = getI32(b[o+40:])
	l.aliasSequences = getI32(b[o+44:])
	l.lexModes = getI32(b[o+48:])
	l.lexFn = getI32(b[o+52:])
	l.keywordLexFn = getI32(b[o+56:])
	o += 60 // 15 * 4

	l.keywordCaptureToken = getU16(b[o:])
	o += 2 + 2 // field + 4-byte-align padding

	l.externalScannerStates = getI32(b[o+0:])
	l.externalScannerSymbolMap = getI32(b[o+4:])
	l.externalScannerCreate = getI32(b[o+8:])
	l.externalScannerDestroy = getI32(b[o+12:])
	l.externalScannerScan = getI32(b[o+16:])
	l.externalScannerSerialize = getI32(b[o+20:])
	l.externalScannerDeserialize = getI32(b[o+24:])
	o += 28

	l.primaryStateIDs = getI32(b[o:])
	o += 4

	l.parseActionsLength = getU32(b[o:])
	l.smallParseTableLength = getU32(b[o+4:])

	return l, nil
}

func getU32(b []byte) uint32 { return uint32(getI32(b)) }

// copyOut materializes a WasmLanguage from the guest LanguageInWasmMemory
// block at address addr.
func copyOut(mem []byte, addr uint32, module *LanguageModule) (*WasmLanguage, error) {
	raw, err := decodeLanguageInWasmMemory(mem, addr)
	if err != nil {
		return nil, err
	}

	d := &WasmLanguage{
		Module:                 module,
		Version:                raw.version,
		SymbolCount:            raw.symbolCount,
		AliasCount:             raw.aliasCount,
		TokenCount:             raw.tokenCount,
		ExternalTokenCount:     raw.externalTokenCount,
		StateCount:             raw.stateCount,
		LargeStateCount:        raw.largeStateCount,
		ProductionIDCount:      raw.productionIDCount,
		FieldCount:             raw.fieldCount,
		MaxAliasSequenceLength: raw.maxAliasSequenceLength,
		KeywordCaptureToken:    raw.keywordCaptureToken,
		PrimaryStateIDsAddress: uint32(raw.primaryStateIDs),
	}

	d.ParseTable = readUint16s(mem, raw.parseTable, int(raw.largeStateCount)*int(raw.symbolCount))
	d.ParseActions = readBytes(mem, raw.parseActions, int(raw.parseActionsLength))
	d.SymbolNames = copyStrings(mem, raw.symbolNames, int(raw.symbolCount+raw.aliasCount))
	d.SymbolMetadata = readSymbolMetadata(mem, raw.symbolMetadata, int(raw.symbolCount))
	d.PublicSymbolMap = readUint16s(mem, raw.publicSymbolMap, int(raw.symbolCount))
	d.LexModes = readLexModes(mem, raw.lexModes, int(raw.stateCount))

	if d.FieldCount > 0 && d.ProductionIDCount > 0 {
		d.FieldMapSlices = readFieldMapSlices(mem, raw.fieldMapSlices, int(raw.productionIDCount))
		last := d.FieldMapSlices[len(d.FieldMapSlices)-1]
		d.FieldMapEntries = readFieldMapEntries(mem, raw.fieldMapEntries, int(last.Index)+int(last.Length))
		d.FieldNames = copyStrings(mem, raw.fieldNames, int(raw.fieldCount+1))
	}

	if d.AliasCount > 0 && d.ProductionIDCount > 0 {
		aliasMapSize := scanAliasMapSize(mem, raw.aliasMap)
		d.AliasMap = readBytes(mem, raw.aliasMap, aliasMapSize)
		d.AliasSequences = readUint16s(mem, raw.aliasSequences, int(raw.productionIDCount)*int(raw.maxAliasSequenceLength))
	}

	if d.StateCount > d.LargeStateCount {
		smallStateCount := int(raw.stateCount - raw.largeStateCount)
		d.SmallParseTableMap = readUint32s(mem, raw.smallParseTableMap, smallStateCount)
		d.SmallParseTable = readUint16s(mem, raw.smallParseTable, int(raw.smallParseTableLength))
	}

	if d.ExternalTokenCount > 0 {
		d.ExternalScanner = ExternalScannerDescriptor{
			SymbolMap:     readUint16s(mem, raw.externalScannerSymbolMap, int(raw.externalTokenCount)),
			StatesAddress: uint32(raw.externalScannerStates),
		}
	}

	return d, nil
}

func readBytes(mem []byte, addr int32, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, mem[addr:addr+int32(n)])
	return out
}

func readUint16s(mem []byte, addr int32, count int) []uint16 {
	if addr == 0 || count <= 0 {
		return nil
	}
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		out[i] = getU16(mem[int(addr)+i*2:])
	}
	return out
}

func readUint32s(mem []byte, addr int32, count int) []uint32 {
	if addr == 0 || count <= 0 {
		return nil
	}
	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		out[i] = getU32(mem[int(addr)+i*4:])
	}
	return out
}

func readSymbolMetadata(mem []byte, addr int32, count int) []SymbolMetadata {
	if addr == 0 || count <= 0 {
		return nil
	}
	const entrySize = 3
	out := make([]SymbolMetadata, count)
	for i := 0; i < count; i++ {
		b := mem[int(addr)+i*entrySize:]
		out[i] = SymbolMetadata{Visible: b[0] != 0, Named: b[1] != 0, Supertype: b[2] != 0}
	}
	return out
}

func readLexModes(mem []byte, addr int32, count int) []LexMode {
	if addr == 0 || count <= 0 {
		return nil
	}
	const entrySize = 4
	out := make([]LexMode, count)
	for i := 0; i < count; i++ {
		b := mem[int(addr)+i*entrySize:]
		out[i] = LexMode{LexState: getU16(b[0:]), ExternalLexState: getU16(b[2:])}
	}
	return out
}

func readFieldMapSlices(mem []byte, addr int32, count int) []FieldMapSlice {
	if addr == 0 || count <= 0 {
		return nil
	}
	const entrySize = 4
	out := make([]FieldMapSlice, count)
	for i := 0; i < count; i++ {
		b := mem[int(addr)+i*entrySize:]
		out[i] = FieldMapSlice{Index: getU16(b[0:]), Length: getU16(b[2:])}
	}
	return out
}

func readFieldMapEntries(mem []byte, addr int32, count int) []FieldMapEntry {
	if addr == 0 || count <= 0 {
		return nil
	}
	const entrySize = 4
	out := make([]FieldMapEntry, count)
	for i := 0; i < count; i++ {
		b := mem[int(addr)+i*entrySize:]
		out[i] = FieldMapEntry{FieldID: getU16(b[0:]), ChildIndex: b[2], Inherited: b[3] != 0}
	}
	return out
}

// scanAliasMapSize walks {symbol u16, count u16, count*symbol u16}
// triples from addr until a zero-symbol terminator, returning the total
// byte span including the terminator.
func scanAliasMapSize(mem []byte, addr int32) int {
	if addr == 0 {
		return 0
	}
	size := 0
	for {
		symbol := getU16(mem[int(addr)+size:])
		size += 2
		if symbol == 0 {
			break
		}
		count := getU16(mem[int(addr)+size:])
		size += 2 + int(count)*2
	}
	return size
}

// copyStrings copies out a guest array of count string pointers at
// array-address addr: a zero address becomes a nil entry; a non-zero
// address is measured as a NUL-terminated C string and its bytes copied
// into the result.
func copyStrings(mem []byte, addr int32, count int) []*string {
	if addr == 0 || count <= 0 {
		return nil
	}
	out := make([]*string, count)
	for i := 0; i < count; i++ {
		strAddr := getI32(mem[int(addr)+i*4:])
		if strAddr == 0 {
			out[i] = nil
			continue
		}
		s := cString(mem, uint32(strAddr))
		out[i] = &s
	}
	return out
}

func cString(mem []byte, addr uint32) string {
	end := addr
	for end < uint32(len(mem)) && mem[end] != 0 {
		end++
	}
	return string(mem[addr:end])
}
