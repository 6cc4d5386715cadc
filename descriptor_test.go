package tswasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildLanguageBlock writes a minimal LanguageInWasmMemory block (plus its
// referenced tables) into a fresh guest-memory-shaped byte slice, returning
// the slice and the block's address. Only symbol_names/public_symbol_map/
// parse_table are populated; everything else is left at zero/absent so the
// conditional copy-out branches (field maps, alias maps, small parse
// table, external scanner) stay untouched.
func buildLanguageBlock(t *testing.T) (mem []byte, blockAddr uint32) {
	t.Helper()

	const (
		blockOffset  = 64
		symbolCount  = 5
		stringsAddr  = 4096
		symNamesAddr = 2048
		parseTblAddr = 3072
		pubMapAddr   = 3200
	)

	mem = make([]byte, 8192)

	// public_symbol_map: symbolCount u16 entries, values 10..14
	for i := 0; i < symbolCount; i++ {
		putU16(mem[pubMapAddr+i*2:], uint16(10+i))
	}

	// parse_table: large_state_count(=1) * symbol_count u16 entries
	for i := 0; i < symbolCount; i++ {
		putU16(mem[parseTblAddr+i*2:], uint16(100+i))
	}

	// symbol_names: symbolCount guest string addresses, index 3 is null,
	// index 4 points at "abc".
	cursor := stringsAddr
	for i := 0; i < symbolCount; i++ {
		if i == 3 {
			putI32(mem[symNamesAddr+i*4:], 0)
			continue
		}
		s := "abc"
		if i != 4 {
			s = "sym"
		}
		copy(mem[cursor:], s)
		mem[cursor+len(s)] = 0
		putI32(mem[symNamesAddr+i*4:], int32(cursor))
		cursor += len(s) + 1
	}

	b := mem[blockOffset:]
	putU32(b[0:], 1)           // version
	putU32(b[4:], symbolCount) // symbol_count
	putU32(b[8:], 0)           // alias_count
	putU32(b[12:], 0)          // token_count
	putU32(b[16:], 0)          // external_token_count
	putU32(b[20:], 1)          // state_count
	putU32(b[24:], 1)          // large_state_count
	putU32(b[28:], 0)          // production_id_count
	putU32(b[32:], 0)          // field_count
	putU16(b[36:], 0)          // max_alias_sequence_length

	o := 40
	putI32(b[o+0:], parseTblAddr)  // parse_table
	putI32(b[o+4:], 0)             // small_parse_table
	putI32(b[o+8:], 0)             // small_parse_table_map
	putI32(b[o+12:], 0)            // parse_actions
	putI32(b[o+16:], symNamesAddr) // symbol_names
	putI32(b[o+20:], 0)            // field_names
	putI32(b[o+24:], 0)            // field_map_slices
	putI32(b[o+28:], 0)            // field_map_entries
	putI32(b[o+32:], 0)            // symbol_metadata
	putI32(b[o+36:], pubMapAddr)   // public_symbol_map
	putI32(b[o+40:], 0)            // alias_map
	putI32(b[o+44:], 0)            // alias_sequences
	putI32(b[o+48:], 0)            // lex_modes
	putI32(b[o+52:], 0)            // lex_fn
	putI32(b[o+56:], 0)            // keyword_lex_fn

	return mem, blockOffset
}

func putU32(b []byte, v uint32) { putI32(b, int32(v)) }

func TestCopyOut_parseTableAndSymbolMap(t *testing.T) {
	mem, addr := buildLanguageBlock(t)
	module := &LanguageModule{languageID: 1, name: "x"}

	d, err := copyOut(mem, addr, module)
	require.NoError(t, err)

	require.Equal(t, []uint16{100, 101, 102, 103, 104}, d.ParseTable)
	require.Equal(t, []Symbol{10, 11, 12, 13, 14}, d.PublicSymbolMap)
	require.Same(t, module, d.Module)
	require.True(t, IsWasmBacked(d))
}

func TestCopyOut_symbolNamesNullAndString(t *testing.T) {
	mem, addr := buildLanguageBlock(t)
	module := &LanguageModule{languageID: 1, name: "x"}

	d, err := copyOut(mem, addr, module)
	require.NoError(t, err)

	require.Len(t, d.SymbolNames, 5)
	require.Nil(t, d.SymbolNames[3])
	require.NotNil(t, d.SymbolNames[4])
	require.Equal(t, "abc", *d.SymbolNames[4])
}

func TestIsWasmBacked_native(t *testing.T) {
	require.False(t, IsWasmBacked(&NativeLanguage{}))
}

func TestScanAliasMapSize(t *testing.T) {
	mem := make([]byte, 64)
	// one entry at a non-zero address (zero means "no alias map"): symbol=7,
	// count=2, then two u16 symbols, then terminator 0
	const addr = 16
	putU16(mem[addr+0:], 7)
	putU16(mem[addr+2:], 2)
	putU16(mem[addr+4:], 20)
	putU16(mem[addr+6:], 21)
	putU16(mem[addr+8:], 0)

	size := scanAliasMapSize(mem, addr)
	require.Equal(t, 10, size)
}
