package tswasm

// Lexer is the host-side collaborator a Store calls back into while a guest
// lex/scanner function runs. This package only needs the narrow slice of
// the lexer/scanner protocol the five callback slots expose, so the real
// parser core (tree construction, state machine) never has to know its
// lexer is WASM-backed.
type Lexer interface {
	// Lookahead returns the current lookahead codepoint.
	Lookahead() int32
	// Advance consumes the lookahead codepoint. If skip is true, the
	// consumed codepoint is excluded from the token being built.
	Advance(skip bool)
	// MarkEnd records the current position as the end of the token being
	// built, without consuming further input.
	MarkEnd()
	// Column returns the current column (codepoint offset since the last
	// line break).
	Column() uint32
	// IsAtIncludedRangeStart reports whether the lexer sits at the start
	// of one of the ranges the host parser was asked to include.
	IsAtIncludedRangeStart() bool
	// EOF reports whether the lexer has consumed all available input.
	EOF() bool
}

// ExternalScanner is the hand-written external-scanner protocol a language
// may define beyond its generated lexer. This package only needs to know it
// has create/destroy/scan/serialize/deserialize entry points, surfaced here
// for callers that want to type-check a language's scanner state across a
// Store boundary; the Dispatcher drives the guest side directly by table
// index and never calls through this interface itself.
type ExternalScanner interface {
	Create() uint32
	Destroy(state uint32)
	Scan(state uint32, validTokens []bool) bool
	Serialize(state uint32, out []byte) uint32
	Deserialize(state uint32, in []byte)
}

// lexerBridgeAddress is the fixed guest address of the LexerBridge
// structure.
const lexerBridgeAddress uint32 = 32

// lexerBridge mirrors the guest's packed layout:
//
//	lookahead: i32
//	result_symbol: u16
//	advance, mark_end, get_column, is_at_included_range_start, eof: i32
//
// Field order and width matter: this is copied byte-for-byte into guest
// memory at lexerBridgeAddress, not a type any guest code loads via Go's
// memory layout rules.
type lexerBridge struct {
	lookahead                int32
	resultSymbol             uint16
	advanceIx                int32
	markEndIx                int32
	getColumnIx              int32
	isAtIncludedRangeStartIx int32
	eofIx                    int32
}

// lexerBridgeSize is sizeof(LexerInWasmMemory) in the guest's packed layout:
// 4 (lookahead) + 2 (result_symbol) + 4*5 (callback indices) = 26 bytes,
// padded per struct field writes below; we write fields individually so Go
// struct padding never leaks into guest memory.
const lexerBridgeSize = 4 + 2 + 4*5

// lexerBridgeEnd is the first guest address past the LexerBridge, and so
// the first address a loaded module's memory range may begin at.
const lexerBridgeEnd = lexerBridgeAddress + lexerBridgeSize

func (b *lexerBridge) encode() []byte {
	out := make([]byte, lexerBridgeSize)
	putI32(out[0:], b.lookahead)
	putU16(out[4:], b.resultSymbol)
	putI32(out[6:], b.advanceIx)
	putI32(out[10:], b.markEndIx)
	putI32(out[14:], b.getColumnIx)
	putI32(out[18:], b.isAtIncludedRangeStartIx)
	putI32(out[22:], b.eofIx)
	return out
}

func putI32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getI32(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
