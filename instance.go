package tswasm

import "github.com/bytecodealliance/wasmtime-go"

// LanguageInstance is a per-Store instantiation of a LanguageModule. It is
// exclusively owned by the Store it was bound into.
type LanguageInstance struct {
	languageID uint32
	instance   *wasmtime.Instance
	memoryBase uint32
	tableBase  uint32

	// externalStatesAddress is the guest address of the external-scanner
	// state table, used to compute valid_tokens_address for scanner_scan.
	externalStatesAddress uint32

	// The following are absolute indices into the Store's shared indirect
	// function table: relative indices read out of the language block,
	// plus tableBase. A zero value means "not provided".
	lexMainFnIx            int32
	lexKeywordFnIx         int32
	scannerCreateFnIx      int32
	scannerDestroyFnIx     int32
	scannerSerializeFnIx   int32
	scannerDeserializeFnIx int32
	scannerScanFnIx        int32

	// lastResultSymbol is the result_symbol the LexerBridge held after the
	// most recent lex_main/lex_keyword call through this instance.
	lastResultSymbol uint16
}
