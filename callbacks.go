package tswasm

import (
	"unicode"

	"github.com/bytecodealliance/wasmtime-go"
)

// Callback table-slot indices. These are never reassigned once a Store is
// constructed.
const (
	procExitIx                    = 0
	lexerAdvanceIx                = 1
	lexerMarkEndIx                = 2
	lexerGetColumnIx              = 3
	lexerIsAtIncludedRangeStartIx = 4
	lexerEOFIx                    = 5
	iswspaceIx                    = 6
	iswdigitIx                    = 7
	iswalphaIx                    = 8
	iswalnumIx                    = 9

	prologueLen = iswalnumIx + 1
)

// callbackDefinition pairs a callback's wasmtime signature with its
// implementation. The Store installs one of these into each prologue
// table slot at construction.
type callbackDefinition struct {
	name string
	ty   *wasmtime.FuncType
	fn   func(s *Store) func(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap)
}

func i32() *wasmtime.ValType { return wasmtime.NewValType(wasmtime.KindI32) }

func callbackDefinitions() []callbackDefinition {
	return []callbackDefinition{
		procExitIx: {
			name: "proc_exit",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, nil),
			fn:   callbackProcExit,
		},
		lexerAdvanceIx: {
			name: "lexer_advance",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32(), i32()}, nil),
			fn:   callbackLexerAdvance,
		},
		lexerMarkEndIx: {
			name: "lexer_mark_end",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, nil),
			fn:   callbackLexerMarkEnd,
		},
		lexerGetColumnIx: {
			name: "lexer_get_column",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, []*wasmtime.ValType{i32()}),
			fn:   callbackLexerGetColumn,
		},
		lexerIsAtIncludedRangeStartIx: {
			name: "lexer_is_at_included_range_start",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, []*wasmtime.ValType{i32()}),
			fn:   callbackLexerIsAtIncludedRangeStart,
		},
		lexerEOFIx: {
			name: "lexer_eof",
			ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, []*wasmtime.ValType{i32()}),
			fn:   callbackLexerEOF,
		},
		iswspaceIx: ctypeCallback("iswspace", unicode.IsSpace),
		iswdigitIx: ctypeCallback("iswdigit", unicode.IsDigit),
		iswalphaIx: ctypeCallback("iswalpha", unicode.IsLetter),
		iswalnumIx: ctypeCallback("iswalnum", func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }),
	}
}

func ctypeCallback(name string, classify func(rune) bool) callbackDefinition {
	return callbackDefinition{
		name: name,
		ty:   wasmtime.NewFuncType([]*wasmtime.ValType{i32()}, []*wasmtime.ValType{i32()}),
		fn: func(*Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
			return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
				result := int32(0)
				if classify(rune(args[0].I32())) {
					result = 1
				}
				return []wasmtime.Val{wasmtime.ValI32(result)}, nil
			}
		},
	}
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func callbackProcExit(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		s.logger.Printf("guest called proc_exit(%d); trapping", args[0].I32())
		return nil, wasmtime.NewTrap((&ProcExitCalledError{Code: args[0].I32()}).Error())
	}
}

func callbackLexerAdvance(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		lexer := s.currentLexer
		skip := args[1].I32() != 0
		lexer.Advance(skip)
		s.writeLookahead(lexer.Lookahead())
		return nil, nil
	}
}

func callbackLexerMarkEnd(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		s.currentLexer.MarkEnd()
		return nil, nil
	}
}

func callbackLexerGetColumn(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		return []wasmtime.Val{wasmtime.ValI32(int32(s.currentLexer.Column()))}, nil
	}
}

func callbackLexerIsAtIncludedRangeStart(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		return []wasmtime.Val{wasmtime.ValI32(boolToI32(s.currentLexer.IsAtIncludedRangeStart()))}, nil
	}
}

func callbackLexerEOF(s *Store) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		return []wasmtime.Val{wasmtime.ValI32(boolToI32(s.currentLexer.EOF()))}, nil
	}
}
