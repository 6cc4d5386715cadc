package tswasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "InvalidModuleError",
			err:  &InvalidModuleError{Reason: "bad magic number"},
			want: "invalid wasm language module: bad magic number",
		},
		{
			name: "CompileError",
			err:  &CompileError{Message: "unexpected end of section"},
			want: "failed to compile wasm module: unexpected end of section",
		},
		{
			name: "UnresolvedImportError",
			err:  &UnresolvedImportError{Name: "env.foo"},
			want: `unresolved import "env.foo"`,
		},
		{
			name: "InstantiationTrapError",
			err:  &InstantiationTrapError{Message: "out of bounds memory access"},
			want: "trap while instantiating wasm module: out of bounds memory access",
		},
		{
			name: "RelocationTrapError",
			err:  &RelocationTrapError{Message: "unreachable"},
			want: "trap while applying data relocations: unreachable",
		},
		{
			name: "MissingLanguageExportError",
			err:  &MissingLanguageExportError{LanguageName: "json"},
			want: "module does not export tree_sitter_json as a () -> i32 function",
		},
		{
			name: "LanguageCallTrapError",
			err:  &LanguageCallTrapError{FunctionName: "lex_main", Message: "unreachable"},
			want: "trap calling lex_main: unreachable",
		},
		{
			name: "ProcExitCalledError",
			err:  &ProcExitCalledError{Code: 1},
			want: "wasm guest called proc_exit(1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}
