package tswasm

import "github.com/bytecodealliance/wasmtime-go"

// LanguageModule is a compiled-but-not-yet-resident language module: the
// compiled wasmtime.Module plus identity. It is exclusively owned by
// whatever created it via Store.Load (typically a registry outside this
// package) and may be shared by reference across many Stores; binding it
// into a second Store re-instantiates it there without recompiling.
type LanguageModule struct {
	languageID uint32
	name       string
	compiled   *wasmtime.Module
	dylink     DylinkInfo
}

// Name returns the language name this module was loaded under (without the
// "tree_sitter_" export prefix).
func (m *LanguageModule) Name() string { return m.name }
