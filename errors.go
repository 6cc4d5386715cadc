package tswasm

import "fmt"

// InvalidModuleError is returned when a language module's bytes do not carry
// a usable dylink.0 custom section: bad magic/version, a missing "dylink.0"
// name, a missing memory-info subsection, or a truncated LEB128 anywhere in
// the framing.
type InvalidModuleError struct {
	// Reason describes what specifically failed to parse.
	Reason string
}

func (e *InvalidModuleError) Error() string {
	return fmt.Sprintf("invalid wasm language module: %s", e.Reason)
}

// CompileError wraps a failure from the underlying engine while compiling a
// module's bytes into a runnable form.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string { return fmt.Sprintf("failed to compile wasm module: %s", e.Message) }

// UnresolvedImportError is returned when a language module declares an
// import outside the closed set this package resolves (memory/table bases,
// the shared memory and indirect table, the four wide-character
// classifiers, and anything re-exported by the standard-library module).
type UnresolvedImportError struct {
	Name string
}

func (e *UnresolvedImportError) Error() string {
	return fmt.Sprintf("unresolved import %q", e.Name)
}

// InstantiationTrapError is returned when the engine traps while
// instantiating a language module against its resolved imports.
type InstantiationTrapError struct {
	Message string
}

func (e *InstantiationTrapError) Error() string {
	return fmt.Sprintf("trap while instantiating wasm module: %s", e.Message)
}

// RelocationTrapError is returned when a module's __wasm_apply_data_relocs
// export traps.
type RelocationTrapError struct {
	Message string
}

func (e *RelocationTrapError) Error() string {
	return fmt.Sprintf("trap while applying data relocations: %s", e.Message)
}

// MissingLanguageExportError is returned when a module has no
// tree_sitter_<name> export, or the export is not a zero-argument function.
type MissingLanguageExportError struct {
	LanguageName string
}

func (e *MissingLanguageExportError) Error() string {
	return fmt.Sprintf("module does not export tree_sitter_%s as a () -> i32 function", e.LanguageName)
}

// LanguageCallTrapError is returned when a guest lex/scanner function traps
// during dispatch, or when Load's tree_sitter_<name> invocation traps.
type LanguageCallTrapError struct {
	FunctionName string
	Message      string
}

func (e *LanguageCallTrapError) Error() string {
	return fmt.Sprintf("trap calling %s: %s", e.FunctionName, e.Message)
}

// ProcExitCalledError is raised when the guest calls the proc_exit callback
// (slot 0). The guest is never supposed to do this; the host treats it as a
// fatal trap for the current call rather than actually exiting the process.
type ProcExitCalledError struct {
	Code int32
}

func (e *ProcExitCalledError) Error() string {
	return fmt.Sprintf("wasm guest called proc_exit(%d)", e.Code)
}
