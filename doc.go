// Package tswasm loads tree-sitter-style parser language grammars compiled
// to relocatable WebAssembly modules, instantiates them inside a shared
// sandboxed Store, and reconstructs native-shaped LanguageDescriptors by
// copying static parse tables out of guest memory. A Dispatcher mediates
// calls from a host parser into a bound language's lexer and external
// scanner functions, and callbacks from the guest back into the host for
// streaming input and position queries.
package tswasm
