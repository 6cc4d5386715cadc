package tswasm

import "github.com/bytecodealliance/wasmtime-go"

// StoreConfig controls how a Store's underlying engine and guest sandbox
// are constructed. The zero value is never used directly; start from
// NewStoreConfig. Every With* method returns a new, independent,
// copy-on-write value.
type StoreConfig struct {
	newEngineConfig func() *wasmtime.Config
	logger          Logger
	stdlib          *StdlibModule
}

// NewStoreConfig returns the default configuration: a plain wasmtime.Config
// with no fuel metering or epoch interruption, a no-op Logger, and no
// standard-library module (language modules that import libc-shaped names
// will fail to resolve until WithStdlib is used).
func NewStoreConfig() *StoreConfig {
	return &StoreConfig{
		newEngineConfig: wasmtime.NewConfig,
		logger:          noopLogger{},
	}
}

func (c *StoreConfig) clone() *StoreConfig {
	ret := *c
	return &ret
}

// WithEngineConfig overrides how the wasmtime.Config backing the Store's
// engine is constructed, e.g. to enable fuel consumption or epoch
// interruption for cooperative cancellation of a runaway guest.
func (c *StoreConfig) WithEngineConfig(f func() *wasmtime.Config) *StoreConfig {
	ret := c.clone()
	ret.newEngineConfig = f
	return ret
}

// WithLogger installs a diagnostic hook. A nil logger is rejected in favor
// of the no-op default.
func (c *StoreConfig) WithLogger(l Logger) *StoreConfig {
	ret := c.clone()
	if l == nil {
		l = noopLogger{}
	}
	ret.logger = l
	return ret
}

// WithStdlib installs the standard-library module whose exports (malloc,
// free, memcpy, and friends) are re-exported to every later language
// module. Without this, a language module that imports any of those names
// fails to load with UnresolvedImportError.
func (c *StoreConfig) WithStdlib(stdlib *StdlibModule) *StoreConfig {
	ret := c.clone()
	ret.stdlib = stdlib
	return ret
}
