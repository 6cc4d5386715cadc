package tswasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStdlibImport_noStdlibConfigured(t *testing.T) {
	s, err := NewStore(NewStoreConfig())
	require.NoError(t, err)

	_, ok := s.resolveStdlibImport("malloc")
	require.False(t, ok)
}

func TestStdlibExportNames_coversExpectedLibcSymbols(t *testing.T) {
	for _, name := range []string{"malloc", "free", "memcpy", "memset", "strlen", "__cxa_atexit"} {
		require.Contains(t, stdlibExportNames, name)
	}
}
