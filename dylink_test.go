package tswasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// buildDylinkModule assembles a minimal wasm binary whose only section is a
// "dylink.0" custom section carrying one memory-info (type 1) subsection
// with the four given ULEB128 fields.
func buildDylinkModule(memSize, memAlign, tableSize, tableAlign uint32) []byte {
	var memInfo []byte
	memInfo = append(memInfo, uleb128(memSize)...)
	memInfo = append(memInfo, uleb128(memAlign)...)
	memInfo = append(memInfo, uleb128(tableSize)...)
	memInfo = append(memInfo, uleb128(tableAlign)...)

	var subsection []byte
	subsection = append(subsection, 0x01) // subsection type 1: memory info
	subsection = append(subsection, uleb128(uint32(len(memInfo)))...)
	subsection = append(subsection, memInfo...)

	name := "dylink.0"
	var custom []byte
	custom = append(custom, uleb128(uint32(len(name)))...)
	custom = append(custom, []byte(name)...)
	custom = append(custom, subsection...)

	var section []byte
	section = append(section, 0x00) // section id 0: custom
	section = append(section, uleb128(uint32(len(custom)))...)
	section = append(section, custom...)

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section...)
	return out
}

func TestParseDylinkInfo(t *testing.T) {
	wasm := buildDylinkModule(0x400, 16, 8, 1)
	info, err := ParseDylinkInfo(wasm)
	require.NoError(t, err)
	require.Equal(t, &DylinkInfo{MemorySize: 0x400, MemoryAlign: 16, TableSize: 8, TableAlign: 1}, info)
}

func TestParseDylinkInfo_badMagic(t *testing.T) {
	wasm := append([]byte{0x00, 'x', 's', 'm', 0x01, 0x00, 0x00, 0x00}, buildDylinkModule(1, 1, 1, 1)[8:]...)
	_, err := ParseDylinkInfo(wasm)
	require.Error(t, err)
}

func TestParseDylinkInfo_missingDylinkSection(t *testing.T) {
	// a module with only the header and no sections at all
	wasm := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	_, err := ParseDylinkInfo(wasm)
	require.Error(t, err)
}

func TestParseDylinkInfo_wrongCustomSectionName(t *testing.T) {
	name := "not-dylink"
	var custom []byte
	custom = append(custom, uleb128(uint32(len(name)))...)
	custom = append(custom, []byte(name)...)
	custom = append(custom, 0xFF, 0xFF) // arbitrary payload, skipped

	var section []byte
	section = append(section, 0x00)
	section = append(section, uleb128(uint32(len(custom)))...)
	section = append(section, custom...)

	wasm := append([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}, section...)
	_, err := ParseDylinkInfo(wasm)
	require.Error(t, err)
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint32(0), alignUp(0, 16))
	require.Equal(t, uint32(16), alignUp(1, 16))
	require.Equal(t, uint32(16), alignUp(16, 16))
	require.Equal(t, uint32(32), alignUp(17, 16))
	require.Equal(t, uint32(5), alignUp(5, 0))
	require.Equal(t, uint32(5), alignUp(5, 1))
}
