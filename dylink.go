package tswasm

import (
	"bytes"
	"fmt"

	"github.com/wasmlang/tswasm/internal/leb128"
)

// DylinkInfo is the memory and indirect-table footprint a relocatable
// language module declares in its dylink.0 custom section.
type DylinkInfo struct {
	MemorySize  uint32
	MemoryAlign uint32
	TableSize   uint32
	TableAlign  uint32
}

var (
	wasmMagic   = [4]byte{0x00, 'a', 's', 'm'}
	wasmVersion = [4]byte{0x01, 0x00, 0x00, 0x00}
)

const (
	sectionIDCustom = 0x0
	dylinkMemInfo   = 0x1
)

// ParseDylinkInfo extracts the memory-info subsection of a module's
// dylink.0 custom section. It validates the magic and version header,
// then walks top-level sections looking for the one named "dylink.0",
// and within it, subsection type 1.
//
// Every other section, and every other subsection of dylink.0, is skipped
// by its declared length: this function never needs to understand their
// contents.
func ParseDylinkInfo(wasm []byte) (*DylinkInfo, error) {
	r := bytes.NewReader(wasm)

	var magic, version [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return nil, &InvalidModuleError{Reason: "truncated header"}
	}
	if magic != wasmMagic {
		return nil, &InvalidModuleError{Reason: "bad magic number"}
	}
	if _, err := readFull(r, version[:]); err != nil {
		return nil, &InvalidModuleError{Reason: "truncated header"}
	}
	if version != wasmVersion {
		return nil, &InvalidModuleError{Reason: "unsupported wasm version"}
	}

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, &InvalidModuleError{Reason: "truncated section id"}
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, &InvalidModuleError{Reason: fmt.Sprintf("truncated section length: %s", err)}
		}

		sectionStart := int64(len(wasm)) - int64(r.Len())
		sectionEnd := sectionStart + int64(size)
		if sectionEnd > int64(len(wasm)) {
			return nil, &InvalidModuleError{Reason: "section runs past end of module"}
		}
		section := wasm[sectionStart:sectionEnd]

		if id == sectionIDCustom {
			info, found, err := parseCustomSectionForDylink(section)
			if err != nil {
				return nil, err
			}
			if found {
				return info, nil
			}
		}

		if _, err := r.Seek(sectionEnd, 0); err != nil {
			return nil, &InvalidModuleError{Reason: "truncated section body"}
		}
	}

	return nil, &InvalidModuleError{Reason: "missing dylink.0 memory-info subsection"}
}

func parseCustomSectionForDylink(section []byte) (*DylinkInfo, bool, error) {
	r := bytes.NewReader(section)
	nameLen, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, false, &InvalidModuleError{Reason: "truncated custom section name length"}
	}
	if int64(nameLen) > int64(r.Len()) {
		return nil, false, &InvalidModuleError{Reason: "custom section name runs past section end"}
	}
	name := make([]byte, nameLen)
	if _, err := readFull(r, name); err != nil {
		return nil, false, &InvalidModuleError{Reason: "truncated custom section name"}
	}
	if nameLen != 8 || string(name) != "dylink.0" {
		return nil, false, nil
	}

	for r.Len() > 0 {
		subsectionType, err := r.ReadByte()
		if err != nil {
			return nil, false, &InvalidModuleError{Reason: "truncated dylink subsection type"}
		}
		subsectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, false, &InvalidModuleError{Reason: "truncated dylink subsection length"}
		}

		subStart := int64(len(section)) - int64(r.Len())
		subEnd := subStart + int64(subsectionSize)
		if subEnd > int64(len(section)) {
			return nil, false, &InvalidModuleError{Reason: "dylink subsection runs past section end"}
		}

		if subsectionType == dylinkMemInfo {
			sub := bytes.NewReader(section[subStart:subEnd])
			memSize, _, err := leb128.DecodeUint32(sub)
			if err != nil {
				return nil, false, &InvalidModuleError{Reason: "truncated memory-info: memory_size"}
			}
			memAlign, _, err := leb128.DecodeUint32(sub)
			if err != nil {
				return nil, false, &InvalidModuleError{Reason: "truncated memory-info: memory_align"}
			}
			tableSize, _, err := leb128.DecodeUint32(sub)
			if err != nil {
				return nil, false, &InvalidModuleError{Reason: "truncated memory-info: table_size"}
			}
			tableAlign, _, err := leb128.DecodeUint32(sub)
			if err != nil {
				return nil, false, &InvalidModuleError{Reason: "truncated memory-info: table_align"}
			}
			return &DylinkInfo{
				MemorySize:  memSize,
				MemoryAlign: memAlign,
				TableSize:   tableSize,
				TableAlign:  tableAlign,
			}, true, nil
		}

		if _, err := r.Seek(subEnd, 0); err != nil {
			return nil, false, &InvalidModuleError{Reason: "truncated dylink subsection body"}
		}
	}

	return nil, false, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(buf))
	}
	return n, nil
}

// alignUp rounds offset up to the next multiple of align. align of 0 or 1
// is treated as "no alignment requirement".
func alignUp(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	if rem := offset % align; rem != 0 {
		return offset + (align - rem)
	}
	return offset
}
