// Package leb128 implements the LEB128 variable-length integer encoding used
// throughout the WebAssembly binary format: section sizes, custom section
// name lengths, and the dylink.0 custom section's subsection sizes and
// memory-info fields.
package leb128

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"
)

// maxVarintLen32/64 bound the number of continuation bytes a well-formed
// ULEB128/SLEB128 encoding of a 32- or 64-bit value may use. A stream that
// has not terminated by then is corrupt: reject it rather than keep reading.
const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte { return EncodeUint64(uint64(v)) }

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte { return EncodeInt64(int64(v)) }

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// LoadUint32 decodes an unsigned LEB128 value from the front of buf,
// returning the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := LoadUint64(buf)
	if err != nil {
		return 0, n, err
	}
	if n > maxVarintLen32 {
		return 0, n, fmt.Errorf("invalid uint32: too many bytes")
	}
	if bits.Len64(v) > 32 {
		return 0, n, fmt.Errorf("invalid uint32: overflow")
	}
	return uint32(v), n, nil
}

// LoadUint64 decodes an unsigned LEB128 value from the front of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxVarintLen64; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if i == maxVarintLen64-1 && b&0xfe != 0 {
			return 0, 0, fmt.Errorf("invalid uint64: overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("invalid uint64: too many bytes")
}

// LoadInt32 decodes a signed LEB128 value from the front of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := LoadInt64(buf)
	if err != nil {
		return 0, n, err
	}
	if n > maxVarintLen32 {
		return 0, n, fmt.Errorf("invalid int32: too many bytes")
	}
	if v < -(1<<31) || v >= (1<<31) {
		return 0, n, fmt.Errorf("invalid int32: overflow")
	}
	return int32(v), n, nil
}

// LoadInt64 decodes a signed LEB128 value from the front of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	var result int64
	var shift uint
	var b byte
	i := 0
	for ; i < maxVarintLen64; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b = buf[i]
		if i == maxVarintLen64-1 && b&0xfe != 0 && b&0xfe != 0x7e {
			return 0, 0, fmt.Errorf("invalid int64: overflow")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if i == maxVarintLen64 && b&0x80 != 0 {
		return 0, 0, fmt.Errorf("invalid int64: too many bytes")
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, uint64(i + 1), nil
}

// DecodeUint32 reads an unsigned LEB128 value one byte at a time from r,
// the shape the dylink.0 subsection walker needs since it must stop
// exactly at the subsection boundary rather than over-reading a slice.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := DecodeUint64(r)
	if err != nil {
		return 0, n, err
	}
	if n > maxVarintLen32 {
		return 0, n, fmt.Errorf("invalid uint32: too many bytes")
	}
	if bits.Len64(v) > 32 {
		return 0, n, fmt.Errorf("invalid uint32: overflow")
	}
	return uint32(v), n, nil
}

// DecodeUint64 reads an unsigned LEB128 value one byte at a time from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxVarintLen64; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, io.ErrUnexpectedEOF
		}
		if i == maxVarintLen64-1 && b&0xfe != 0 {
			return 0, 0, fmt.Errorf("invalid uint64: overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("invalid uint64: too many bytes")
}

// DecodeInt32 reads a signed LEB128 value one byte at a time from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := DecodeInt64(r)
	if err != nil {
		return 0, n, err
	}
	if n > maxVarintLen32 {
		return 0, n, fmt.Errorf("invalid int32: too many bytes")
	}
	if v < -(1<<31) || v >= (1<<31) {
		return 0, n, fmt.Errorf("invalid int32: overflow")
	}
	return int32(v), n, nil
}

// DecodeInt64 reads a signed LEB128 value one byte at a time from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	var result int64
	var shift uint
	var b byte
	var n uint64
	for {
		rb, err := r.ReadByte()
		if err != nil {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b = rb
		n++
		if n == maxVarintLen64 && b&0xfe != 0 && b&0xfe != 0x7e {
			return 0, 0, fmt.Errorf("invalid int64: overflow")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if n >= maxVarintLen64 {
			return 0, 0, fmt.Errorf("invalid int64: too many bytes")
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n, nil
}

// DecodeInt33AsInt64 reads a 33-bit signed LEB128 (the encoding WebAssembly
// uses for block types) from r as an int64.
func DecodeInt33AsInt64(r *bytes.Reader) (int64, uint64, error) {
	var result int64
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, io.ErrUnexpectedEOF
		}
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, n, nil
		}
		if shift >= 35 {
			return 0, 0, fmt.Errorf("invalid int33: too many bytes")
		}
	}
}
