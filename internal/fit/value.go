package fit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// Value is one decoded field. Elements equal to the base type's "not
// available" sentinel are reported through Valid and ElementValid rather than
// surfaced as numbers.
type Value struct {
	Type  BaseType
	data  []byte
	order binary.ByteOrder
	valid bool
}

var (
	errStringUnterminated = errors.New("string is not NUL-terminated")
	errStringNotUTF8      = errors.New("string is not valid UTF-8")
)

func decodeValue(t BaseType, data []byte, order binary.ByteOrder) (Value, error) {
	v := Value{Type: t, data: data, order: order}
	switch t {
	case String:
		end := bytes.IndexByte(data, 0)
		if end < 0 {
			return v, errStringUnterminated
		}
		if !utf8.Valid(data[:end]) {
			return v, errStringNotUTF8
		}
		v.valid = end > 0
	case Byte:
		for _, b := range data {
			if b != 0xFF {
				v.valid = true
				break
			}
		}
	default:
		for i := 0; i < v.Len(); i++ {
			if v.ElementValid(i) {
				v.valid = true
				break
			}
		}
	}
	return v, nil
}

// Valid reports whether the field carries any data.
func (v Value) Valid() bool {
	return v.valid
}

// Len is the number of elements. Strings and byte arrays count bytes.
func (v Value) Len() int {
	size := v.Type.Size()
	if size == 0 {
		return 0
	}
	return len(v.data) / size
}

func (v Value) raw(i int) uint64 {
	size := v.Type.Size()
	b := v.data[i*size : (i+1)*size]
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(v.order.Uint16(b))
	case 4:
		return uint64(v.order.Uint32(b))
	default:
		return v.order.Uint64(b)
	}
}

// ElementValid reports whether element i differs from the invalid sentinel.
func (v Value) ElementValid(i int) bool {
	if i < 0 || i >= v.Len() {
		return false
	}
	return v.raw(i) != v.Type.Invalid()
}

// Uint returns element i as an unsigned integer.
func (v Value) Uint(i int) uint64 {
	if i < 0 || i >= v.Len() {
		return 0
	}
	return v.raw(i)
}

// Int returns element i sign-extended from the base type width.
func (v Value) Int(i int) int64 {
	if i < 0 || i >= v.Len() {
		return 0
	}
	r := v.raw(i)
	switch v.Type.Size() {
	case 1:
		return int64(int8(r))
	case 2:
		return int64(int16(r))
	case 4:
		return int64(int32(r))
	default:
		return int64(r)
	}
}

// Float returns element i as a float64. Integer types convert numerically.
func (v Value) Float(i int) float64 {
	if i < 0 || i >= v.Len() {
		return 0
	}
	switch v.Type {
	case Float32:
		return float64(math.Float32frombits(uint32(v.raw(i))))
	case Float64:
		return math.Float64frombits(v.raw(i))
	}
	if v.Type.Signed() {
		return float64(v.Int(i))
	}
	return float64(v.raw(i))
}

// Str returns a string field up to its terminating NUL.
func (v Value) Str() string {
	if v.Type != String {
		return ""
	}
	if end := bytes.IndexByte(v.data, 0); end >= 0 {
		return string(v.data[:end])
	}
	return string(v.data)
}

// Bytes returns the raw field bytes as stored in the file.
func (v Value) Bytes() []byte {
	return v.data
}
