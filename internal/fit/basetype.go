package fit

import (
	"fmt"
	"math"
)

// BaseType is a FIT base type number with the endian flag stripped.
type BaseType uint8

const (
	Enum BaseType = iota
	Sint8
	Uint8
	Sint16
	Uint16
	Sint32
	Uint32
	String
	Float32
	Float64
	Uint8z
	Uint16z
	Uint32z
	Byte
	Sint64
	Uint64
	Uint64z

	numBaseTypes = iota
)

const (
	baseTypeEndianFlag   = 0x80
	baseTypeReservedMask = 0x60
	baseTypeNumMask      = 0x1F
)

var baseTypeInfo = [numBaseTypes]struct {
	name    string
	size    int
	invalid uint64
}{
	Enum:    {"enum", 1, 0xFF},
	Sint8:   {"sint8", 1, 0x7F},
	Uint8:   {"uint8", 1, 0xFF},
	Sint16:  {"sint16", 2, 0x7FFF},
	Uint16:  {"uint16", 2, 0xFFFF},
	Sint32:  {"sint32", 4, 0x7FFFFFFF},
	Uint32:  {"uint32", 4, 0xFFFFFFFF},
	String:  {"string", 1, 0x00},
	Float32: {"float32", 4, 0xFFFFFFFF},
	Float64: {"float64", 8, math.MaxUint64},
	Uint8z:  {"uint8z", 1, 0x00},
	Uint16z: {"uint16z", 2, 0x0000},
	Uint32z: {"uint32z", 4, 0x00000000},
	Byte:    {"byte", 1, 0xFF},
	Sint64:  {"sint64", 8, 0x7FFFFFFFFFFFFFFF},
	Uint64:  {"uint64", 8, math.MaxUint64},
	Uint64z: {"uint64z", 8, 0},
}

// ParseBaseType validates a raw base type byte from a field definition.
func ParseBaseType(raw byte) (BaseType, error) {
	if raw&baseTypeReservedMask != 0 {
		return 0, fmt.Errorf("base type 0x%02X has reserved bits set", raw)
	}
	bt := BaseType(raw & baseTypeNumMask)
	if int(bt) >= numBaseTypes {
		return 0, fmt.Errorf("unknown base type number %d", bt)
	}
	if bt.Size() > 1 && raw&baseTypeEndianFlag == 0 {
		return 0, fmt.Errorf("base type %s is missing the endian flag", bt)
	}
	return bt, nil
}

func (t BaseType) Size() int {
	if int(t) >= numBaseTypes {
		return 1
	}
	return baseTypeInfo[t].size
}

// Invalid is the "not available" sentinel for one element of this type.
func (t BaseType) Invalid() uint64 {
	if int(t) >= numBaseTypes {
		return 0xFF
	}
	return baseTypeInfo[t].invalid
}

// Raw is the base type byte as written in a field definition.
func (t BaseType) Raw() byte {
	if t.Size() > 1 {
		return byte(t) | baseTypeEndianFlag
	}
	return byte(t)
}

func (t BaseType) Signed() bool {
	switch t {
	case Sint8, Sint16, Sint32, Sint64:
		return true
	}
	return false
}

// Integer reports whether elements are plain integers.
func (t BaseType) Integer() bool {
	return int(t) < numBaseTypes && t != String && t != Byte && !t.Float()
}

func (t BaseType) Float() bool {
	return t == Float32 || t == Float64
}

func (t BaseType) String() string {
	if int(t) >= numBaseTypes {
		return fmt.Sprintf("basetype(%d)", uint8(t))
	}
	return baseTypeInfo[t].name
}
