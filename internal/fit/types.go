package fit

import (
	"encoding/binary"
	"time"
)

// Global message numbers and field numbers the decoder and validator care
// about.
const (
	MesgFileID           uint16 = 0
	MesgEvent            uint16 = 21
	MesgRecord           uint16 = 20
	MesgDeveloperDataID  uint16 = 207
	MesgFieldDescription uint16 = 206

	FieldTimestamp uint8 = 253
	fieldInvalid   uint8 = 255
)

// Epoch is the zero point of FIT timestamps.
var Epoch = time.Date(1989, time.December, 31, 0, 0, 0, 0, time.UTC)

// TimestampTime converts seconds since the FIT epoch to wall time.
func TimestampTime(ts uint32) time.Time {
	return Epoch.Add(time.Duration(ts) * time.Second)
}

const (
	recordCompressedFlag = 0x80
	recordDefinitionFlag = 0x40
	recordDevDataFlag    = 0x20
	recordReservedBit4   = 0x10
	recordLocalTypeMask  = 0x0F

	compressedLocalTypeMask  = 0x60
	compressedLocalTypeShift = 5
	compressedTimeOffsetMask = 0x1F

	maxLocalTypes = 16
)

// Kind classifies a record.
type Kind uint8

const (
	KindDefinition Kind = iota
	KindData
	KindCompressedData
)

func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindData:
		return "data"
	case KindCompressedData:
		return "compressed"
	default:
		return "unknown"
	}
}

// RecordHeader is the first byte of every message.
type RecordHeader struct {
	Raw              byte
	Kind             Kind
	LocalType        uint8
	TimeOffset       uint8
	HasDeveloperData bool
}

// ParseRecordHeader classifies a record header byte and rejects reserved bits.
func ParseRecordHeader(b byte) (RecordHeader, error) {
	h := RecordHeader{Raw: b}
	if b&recordCompressedFlag != 0 {
		h.Kind = KindCompressedData
		h.LocalType = (b & compressedLocalTypeMask) >> compressedLocalTypeShift
		h.TimeOffset = b & compressedTimeOffsetMask
		return h, nil
	}
	h.LocalType = b & recordLocalTypeMask
	if b&recordReservedBit4 != 0 {
		return h, ErrReservedBits
	}
	if b&recordDefinitionFlag != 0 {
		h.Kind = KindDefinition
		h.HasDeveloperData = b&recordDevDataFlag != 0
		return h, nil
	}
	if b&recordDevDataFlag != 0 {
		return h, ErrReservedBits
	}
	h.Kind = KindData
	return h, nil
}

// FieldDef is one 3-byte field definition.
type FieldDef struct {
	Num  uint8
	Size uint8
	Type BaseType
}

// DevFieldDef is one developer field definition. Type comes from the
// matching field_description message.
type DevFieldDef struct {
	Num      uint8
	Size     uint8
	DevIndex uint8
	Type     BaseType
}

// Definition binds a local message type to a layout. Definitions are never
// mutated once decoded.
type Definition struct {
	LocalType    uint8
	Architecture uint8
	GlobalNum    uint16
	Fields       []FieldDef
	DevFields    []DevFieldDef
}

// ByteOrder returns the order of multi-byte values in data messages.
func (d *Definition) ByteOrder() binary.ByteOrder {
	if d.Architecture == 1 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Size is the payload size of a data message using this definition,
// excluding the record header.
func (d *Definition) Size() int {
	n := 0
	for _, f := range d.Fields {
		n += int(f.Size)
	}
	for _, f := range d.DevFields {
		n += int(f.Size)
	}
	return n
}

func (d *Definition) HasTimestampField() bool {
	for _, f := range d.Fields {
		if f.Num == FieldTimestamp {
			return true
		}
	}
	return false
}

type FieldValue struct {
	Num   uint8
	Value Value
}

type DevFieldValue struct {
	DevIndex uint8
	Num      uint8
	Value    Value
}

// Message is one decoded record with its exact extent [Start, End).
type Message struct {
	Kind       Kind
	Header     RecordHeader
	Start      int
	End        int
	LocalType  uint8
	GlobalNum  uint16
	Definition *Definition
	Fields     []FieldValue
	DevFields  []DevFieldValue

	Timestamp           uint32
	HasTimestamp        bool
	CompressedTimestamp bool
}

// Field looks up a field by number.
func (m *Message) Field(num uint8) (Value, bool) {
	for _, f := range m.Fields {
		if f.Num == num {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (m *Message) Size() int {
	return m.End - m.Start
}
