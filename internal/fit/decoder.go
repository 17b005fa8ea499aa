package fit

import (
	"errors"
	"io"
	"maps"
)

type devKey struct {
	index uint8
	num   uint8
}

// State is everything the decoder carries from one message to the next. It is
// a value; copying it yields an independent snapshot. Developer field types
// live in a map that is cloned before every write, so copies never observe
// each other's registrations.
type State struct {
	Table       Table
	Baseline    uint32
	HasBaseline bool
	devTypes    map[devKey]BaseType
}

// DeveloperFieldType returns the base type registered for a developer field.
func (s *State) DeveloperFieldType(devIndex, num uint8) (BaseType, bool) {
	t, ok := s.devTypes[devKey{devIndex, num}]
	return t, ok
}

func (s *State) registerDeveloperField(k devKey, t BaseType) {
	next := maps.Clone(s.devTypes)
	if next == nil {
		next = make(map[devKey]BaseType)
	}
	next[k] = t
	s.devTypes = next
}

// ExpandCompressedTimestamp applies a 5-bit time offset to the baseline,
// rolling over when the offset is below the baseline's low 5 bits.
func ExpandCompressedTimestamp(baseline uint32, offset uint8) uint32 {
	offset &= compressedTimeOffsetMask
	low := baseline & compressedTimeOffsetMask
	ts := baseline&^compressedTimeOffsetMask + uint32(offset)
	if uint32(offset) < low {
		ts += compressedTimeOffsetMask + 1
	}
	return ts
}

// Decoder reads messages from the stream buf[start:end]. A message that would
// extend past end fails with ErrOutOfBounds. State only changes when Next
// returns a message.
type Decoder struct {
	cur   *Cursor
	state State
}

func NewDecoder(buf []byte, start, end int) *Decoder {
	if end > len(buf) {
		end = len(buf)
	}
	if start > end {
		start = end
	}
	cur := NewCursor(buf[:end])
	cur.pos = start
	return &Decoder{cur: cur}
}

func (d *Decoder) State() State {
	return d.state
}

func (d *Decoder) SetState(s State) {
	d.state = s
}

func (d *Decoder) Position() int {
	return d.cur.Position()
}

func (d *Decoder) Seek(offset int) error {
	return d.cur.Seek(offset)
}

// Done reports whether the stream end has been reached.
func (d *Decoder) Done() bool {
	return d.cur.Remaining() == 0
}

// Next decodes one message. It returns io.EOF at the end of the stream and a
// *DecodeError for any structural failure.
func (d *Decoder) Next() (*Message, error) {
	if d.Done() {
		return nil, io.EOF
	}
	start := d.cur.Position()
	raw, err := d.cur.ReadU8()
	if err != nil {
		return nil, structural(ErrOutOfBounds, start, start, 0, "record header")
	}
	hdr, err := ParseRecordHeader(raw)
	if err != nil {
		d.cur.pos = start
		return nil, structural(ErrReservedBits, start, start, raw, "record header 0x%02X", raw)
	}
	var msg *Message
	if hdr.Kind == KindDefinition {
		msg, err = d.readDefinition(start, hdr)
	} else {
		msg, err = d.readData(start, hdr)
	}
	if err != nil {
		d.cur.pos = start
		return nil, err
	}
	return msg, nil
}

func (d *Decoder) outOfBounds(start int, hdr RecordHeader, what string) error {
	return structural(ErrOutOfBounds, start, d.cur.Position(), hdr.Raw, "%s", what)
}

func (d *Decoder) readDefinition(start int, hdr RecordHeader) (*Message, error) {
	fixed, err := d.cur.ReadBytes(5)
	if err != nil {
		return nil, d.outOfBounds(start, hdr, "definition header")
	}
	if fixed[0] != 0 {
		return nil, structural(ErrReservedDefinitionByte, start, start+1, hdr.Raw, "reserved byte 0x%02X", fixed[0])
	}
	def := &Definition{LocalType: hdr.LocalType, Architecture: fixed[1]}
	if def.Architecture > 1 {
		return nil, structural(ErrUndefinedArchitecture, start, start+2, hdr.Raw, "architecture byte %d", fixed[1])
	}
	order := def.ByteOrder()
	def.GlobalNum = order.Uint16(fixed[2:4])
	numFields := int(fixed[4])

	if numFields > 0 {
		def.Fields = make([]FieldDef, 0, numFields)
	}
	var seen [256]bool
	for i := 0; i < numFields; i++ {
		at := d.cur.Position()
		fb, err := d.cur.ReadBytes(3)
		if err != nil {
			return nil, d.outOfBounds(start, hdr, "field definition")
		}
		bt, err := ParseBaseType(fb[2])
		if err != nil {
			return nil, structural(ErrBadBaseType, start, at+2, hdr.Raw, "field %d: %v", fb[0], err)
		}
		f := FieldDef{Num: fb[0], Size: fb[1], Type: bt}
		switch {
		case f.Num == fieldInvalid:
			return nil, structural(ErrBadFieldDefinition, start, at, hdr.Raw, "field number 255")
		case f.Size == 0 || int(f.Size)%bt.Size() != 0:
			return nil, structural(ErrBadFieldDefinition, start, at+1, hdr.Raw,
				"field %d size %d is not a multiple of %s size %d", f.Num, f.Size, bt, bt.Size())
		case seen[f.Num]:
			return nil, structural(ErrBadFieldDefinition, start, at, hdr.Raw, "duplicate field number %d", f.Num)
		}
		seen[f.Num] = true
		def.Fields = append(def.Fields, f)
	}

	if hdr.HasDeveloperData {
		count, err := d.cur.ReadU8()
		if err != nil {
			return nil, d.outOfBounds(start, hdr, "developer field count")
		}
		for i := 0; i < int(count); i++ {
			at := d.cur.Position()
			fb, err := d.cur.ReadBytes(3)
			if err != nil {
				return nil, d.outOfBounds(start, hdr, "developer field definition")
			}
			f := DevFieldDef{Num: fb[0], Size: fb[1], DevIndex: fb[2]}
			bt, ok := d.state.DeveloperFieldType(f.DevIndex, f.Num)
			if !ok {
				return nil, structural(ErrUndefinedDeveloperField, start, at, hdr.Raw,
					"developer %d field %d", f.DevIndex, f.Num)
			}
			if f.Size == 0 || int(f.Size)%bt.Size() != 0 {
				return nil, structural(ErrBadFieldDefinition, start, at+1, hdr.Raw,
					"developer %d field %d size %d is not a multiple of %s size %d", f.DevIndex, f.Num, f.Size, bt, bt.Size())
			}
			f.Type = bt
			def.DevFields = append(def.DevFields, f)
		}
	}

	d.state.Table.Define(hdr.LocalType, def)
	return &Message{
		Kind:       KindDefinition,
		Header:     hdr,
		Start:      start,
		End:        d.cur.Position(),
		LocalType:  hdr.LocalType,
		GlobalNum:  def.GlobalNum,
		Definition: def,
	}, nil
}

func (d *Decoder) readData(start int, hdr RecordHeader) (*Message, error) {
	def, ok := d.state.Table.Lookup(hdr.LocalType)
	if !ok {
		return nil, structural(ErrUndefinedLocalType, start, start, hdr.Raw, "local type %d", hdr.LocalType)
	}
	msg := &Message{
		Kind:       hdr.Kind,
		Header:     hdr,
		Start:      start,
		LocalType:  hdr.LocalType,
		GlobalNum:  def.GlobalNum,
		Definition: def,
	}
	if hdr.Kind == KindCompressedData {
		if def.HasTimestampField() {
			return nil, structural(ErrCompressedTimestampConflict, start, start, hdr.Raw,
				"local type %d (global %d) declares field %d", hdr.LocalType, def.GlobalNum, FieldTimestamp)
		}
		if !d.state.HasBaseline {
			return nil, structural(ErrMissingTimestampBaseline, start, start, hdr.Raw, "time offset %d", hdr.TimeOffset)
		}
		msg.Timestamp = ExpandCompressedTimestamp(d.state.Baseline, hdr.TimeOffset)
		msg.HasTimestamp = true
		msg.CompressedTimestamp = true
	}

	order := def.ByteOrder()
	if len(def.Fields) > 0 {
		msg.Fields = make([]FieldValue, 0, len(def.Fields))
	}
	for _, f := range def.Fields {
		at := d.cur.Position()
		data, err := d.cur.ReadBytes(int(f.Size))
		if err != nil {
			return nil, d.outOfBounds(start, hdr, "field data")
		}
		v, err := decodeValue(f.Type, data, order)
		if err != nil {
			return nil, structural(ErrBadString, start, at, hdr.Raw, "field %d: %v", f.Num, err)
		}
		if f.Num == FieldTimestamp && f.Type.Integer() && v.ElementValid(0) {
			msg.Timestamp = uint32(v.Uint(0))
			msg.HasTimestamp = true
		}
		msg.Fields = append(msg.Fields, FieldValue{Num: f.Num, Value: v})
	}
	for _, f := range def.DevFields {
		at := d.cur.Position()
		data, err := d.cur.ReadBytes(int(f.Size))
		if err != nil {
			return nil, d.outOfBounds(start, hdr, "developer field data")
		}
		v, err := decodeValue(f.Type, data, order)
		if err != nil {
			return nil, structural(ErrBadString, start, at, hdr.Raw, "developer %d field %d: %v", f.DevIndex, f.Num, err)
		}
		msg.DevFields = append(msg.DevFields, DevFieldValue{DevIndex: f.DevIndex, Num: f.Num, Value: v})
	}
	msg.End = d.cur.Position()

	var register *devKey
	var registerType BaseType
	if def.GlobalNum == MesgFieldDescription {
		k, bt, err := d.fieldDescription(msg)
		if err != nil {
			return nil, err
		}
		register, registerType = &k, bt
	}

	if msg.HasTimestamp {
		d.state.Baseline = msg.Timestamp
		d.state.HasBaseline = true
	}
	if register != nil {
		d.state.registerDeveloperField(*register, registerType)
	}
	return msg, nil
}

var errFieldDescriptionIncomplete = errors.New("missing developer index, field number or base type")

func (d *Decoder) fieldDescription(msg *Message) (devKey, BaseType, error) {
	idx, ok1 := msg.Field(0)
	num, ok2 := msg.Field(1)
	typ, ok3 := msg.Field(2)
	if !ok1 || !ok2 || !ok3 || !idx.ElementValid(0) || !num.ElementValid(0) || !typ.ElementValid(0) {
		return devKey{}, 0, structural(ErrBadFieldDescription, msg.Start, msg.Start, msg.Header.Raw, "%v", errFieldDescriptionIncomplete)
	}
	k := devKey{index: uint8(idx.Uint(0)), num: uint8(num.Uint(0))}
	bt, err := ParseBaseType(uint8(typ.Uint(0)))
	if err != nil {
		return devKey{}, 0, structural(ErrBadFieldDescription, msg.Start, msg.Start, msg.Header.Raw, "%v", err)
	}
	if _, dup := d.state.devTypes[k]; dup {
		return devKey{}, 0, structural(ErrBadFieldDescription, msg.Start, msg.Start, msg.Header.Raw,
			"duplicate description for developer %d field %d", k.index, k.num)
	}
	return k, bt, nil
}
