// Package fittest builds synthetic FIT files for tests and sample generation.
package fittest

import (
	"encoding/binary"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

// Builder assembles a FIT file message by message. Offsets it reports are
// absolute file offsets, header included.
type Builder struct {
	HeaderSize      uint8
	ProtocolVersion uint8
	ProfileVersion  uint16

	stream []byte
	starts []int
}

func New() *Builder {
	return &Builder{
		HeaderSize:      14,
		ProtocolVersion: 0x20,
		ProfileVersion:  2132,
	}
}

// Offset is the absolute offset the next message will start at.
func (b *Builder) Offset() int {
	return int(b.HeaderSize) + len(b.stream)
}

// Starts lists the absolute start offset of every message and raw chunk.
func (b *Builder) Starts() []int {
	return append([]int(nil), b.starts...)
}

func (b *Builder) begin() {
	b.starts = append(b.starts, b.Offset())
}

// Definition appends a little-endian definition message.
func (b *Builder) Definition(local uint8, global uint16, fields ...fit.FieldDef) *Builder {
	return b.definition(local, 0, global, fields, nil)
}

// DefinitionBE appends a big-endian definition message.
func (b *Builder) DefinitionBE(local uint8, global uint16, fields ...fit.FieldDef) *Builder {
	return b.definition(local, 1, global, fields, nil)
}

// DevDefinition appends a definition carrying developer fields.
func (b *Builder) DevDefinition(local uint8, global uint16, fields []fit.FieldDef, dev []fit.DevFieldDef) *Builder {
	return b.definition(local, 0, global, fields, dev)
}

func (b *Builder) definition(local, arch uint8, global uint16, fields []fit.FieldDef, dev []fit.DevFieldDef) *Builder {
	b.begin()
	hdr := 0x40 | local&0x0F
	if dev != nil {
		hdr |= 0x20
	}
	b.stream = append(b.stream, hdr, 0, arch)
	if arch == 1 {
		b.stream = binary.BigEndian.AppendUint16(b.stream, global)
	} else {
		b.stream = binary.LittleEndian.AppendUint16(b.stream, global)
	}
	b.stream = append(b.stream, byte(len(fields)))
	for _, f := range fields {
		b.stream = append(b.stream, f.Num, f.Size, f.Type.Raw())
	}
	if dev != nil {
		b.stream = append(b.stream, byte(len(dev)))
		for _, f := range dev {
			b.stream = append(b.stream, f.Num, f.Size, f.DevIndex)
		}
	}
	return b
}

// Data appends a normal data message whose payload is the concatenation of
// fields.
func (b *Builder) Data(local uint8, fields ...[]byte) *Builder {
	b.begin()
	b.stream = append(b.stream, local&0x0F)
	for _, f := range fields {
		b.stream = append(b.stream, f...)
	}
	return b
}

// Compressed appends a compressed-timestamp data message.
func (b *Builder) Compressed(local, timeOffset uint8, fields ...[]byte) *Builder {
	b.begin()
	b.stream = append(b.stream, 0x80|(local&0x03)<<5|timeOffset&0x1F)
	for _, f := range fields {
		b.stream = append(b.stream, f...)
	}
	return b
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(p ...byte) *Builder {
	b.begin()
	b.stream = append(b.stream, p...)
	return b
}

// Stream returns a copy of the message stream.
func (b *Builder) Stream() []byte {
	return append([]byte(nil), b.stream...)
}

// Header returns the file header describing the current stream.
func (b *Builder) Header() fit.FileHeader {
	return fit.FileHeader{
		Size:            b.HeaderSize,
		ProtocolVersion: b.ProtocolVersion,
		ProfileVersion:  b.ProfileVersion,
		DataSize:        uint32(len(b.stream)),
		HasCRC:          b.HeaderSize == 14,
	}
}

// Bytes returns the complete file with header CRC and trailing file CRC.
func (b *Builder) Bytes() []byte {
	out := b.Header().Encode()
	out = append(out, b.stream...)
	return binary.LittleEndian.AppendUint16(out, fit.CRC16(out))
}

func U8(v uint8) []byte { return []byte{v} }

func U16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

func U32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func I8(v int8) []byte { return []byte{byte(v)} }

// Str encodes s as a NUL-padded string field of the given size.
func Str(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, s)
	return out
}
