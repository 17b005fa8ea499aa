package fittest

import "github.com/ligfx/garmin-fit-fixer/internal/fit"

// Local message types used by Activity.
const (
	LocalRecord = 0
	LocalFileID = 5
	LocalEvent  = 6
)

// BaseTimestamp is the timestamp of record 0. Its low byte is 0xA9, so the
// first 23 record timestamps all start with a byte in 0xA9..0xBF.
const BaseTimestamp uint32 = 1009388457

// RecordSize is the encoded size of one record data message.
const RecordSize = 10

var (
	FileIDFields = []fit.FieldDef{
		{Num: 0, Size: 1, Type: fit.Enum},
		{Num: 1, Size: 2, Type: fit.Uint16},
		{Num: 2, Size: 2, Type: fit.Uint16},
		{Num: 3, Size: 4, Type: fit.Uint32z},
		{Num: 4, Size: 4, Type: fit.Uint32},
	}
	RecordFields = []fit.FieldDef{
		{Num: fit.FieldTimestamp, Size: 4, Type: fit.Uint32},
		{Num: 3, Size: 1, Type: fit.Uint8},
		{Num: 4, Size: 1, Type: fit.Uint8},
		{Num: 7, Size: 2, Type: fit.Uint16},
		{Num: 13, Size: 1, Type: fit.Sint8},
	}
	EventFields = []fit.FieldDef{
		{Num: fit.FieldTimestamp, Size: 4, Type: fit.Uint32},
		{Num: 0, Size: 1, Type: fit.Enum},
		{Num: 1, Size: 1, Type: fit.Enum},
	}
)

// FileID appends the file_id definition and message.
func (b *Builder) FileID() *Builder {
	b.Definition(LocalFileID, fit.MesgFileID, FileIDFields...)
	return b.Data(LocalFileID, U8(4), U16(1), U16(3122), U32(3912345678), U32(BaseTimestamp-57))
}

// RecordDefinition appends the record definition bound to LocalRecord.
func (b *Builder) RecordDefinition() *Builder {
	return b.Definition(LocalRecord, fit.MesgRecord, RecordFields...)
}

// Record appends record i with timestamp ts. Every payload byte after the
// timestamp is chosen so that no valid message can start on it: heart rate is
// 0x1X, cadence 0x2X, power 0x3X3X and temperature 0x7X.
func (b *Builder) Record(i int, ts uint32) *Builder {
	n := uint8(i % 16)
	return b.Data(LocalRecord,
		U32(ts),
		U8(0x10|n),
		U8(0x20|n),
		[]byte{0x30 | n, 0x30 | n},
		U8(0x70|n),
	)
}

// Activity returns a file_id followed by n records one second apart.
func Activity(n int) *Builder {
	b := New().FileID().RecordDefinition()
	for i := 0; i < n; i++ {
		b.Record(i, BaseTimestamp+uint32(i))
	}
	return b
}
