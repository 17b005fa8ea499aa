package fit_test

import (
	"errors"
	"io"
	"testing"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/fit/fittest"
)

func decodeAll(t *testing.T, buf []byte) ([]*fit.Message, error) {
	t.Helper()
	hdr, err := fit.ParseFileHeader(buf)
	if err != nil {
		t.Fatalf("ParseFileHeader: %v", err)
	}
	b := fit.StreamBounds(buf, hdr)
	dec := fit.NewDecoder(buf, b.Start, b.End)
	var msgs []*fit.Message
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}

func TestDecoderActivity(t *testing.T) {
	b := fittest.Activity(5)
	msgs, err := decodeAll(t, b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 8 {
		t.Fatalf("messages = %d, want 8", len(msgs))
	}
	starts := b.Starts()
	for i, msg := range msgs {
		if msg.Start != starts[i] {
			t.Fatalf("message %d start = %d, want %d", i, msg.Start, starts[i])
		}
	}
	rec := msgs[3]
	if rec.Kind != fit.KindData || rec.GlobalNum != fit.MesgRecord {
		t.Fatalf("record kind/global = %v/%d", rec.Kind, rec.GlobalNum)
	}
	if rec.Size() != fittest.RecordSize {
		t.Fatalf("record size = %d, want %d", rec.Size(), fittest.RecordSize)
	}
	if !rec.HasTimestamp || rec.Timestamp != fittest.BaseTimestamp {
		t.Fatalf("record timestamp = %d (%v), want %d", rec.Timestamp, rec.HasTimestamp, fittest.BaseTimestamp)
	}
	hr, ok := rec.Field(3)
	if !ok || hr.Uint(0) != 0x10 {
		t.Fatalf("heart rate = %v %v", hr.Uint(0), ok)
	}
	temp, _ := rec.Field(13)
	if temp.Int(0) != 0x70 {
		t.Fatalf("temperature = %d, want %d", temp.Int(0), 0x70)
	}
	fid := msgs[1]
	if fid.GlobalNum != fit.MesgFileID || fid.HasTimestamp {
		t.Fatalf("file_id = %+v", fid)
	}
}

func TestDecoderStructuralFailures(t *testing.T) {
	rec := fit.FieldDef{Num: 3, Size: 1, Type: fit.Uint8}
	tests := []struct {
		name  string
		build func(b *fittest.Builder)
		want  error
	}{
		{
			name:  "undefined local type",
			build: func(b *fittest.Builder) { b.Data(3, fittest.U8(1)) },
			want:  fit.ErrUndefinedLocalType,
		},
		{
			name:  "reserved bit 4",
			build: func(b *fittest.Builder) { b.Raw(0x10) },
			want:  fit.ErrReservedBits,
		},
		{
			name:  "reserved bit 5 on data",
			build: func(b *fittest.Builder) { b.Definition(0, 20, rec).Raw(0x20, 0x01) },
			want:  fit.ErrReservedBits,
		},
		{
			name:  "reserved definition byte",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x01, 0x00, 0x14, 0x00, 0x00) },
			want:  fit.ErrReservedDefinitionByte,
		},
		{
			name:  "undefined architecture",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x02, 0x14, 0x00, 0x00) },
			want:  fit.ErrUndefinedArchitecture,
		},
		{
			name:  "reserved base type bits",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x01, 0x03, 0x01, 0x22) },
			want:  fit.ErrBadBaseType,
		},
		{
			name:  "missing endian flag",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x01, 0x03, 0x02, 0x04) },
			want:  fit.ErrBadBaseType,
		},
		{
			name:  "unknown base type",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x01, 0x03, 0x01, 0x1F) },
			want:  fit.ErrBadBaseType,
		},
		{
			name:  "field number 255",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x01, 0xFF, 0x01, 0x02) },
			want:  fit.ErrBadFieldDefinition,
		},
		{
			name:  "size not multiple of base type",
			build: func(b *fittest.Builder) { b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x01, 0x07, 0x03, 0x84) },
			want:  fit.ErrBadFieldDefinition,
		},
		{
			name: "duplicate field number",
			build: func(b *fittest.Builder) {
				b.Raw(0x40, 0x00, 0x00, 0x14, 0x00, 0x02, 0x03, 0x01, 0x02, 0x03, 0x01, 0x02)
			},
			want: fit.ErrBadFieldDefinition,
		},
		{
			name: "compressed with timestamp field",
			build: func(b *fittest.Builder) {
				b.Definition(0, 20, fittest.RecordFields...).Compressed(0, 3, make([]byte, 9))
			},
			want: fit.ErrCompressedTimestampConflict,
		},
		{
			name: "compressed without baseline",
			build: func(b *fittest.Builder) {
				b.Definition(1, 20, rec).Compressed(1, 3, fittest.U8(1))
			},
			want: fit.ErrMissingTimestampBaseline,
		},
		{
			name: "developer field without description",
			build: func(b *fittest.Builder) {
				b.DevDefinition(2, 20, []fit.FieldDef{rec}, []fit.DevFieldDef{{Num: 0, Size: 1, DevIndex: 0}})
			},
			want: fit.ErrUndefinedDeveloperField,
		},
		{
			name: "unterminated string",
			build: func(b *fittest.Builder) {
				b.Definition(1, 12, fit.FieldDef{Num: 2, Size: 4, Type: fit.String}).Data(1, []byte("abcd"))
			},
			want: fit.ErrBadString,
		},
		{
			name: "string not utf8",
			build: func(b *fittest.Builder) {
				b.Definition(1, 12, fit.FieldDef{Num: 2, Size: 4, Type: fit.String}).Data(1, []byte{0xC3, 0x28, 0x00, 0x00})
			},
			want: fit.ErrBadString,
		},
		{
			name: "message past stream end",
			build: func(b *fittest.Builder) {
				b.Definition(1, 20, fittest.RecordFields...).Raw(0x01, 0x01, 0x02)
			},
			want: fit.ErrOutOfBounds,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := fittest.New()
			tc.build(b)
			_, err := decodeAll(t, b.Bytes())
			if !errors.Is(err, tc.want) {
				t.Fatalf("decode err = %v, want %v", err, tc.want)
			}
			var de *fit.DecodeError
			if !errors.As(err, &de) || de.Class != fit.ClassStructural {
				t.Fatalf("err = %#v, want structural *DecodeError", err)
			}
			starts := b.Starts()
			if last := starts[len(starts)-1]; de.Start != last {
				t.Fatalf("failure start = %d, want %d", de.Start, last)
			}
			if !fit.IsRecoverable(err) {
				t.Fatalf("IsRecoverable(%v) = false", err)
			}
		})
	}
}

func TestDecoderFailureLeavesStateUntouched(t *testing.T) {
	b := fittest.New().RecordDefinition().Record(0, fittest.BaseTimestamp)
	failAt := b.Offset()
	b.Raw(0x41, 0x00, 0x00, 0x15, 0x00, 0x01, 0xFF, 0x01, 0x02)
	buf := b.Bytes()
	hdr, _ := fit.ParseFileHeader(buf)
	bounds := fit.StreamBounds(buf, hdr)
	dec := fit.NewDecoder(buf, bounds.Start, bounds.End)
	for i := 0; i < 2; i++ {
		if _, err := dec.Next(); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}
	before := dec.State()
	if _, err := dec.Next(); !errors.Is(err, fit.ErrBadFieldDefinition) {
		t.Fatalf("Next err = %v, want ErrBadFieldDefinition", err)
	}
	if dec.Position() != failAt {
		t.Fatalf("Position = %d, want %d", dec.Position(), failAt)
	}
	after := dec.State()
	if after.Table.Defined(1) || after.Baseline != before.Baseline || !after.HasBaseline {
		t.Fatalf("state changed on failure: %+v", after)
	}
}

func TestDecoderCompressedTimestampRollover(t *testing.T) {
	const base = fittest.BaseTimestamp // low 5 bits are 9
	tests := []struct {
		name   string
		offset uint8
		want   uint32
	}{
		{name: "offset below baseline bits rolls over", offset: 5, want: base - 9 + 5 + 32},
		{name: "offset equal to baseline bits", offset: 9, want: base},
		{name: "offset above baseline bits", offset: 20, want: base - 9 + 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := fit.ExpandCompressedTimestamp(base, tc.offset); got != tc.want {
				t.Fatalf("ExpandCompressedTimestamp = %d, want %d", got, tc.want)
			}
			b := fittest.New().RecordDefinition().Record(0, base).
				Definition(1, fit.MesgRecord, fit.FieldDef{Num: 3, Size: 1, Type: fit.Uint8}).
				Compressed(1, tc.offset, fittest.U8(0x11))
			msgs, err := decodeAll(t, b.Bytes())
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			last := msgs[len(msgs)-1]
			if last.Kind != fit.KindCompressedData || !last.CompressedTimestamp || last.Timestamp != tc.want {
				t.Fatalf("compressed message = kind %v ts %d, want %d", last.Kind, last.Timestamp, tc.want)
			}
		})
	}
}

func TestDecoderCompressedBaselineFollowsDerivedTimestamps(t *testing.T) {
	const base = fittest.BaseTimestamp
	b := fittest.New().RecordDefinition().Record(0, base).
		Definition(1, fit.MesgRecord, fit.FieldDef{Num: 3, Size: 1, Type: fit.Uint8}).
		Compressed(1, 30, fittest.U8(0x11)).
		Compressed(1, 2, fittest.U8(0x12))
	msgs, err := decodeAll(t, b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	first, second := msgs[3], msgs[4]
	if first.Timestamp != base-9+30 {
		t.Fatalf("first = %d, want %d", first.Timestamp, base-9+30)
	}
	if second.Timestamp != base-9+32+2 {
		t.Fatalf("second = %d, want %d", second.Timestamp, base-9+32+2)
	}
}

func TestDecoderDeveloperFields(t *testing.T) {
	desc := []fit.FieldDef{
		{Num: 0, Size: 1, Type: fit.Uint8},
		{Num: 1, Size: 1, Type: fit.Uint8},
		{Num: 2, Size: 1, Type: fit.Uint8},
		{Num: 3, Size: 8, Type: fit.String},
	}
	b := fittest.New().
		Definition(2, fit.MesgFieldDescription, desc...).
		Data(2, fittest.U8(0), fittest.U8(7), fittest.U8(fit.Uint16.Raw()), fittest.Str("power", 8)).
		DevDefinition(3, fit.MesgRecord, []fit.FieldDef{{Num: 3, Size: 1, Type: fit.Uint8}}, []fit.DevFieldDef{{Num: 7, Size: 2, DevIndex: 0}}).
		Data(3, fittest.U8(0x42), fittest.U16(300))
	msgs, err := decodeAll(t, b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if name, _ := msgs[1].Field(3); name.Str() != "power" {
		t.Fatalf("field name = %q, want power", name.Str())
	}
	last := msgs[3]
	if len(last.DevFields) != 1 || last.DevFields[0].Value.Uint(0) != 300 || last.DevFields[0].Value.Type != fit.Uint16 {
		t.Fatalf("dev fields = %+v", last.DevFields)
	}
	if last.Size() != 4 {
		t.Fatalf("size = %d, want 4", last.Size())
	}

	dup := fittest.New().
		Definition(2, fit.MesgFieldDescription, desc...).
		Data(2, fittest.U8(0), fittest.U8(7), fittest.U8(fit.Uint16.Raw()), fittest.Str("a", 8)).
		Data(2, fittest.U8(0), fittest.U8(7), fittest.U8(fit.Uint8.Raw()), fittest.Str("b", 8))
	if _, err := decodeAll(t, dup.Bytes()); !errors.Is(err, fit.ErrBadFieldDescription) {
		t.Fatalf("duplicate description err = %v, want ErrBadFieldDescription", err)
	}
}

func TestDecoderBigEndianAndInvalidValues(t *testing.T) {
	b := fittest.New().
		DefinitionBE(1, fit.MesgRecord,
			fit.FieldDef{Num: fit.FieldTimestamp, Size: 4, Type: fit.Uint32},
			fit.FieldDef{Num: 7, Size: 2, Type: fit.Uint16},
			fit.FieldDef{Num: 8, Size: 4, Type: fit.Byte},
			fit.FieldDef{Num: 9, Size: 4, Type: fit.Uint8}).
		Data(1, []byte{0x3C, 0x2A, 0x0B, 0xA9}, []byte{0xFF, 0xFF}, []byte{0xFF, 0xFF, 0xFF, 0xFF}, []byte{0xFF, 0x02, 0xFF, 0xFF})
	msgs, err := decodeAll(t, b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := msgs[1]
	if msg.Timestamp != fittest.BaseTimestamp {
		t.Fatalf("timestamp = %d, want %d", msg.Timestamp, fittest.BaseTimestamp)
	}
	power, _ := msg.Field(7)
	if power.Valid() {
		t.Fatalf("power valid, want absent")
	}
	raw, _ := msg.Field(8)
	if raw.Valid() {
		t.Fatalf("all-0xFF byte array valid, want absent")
	}
	arr, _ := msg.Field(9)
	if !arr.Valid() || arr.Len() != 4 || arr.ElementValid(0) || !arr.ElementValid(1) || arr.Uint(1) != 2 {
		t.Fatalf("array = valid %v len %d", arr.Valid(), arr.Len())
	}
}

func TestDecoderStopsAtDeclaredEnd(t *testing.T) {
	b := fittest.Activity(2)
	buf := b.Bytes()
	buf = append(buf, 0xDE, 0xAD, 0xBE, 0xEF)
	msgs, err := decodeAll(t, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(msgs))
	}
}

func TestDecoderAtStreamEnd(t *testing.T) {
	buf := fittest.Activity(1).Bytes()
	hdr, err := fit.ParseFileHeader(buf)
	if err != nil {
		t.Fatalf("ParseFileHeader: %v", err)
	}
	b := fit.StreamBounds(buf, hdr)
	for _, start := range []int{b.End, b.End + 5} {
		dec := fit.NewDecoder(buf, start, b.End)
		for i := 0; i < 2; i++ {
			if msg, err := dec.Next(); !errors.Is(err, io.EOF) || msg != nil {
				t.Fatalf("start %d call %d: Next = %v, %v, want io.EOF", start, i, msg, err)
			}
		}
		if dec.Position() != b.End {
			t.Fatalf("start %d: position = %d, want %d", start, dec.Position(), b.End)
		}
	}
}
