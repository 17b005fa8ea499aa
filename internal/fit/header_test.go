package fit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func validHeader14() []byte {
	h := []byte{14, 0x20, 0x54, 0x08, 0x10, 0x00, 0x00, 0x00, '.', 'F', 'I', 'T', 0, 0}
	binary.LittleEndian.PutUint16(h[12:], CRC16(h[:12]))
	return h
}

func TestParseFileHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{name: "empty", buf: nil, want: ErrEmptyInput},
		{name: "bad size", buf: []byte{13, 0, 0, 0, 0, 0, 0, 0, '.', 'F', 'I', 'T', 0}, want: ErrBadHeaderSize},
		{name: "too short", buf: []byte{14, 0x20, 0x54, 0x08}, want: ErrHeaderTooShort},
		{name: "bad signature", buf: []byte{12, 0x10, 0, 0, 0, 0, 0, 0, '.', 'F', 'I', 'X'}, want: ErrBadSignature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFileHeader(tc.buf)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ParseFileHeader err = %v, want %v", err, tc.want)
			}
			if IsRecoverable(err) {
				t.Fatalf("header error %v reported as recoverable", err)
			}
		})
	}
}

func TestParseFileHeaderFields(t *testing.T) {
	buf := validHeader14()
	hdr, err := ParseFileHeader(buf)
	if err != nil {
		t.Fatalf("ParseFileHeader: %v", err)
	}
	if hdr.Size != 14 || hdr.ProtocolVersion != 0x20 || hdr.ProfileVersion != 2132 || hdr.DataSize != 16 {
		t.Fatalf("header = %+v", hdr)
	}
	if !hdr.HasCRC || !hdr.HeaderCRCValid(buf) {
		t.Fatalf("header CRC not valid: %+v", hdr)
	}
	if got := hdr.Encode(); !bytes.Equal(got, buf) {
		t.Fatalf("Encode = % X, want % X", got, buf)
	}

	buf[12] ^= 0xFF
	hdr, err = ParseFileHeader(buf)
	if err != nil {
		t.Fatalf("ParseFileHeader: %v", err)
	}
	if hdr.HeaderCRCValid(buf) {
		t.Fatalf("HeaderCRCValid = true for corrupted CRC")
	}
}

func TestFileHeaderEncodeRecomputesCRC(t *testing.T) {
	hdr := FileHeader{Size: 14, ProtocolVersion: 0x10, ProfileVersion: 100, DataSize: 1234}
	out := hdr.Encode()
	if len(out) != 14 {
		t.Fatalf("len = %d, want 14", len(out))
	}
	if got := binary.LittleEndian.Uint16(out[12:]); got != CRC16(out[:12]) {
		t.Fatalf("header CRC = 0x%04X, want 0x%04X", got, CRC16(out[:12]))
	}
	short := FileHeader{Size: 12, DataSize: 7}.Encode()
	if len(short) != 12 || binary.LittleEndian.Uint32(short[4:8]) != 7 {
		t.Fatalf("12-byte header = % X", short)
	}
}

func TestStreamBounds(t *testing.T) {
	hdr := FileHeader{Size: 12, DataSize: 10}
	tests := []struct {
		name      string
		bufLen    int
		wantEnd   int
		truncated bool
		hasCRC    bool
	}{
		{name: "complete", bufLen: 24, wantEnd: 22, hasCRC: true},
		{name: "missing crc", bufLen: 22, wantEnd: 22},
		{name: "truncated", bufLen: 17, wantEnd: 17, truncated: true},
		{name: "trailing bytes", bufLen: 40, wantEnd: 22, hasCRC: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := StreamBounds(make([]byte, tc.bufLen), hdr)
			if b.Start != 12 || b.End != tc.wantEnd || b.Truncated != tc.truncated || b.HasCRC != tc.hasCRC {
				t.Fatalf("StreamBounds = %+v", b)
			}
		})
	}
}

func TestVersionStrings(t *testing.T) {
	if got := ProtocolVersionString(0x20); got != "2.0" {
		t.Fatalf("protocol = %q, want 2.0", got)
	}
	if got := ProfileVersionString(2132); got != "21.32" {
		t.Fatalf("profile = %q, want 21.32", got)
	}
	if got := ProfileVersionString(2105); got != "21.05" {
		t.Fatalf("profile = %q, want 21.05", got)
	}
}
