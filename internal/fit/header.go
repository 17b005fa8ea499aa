package fit

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSizeNoCRC   = 12
	headerSizeWithCRC = 14
	fileCRCSize       = 2
)

var fitSignature = [4]byte{'.', 'F', 'I', 'T'}

// FileHeader is the 12 or 14 byte preamble of a FIT file.
type FileHeader struct {
	Size            uint8
	ProtocolVersion uint8
	ProfileVersion  uint16
	DataSize        uint32
	DataType        [4]byte
	CRC             uint16
	HasCRC          bool
}

// ParseFileHeader decodes the file header at the start of buf. Every error it
// returns is fatal: nothing after a bad header can be trusted.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	var hdr FileHeader
	if len(buf) == 0 {
		return hdr, ErrEmptyInput
	}
	hdr.Size = buf[0]
	if hdr.Size != headerSizeNoCRC && hdr.Size != headerSizeWithCRC {
		return hdr, fmt.Errorf("%w: %d", ErrBadHeaderSize, hdr.Size)
	}
	if len(buf) < int(hdr.Size) {
		return hdr, fmt.Errorf("%w: need %d bytes, have %d", ErrHeaderTooShort, hdr.Size, len(buf))
	}
	hdr.ProtocolVersion = buf[1]
	hdr.ProfileVersion = binary.LittleEndian.Uint16(buf[2:4])
	hdr.DataSize = binary.LittleEndian.Uint32(buf[4:8])
	copy(hdr.DataType[:], buf[8:12])
	if hdr.DataType != fitSignature {
		return hdr, fmt.Errorf("%w: got %q", ErrBadSignature, hdr.DataType[:])
	}
	if hdr.Size == headerSizeWithCRC {
		hdr.HasCRC = true
		hdr.CRC = binary.LittleEndian.Uint16(buf[12:14])
	}
	return hdr, nil
}

// ProtocolVersionString renders a protocol version byte as major.minor.
func ProtocolVersionString(v uint8) string {
	return fmt.Sprintf("%d.%d", v>>4, v&0x0F)
}

// ProfileVersionString renders a profile version as major.minor.
func ProfileVersionString(v uint16) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

// Encode serializes the header. When the header carries a CRC field it is
// recomputed over the first 12 bytes.
func (h FileHeader) Encode() []byte {
	size := h.Size
	if size != headerSizeWithCRC {
		size = headerSizeNoCRC
	}
	out := make([]byte, size)
	out[0] = size
	out[1] = h.ProtocolVersion
	binary.LittleEndian.PutUint16(out[2:4], h.ProfileVersion)
	binary.LittleEndian.PutUint32(out[4:8], h.DataSize)
	copy(out[8:12], fitSignature[:])
	if size == headerSizeWithCRC {
		binary.LittleEndian.PutUint16(out[12:14], CRC16(out[:headerSizeNoCRC]))
	}
	return out
}

// HeaderCRCValid reports whether the stored header CRC matches buf. A missing
// CRC field or a zero CRC counts as valid.
func (h FileHeader) HeaderCRCValid(buf []byte) bool {
	if !h.HasCRC || h.CRC == 0 {
		return true
	}
	if len(buf) < headerSizeNoCRC {
		return false
	}
	return h.CRC == CRC16(buf[:headerSizeNoCRC])
}

// Bounds locates the message stream inside a buffer.
type Bounds struct {
	Start int
	End   int
	// Declared is where the header says the stream ends. It can lie past the
	// end of the buffer.
	Declared  int
	Truncated bool
	HasCRC    bool
}

// StreamBounds clamps the declared message stream to buf.
func StreamBounds(buf []byte, hdr FileHeader) Bounds {
	b := Bounds{Start: int(hdr.Size)}
	b.Declared = b.Start + int(hdr.DataSize)
	b.End = b.Declared
	if b.End > len(buf) {
		b.End = len(buf)
		b.Truncated = true
	}
	b.HasCRC = len(buf) >= b.Declared+fileCRCSize
	return b
}

// FileCRCValid reports whether the two bytes after the declared stream hold
// the CRC of everything before them. A zero stored CRC counts as valid.
func FileCRCValid(buf []byte, b Bounds) bool {
	if !b.HasCRC {
		return false
	}
	stored := binary.LittleEndian.Uint16(buf[b.Declared : b.Declared+fileCRCSize])
	if stored == 0 {
		return true
	}
	return stored == CRC16(buf[:b.Declared])
}
