package repair

import (
	"encoding/binary"
	"fmt"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

// Build concatenates the accepted ranges of buf behind a rewritten header and
// appends a fresh file CRC. The header keeps its size and versions; its data
// size and CRC are recomputed.
func Build(buf []byte, hdr fit.FileHeader, ranges []Range) ([]byte, error) {
	if len(ranges) == 0 {
		return nil, ErrNothingRecoverable
	}
	total := 0
	prevEnd := int(hdr.Size)
	for i, r := range ranges {
		if r.Start < prevEnd || r.End < r.Start || r.End > len(buf) {
			return nil, fmt.Errorf("range %d [%d, %d) is out of order or out of bounds", i, r.Start, r.End)
		}
		total += r.Len()
		prevEnd = r.End
	}
	if total == 0 {
		return nil, ErrNothingRecoverable
	}

	out := hdr
	out.DataSize = uint32(total)
	encoded := out.Encode()

	var crc fit.Checksum
	dst := make([]byte, 0, len(encoded)+total+2)
	dst = append(dst, encoded...)
	for _, r := range ranges {
		dst = append(dst, buf[r.Start:r.End]...)
	}
	crc.Write(dst)
	return binary.LittleEndian.AppendUint16(dst, crc.Sum16()), nil
}
