package repair

import (
	"fmt"
	"sort"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

// Restore rebuilds the source file from a repaired file and what the repair
// discarded: the original header, every excised span, and the bytes that
// followed the source message stream.
func Restore(fixed, header []byte, excisions []Excision, trailer []byte) ([]byte, error) {
	hdr, err := fit.ParseFileHeader(fixed)
	if err != nil {
		return nil, fmt.Errorf("repaired file: %w", err)
	}
	b := fit.StreamBounds(fixed, hdr)
	if b.Truncated {
		return nil, fmt.Errorf("repaired file is shorter than its declared data size")
	}
	stream := fixed[b.Start:b.End]

	spans := append([]Excision(nil), excisions...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	out := make([]byte, 0, len(header)+len(stream)+len(trailer)+64)
	out = append(out, header...)
	pos := len(header)
	for _, ex := range spans {
		n := ex.Offset - pos
		if n < 0 || n > len(stream) {
			return nil, fmt.Errorf("excision at %d does not fit the repaired stream", ex.Offset)
		}
		out = append(out, stream[:n]...)
		stream = stream[n:]
		out = append(out, ex.Data...)
		pos = ex.Offset + len(ex.Data)
	}
	out = append(out, stream...)
	return append(out, trailer...), nil
}

// RestoreFromAudit rebuilds the source file from a repaired file and the
// audit entries of the run that produced it.
func RestoreFromAudit(fixed []byte, entries []common.AuditEntry) ([]byte, error) {
	var (
		header, trailer []byte
		haveHeader      bool
		excisions       []Excision
	)
	for i, e := range entries {
		data, err := e.BeforeBytes()
		if err != nil {
			return nil, fmt.Errorf("audit entry %d: %w", i, err)
		}
		if len(data) != e.Length {
			return nil, fmt.Errorf("audit entry %d: %d bytes recorded, length says %d", i, len(data), e.Length)
		}
		switch e.Kind {
		case common.AuditHeader:
			header, haveHeader = data, true
		case common.AuditExcise:
			excisions = append(excisions, Excision{Offset: int(e.Offset), Data: data})
		case common.AuditTrailer:
			trailer = data
		default:
			return nil, fmt.Errorf("audit entry %d: unknown kind %q", i, e.Kind)
		}
	}
	if !haveHeader {
		return nil, fmt.Errorf("audit log has no header entry")
	}
	return Restore(fixed, header, excisions, trailer)
}
