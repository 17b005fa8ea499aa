// Package repair finds corrupted spans in a FIT message stream and rebuilds a
// file from the data that survives.
package repair

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

var ErrSelfCheck = errors.New("repaired output failed verification")

// Outcome is a finished repair.
type Outcome struct {
	Result *Result
	Output []byte
	// Check is the linear scan of Output.
	Check *fit.ScanResult
}

// Excision is a span of the source file that the repair discarded, in source
// file coordinates.
type Excision struct {
	Offset int
	Data   []byte
}

// Repair parses the header of buf, locates every corrupted span, and builds a
// file from the remaining messages. Header errors are returned before any
// message is decoded. The rebuilt file is scanned again before returning.
func Repair(buf []byte, opts Options) (*Outcome, error) {
	hdr, err := fit.ParseFileHeader(buf)
	if err != nil {
		return nil, err
	}
	res, err := Locate(buf, hdr, opts)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	out, err := Build(buf, hdr, res.Ranges)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	check, err := fit.Scan(out, opts.Rules)
	if err != nil {
		return &Outcome{Result: res, Output: out}, fmt.Errorf("%w: %v", ErrSelfCheck, err)
	}
	oc := &Outcome{Result: res, Output: out, Check: check}
	if !check.Valid() {
		return oc, fmt.Errorf("%w: %v", ErrSelfCheck, check.Failure)
	}
	return oc, nil
}

// Excisions returns the discarded spans of buf for r, including any bytes
// past the declared stream end that were dropped.
func (r *Result) Excisions(buf []byte) []Excision {
	out := make([]Excision, 0, len(r.Gaps))
	for _, g := range r.Gaps {
		out = append(out, Excision{Offset: g.Start, Data: append([]byte(nil), buf[g.Start:g.End]...)})
	}
	return out
}

// SourceHeader returns the original header bytes.
func (r *Result) SourceHeader(buf []byte) []byte {
	return append([]byte(nil), buf[:r.Bounds.Start]...)
}

// SourceTrailer returns everything after the message stream in the source:
// the stored file CRC and any trailing bytes.
func (r *Result) SourceTrailer(buf []byte) []byte {
	return append([]byte(nil), buf[r.Bounds.End:]...)
}

// AuditEntries describes every source byte missing from the repaired output:
// the original header, each excised span, and the original trailer.
func (r *Result) AuditEntries(runID string, buf []byte) []common.AuditEntry {
	now := time.Now().UTC()
	out := make([]common.AuditEntry, 0, len(r.Gaps)+2)
	head := r.SourceHeader(buf)
	out = append(out, common.AuditEntry{
		RunID: runID, Kind: common.AuditHeader, Offset: 0, Length: len(head),
		BeforeHex: hex.EncodeToString(head), Ts: now,
	})
	for _, g := range r.Gaps {
		out = append(out, common.AuditEntry{
			RunID: runID, Kind: common.AuditExcise, Offset: int64(g.Start), Length: g.Len(),
			BeforeHex: hex.EncodeToString(buf[g.Start:g.End]),
			ErrorKind: g.ErrorKind, Reason: g.Reason, Ts: now,
		})
	}
	tail := r.SourceTrailer(buf)
	out = append(out, common.AuditEntry{
		RunID: runID, Kind: common.AuditTrailer, Offset: int64(r.Bounds.End), Length: len(tail),
		BeforeHex: hex.EncodeToString(tail), Ts: now,
	})
	return out
}
