package fit

import (
	"errors"
	"io"
)

// MessageInfo is the position and identity of one accepted message.
type MessageInfo struct {
	Offset       int
	Size         int
	Kind         Kind
	LocalType    uint8
	GlobalNum    uint16
	Timestamp    uint32
	HasTimestamp bool
}

// ScanResult is the outcome of a linear decode of a whole file.
type ScanResult struct {
	Header         FileHeader
	Bounds         Bounds
	HeaderCRCValid bool
	FileCRCValid   bool
	Messages       []MessageInfo
	// Failure is the first recoverable error, or nil when the stream decoded
	// cleanly to its end.
	Failure *DecodeError
}

// Valid reports whether the file decoded cleanly with matching CRCs.
func (r *ScanResult) Valid() bool {
	return r.Failure == nil && !r.Bounds.Truncated && r.HeaderCRCValid && r.FileCRCValid
}

// Scan decodes and validates buf from the first message to the end of the
// declared stream, stopping at the first failure. Fatal header errors are
// returned as errors; recoverable failures land in ScanResult.Failure.
func Scan(buf []byte, rules Rules) (*ScanResult, error) {
	hdr, err := ParseFileHeader(buf)
	if err != nil {
		return nil, err
	}
	b := StreamBounds(buf, hdr)
	res := &ScanResult{
		Header:         hdr,
		Bounds:         b,
		HeaderCRCValid: hdr.HeaderCRCValid(buf),
		FileCRCValid:   FileCRCValid(buf, b),
	}
	dec := NewDecoder(buf, b.Start, b.End)
	val := NewValidator(rules)
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err == nil {
			err = val.Check(msg)
		}
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				res.Failure = de
				return res, nil
			}
			return res, err
		}
		res.Messages = append(res.Messages, InfoOf(msg))
	}
}

// InfoOf summarizes a decoded message.
func InfoOf(msg *Message) MessageInfo {
	return MessageInfo{
		Offset:       msg.Start,
		Size:         msg.Size(),
		Kind:         msg.Kind,
		LocalType:    msg.LocalType,
		GlobalNum:    msg.GlobalNum,
		Timestamp:    msg.Timestamp,
		HasTimestamp: msg.HasTimestamp,
	}
}
