package fit

import (
	"errors"
	"fmt"
)

// Fatal input errors. These are reported before any message is decoded and
// are never fed to the resynchronization search.
var (
	ErrEmptyInput     = errors.New("input is empty")
	ErrHeaderTooShort = errors.New("input shorter than FIT file header")
	ErrBadHeaderSize  = errors.New("unsupported FIT header size")
	ErrBadSignature   = errors.New("FIT header signature is not \".FIT\"")
)

// Structural failures raised by the decoder.
var (
	ErrOutOfBounds                 = errors.New("read past end of message stream")
	ErrReservedBits                = errors.New("reserved record header bits set")
	ErrReservedDefinitionByte      = errors.New("definition reserved byte is not zero")
	ErrUndefinedArchitecture       = errors.New("undefined architecture")
	ErrUndefinedLocalType          = errors.New("undefined local message type")
	ErrCompressedTimestampConflict = errors.New("compressed timestamp with explicit timestamp field")
	ErrMissingTimestampBaseline    = errors.New("compressed timestamp without a timestamp baseline")
	ErrBadBaseType                 = errors.New("invalid field base type")
	ErrBadFieldDefinition          = errors.New("invalid field definition")
	ErrUndefinedDeveloperField     = errors.New("developer field without field description")
	ErrBadString                   = errors.New("invalid string field")
	ErrBadFieldDescription         = errors.New("invalid field description message")
)

// Semantic failures raised by the validator.
var (
	ErrNonMonotonicTimestamp = errors.New("non-monotonic timestamp")
	ErrDuplicateSingleton    = errors.New("duplicate singleton message")
	ErrFileIDNotFirst        = errors.New("first data message is not file_id")
)

// ErrorClass separates decoder failures from validator failures.
type ErrorClass string

const (
	ClassStructural ErrorClass = "structural"
	ClassSemantic   ErrorClass = "semantic"
)

// DecodeError is a recoverable failure at a known offset. Kind is one of the
// structural or semantic sentinels above and is what errors.Is matches.
type DecodeError struct {
	Class  ErrorClass
	Kind   error
	Offset int
	// Start is the offset of the record header of the message being decoded.
	Start  int
	Header byte
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("at offset %d: %v", e.Offset, e.Kind)
	}
	return fmt.Sprintf("at offset %d: %v: %s", e.Offset, e.Kind, e.Detail)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func structural(kind error, start, offset int, header byte, format string, args ...any) *DecodeError {
	return &DecodeError{
		Class:  ClassStructural,
		Kind:   kind,
		Offset: offset,
		Start:  start,
		Header: header,
		Detail: fmt.Sprintf(format, args...),
	}
}

func semantic(kind error, msg *Message, format string, args ...any) *DecodeError {
	return &DecodeError{
		Class:  ClassSemantic,
		Kind:   kind,
		Offset: msg.Start,
		Start:  msg.Start,
		Header: msg.Header.Raw,
		Detail: fmt.Sprintf(format, args...),
	}
}

// IsRecoverable reports whether err is a structural or semantic failure that
// the corruption search may try to resynchronize past.
func IsRecoverable(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// KindName returns a short stable identifier for the failure kind of err,
// suitable for logs and reports.
func KindName(err error) string {
	var de *DecodeError
	if !errors.As(err, &de) {
		return "fatal"
	}
	switch de.Kind {
	case ErrOutOfBounds:
		return "OutOfBounds"
	case ErrReservedBits:
		return "ReservedBits"
	case ErrReservedDefinitionByte:
		return "ReservedDefinitionByte"
	case ErrUndefinedArchitecture:
		return "UndefinedArchitecture"
	case ErrUndefinedLocalType:
		return "UndefinedLocalType"
	case ErrCompressedTimestampConflict:
		return "CompressedTimestampConflict"
	case ErrMissingTimestampBaseline:
		return "MissingTimestampBaseline"
	case ErrBadBaseType:
		return "BadBaseType"
	case ErrBadFieldDefinition:
		return "BadFieldDefinition"
	case ErrUndefinedDeveloperField:
		return "UndefinedDeveloperField"
	case ErrBadString:
		return "BadString"
	case ErrBadFieldDescription:
		return "BadFieldDescription"
	case ErrNonMonotonicTimestamp:
		return "NonMonotonicTimestamp"
	case ErrDuplicateSingleton:
		return "DuplicateSingleton"
	case ErrFileIDNotFirst:
		return "FileIDNotFirst"
	default:
		return "Unknown"
	}
}
