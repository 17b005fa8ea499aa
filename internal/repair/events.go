package repair

import "fmt"

type EventKind string

const (
	EventErrorDetected   EventKind = "error_detected"
	EventRewindAttempt   EventKind = "rewind_attempt"
	EventSkipTrial       EventKind = "skip_trial"
	EventResyncFound     EventKind = "resync_found"
	EventResyncExhausted EventKind = "resync_exhausted"
	EventFinished        EventKind = "finished"
)

// Event is one observable step of a repair. Which fields are set depends on
// Kind:
//
//	error_detected   Offset, Anchor (start of the failing message), ErrorKind, Reason
//	rewind_attempt   Anchor
//	skip_trial       Anchor, Length, Accepted, and for rejected trials Offset, ErrorKind, Reason
//	resync_found     Anchor, Length
//	resync_exhausted Anchor (the failing message)
//	finished         Ranges
type Event struct {
	Kind      EventKind `json:"kind"`
	Offset    int       `json:"offset,omitempty"`
	Anchor    int       `json:"anchor,omitempty"`
	Length    int       `json:"length,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Accepted  bool      `json:"accepted,omitempty"`
	Ranges    []Range   `json:"ranges,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventErrorDetected:
		return fmt.Sprintf("error at offset %d (message at %d): %s: %s", e.Offset, e.Anchor, e.ErrorKind, e.Reason)
	case EventRewindAttempt:
		return fmt.Sprintf("rewinding anchor to %d", e.Anchor)
	case EventSkipTrial:
		if e.Accepted {
			return fmt.Sprintf("skipping %d bytes at %d: success", e.Length, e.Anchor)
		}
		return fmt.Sprintf("skipping %d bytes at %d: at offset %d: %s: %s", e.Length, e.Anchor, e.Offset, e.ErrorKind, e.Reason)
	case EventResyncFound:
		return fmt.Sprintf("resynchronized: discarding [%d, %d) (%d bytes)", e.Anchor, e.Anchor+e.Length, e.Length)
	case EventResyncExhausted:
		return fmt.Sprintf("no resynchronization point found for failure at %d", e.Anchor)
	case EventFinished:
		return fmt.Sprintf("finished with %d accepted ranges", len(e.Ranges))
	default:
		return string(e.Kind)
	}
}
