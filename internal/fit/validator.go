package fit

import "slices"

// Rules selects which cross-message checks the validator enforces.
type Rules struct {
	// MonotonicMessages limits the timestamp ordering check to these global
	// message numbers. Empty means every timestamp-bearing data message.
	MonotonicMessages []uint16
	// Singletons may appear at most once per file.
	Singletons []uint16
	// RequireFileIDFirst rejects a file whose first data message is not
	// file_id.
	RequireFileIDFirst bool
}

func DefaultRules() Rules {
	return Rules{
		Singletons:         []uint16{MesgFileID},
		RequireFileIDFirst: true,
	}
}

func (r *Rules) monotonic(global uint16) bool {
	return len(r.MonotonicMessages) == 0 || slices.Contains(r.MonotonicMessages, global)
}

func (r *Rules) singleton(global uint16) bool {
	return slices.Contains(r.Singletons, global)
}

// Validator enforces cross-message rules over a decoded message sequence. It
// is a value: assigning a Validator snapshots it, and Check never mutates on
// failure.
type Validator struct {
	rules        *Rules
	dataMessages int
	lastTS       uint32
	hasLastTS    bool
	seen         []uint16
}

func NewValidator(rules Rules) Validator {
	r := rules
	return Validator{rules: &r}
}

// DataMessages is the number of data messages accepted so far.
func (v *Validator) DataMessages() int {
	return v.dataMessages
}

// LastTimestamp is the timestamp of the most recent accepted message covered
// by the monotonic check.
func (v *Validator) LastTimestamp() (uint32, bool) {
	return v.lastTS, v.hasLastTS
}

// Check accepts or rejects msg. Definitions are always accepted.
func (v *Validator) Check(msg *Message) error {
	if msg.Kind == KindDefinition {
		return nil
	}
	if v.rules == nil {
		r := DefaultRules()
		v.rules = &r
	}
	if v.rules.RequireFileIDFirst && v.dataMessages == 0 && msg.GlobalNum != MesgFileID {
		return semantic(ErrFileIDNotFirst, msg, "first data message has global number %d", msg.GlobalNum)
	}
	single := v.rules.singleton(msg.GlobalNum)
	if single && slices.Contains(v.seen, msg.GlobalNum) {
		return semantic(ErrDuplicateSingleton, msg, "second message with global number %d", msg.GlobalNum)
	}
	checkTS := msg.HasTimestamp && v.rules.monotonic(msg.GlobalNum)
	if checkTS && v.hasLastTS && msg.Timestamp < v.lastTS {
		return semantic(ErrNonMonotonicTimestamp, msg, "timestamp %d is before previous %d", msg.Timestamp, v.lastTS)
	}

	v.dataMessages++
	if single {
		// Full slice expression forces a copy so snapshots never share a
		// backing array.
		v.seen = append(v.seen[:len(v.seen):len(v.seen)], msg.GlobalNum)
	}
	if checkTS {
		v.lastTS = msg.Timestamp
		v.hasLastTS = true
	}
	return nil
}
