package repair

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

var (
	ErrResyncExhausted    = errors.New("no resynchronization point found")
	ErrNothingRecoverable = errors.New("nothing recoverable")
)

// Range is a half-open byte range [Start, End) of the source buffer.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Gap is a discarded byte range and the failure that caused it.
type Gap struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	ErrorOffset int    `json:"errorOffset"`
	ErrorKind   string `json:"errorKind"`
	Reason      string `json:"reason"`
	Rewinds     int    `json:"rewinds"`
	// TailDropped marks a gap that runs to the end of the stream because no
	// resynchronization point was found.
	TailDropped bool `json:"tailDropped,omitempty"`
}

func (g Gap) Len() int {
	return g.End - g.Start
}

// Result describes what the locator accepted and discarded.
type Result struct {
	Header         fit.FileHeader
	Bounds         fit.Bounds
	HeaderCRCValid bool
	FileCRCValid   bool
	Ranges         []Range
	Gaps           []Gap
	Events         []Event
	// Messages counts messages in the accepted ranges.
	Messages    int
	Trials      int
	Rewinds     int
	TailDropped bool
}

// Clean reports whether the stream needed no excision.
func (r *Result) Clean() bool {
	return len(r.Gaps) == 0
}

// Excised is the number of stream bytes discarded.
func (r *Result) Excised() int {
	n := 0
	for _, g := range r.Gaps {
		n += g.Len()
	}
	return n
}

// snapshot is decoder and validator state as of a message boundary.
type snapshot struct {
	offset    int
	state     fit.State
	validator fit.Validator
}

type searchState int

const (
	stateScanning searchState = iota
	stateTrialing
	stateRewinding
	stateFound
	stateExhausted
	stateFinished
	stateFailed
)

type locator struct {
	buf    []byte
	bounds fit.Bounds
	opts   Options
	res    *Result

	dec *fit.Decoder
	val fit.Validator

	rangeStart int

	// Accepted message starts and checkpoints of the current span. A span
	// begins at the stream start or at the resume point of the last gap;
	// anchors never move before it.
	boundaries      []int
	checkpoints     []snapshot
	sinceCheckpoint int

	failure   *fit.DecodeError
	failStart int
	failSnap  snapshot
	anchor    snapshot
	anchorIdx int
	rewinds   int
	hit       trialResult

	err error
}

// Locate decodes the message stream of buf and searches past every failure.
// The returned ranges cover every accepted byte of the stream in order.
func Locate(buf []byte, hdr fit.FileHeader, opts Options) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	bounds := fit.StreamBounds(buf, hdr)
	l := &locator{
		buf:    buf,
		bounds: bounds,
		opts:   opts,
		res: &Result{
			Header:         hdr,
			Bounds:         bounds,
			HeaderCRCValid: hdr.HeaderCRCValid(buf),
			FileCRCValid:   fit.FileCRCValid(buf, bounds),
		},
		dec:        fit.NewDecoder(buf, bounds.Start, bounds.End),
		val:        fit.NewValidator(opts.Rules),
		rangeStart: bounds.Start,
	}
	if m := opts.Metrics; m != nil {
		m.SetTotalBytes(int64(bounds.End - bounds.Start))
		m.Start()
		defer m.Stop()
	}
	l.startSpan(bounds.Start)

	state := stateScanning
	for state != stateFinished && state != stateFailed {
		switch state {
		case stateScanning:
			state = l.scan()
		case stateTrialing:
			state = l.trial()
		case stateRewinding:
			state = l.rewind()
		case stateFound:
			state = l.resync()
		case stateExhausted:
			state = l.exhaust()
		}
	}
	if state == stateFailed {
		return l.res, l.err
	}
	l.closeRange(bounds.End)
	l.emit(Event{Kind: EventFinished, Ranges: append([]Range(nil), l.res.Ranges...)})
	return l.res, nil
}

func (l *locator) emit(ev Event) {
	l.res.Events = append(l.res.Events, ev)
	if l.opts.OnEvent != nil {
		l.opts.OnEvent(ev)
	}
}

func (l *locator) startSpan(offset int) {
	l.boundaries = l.boundaries[:0]
	l.checkpoints = append(l.checkpoints[:0], snapshot{offset: offset, state: l.dec.State(), validator: l.val})
	l.sinceCheckpoint = 0
}

func (l *locator) closeRange(end int) {
	if end > l.rangeStart {
		l.res.Ranges = append(l.res.Ranges, Range{Start: l.rangeStart, End: end})
	}
	l.rangeStart = end
}

func (l *locator) scan() searchState {
	for {
		pos := l.dec.Position()
		if l.sinceCheckpoint >= l.opts.CheckpointInterval {
			l.checkpoints = append(l.checkpoints, snapshot{offset: pos, state: l.dec.State(), validator: l.val})
			l.sinceCheckpoint = 0
		}
		before := l.dec.State()
		msg, err := l.dec.Next()
		if errors.Is(err, io.EOF) {
			return stateFinished
		}
		if err == nil {
			err = l.val.Check(msg)
		}
		if err != nil {
			var de *fit.DecodeError
			if !errors.As(err, &de) {
				l.err = err
				return stateFailed
			}
			l.failure = de
			l.failStart = pos
			l.failSnap = snapshot{offset: pos, state: before, validator: l.val}
			l.anchor = l.failSnap
			l.anchorIdx = 0
			l.rewinds = 0
			l.emit(Event{
				Kind:      EventErrorDetected,
				Offset:    de.Offset,
				Anchor:    pos,
				ErrorKind: fit.KindName(de),
				Reason:    reasonOf(de),
			})
			return stateTrialing
		}
		l.boundaries = append(l.boundaries, pos)
		l.sinceCheckpoint++
		l.res.Messages++
		if m := l.opts.Metrics; m != nil {
			m.AddMessage(int64(msg.Size()))
		}
	}
}

func (l *locator) trial() searchState {
	hit, ok := l.searchSkips(l.anchor)
	if !ok {
		return stateRewinding
	}
	l.hit = hit
	return stateFound
}

// rewind moves the anchor back RewindStep accepted boundaries, stopping at
// the start of the span.
func (l *locator) rewind() searchState {
	if l.anchorIdx >= len(l.boundaries) {
		return stateExhausted
	}
	if l.opts.MaxRewind > 0 && l.rewinds >= l.opts.MaxRewind {
		return stateExhausted
	}
	next := l.anchorIdx + l.opts.RewindStep
	if next > len(l.boundaries) {
		next = len(l.boundaries)
	}
	offset := l.boundaries[len(l.boundaries)-next]
	snap, err := l.stateAt(offset)
	if err != nil {
		l.err = err
		return stateFailed
	}
	l.anchorIdx = next
	l.anchor = snap
	l.rewinds++
	l.res.Rewinds++
	if m := l.opts.Metrics; m != nil {
		m.IncRewind()
	}
	l.emit(Event{Kind: EventRewindAttempt, Anchor: offset})
	return stateTrialing
}

func (l *locator) resync() searchState {
	start, length := l.anchor.offset, l.hit.length
	resume := start + length
	l.emit(Event{Kind: EventResyncFound, Anchor: start, Length: length})
	l.closeRange(start)
	l.res.Gaps = append(l.res.Gaps, Gap{
		Start:       start,
		End:         resume,
		ErrorOffset: l.failure.Offset,
		ErrorKind:   fit.KindName(l.failure),
		Reason:      reasonOf(l.failure),
		Rewinds:     l.rewinds,
	})
	// Messages between the anchor and the failure were accepted once and are
	// now inside the gap.
	l.res.Messages -= l.anchorIdx
	if m := l.opts.Metrics; m != nil {
		m.DropMessages(int64(l.anchorIdx), int64(l.failStart-start))
		m.IncResync(int64(length))
	}

	l.dec.SetState(l.anchor.state)
	l.val = l.anchor.validator
	if err := l.dec.Seek(resume); err != nil {
		l.err = fmt.Errorf("resume at %d: %w", resume, err)
		return stateFailed
	}
	l.rangeStart = resume
	l.startSpan(resume)
	return stateScanning
}

func (l *locator) exhaust() searchState {
	l.emit(Event{
		Kind:      EventResyncExhausted,
		Anchor:    l.failStart,
		Offset:    l.failure.Offset,
		ErrorKind: fit.KindName(l.failure),
		Reason:    reasonOf(l.failure),
	})
	if !l.opts.AllowTailDrop {
		l.err = fmt.Errorf("%w: failure at offset %d: %v", ErrResyncExhausted, l.failure.Offset, l.failure)
		return stateFailed
	}
	l.closeRange(l.failStart)
	if len(l.res.Ranges) == 0 {
		l.err = fmt.Errorf("%w: failure at offset %d: %v", ErrResyncExhausted, l.failure.Offset, l.failure)
		return stateFailed
	}
	l.res.Gaps = append(l.res.Gaps, Gap{
		Start:       l.failStart,
		End:         l.bounds.End,
		ErrorOffset: l.failure.Offset,
		ErrorKind:   fit.KindName(l.failure),
		Reason:      reasonOf(l.failure),
		Rewinds:     l.rewinds,
		TailDropped: true,
	})
	l.res.TailDropped = true
	if m := l.opts.Metrics; m != nil {
		m.AddBytes(int64(l.bounds.End - l.failStart))
	}
	l.rangeStart = l.bounds.End
	return stateFinished
}

// stateAt rebuilds the snapshot at a boundary of the current span by
// replaying from the nearest checkpoint at or before it.
func (l *locator) stateAt(offset int) (snapshot, error) {
	i := sort.Search(len(l.checkpoints), func(i int) bool {
		return l.checkpoints[i].offset > offset
	}) - 1
	if i < 0 {
		return snapshot{}, fmt.Errorf("no checkpoint before offset %d", offset)
	}
	cp := l.checkpoints[i]
	if cp.offset == offset {
		return cp, nil
	}
	dec := fit.NewDecoder(l.buf, l.bounds.Start, l.bounds.End)
	dec.SetState(cp.state)
	if err := dec.Seek(cp.offset); err != nil {
		return snapshot{}, err
	}
	val := cp.validator
	for dec.Position() < offset {
		msg, err := dec.Next()
		if err == nil {
			err = val.Check(msg)
		}
		if err != nil {
			return snapshot{}, fmt.Errorf("replay from %d to %d: %w", cp.offset, offset, err)
		}
	}
	if dec.Position() != offset {
		return snapshot{}, fmt.Errorf("replay from %d overshot boundary %d", cp.offset, offset)
	}
	return snapshot{offset: offset, state: dec.State(), validator: val}, nil
}

func reasonOf(de *fit.DecodeError) string {
	if de.Detail == "" {
		return de.Kind.Error()
	}
	return de.Kind.Error() + ": " + de.Detail
}
