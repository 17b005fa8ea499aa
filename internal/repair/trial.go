package repair

import (
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

type trialResult struct {
	length   int
	ok       bool
	messages int
	failure  *fit.DecodeError
}

// searchSkips tries skip lengths MinSkip..MaxSkip from anchor in increasing
// order and returns the first that yields a clean lookahead window. Trials
// run in batches of Parallelism; within a batch results are reported in
// length order and anything after the first success is discarded, so the
// observable outcome matches a sequential search.
func (l *locator) searchSkips(anchor snapshot) (trialResult, bool) {
	// A skip onto the stream end decodes nothing. Dropping the rest of the
	// stream is left to the exhausted search.
	maxK := l.opts.MaxSkip
	if room := l.bounds.End - anchor.offset - 1; room < maxK {
		maxK = room
	}
	batch := l.opts.Parallelism
	for from := l.opts.MinSkip; from <= maxK; from += batch {
		to := from + batch - 1
		if to > maxK {
			to = maxK
		}
		for _, r := range l.evalBatch(anchor, from, to) {
			l.recordTrial(anchor, r)
			if r.ok {
				return r, true
			}
		}
	}
	return trialResult{}, false
}

func (l *locator) evalBatch(anchor snapshot, from, to int) []trialResult {
	out := make([]trialResult, to-from+1)
	if len(out) == 1 {
		out[0] = l.runTrial(anchor, from)
		return out
	}
	var g errgroup.Group
	g.SetLimit(l.opts.Parallelism)
	for k := from; k <= to; k++ {
		g.Go(func() error {
			out[k-from] = l.runTrial(anchor, k)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// runTrial re-drives a private copy of the anchor state from anchor+k. It
// never touches the locator's own decoder or validator.
func (l *locator) runTrial(anchor snapshot, k int) trialResult {
	res := trialResult{length: k}
	dec := fit.NewDecoder(l.buf, l.bounds.Start, l.bounds.End)
	dec.SetState(anchor.state)
	if err := dec.Seek(anchor.offset + k); err != nil {
		res.failure = &fit.DecodeError{
			Class:  fit.ClassStructural,
			Kind:   fit.ErrOutOfBounds,
			Offset: anchor.offset + k,
			Start:  anchor.offset + k,
		}
		return res
	}
	val := anchor.validator
	for res.messages < l.opts.Lookahead {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = val.Check(msg)
		}
		if err != nil {
			var de *fit.DecodeError
			if !errors.As(err, &de) {
				de = &fit.DecodeError{Class: fit.ClassStructural, Kind: err, Offset: dec.Position(), Start: dec.Position()}
			}
			res.failure = de
			return res
		}
		res.messages++
	}
	res.ok = true
	return res
}

func (l *locator) recordTrial(anchor snapshot, r trialResult) {
	l.res.Trials++
	if m := l.opts.Metrics; m != nil {
		m.IncTrial()
	}
	ev := Event{Kind: EventSkipTrial, Anchor: anchor.offset, Length: r.length, Accepted: r.ok}
	if r.failure != nil {
		ev.Offset = r.failure.Offset
		ev.ErrorKind = fit.KindName(r.failure)
		ev.Reason = reasonOf(r.failure)
	}
	l.emit(ev)
}
