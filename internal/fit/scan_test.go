package fit_test

import (
	"errors"
	"testing"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/fit/fittest"
)

func TestScanValidActivity(t *testing.T) {
	b := fittest.Activity(10)
	res, err := fit.Scan(b.Bytes(), fit.DefaultRules())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("Valid = false: failure %v header %v file %v", res.Failure, res.HeaderCRCValid, res.FileCRCValid)
	}
	if len(res.Messages) != 13 {
		t.Fatalf("messages = %d, want 13", len(res.Messages))
	}
	last := res.Messages[len(res.Messages)-1]
	if last.Timestamp != fittest.BaseTimestamp+9 || last.Offset+last.Size != res.Bounds.End {
		t.Fatalf("last message = %+v, stream end %d", last, res.Bounds.End)
	}
}

func TestScanReportsFirstFailure(t *testing.T) {
	b := fittest.Activity(4)
	at := b.Offset()
	b.Record(4, 706297609)
	b.Record(5, fittest.BaseTimestamp+5)
	res, err := fit.Scan(b.Bytes(), fit.DefaultRules())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Failure == nil || !errors.Is(res.Failure, fit.ErrNonMonotonicTimestamp) {
		t.Fatalf("Failure = %v, want non-monotonic", res.Failure)
	}
	if res.Failure.Offset != at {
		t.Fatalf("Failure offset = %d, want %d", res.Failure.Offset, at)
	}
	if fit.KindName(res.Failure) != "NonMonotonicTimestamp" {
		t.Fatalf("KindName = %q", fit.KindName(res.Failure))
	}
	if len(res.Messages) != 7 {
		t.Fatalf("messages = %d, want 7", len(res.Messages))
	}
}

func TestScanFatalHeader(t *testing.T) {
	if _, err := fit.Scan([]byte{}, fit.DefaultRules()); !errors.Is(err, fit.ErrEmptyInput) {
		t.Fatalf("Scan(empty) = %v, want ErrEmptyInput", err)
	}
}

func TestScanChecksFileCRC(t *testing.T) {
	buf := fittest.Activity(3).Bytes()
	buf[len(buf)-1] ^= 0x5A
	res, err := fit.Scan(buf, fit.DefaultRules())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.FileCRCValid || res.Valid() {
		t.Fatalf("FileCRCValid = %v, want false", res.FileCRCValid)
	}
	if res.Failure != nil {
		t.Fatalf("Failure = %v, want nil", res.Failure)
	}
}
