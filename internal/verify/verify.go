// Package verify decodes a FIT file with an independent decoder so a repaired
// file is checked by something other than the code that produced it.
package verify

import (
	"bytes"
	"fmt"
	"time"

	tfit "github.com/tormoder/fit"
)

// Decoder names the library used for verification.
const Decoder = "github.com/tormoder/fit"

type Summary struct {
	FileType     string
	Manufacturer string
	Product      uint16
	TimeCreated  time.Time
	// Records and Events are only counted for activity files.
	Records int
	Events  int
}

// Check verifies both CRCs and decodes every message of data.
func Check(data []byte) (Summary, error) {
	var s Summary
	if err := tfit.CheckIntegrity(bytes.NewReader(data), false); err != nil {
		return s, fmt.Errorf("integrity: %w", err)
	}
	decoded, err := tfit.Decode(bytes.NewReader(data))
	if err != nil {
		return s, fmt.Errorf("decode: %w", err)
	}
	s.FileType = decoded.Type().String()
	s.Manufacturer = decoded.FileId.Manufacturer.String()
	s.Product = decoded.FileId.Product
	if !decoded.FileId.TimeCreated.IsZero() {
		s.TimeCreated = decoded.FileId.TimeCreated.UTC()
	}
	if decoded.Type() == tfit.FileTypeActivity {
		activity, err := decoded.Activity()
		if err != nil {
			return s, fmt.Errorf("activity: %w", err)
		}
		s.Records = len(activity.Records)
		s.Events = len(activity.Events)
	}
	return s, nil
}

// MessageName returns the profile name of a global message number, or
// "MesgNum(n)" for numbers the profile does not define.
func MessageName(global uint16) string {
	return tfit.MesgNum(global).String()
}
