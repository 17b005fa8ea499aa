// Package report renders the outcome of a repair run as JSON and PDF.
package report

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
)

type Status string

const (
	StatusClean    Status = "clean"
	StatusRepaired Status = "repaired"
	StatusFailed   Status = "failed"
)

type FileInfo struct {
	Path string `json:"path"`
	common.Fingerprint
}

type HeaderInfo struct {
	Size            uint8  `json:"size"`
	ProtocolVersion uint8  `json:"protocolVersion"`
	ProfileVersion  uint16 `json:"profileVersion"`
	DataSize        uint32 `json:"dataSize"`
	DataType        string `json:"dataType"`
	HeaderCRCValid  bool   `json:"headerCrcValid"`
	FileCRCValid    bool   `json:"fileCrcValid"`
	Truncated       bool   `json:"truncated"`
}

// Verification is the result of decoding the output with a second decoder.
type Verification struct {
	Decoder  string `json:"decoder"`
	OK       bool   `json:"ok"`
	FileType string `json:"fileType,omitempty"`
	Records  int    `json:"records"`
	Error    string `json:"error,omitempty"`
}

type RepairReport struct {
	RunID        string         `json:"runId"`
	Generated    time.Time      `json:"generated"`
	Status       Status         `json:"status"`
	Input        FileInfo       `json:"input"`
	Output       *FileInfo      `json:"output,omitempty"`
	Header       *HeaderInfo    `json:"header,omitempty"`
	Messages     int            `json:"messages"`
	Trials       int            `json:"trials"`
	Rewinds      int            `json:"rewinds"`
	Excised      int            `json:"excised"`
	TailDropped  bool           `json:"tailDropped,omitempty"`
	Gaps         []repair.Gap   `json:"gaps"`
	EventCounts  map[string]int `json:"eventCounts,omitempty"`
	Verification *Verification  `json:"verification,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// New starts a report for the input file.
func New(runID, inputPath string, input []byte) RepairReport {
	return RepairReport{
		RunID:     runID,
		Generated: time.Now().UTC(),
		Input:     FileInfo{Path: inputPath, Fingerprint: common.FingerprintOf(input)},
		Gaps:      []repair.Gap{},
	}
}

// SetOutcome records what Repair returned. oc may be nil when the header
// could not be parsed.
func (r *RepairReport) SetOutcome(oc *repair.Outcome, err error) {
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
	}
	if oc == nil || oc.Result == nil {
		if err == nil {
			r.Status = StatusFailed
			r.Error = "no result"
		}
		return
	}
	res := oc.Result
	r.Header = headerInfo(res)
	r.Messages = res.Messages
	r.Trials = res.Trials
	r.Rewinds = res.Rewinds
	r.Excised = res.Excised()
	r.TailDropped = res.TailDropped
	r.Gaps = append([]repair.Gap{}, res.Gaps...)
	r.EventCounts = countEvents(res.Events)
	if err != nil {
		return
	}
	if res.Clean() && res.HeaderCRCValid && res.FileCRCValid {
		r.Status = StatusClean
	} else {
		r.Status = StatusRepaired
	}
}

// SetOutput records the file written for this run.
func (r *RepairReport) SetOutput(path string, data []byte) {
	r.Output = &FileInfo{Path: path, Fingerprint: common.FingerprintOf(data)}
}

func headerInfo(res *repair.Result) *HeaderInfo {
	h := res.Header
	return &HeaderInfo{
		Size:            h.Size,
		ProtocolVersion: h.ProtocolVersion,
		ProfileVersion:  h.ProfileVersion,
		DataSize:        h.DataSize,
		DataType:        string(h.DataType[:]),
		HeaderCRCValid:  res.HeaderCRCValid,
		FileCRCValid:    res.FileCRCValid,
		Truncated:       res.Bounds.Truncated,
	}
}

func countEvents(events []repair.Event) map[string]int {
	if len(events) == 0 {
		return nil
	}
	out := make(map[string]int)
	for _, ev := range events {
		out[string(ev.Kind)]++
	}
	return out
}

// EventKinds returns the keys of EventCounts in a stable order.
func (r RepairReport) EventKinds() []string {
	keys := make([]string, 0, len(r.EventCounts))
	for k := range r.EventCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func SaveJSON(rep RepairReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (RepairReport, error) {
	var rep RepairReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, err
	}
	if rep.RunID == "" {
		return rep, errors.New("report has no runId")
	}
	return rep, nil
}
