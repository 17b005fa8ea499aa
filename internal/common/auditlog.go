package common

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Audit entry kinds.
const (
	AuditHeader  = "header"
	AuditExcise  = "excise"
	AuditTrailer = "trailer"
)

// AuditEntry records bytes of a source file that a repair did not carry into
// its output.
type AuditEntry struct {
	RunID     string    `json:"runId"`
	Kind      string    `json:"kind"`
	Offset    int64     `json:"offset"`
	Length    int       `json:"length"`
	BeforeHex string    `json:"beforeHex"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Ts        time.Time `json:"ts"`
}

// BeforeBytes decodes the hexadecimal representation of the source bytes.
func (e AuditEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(e.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(e.BeforeHex)
}

// AuditLog provides append-only access to a JSONL audit log.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Path returns the backing file path for the log.
func (a *AuditLog) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Append writes entries to the log, one JSON object per line, and syncs the
// file once all of them are written.
func (a *AuditLog) Append(entries ...AuditEntry) error {
	if a == nil {
		return errors.New("nil audit log")
	}
	var buf []byte
	for _, entry := range entries {
		if entry.RunID == "" {
			return errors.New("audit entry missing runId")
		}
		switch entry.Kind {
		case AuditHeader, AuditExcise, AuditTrailer:
		default:
			return fmt.Errorf("audit entry has unknown kind %q", entry.Kind)
		}
		if entry.Ts.IsZero() {
			entry.Ts = time.Now().UTC()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	dir := filepath.Dir(a.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAuditLog loads every entry from the supplied JSONL file.
func ReadAuditLog(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var entries []AuditEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LastRun returns the entries belonging to the most recently appended run.
func LastRun(entries []AuditEntry) []AuditEntry {
	if len(entries) == 0 {
		return nil
	}
	id := entries[len(entries)-1].RunID
	var out []AuditEntry
	for _, e := range entries {
		if e.RunID == id {
			out = append(out, e)
		}
	}
	return out
}
