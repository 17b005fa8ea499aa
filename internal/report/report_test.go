package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/fit/fittest"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
)

// corruptActivity has a record with a far earlier timestamp before record 10.
func corruptActivity() []byte {
	b := fittest.New().FileID().RecordDefinition()
	for i := 0; i < 20; i++ {
		if i == 10 {
			b.Record(15, 706297609)
		}
		b.Record(i, fittest.BaseTimestamp+uint32(i))
	}
	return b.Bytes()
}

func repairedReport(t *testing.T) RepairReport {
	t.Helper()
	src := corruptActivity()
	oc, err := repair.Repair(src, repair.DefaultOptions())
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	rep := New("run-1", "ride.fit", src)
	rep.SetOutcome(oc, nil)
	rep.SetOutput("ride_fixed.fit", oc.Output)
	rep.Verification = &Verification{Decoder: "tormoder/fit", OK: true, FileType: "Activity", Records: 20}
	return rep
}

func TestSetOutcomeRepaired(t *testing.T) {
	rep := repairedReport(t)
	if rep.Status != StatusRepaired {
		t.Fatalf("status = %s, want repaired", rep.Status)
	}
	if len(rep.Gaps) != 1 || rep.Excised != fittest.RecordSize {
		t.Fatalf("gaps = %+v excised = %d", rep.Gaps, rep.Excised)
	}
	if rep.Gaps[0].ErrorKind != "NonMonotonicTimestamp" {
		t.Fatalf("error kind = %q", rep.Gaps[0].ErrorKind)
	}
	if rep.EventCounts["resync_found"] != 1 || rep.EventCounts["finished"] != 1 {
		t.Fatalf("event counts = %v", rep.EventCounts)
	}
	if rep.Header == nil || rep.Header.Size != 14 || rep.Header.DataType != ".FIT" {
		t.Fatalf("header = %+v", rep.Header)
	}
	if rep.Input.SHA256 == rep.Output.SHA256 || rep.Output.Size != rep.Input.Size-fittest.RecordSize {
		t.Fatalf("input %+v output %+v", rep.Input, rep.Output)
	}
}

func TestSetOutcomeCleanAndFailed(t *testing.T) {
	src := fittest.Activity(5).Bytes()
	oc, err := repair.Repair(src, repair.DefaultOptions())
	rep := New("run-2", "", src)
	rep.SetOutcome(oc, err)
	if rep.Status != StatusClean || len(rep.Gaps) != 0 {
		t.Fatalf("clean report = %+v", rep)
	}

	bad := []byte{0x0E, 0x20}
	oc, err = repair.Repair(bad, repair.DefaultOptions())
	rep = New("run-3", "", bad)
	rep.SetOutcome(oc, err)
	if rep.Status != StatusFailed || rep.Header != nil || rep.Error == "" {
		t.Fatalf("failed report = %+v", rep)
	}
	if !errors.Is(err, fit.ErrHeaderTooShort) {
		t.Fatalf("err = %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	rep := repairedReport(t)
	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveJSON(rep, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	got, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.RunID != rep.RunID || got.Status != rep.Status || len(got.Gaps) != 1 || got.Output.XXH64 != rep.Output.XXH64 {
		t.Fatalf("round trip = %+v", got)
	}
	if err := os.WriteFile(path, []byte(`{"status":"clean"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJSON(path); err == nil {
		t.Fatalf("expected error for report without runId")
	}
}

func TestSavePDF(t *testing.T) {
	rep := repairedReport(t)
	rep.Error = ""
	for _, lang := range []Language{LangEnglish, LangTurkish} {
		t.Run(string(lang), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report.pdf")
			if err := SavePDF(rep, path, PDFOptions{Lang: lang, QR: true}); err != nil {
				t.Fatalf("SavePDF: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read pdf: %v", err)
			}
			if !bytes.HasPrefix(data, []byte("%PDF-")) {
				t.Fatalf("output is not a PDF")
			}
		})
	}
}

func TestSavePDFWithoutOutput(t *testing.T) {
	rep := New("run-4", "broken.fit", []byte("nope"))
	rep.SetOutcome(nil, fit.ErrBadSignature)
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := SavePDF(rep, path, PDFOptions{QR: true}); err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
}

func TestDigestToQR(t *testing.T) {
	png, err := DigestToQR(" ab:cd-ef01 ", 0)
	if err != nil {
		t.Fatalf("DigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
	if _, err := DigestToQR("zz", 64); err == nil {
		t.Fatalf("expected error for digest without hex digits")
	}
	if got := sanitizeHex(" ab:cd-ef01 "); got != "ABCDEF01" {
		t.Fatalf("sanitizeHex = %q", got)
	}
}

func TestTranslator(t *testing.T) {
	tr := NewTranslator(LangTurkish)
	if got := tr.Status(StatusRepaired); got != "ONARILDI" {
		t.Fatalf("status = %q", got)
	}
	if got := tr.T("missing.key"); got != "missing.key" {
		t.Fatalf("missing key = %q", got)
	}
	if got := NewTranslator("de").Lang(); got != LangEnglish {
		t.Fatalf("fallback lang = %q", got)
	}
	if got := cp1252Fold.Replace("BAŞARISIZ çıktı"); got != "BASARISIZ çikti" {
		t.Fatalf("fold = %q", got)
	}
	if _, err := ParseLanguage("klingon"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("ParseLanguage err = %v", err)
	}
	if lang, err := ParseLanguage("TR"); err != nil || lang != LangTurkish {
		t.Fatalf("ParseLanguage(TR) = %v, %v", lang, err)
	}
}
