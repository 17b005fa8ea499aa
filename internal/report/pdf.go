package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
)

type PDFOptions struct {
	Lang Language
	// QR embeds a QR code of the output SHA-256 when an output exists.
	QR bool
}

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  Translator
	enc func(string) string
}

func (w *pdfWriter) text(s string) string {
	return w.enc(cp1252Fold.Replace(s))
}

func (w *pdfWriter) t(key string) string {
	return w.text(w.tr.T(key))
}

// SavePDF renders the given repair report into a PDF document.
func SavePDF(rep RepairReport, out string, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	w := &pdfWriter{pdf: pdf, tr: NewTranslator(opts.Lang), enc: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetTitle(w.tr.T("title"), true)
	pdf.SetAuthor("fitfix", false)
	pdf.SetCreator("fitfix", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(w, w.t("title"))
	if err := addSummarySection(w, rep, opts); err != nil {
		return err
	}
	addHeaderSection(w, rep.Header)
	addGapsSection(w, rep.Gaps)
	addEventsSection(w, rep)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(w *pdfWriter, title string) {
	w.pdf.SetFont("Helvetica", "B", 18)
	w.pdf.Cell(0, 10, title)
	w.pdf.Ln(12)
}

func addSectionTitle(w *pdfWriter, key string) {
	w.pdf.SetFont("Helvetica", "B", 12)
	w.pdf.Cell(0, 8, w.t(key))
	w.pdf.Ln(9)
}

type labelValue struct {
	label string
	value string
}

func addLabelRows(w *pdfWriter, items []labelValue) {
	w.pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		w.pdf.CellFormat(55, 6, item.label, "", 0, "L", false, 0, "")
		w.pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	w.pdf.Ln(4)
}

func addSummarySection(w *pdfWriter, rep RepairReport, opts PDFOptions) error {
	addSectionTitle(w, "summary")
	items := []labelValue{
		{w.t("run_id"), rep.RunID},
		{w.t("generated"), rep.Generated.Format(time.RFC3339)},
		{w.t("status"), w.text(w.tr.Status(rep.Status))},
		{w.t("input"), w.text(emptyFallback(rep.Input.Path, "-"))},
		{w.t("size"), common.FormatBytes(rep.Input.Size)},
		{"SHA-256", shortDigest(rep.Input.SHA256)},
		{"XXH64", rep.Input.XXH64},
	}
	if rep.Output != nil {
		items = append(items,
			labelValue{w.t("output"), w.text(emptyFallback(rep.Output.Path, "-"))},
			labelValue{w.t("size"), common.FormatBytes(rep.Output.Size)},
			labelValue{"SHA-256", shortDigest(rep.Output.SHA256)},
			labelValue{"XXH64", rep.Output.XXH64},
		)
	}
	items = append(items,
		labelValue{w.t("messages"), strconv.Itoa(rep.Messages)},
		labelValue{w.t("trials"), strconv.Itoa(rep.Trials)},
		labelValue{w.t("rewinds"), strconv.Itoa(rep.Rewinds)},
		labelValue{w.t("excised"), strconv.Itoa(rep.Excised)},
	)
	if v := rep.Verification; v != nil {
		value := w.text(w.tr.Format("verify.ok", v.FileType, v.Records, v.Decoder))
		if !v.OK {
			value = w.text(w.tr.Format("verify.failed", v.Decoder, v.Error))
		}
		items = append(items, labelValue{w.t("verification"), value})
	}
	if rep.Error != "" {
		items = append(items, labelValue{w.t("error"), w.text(rep.Error)})
	}
	top := w.pdf.GetY()
	addLabelRows(w, items)

	if opts.QR && rep.Output != nil {
		png, err := DigestToQR(rep.Output.SHA256, 256)
		if err != nil {
			return fmt.Errorf("output digest qr: %w", err)
		}
		name := "output-digest"
		imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
		w.pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(png))
		pageW, _ := w.pdf.GetPageSize()
		_, _, right, _ := w.pdf.GetMargins()
		x := pageW - right - 35
		w.pdf.ImageOptions(name, x, top, 35, 35, false, imgOpts, 0, "")
		below := w.pdf.GetY()
		w.pdf.SetXY(x, top+35)
		w.pdf.SetFont("Helvetica", "", 7)
		w.pdf.CellFormat(35, 4, w.t("qr_caption"), "", 0, "C", false, 0, "")
		left, _, _, _ := w.pdf.GetMargins()
		w.pdf.SetXY(left, max(below, top+41))
	}
	return nil
}

func addHeaderSection(w *pdfWriter, h *HeaderInfo) {
	if h == nil {
		return
	}
	addSectionTitle(w, "header")
	crc := func(ok bool) string { return w.text(w.tr.Bool(ok, "valid", "invalid")) }
	addLabelRows(w, []labelValue{
		{w.t("header_size"), strconv.Itoa(int(h.Size))},
		{w.t("protocol"), fit.ProtocolVersionString(h.ProtocolVersion)},
		{w.t("profile"), fit.ProfileVersionString(h.ProfileVersion)},
		{w.t("data_size"), strconv.FormatUint(uint64(h.DataSize), 10)},
		{w.t("header_crc"), crc(h.HeaderCRCValid)},
		{w.t("file_crc"), crc(h.FileCRCValid)},
		{w.t("truncated"), w.text(w.tr.Bool(h.Truncated, "yes", "no"))},
	})
}

func addGapsSection(w *pdfWriter, gaps []repair.Gap) {
	addSectionTitle(w, "gaps")
	if len(gaps) == 0 {
		w.pdf.SetFont("Helvetica", "", 11)
		w.pdf.MultiCell(0, 6, w.t("no_gaps"), "", "L", false)
		w.pdf.Ln(4)
		return
	}
	headers := []string{w.t("col.start"), w.t("col.end"), w.t("col.length"), w.t("col.error"), w.t("col.reason")}
	widths := []float64{22, 22, 20, 46, 70}

	w.pdf.SetFillColor(240, 240, 240)
	w.pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		w.pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.pdf.SetFont("Helvetica", "", 9)
	for _, g := range gaps {
		reason := g.Reason
		if g.TailDropped {
			reason = w.tr.T("tail_dropped") + "; " + reason
		}
		renderTableRow(w.pdf, widths, []string{
			strconv.Itoa(g.Start),
			strconv.Itoa(g.End),
			strconv.Itoa(g.Len()),
			emptyFallback(g.ErrorKind, "-"),
			w.text(emptyFallback(reason, "-")),
		}, 5)
	}
	w.pdf.Ln(4)
}

func addEventsSection(w *pdfWriter, rep RepairReport) {
	kinds := rep.EventKinds()
	if len(kinds) == 0 {
		return
	}
	addSectionTitle(w, "events")
	items := make([]labelValue, 0, len(kinds))
	for _, k := range kinds {
		items = append(items, labelValue{k, strconv.Itoa(rep.EventCounts[k])})
	}
	addLabelRows(w, items)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func shortDigest(d string) string {
	if len(d) > 32 {
		return d[:32] + "..."
	}
	return emptyFallback(d, "-")
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
