package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
	"github.com/ligfx/garmin-fit-fixer/internal/report"
	"github.com/ligfx/garmin-fit-fixer/internal/verify"
)

type repairFlags struct {
	output     string
	audit      string
	reportPath string
	pdfPath    string
	lang       string
	verify     bool
	metrics    bool
	progress   bool

	lookahead  int
	maxSkip    int
	maxRewind  int
	parallel   int
	noTailDrop bool
}

func newRepairCommand(ctx *cliContext) *cobra.Command {
	var f repairFlags
	cmd := &cobra.Command{
		Use:   "repair <in.fit>",
		Short: "Excise corrupted spans and write a valid FIT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(cmd, ctx, &f, args[0])
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "Repaired file (default: input name plus the configured suffix)")
	flags.StringVar(&f.audit, "audit", "", "Audit log of excised bytes (jsonl)")
	flags.StringVar(&f.reportPath, "report", "", "Repair report (json)")
	flags.StringVar(&f.pdfPath, "pdf", "", "Repair report (pdf)")
	flags.StringVar(&f.lang, "lang", "", "PDF report language (en, tr)")
	flags.BoolVar(&f.verify, "verify", false, "Decode the output with an independent FIT decoder")
	flags.BoolVar(&f.metrics, "metrics", false, "Print search metrics")
	flags.BoolVar(&f.progress, "progress", false, "Display progress updates")
	flags.IntVar(&f.lookahead, "lookahead", repair.DefaultLookahead, "Messages a skip trial must decode cleanly")
	flags.IntVar(&f.maxSkip, "max-skip", repair.DefaultMaxSkip, "Longest span tried at one anchor")
	flags.IntVar(&f.maxRewind, "max-rewind", repair.DefaultMaxRewind, "Message boundaries to rewind per failure (0 = to the start of the span)")
	flags.IntVar(&f.parallel, "parallel", repair.DefaultParallelism, "Skip trials evaluated concurrently")
	flags.BoolVar(&f.noTailDrop, "no-tail-drop", false, "Fail instead of dropping an unrecoverable tail")
	return cmd
}

func (f *repairFlags) apply(cmd *cobra.Command, opts *repair.Options) {
	flags := cmd.Flags()
	if flags.Changed("lookahead") {
		opts.Lookahead = f.lookahead
	}
	if flags.Changed("max-skip") {
		opts.MaxSkip = f.maxSkip
	}
	if flags.Changed("max-rewind") {
		opts.MaxRewind = f.maxRewind
	}
	if flags.Changed("parallel") {
		opts.Parallelism = f.parallel
	}
	if f.noTailDrop {
		opts.AllowTailDrop = false
	}
}

func runRepair(cmd *cobra.Command, ctx *cliContext, f *repairFlags, in string) error {
	cfg := ctx.cfg
	stdout := cmd.OutOrStdout()

	buf, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out := f.output
	if out == "" {
		out = cfg.OutputPath(in)
	}
	if sameFile(in, out) {
		return fmt.Errorf("output %s would overwrite the input", out)
	}

	opts := cfg.RepairOptions()
	f.apply(cmd, &opts)
	opts.OnEvent = eventLogger(ctx.verbose)

	var metrics *common.Metrics
	if f.metrics || f.progress {
		metrics = common.NewMetrics()
		opts.Metrics = metrics
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && f.progress {
		stopProgress = common.StartProgressPrinter(cmd.ErrOrStderr(), metrics, 500*time.Millisecond)
	}
	runID := uuid.NewString()
	common.Logf("run %s: repairing %s (%s)", runID, in, common.FormatBytes(int64(len(buf))))
	oc, repairErr := repair.Repair(buf, opts)
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}

	rep := report.New(runID, in, buf)
	rep.SetOutcome(oc, repairErr)

	wrote := false
	if oc != nil && oc.Output != nil && !errors.Is(repairErr, repair.ErrSelfCheck) {
		if err := writeLocked(out, oc.Output); err != nil {
			return err
		}
		wrote = true
		rep.SetOutput(out, oc.Output)
		common.Logf("run %s: wrote %s", runID, out)

		auditPath := f.audit
		if auditPath == "" && cfg.Output.AuditLog {
			auditPath = out + ".audit.jsonl"
		}
		if auditPath != "" {
			if err := common.NewAuditLog(auditPath).Append(oc.Result.AuditEntries(runID, buf)...); err != nil {
				return fmt.Errorf("write audit log: %w", err)
			}
			fmt.Fprintf(stdout, "Audit log: %s\n", auditPath)
		}

		if f.verify || cfg.Output.Verify {
			v := &report.Verification{Decoder: verify.Decoder, OK: true}
			summary, err := verify.Check(oc.Output)
			if err != nil {
				v.OK = false
				v.Error = err.Error()
			}
			v.FileType = summary.FileType
			v.Records = summary.Records
			rep.Verification = v
		}
	}

	if err := writeReports(cmd, ctx, f, out, rep); err != nil {
		return err
	}
	printRepairSummary(stdout, rep, wrote)
	if metrics != nil && f.metrics {
		printMetrics(stdout, metrics.Snapshot())
	}
	if repairErr != nil {
		return fmt.Errorf("repair %s: %w", in, repairErr)
	}
	if v := rep.Verification; v != nil && !v.OK {
		return fmt.Errorf("independent decode of %s failed: %s", out, v.Error)
	}
	return nil
}

func writeReports(cmd *cobra.Command, ctx *cliContext, f *repairFlags, out string, rep report.RepairReport) error {
	jsonPath := f.reportPath
	if jsonPath == "" && ctx.cfg.Output.Report {
		jsonPath = out + ".report.json"
	}
	if jsonPath != "" {
		if err := report.SaveJSON(rep, jsonPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", jsonPath)
	}
	pdfPath := f.pdfPath
	if pdfPath == "" && ctx.cfg.Output.PDF {
		pdfPath = out + ".report.pdf"
	}
	if pdfPath != "" {
		langFlag := f.lang
		if langFlag == "" {
			langFlag = ctx.cfg.Output.Lang
		}
		lang, err := report.ParseLanguage(langFlag)
		if err != nil {
			return err
		}
		if err := report.SavePDF(rep, pdfPath, report.PDFOptions{Lang: lang, QR: true}); err != nil {
			return fmt.Errorf("write pdf report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "PDF report: %s\n", pdfPath)
	}
	return nil
}

func eventLogger(verbose bool) func(repair.Event) {
	return func(ev repair.Event) {
		if ev.Kind == repair.EventSkipTrial && !verbose {
			return
		}
		common.Logf("%s", ev)
	}
}

// writeLocked replaces path with data while holding an advisory lock next to
// it, so two runs cannot interleave writes to the same output.
func writeLocked(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output: %w", err)
	}
	if !ok {
		return fmt.Errorf("output %s is locked by another run", path)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

func printRepairSummary(w io.Writer, rep report.RepairReport, wrote bool) {
	p := newPainter(w)
	var status string
	switch rep.Status {
	case report.StatusClean:
		status = p.good.Sprint("CLEAN")
	case report.StatusRepaired:
		status = p.warn.Sprint("REPAIRED")
	default:
		status = p.bad.Sprint("FAILED")
	}
	fmt.Fprintf(w, "%s %s: %d messages kept, %d bytes excised in %d span(s), %d trials, %d rewinds\n",
		status, rep.Input.Path, rep.Messages, rep.Excised, len(rep.Gaps), rep.Trials, rep.Rewinds)
	if h := rep.Header; h != nil && (!h.HeaderCRCValid || !h.FileCRCValid) {
		fmt.Fprintf(w, "Checksums recomputed (header CRC valid=%v, file CRC valid=%v)\n", h.HeaderCRCValid, h.FileCRCValid)
	}
	if len(rep.Gaps) > 0 {
		rows := make([][]string, 0, len(rep.Gaps))
		for _, g := range rep.Gaps {
			reason := g.Reason
			if g.TailDropped {
				reason = "tail dropped: " + reason
			}
			rows = append(rows, []string{
				strconv.Itoa(g.Start),
				strconv.Itoa(g.End),
				strconv.Itoa(g.Len()),
				g.ErrorKind,
				reason,
			})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Start", "End", "Length", "Error", "Reason"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
		))
	}
	if wrote && rep.Output != nil {
		fmt.Fprintf(w, "Output: %s\n", rep.Output.Path)
		fmt.Fprintf(w, "Input SHA256:  %s\n", rep.Input.SHA256)
		fmt.Fprintf(w, "Output SHA256: %s\n", rep.Output.SHA256)
	}
	if v := rep.Verification; v != nil {
		if v.OK {
			fmt.Fprintf(w, "Verified: %s file, %d records (%s)\n", v.FileType, v.Records, v.Decoder)
		} else {
			fmt.Fprintf(w, "%s %s\n", p.bad.Sprint("Verification failed:"), v.Error)
		}
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "%s %s\n", p.bad.Sprint("Error:"), rep.Error)
	}
}

func printMetrics(w io.Writer, snap common.MetricsSnapshot) {
	fmt.Fprintf(w, "Metrics: duration=%s messages=%d trials=%d rewinds=%d resyncs=%d excised=%s processed=%s/%s throughput=%.2f MB/s\n",
		snap.Duration.Round(10*time.Millisecond),
		snap.Messages,
		snap.Trials,
		snap.Rewinds,
		snap.Resyncs,
		common.FormatBytes(snap.Excised),
		common.FormatBytes(snap.Bytes),
		common.FormatBytes(snap.TotalBytes),
		snap.ThroughputBytesPerSecond()/1_000_000,
	)
}
