package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/export"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/verify"
)

func newInspectCommand(ctx *cliContext) *cobra.Command {
	var parquetPath string
	var listMessages bool
	cmd := &cobra.Command{
		Use:   "inspect <in.fit>",
		Short: "Decode a FIT file up to its first failure and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			res, err := fit.Scan(buf, ctx.cfg.RepairOptions().Rules)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			printScan(w, args[0], buf, res, listMessages)
			if parquetPath != "" {
				if err := export.WriteMessageIndex(parquetPath, res.Messages); err != nil {
					return err
				}
				fmt.Fprintf(w, "Message index: %s (%d rows)\n", parquetPath, len(res.Messages))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parquetPath, "parquet", "", "Write the message index as Parquet")
	cmd.Flags().BoolVar(&listMessages, "messages", false, "List every decoded message")
	return cmd
}

func printScan(w io.Writer, path string, buf []byte, res *fit.ScanResult, listMessages bool) {
	p := newPainter(w)
	h := res.Header
	fmt.Fprintln(w, renderTable(
		[]string{"Field", "Value"},
		[][]string{
			{"File", path},
			{"Size", common.FormatBytes(int64(len(buf)))},
			{"Header size", strconv.Itoa(int(h.Size))},
			{"Protocol", fit.ProtocolVersionString(h.ProtocolVersion)},
			{"Profile", fit.ProfileVersionString(h.ProfileVersion)},
			{"Declared data size", strconv.FormatUint(uint64(h.DataSize), 10)},
			{"Header CRC", validLabel(res.HeaderCRCValid)},
			{"File CRC", validLabel(res.FileCRCValid)},
			{"Truncated", strconv.FormatBool(res.Bounds.Truncated)},
			{"Messages decoded", strconv.Itoa(len(res.Messages))},
		},
		nil,
	))

	counts := make(map[uint16]int)
	for _, m := range res.Messages {
		if m.Kind != fit.KindDefinition {
			counts[m.GlobalNum]++
		}
	}
	globals := make([]int, 0, len(counts))
	for g := range counts {
		globals = append(globals, int(g))
	}
	sort.Ints(globals)
	rows := make([][]string, 0, len(globals))
	for _, g := range globals {
		rows = append(rows, []string{strconv.Itoa(g), verify.MessageName(uint16(g)), strconv.Itoa(counts[uint16(g)])})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Global", "Message", "Count"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight}))
	}

	if listMessages {
		rows = rows[:0]
		for _, m := range res.Messages {
			ts := ""
			if m.HasTimestamp {
				ts = fit.TimestampTime(m.Timestamp).UTC().Format("2006-01-02T15:04:05Z")
			}
			rows = append(rows, []string{
				strconv.Itoa(m.Offset),
				strconv.Itoa(m.Size),
				m.Kind.String(),
				strconv.Itoa(int(m.LocalType)),
				strconv.Itoa(int(m.GlobalNum)),
				ts,
			})
		}
		fmt.Fprintln(w, renderTable([]string{"Offset", "Size", "Kind", "Local", "Global", "Timestamp"}, rows,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignLeft}))
	}

	switch {
	case res.Failure != nil:
		fmt.Fprintf(w, "%s %v\n", p.bad.Sprint("First failure:"), res.Failure)
	case res.Valid():
		fmt.Fprintln(w, p.good.Sprint("File is valid"))
	default:
		fmt.Fprintln(w, p.warn.Sprint("Messages decode cleanly but the file needs new checksums"))
	}
}

func validLabel(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
