package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/repair"
)

func newUndoCommand(ctx *cliContext) *cobra.Command {
	var auditPath, out string
	cmd := &cobra.Command{
		Use:   "undo <fixed.fit>",
		Short: "Rebuild the original file from a repaired file and its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if auditPath == "" || out == "" {
				return fmt.Errorf("required: --audit, --output")
			}
			entries, err := common.ReadAuditLog(auditPath)
			if err != nil {
				return fmt.Errorf("read audit: %w", err)
			}
			entries = common.LastRun(entries)
			if len(entries) == 0 {
				return fmt.Errorf("audit log %s is empty", auditPath)
			}
			fixed, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			restored, err := repair.RestoreFromAudit(fixed, entries)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			if err := writeLocked(out, restored); err != nil {
				return err
			}
			excised := 0
			for _, e := range entries {
				if e.Kind == common.AuditExcise {
					excised++
				}
			}
			common.Logf("run %s: restored %s", entries[0].RunID, out)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Restored %d excised span(s) to %s\n", excised, out)
			fmt.Fprintf(w, "Repaired SHA256: %s\n", common.FingerprintOf(fixed).SHA256)
			fmt.Fprintf(w, "Restored SHA256: %s\n", common.FingerprintOf(restored).SHA256)
			return nil
		},
	}
	cmd.Flags().StringVar(&auditPath, "audit", "", "Audit log written by repair (jsonl)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Restored output file")
	return cmd
}
