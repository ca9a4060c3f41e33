package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klasterhq/klaster/internal/api"
	"github.com/klasterhq/klaster/internal/state"
)

var (
	exportType string
	exportOut  string
)

// exportKinds maps the user-facing type names to export endpoints.
var exportKinds = map[string]api.ExportKind{
	"assignments": api.ExportAssignments,
	"clusters":    api.ExportClusterSummary,
	"summary":     api.ExportSessionSummary,
}

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Download an export file for a session",
	Long: `Download one of the server's export files for a session:

  assignments   per-point cluster assignments (CSV)
  clusters      cluster summary (JSON)
  summary       session summary (JSON)

Without a session id the active session is exported. The download is
written to --out, or to stdout when --out is omitted. Completed
downloads are recorded in the local export history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(args)
	},
}

var exportHistoryCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show recorded export downloads",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportHistoryRun(args)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportType, "type", "assignments", "Export type: assignments, clusters, summary")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Destination file (default stdout)")
	exportCmd.AddCommand(exportHistoryCmd)
	rootCmd.AddCommand(exportCmd)
}

func exportRun(args []string) error {
	kind, ok := exportKinds[exportType]
	if !ok {
		return fmt.Errorf("unknown export type: %s (use: assignments, clusters, summary)", exportType)
	}

	ctx := context.Background()
	sessionID, err := requireActiveSession(ctx, args)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	var (
		dest = "-"
		out  = ui.Out
	)
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		dest = exportOut
		out = f
	}

	n, err := client.Export(ctx, sessionID, kind, out)
	if err != nil {
		return fmt.Errorf("export %s: %w", exportType, err)
	}

	if s, err := getLocalStore(); err == nil {
		_ = s.RecordExport(ctx, &state.ExportRecord{
			SessionID: sessionID,
			Kind:      string(kind),
			Dest:      dest,
			Bytes:     n,
		})
	}

	if exportOut != "" {
		ui.Success("Exported %s for %s to %s (%d bytes)", exportType, sessionID, exportOut, n)
	}
	return nil
}

func exportHistoryRun(args []string) error {
	ctx := context.Background()

	sessionID := ""
	if len(args) == 1 {
		sessionID = args[0]
	}

	s, err := getLocalStore()
	if err != nil {
		return err
	}

	records, err := s.ListExports(ctx, sessionID, 50)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Info("No exports recorded.")
		return nil
	}

	table := ui.Table([]string{"When", "Session", "Kind", "Dest", "Bytes"})
	for _, rec := range records {
		table.Append([]string{
			rec.ExportedAt.Format("2006-01-02 15:04"),
			rec.SessionID,
			rec.Kind,
			rec.Dest,
			fmt.Sprintf("%d", rec.Bytes),
		})
	}
	table.Render()
	return nil
}
