package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var selectClear bool

var useCmd = &cobra.Command{
	Use:   "use <session-id>",
	Short: "Make a session the active one",
	Long: `Make a session the active target for show, select, rename, merge,
split, delete, export, and report. Switching sessions clears the
cluster selection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return useRun(args[0])
	},
}

var selectCmd = &cobra.Command{
	Use:   "select [cluster-id]...",
	Short: "Toggle clusters in the merge selection",
	Long: `Toggle clusters of the active session in the persistent selection.

The selection feeds 'klaster merge' when it is called without
arguments. Without arguments, shows the current selection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return selectRun(args)
	},
}

func init() {
	selectCmd.Flags().BoolVar(&selectClear, "clear", false, "Clear the selection")
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(selectCmd)
}

func useRun(sessionID string) error {
	ctx := context.Background()
	if _, err := getController(ctx); err != nil {
		return err
	}

	session, err := lc.Select(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	persistSessionState(ctx)

	ui.Success("Active session: %s (%s, %d clusters)",
		session.SessionID, session.Status, len(session.Clusters))
	return nil
}

func selectRun(ids []string) error {
	ctx := context.Background()
	if _, err := getController(ctx); err != nil {
		return err
	}

	active := reg.ActiveID()
	if active == "" {
		return fmt.Errorf("no session selected: run 'klaster use <session-id>' first")
	}
	defer persistSessionState(ctx)

	if selectClear {
		sel.Clear()
		if s, err := getLocalStore(); err == nil {
			_ = s.ClearSelection(ctx, active)
		}
		ui.Success("Selection cleared")
		return nil
	}

	if len(ids) == 0 {
		current := sel.IDs()
		if len(current) == 0 {
			ui.Info("Selection is empty")
		} else {
			fmt.Fprintf(ui.Out, "Selected clusters: %s\n", strings.Join(current, ", "))
		}
		return nil
	}

	// Validate against the fresh cluster set before toggling.
	session, err := lc.FetchOnce(ctx, active)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s is no longer available", active)
	}

	for _, id := range ids {
		if session.FindCluster(id) == nil {
			ui.Warning("Cluster %s not found, skipped", id)
			continue
		}
		if sel.Toggle(id) {
			ui.Success("Selected cluster %s", id)
		} else {
			ui.Info("Deselected cluster %s", id)
		}
	}

	if n := sel.Len(); n > 0 {
		ui.Info("%d cluster(s) selected", n)
	}
	return nil
}
