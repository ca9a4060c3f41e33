package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var splitParts int

var renameCmd = &cobra.Command{
	Use:   "rename <cluster-id> [name]",
	Short: "Set or clear a cluster's label",
	Long: `Set the human label of a cluster in the active session.

Omitting the name (or passing an empty one) clears the label.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return renameRun(args[0], name)
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge [cluster-id]...",
	Short: "Merge clusters into one",
	Long: `Merge two or more clusters of the active session into one new
cluster. Without arguments, merges the current selection (see
'klaster select'). The merged cluster gets a fresh server-assigned id,
so the selection is cleared afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeRun(args)
	},
}

var splitCmd = &cobra.Command{
	Use:   "split <cluster-id>",
	Short: "Split a cluster into parts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return splitRun(args[0])
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <cluster-id>",
	Short: "Delete a cluster and redistribute its points",
	Long: `Delete a cluster of the active session. Its points are
redistributed to the nearest remaining clusters server-side.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteRun(args[0])
	},
}

func init() {
	splitCmd.Flags().IntVar(&splitParts, "parts", 2, "Number of parts to split into")
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(deleteCmd)
}

// ensureActiveDetail makes sure the active session's detail is loaded so
// the coordinator can validate against the current cluster set.
func ensureActiveDetail(ctx context.Context) error {
	if _, err := getController(ctx); err != nil {
		return err
	}
	active := reg.ActiveID()
	if active == "" {
		return fmt.Errorf("no session selected: run 'klaster use <session-id>' first")
	}
	if reg.Active() == nil {
		if _, err := lc.FetchOnce(ctx, active); err != nil {
			return fmt.Errorf("fetch session: %w", err)
		}
		if reg.Active() == nil {
			return fmt.Errorf("session %s is no longer available", active)
		}
	}
	return nil
}

func renameRun(clusterID, name string) error {
	ctx := context.Background()
	if err := ensureActiveDetail(ctx); err != nil {
		return err
	}
	defer persistSessionState(ctx)

	return coord.Rename(ctx, clusterID, name)
}

func mergeRun(ids []string) error {
	ctx := context.Background()
	if err := ensureActiveDetail(ctx); err != nil {
		return err
	}
	defer persistSessionState(ctx)

	if len(ids) == 0 {
		ids = sel.IDs()
		if len(ids) == 0 {
			return fmt.Errorf("nothing to merge: pass cluster ids or select some with 'klaster select'")
		}
		ui.Info("Merging selected clusters: %s", strings.Join(ids, ", "))
	}

	return coord.Merge(ctx, ids)
}

func splitRun(clusterID string) error {
	ctx := context.Background()
	if err := ensureActiveDetail(ctx); err != nil {
		return err
	}
	defer persistSessionState(ctx)

	return coord.Split(ctx, clusterID, splitParts)
}

func deleteRun(clusterID string) error {
	ctx := context.Background()
	if err := ensureActiveDetail(ctx); err != nil {
		return err
	}
	defer persistSessionState(ctx)

	return coord.DeleteCluster(ctx, clusterID)
}
