package cmd

import (
	"context"

	"github.com/spf13/cobra"

	mcpserver "github.com/klasterhq/klaster/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code inspect and curate clustering sessions natively.
Configure in Claude Code with:

  {
    "mcpServers": {
      "klaster": { "command": "klaster", "args": ["mcp"] }
    }
  }

Available tools: klaster_list_sessions, klaster_get_session,
klaster_rename_cluster, klaster_merge_clusters, klaster_split_cluster,
klaster_delete_cluster, klaster_session_report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	ctx := context.Background()
	if _, err := getController(ctx); err != nil {
		return err
	}
	defer persistSessionState(ctx)

	client, err := getClient()
	if err != nil {
		return err
	}

	srv := mcpserver.NewServer(client, reg, lc, coord)
	return srv.ServeStdio(ctx)
}
