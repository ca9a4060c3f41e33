package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klasterhq/klaster/internal/output"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List clustering sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsRun()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsRun() error {
	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		ui.Info("No sessions. Use 'klaster start <embeddings-file>' to submit one.")
		return nil
	}

	if _, err := getController(ctx); err != nil {
		return err
	}
	reg.SetSummaries(sessions)
	active := reg.ActiveID()

	table := ui.Table([]string{"", "Session", "Status", "Algorithm", "Clusters", "Created", "File"})
	for _, s := range sessions {
		marker := ""
		if s.SessionID == active {
			marker = "*"
		}
		clusters := "-"
		if s.NumClusters != nil {
			clusters = fmt.Sprintf("%d", *s.NumClusters)
		}
		table.Append([]string{
			marker,
			s.SessionID,
			output.StatusColor(string(s.Status)),
			s.Algorithm,
			clusters,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.OriginalFilename,
		})
	}
	table.Render()
	return nil
}
